// Package fetch materializes every remote asset a timeline references into
// a job's working directory. It handles redirects, file-sharing consent
// pages, and presigned object-store downloads, and returns a mapping from
// asset/clip identifier to absolute local path.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"path/filepath"
	"strings"
	"time"

	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/timeline"
)

// browserUserAgent is sent on consent-page downloads. File-sharing services
// serve interstitial HTML to unknown clients.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// AssetResolver resolves timeline asset identifiers to asset records.
type AssetResolver interface {
	GetByID(ctx context.Context, id string) (*models.Asset, error)
}

// Presigner converts object-store references into time-bounded GET URLs.
type Presigner interface {
	// KeyForURL reports whether the URL points into the worker's bucket.
	KeyForURL(rawURL string) (key string, ok bool)
	// PresignGet returns a presigned GET URL for the key.
	PresignGet(ctx context.Context, key string) (string, error)
}

// Fetcher downloads timeline assets.
type Fetcher struct {
	client    *http.Client
	assets    AssetResolver
	presigner Presigner
	log       *slog.Logger
}

// defaultTimeout bounds a single download when no timeout is configured.
const defaultTimeout = 10 * time.Minute

// New creates a fetcher. timeout bounds each individual download; zero
// selects the default. The HTTP client carries a cookie jar because consent
// flows hand out cookies on the first response that must accompany the
// second request.
func New(assets AssetResolver, presigner Presigner, timeout time.Duration, log *slog.Logger) (*Fetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &http.Client{
		Jar:     jar,
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &Fetcher{client: client, assets: assets, presigner: presigner, log: log}, nil
}

// SetHTTPClient swaps the underlying client. Tests use this to install a
// mock transport.
func (f *Fetcher) SetHTTPClient(c *http.Client) {
	f.client = c
}

// Download fetches a single URL into destPath with the same redirect,
// consent, and verification handling as timeline fetches.
func (f *Fetcher) Download(ctx context.Context, rawURL, destPath string) error {
	return f.download(ctx, rawURL, destPath)
}

// ref is one distinct downloadable the timeline references.
type ref struct {
	key     string
	assetID string
	url     string
	kind    models.AssetKind
}

// FetchAll downloads every asset the timeline references into destDir and
// returns the key -> absolute path mapping. progress, if non-nil, is called
// after each completed file. Any single failure aborts the whole fetch.
func (f *Fetcher) FetchAll(ctx context.Context, t *timeline.Timeline, destDir string, progress func(done, total int)) (map[string]string, error) {
	refs := collectRefs(t)
	paths := make(map[string]string, len(refs))

	for i, r := range refs {
		rawURL, mimeType, filename, err := f.resolveURL(ctx, r)
		if err != nil {
			return nil, err
		}

		ext := inferExt(r.kind, rawURL, mimeType, filename)
		dest := filepath.Join(destDir, safeName(r.key)+ext)

		f.log.Info("downloading asset",
			slog.String("key", r.key),
			slog.String("kind", string(r.kind)),
		)
		if err := f.download(ctx, rawURL, dest); err != nil {
			return nil, fmt.Errorf("fetching asset %s: %w", r.key, err)
		}
		paths[r.key] = dest

		if progress != nil {
			progress(i+1, len(refs))
		}
	}
	return paths, nil
}

// resolveURL turns a ref into a concrete download URL, presigning
// object-store references with the worker's credentials.
func (f *Fetcher) resolveURL(ctx context.Context, r ref) (rawURL, mimeType, filename string, err error) {
	if r.assetID != "" {
		asset, err := f.assets.GetByID(ctx, r.assetID)
		if err != nil {
			return "", "", "", fmt.Errorf("resolving asset %s: %w", r.assetID, err)
		}
		if asset == nil {
			return "", "", "", fmt.Errorf("asset %s not found", r.assetID)
		}
		if asset.ObjectKey != "" && f.presigner != nil {
			signed, err := f.presigner.PresignGet(ctx, asset.ObjectKey)
			if err != nil {
				return "", "", "", fmt.Errorf("presigning asset %s: %w", r.assetID, err)
			}
			return signed, asset.MIME, asset.Filename, nil
		}
		if asset.URL == "" {
			return "", "", "", fmt.Errorf("asset %s has no download location", r.assetID)
		}
		return asset.URL, asset.MIME, asset.Filename, nil
	}

	// Direct URLs into our own bucket are presigned too; public bucket
	// access may be disabled.
	if f.presigner != nil {
		if key, ok := f.presigner.KeyForURL(r.url); ok {
			signed, err := f.presigner.PresignGet(ctx, key)
			if err != nil {
				return "", "", "", fmt.Errorf("presigning %s: %w", r.url, err)
			}
			return signed, "", "", nil
		}
	}
	return r.url, "", "", nil
}

// collectRefs walks the timeline in presentation order and returns each
// distinct downloadable exactly once.
func collectRefs(t *timeline.Timeline) []ref {
	var refs []ref
	seen := make(map[string]bool)
	add := func(r ref) {
		if r.key == "" || seen[r.key] {
			return
		}
		seen[r.key] = true
		refs = append(refs, r)
	}

	for i := range t.Scenes {
		s := &t.Scenes[i]
		if !s.HasSource() {
			continue
		}
		kind := models.AssetKindVideo
		if s.Kind == timeline.SceneKindImage {
			kind = models.AssetKindImage
		}
		add(ref{key: s.SourceKey(), assetID: s.AssetID, url: s.ClipURL, kind: kind})
	}

	if t.Music != nil {
		add(ref{key: t.MusicSourceKey(), assetID: t.Music.AssetID, url: t.Music.URL, kind: models.AssetKindAudio})
	}
	if t.Voiceover != nil {
		add(ref{key: t.Voiceover.AssetID, assetID: t.Voiceover.AssetID, kind: models.AssetKindAudio})
	}
	for i := range t.AudioTracks {
		a := &t.AudioTracks[i]
		add(ref{key: a.AssetID, assetID: a.AssetID, kind: models.AssetKindAudio})
	}
	for i := range t.SoundEffects {
		fx := &t.SoundEffects[i]
		add(ref{key: fx.AssetID, assetID: fx.AssetID, kind: models.AssetKindAudio})
	}
	for i := range t.ImageOverlays {
		o := &t.ImageOverlays[i]
		add(ref{key: o.AssetID, assetID: o.AssetID, kind: models.AssetKindImage})
	}
	if t.Brand != nil {
		add(ref{key: t.Brand.LogoAssetID, assetID: t.Brand.LogoAssetID, kind: models.AssetKindLogo})
	}
	return refs
}

// kindDefaults maps asset kinds to fallback extensions.
var kindDefaults = map[models.AssetKind]string{
	models.AssetKindVideo: ".mp4",
	models.AssetKindImage: ".png",
	models.AssetKindAudio: ".mp3",
	models.AssetKindLogo:  ".png",
}

// knownExts are recognized in URL paths and filenames.
var knownExts = []string{".mp4", ".mov", ".webm", ".mkv", ".gif", ".png", ".jpg", ".jpeg", ".webp", ".mp3", ".wav", ".m4a", ".aac", ".ogg"}

// inferExt picks the local file extension: declared filename first, then a
// recognizable URL substring, then MIME, then a per-kind default.
func inferExt(kind models.AssetKind, rawURL, mimeType, filename string) string {
	if filename != "" {
		if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
			return ext
		}
	}

	lower := strings.ToLower(rawURL)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range knownExts {
		if strings.HasSuffix(lower, ext) {
			return ext
		}
	}

	if mimeType != "" {
		if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
			return exts[0]
		}
	}
	return kindDefaults[kind]
}

// safeName flattens a key into a single filesystem-safe path element. Clip
// keys can be full URLs.
func safeName(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if len(name) > 120 {
		name = name[len(name)-120:]
	}
	return name
}
