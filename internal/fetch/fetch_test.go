package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/observability"
	"github.com/clipforge/clipforge/internal/timeline"
)

type fakeResolver struct {
	assets map[string]*models.Asset
}

func (r *fakeResolver) GetByID(_ context.Context, id string) (*models.Asset, error) {
	return r.assets[id], nil
}

type fakePresigner struct {
	prefix string
	signed string
}

func (p *fakePresigner) KeyForURL(rawURL string) (string, bool) {
	if p.prefix != "" && len(rawURL) > len(p.prefix) && rawURL[:len(p.prefix)] == p.prefix {
		return rawURL[len(p.prefix):], true
	}
	return "", false
}

func (p *fakePresigner) PresignGet(context.Context, string) (string, error) {
	return p.signed, nil
}

func newTestFetcher(t *testing.T, assets map[string]*models.Asset, presigner Presigner) *Fetcher {
	t.Helper()
	log := observability.NewLogger(config.LoggingConfig{Level: "error", Format: "text"})
	f, err := New(&fakeResolver{assets: assets}, presigner, 30*time.Second, log)
	require.NoError(t, err)
	return f
}

func TestNewAppliesTimeout(t *testing.T) {
	log := observability.NewLogger(config.LoggingConfig{Level: "error", Format: "text"})

	f, err := New(&fakeResolver{}, nil, 42*time.Second, log)
	require.NoError(t, err)
	assert.Equal(t, 42*time.Second, f.client.Timeout)

	// Zero falls back to the default bound.
	f, err = New(&fakeResolver{}, nil, 0, log)
	require.NoError(t, err)
	assert.Equal(t, defaultTimeout, f.client.Timeout)
}

// fakeMP4 is large enough to clear the HTML sniff threshold.
var fakeMP4 = bytes.Repeat([]byte{0x00, 0x00, 0x00, 0x20, 0x66, 0x74, 0x79, 0x70}, 512)

func TestFetchAllDirectDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(fakeMP4)
	}))
	defer srv.Close()

	f := newTestFetcher(t, map[string]*models.Asset{
		"a1": {ID: "a1", Kind: models.AssetKindVideo, URL: srv.URL + "/video.mp4"},
	}, nil)

	tl := &timeline.Timeline{
		Resolution: timeline.Resolution{Width: 1280, Height: 720},
		Scenes:     []timeline.Scene{{ID: "s1", AssetID: "a1", Kind: timeline.SceneKindVideo, OutSec: 3, DurationSec: 3}},
	}
	require.NoError(t, tl.Normalize())

	dir := t.TempDir()
	var calls int
	paths, err := f.FetchAll(context.Background(), tl, dir, func(done, total int) { calls++ })
	require.NoError(t, err)

	require.Contains(t, paths, "a1")
	assert.Equal(t, ".mp4", filepath.Ext(paths["a1"]))
	info, err := os.Stat(paths["a1"])
	require.NoError(t, err)
	assert.Equal(t, int64(len(fakeMP4)), info.Size())
	assert.Equal(t, 1, calls)
}

func TestFetchAllDeduplicates(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(fakeMP4)
	}))
	defer srv.Close()

	f := newTestFetcher(t, map[string]*models.Asset{
		"a1": {ID: "a1", Kind: models.AssetKindVideo, URL: srv.URL + "/v.mp4"},
	}, nil)

	tl := &timeline.Timeline{
		Resolution: timeline.Resolution{Width: 1280, Height: 720},
		Scenes: []timeline.Scene{
			{ID: "s1", AssetID: "a1", Kind: timeline.SceneKindVideo, OutSec: 3, DurationSec: 3},
			{ID: "s2", AssetID: "a1", Kind: timeline.SceneKindVideo, OutSec: 2, DurationSec: 2},
		},
	}
	require.NoError(t, tl.Normalize())

	paths, err := f.FetchAll(context.Background(), tl, t.TempDir(), nil)
	require.NoError(t, err)
	assert.Len(t, paths, 1)
	assert.Equal(t, 1, hits)
}

func TestDownloadFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		// Relative Location resolves against the current host.
		http.Redirect(w, r, "/hop", http.StatusFound)
	})
	mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/file", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/file", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(fakeMP4)
	})

	f := newTestFetcher(t, nil, nil)
	dest := filepath.Join(t.TempDir(), "out.mp4")
	require.NoError(t, f.download(context.Background(), srv.URL+"/start", dest))
	assert.FileExists(t, dest)
}

func TestDownloadConsentPage(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/share", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("confirm") == "abc123" {
			w.Header().Set("Content-Type", "video/mp4")
			w.Write(fakeMP4)
			return
		}
		assert.Equal(t, browserUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!DOCTYPE html><html><body>
			<form method="get"><input type="hidden" name="confirm" value="abc123"></form>
			</body></html>`)
	})

	f := newTestFetcher(t, nil, nil)
	dest := filepath.Join(t.TempDir(), "out.mp4")
	require.NoError(t, f.download(context.Background(), srv.URL+"/share", dest))

	head, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.False(t, looksLikeHTML(head[:64]))
}

func TestDownloadConsentViaLink(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/direct-download?id=9">Download anyway</a></body></html>`)
	})
	mux.HandleFunc("/direct-download", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(fakeMP4)
	})

	f := newTestFetcher(t, nil, nil)
	dest := filepath.Join(t.TempDir(), "out.mp4")
	require.NoError(t, f.download(context.Background(), srv.URL+"/page", dest))
	assert.FileExists(t, dest)
}

func TestDownloadRejectsBareHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>nothing to see</body></html>")
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil, nil)
	err := f.download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "out.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTML")
}

func TestDownloadRejectsEmptyFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil, nil)
	err := f.download(context.Background(), srv.URL+"/empty.mp4", filepath.Join(t.TempDir(), "out.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestDownloadRejectsSmallHTMLMasquerade(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Wrong content type, HTML body under 1 KB.
		w.Header().Set("Content-Type", "video/mp4")
		fmt.Fprint(w, "<html><body>quota exceeded</body></html>")
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil, nil)
	err := f.download(context.Background(), srv.URL+"/v.mp4", filepath.Join(t.TempDir(), "out.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTML")
}

func TestFetchAllPresignsObjectStoreURLs(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodGet, "https://signed.example.com/clip.mp4",
		httpmock.NewBytesResponder(http.StatusOK, fakeMP4).HeaderSet(http.Header{"Content-Type": []string{"video/mp4"}}))

	presigner := &fakePresigner{
		prefix: "https://cdn.example.com/",
		signed: "https://signed.example.com/clip.mp4",
	}
	f := newTestFetcher(t, nil, presigner)
	f.SetHTTPClient(&http.Client{Transport: mt})

	tl := &timeline.Timeline{
		Resolution: timeline.Resolution{Width: 1280, Height: 720},
		Scenes: []timeline.Scene{{
			ID: "s1", ClipURL: "https://cdn.example.com/clips/c1/720p.mp4", ClipID: "c1",
			Kind: timeline.SceneKindVideo, OutSec: 4, DurationSec: 4,
		}},
	}
	require.NoError(t, tl.Normalize())

	paths, err := f.FetchAll(context.Background(), tl, t.TempDir(), nil)
	require.NoError(t, err)
	assert.Contains(t, paths, "c1")
	assert.Equal(t, 1, mt.GetTotalCallCount())
}

func TestInferExt(t *testing.T) {
	tests := []struct {
		name     string
		kind     models.AssetKind
		url      string
		mime     string
		filename string
		want     string
	}{
		{"filename wins", models.AssetKindVideo, "https://x/y", "image/png", "movie.mov", ".mov"},
		{"url substring", models.AssetKindVideo, "https://x/clip.webm?sig=1", "", "", ".webm"},
		{"mime fallback", models.AssetKindAudio, "https://x/stream", "audio/mpeg", "", ".mp3"},
		{"video default", models.AssetKindVideo, "https://x/stream", "", "", ".mp4"},
		{"image default", models.AssetKindImage, "https://x/pic", "", "", ".png"},
		{"audio default", models.AssetKindAudio, "https://x/a", "", "", ".mp3"},
		{"logo default", models.AssetKindLogo, "https://x/l", "", "", ".png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := inferExt(tt.kind, tt.url, tt.mime, tt.filename)
			if tt.name == "mime fallback" {
				// mime.ExtensionsByType ordering is platform-dependent;
				// any mpeg audio extension is acceptable.
				assert.Contains(t, []string{".mp3", ".mpga", ".m2a", ".m3a", ".mp2", ".mp2a"}, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCollectRefsOrderAndSentinel(t *testing.T) {
	tl := &timeline.Timeline{
		Resolution: timeline.Resolution{Width: 1280, Height: 720},
		Scenes: []timeline.Scene{
			{ID: "s1", AssetID: "a1", Kind: timeline.SceneKindVideo, OutSec: 2, DurationSec: 2},
			{ID: "s2", ClipURL: "https://clips.example.com/b.mp4", Kind: timeline.SceneKindVideo, OutSec: 2, DurationSec: 2},
		},
		Music:         &timeline.Music{URL: "https://cdn.example.com/song.mp3", Volume: 0.3},
		ImageOverlays: []timeline.ImageOverlay{{AssetID: "sticker", DurationSec: 2, Scale: 1}},
		Brand:         &timeline.Brand{LogoAssetID: "logo1", SizePx: 100},
	}
	require.NoError(t, tl.Normalize())

	refs := collectRefs(tl)
	keys := make([]string, len(refs))
	for i, r := range refs {
		keys[i] = r.key
	}
	// Scenes first in order, then music under its sentinel key, then
	// overlays and the logo.
	assert.Equal(t, []string{"a1", "https://clips.example.com/b.mp4", timeline.MusicKey, "sticker", "logo1"}, keys)
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "a1", safeName("a1"))
	got := safeName("https://x.com/a b/c.mp4")
	assert.NotContains(t, got, "/")
	assert.NotContains(t, got, ":")
}
