// Package storage publishes rendered artifacts to S3-compatible object
// storage and manages per-job scratch directories.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/config"
)

// Store publishes objects to a single bucket.
type Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	cfg       config.StorageConfig
	log       *slog.Logger
}

// New creates a store from configuration. A custom endpoint switches the
// client to path-style addressing, which MinIO and most S3 clones require.
func New(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) (*Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		cfg:       cfg,
		log:       log,
	}, nil
}

// UploadFile uploads a local file under the given object key and returns its
// public URL.
func (s *Store) UploadFile(ctx context.Context, key, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("statting %s: %w", localPath, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}

	s.log.Info("object uploaded",
		slog.String("key", key),
		slog.Int64("size_bytes", info.Size()),
		slog.String("content_type", contentType),
	)
	return s.PublicURL(key), nil
}

// PresignGet returns a time-limited GET URL for the given object key.
func (s *Store) PresignGet(ctx context.Context, key string) (string, error) {
	ttl := s.cfg.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presigning %s: %w", key, err)
	}
	return req.URL, nil
}

// PublicURL joins the configured public base URL with an object key.
func (s *Store) PublicURL(key string) string {
	base := strings.TrimRight(s.cfg.PublicBaseURL, "/")
	return base + "/" + strings.TrimLeft(key, "/")
}

// KeyForURL extracts the object key from a URL that points into this
// store's bucket, either via the public base URL or the raw endpoint.
// ok is false for foreign URLs.
func (s *Store) KeyForURL(rawURL string) (key string, ok bool) {
	if s.cfg.PublicBaseURL != "" {
		base := strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/"
		if strings.HasPrefix(rawURL, base) {
			return strings.TrimPrefix(rawURL, base), true
		}
	}
	if s.cfg.Endpoint != "" {
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", false
		}
		e, err := url.Parse(s.cfg.Endpoint)
		if err != nil || u.Host != e.Host {
			return "", false
		}
		// Path-style: /<bucket>/<key>
		p := strings.TrimPrefix(u.Path, "/")
		if rest, found := strings.CutPrefix(p, s.cfg.Bucket+"/"); found {
			return rest, true
		}
	}
	return "", false
}

// RenderKey returns the object key for a finished render of a project.
func RenderKey(projectID string) string {
	return path.Join("renders", projectID, uuid.NewString()+".mp4")
}

// ThumbnailKeyFor derives the thumbnail key from a render key.
func ThumbnailKeyFor(renderKey string) string {
	return strings.TrimSuffix(renderKey, ".mp4") + "_thumb.jpg"
}

// RenditionKey returns the predictable object key for a clip rendition.
func RenditionKey(clipID, resolution string) string {
	return path.Join("clips", clipID, resolution+".mp4")
}
