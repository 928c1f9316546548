package worker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/repository"
	"github.com/clipforge/clipforge/internal/storage"
)

// Downloader fetches a single remote file.
type Downloader interface {
	Download(ctx context.Context, rawURL, destPath string) error
}

// RenditionService transcodes public B-roll clips into lower resolutions
// and records them under predictable object keys.
type RenditionService struct {
	renditions repository.ClipRenditionRepository
	downloader Downloader
	engine     Engine
	publisher  Publisher
	workspace  *storage.Workspace
	log        *slog.Logger
}

// NewRenditionService wires a rendition service.
func NewRenditionService(
	renditions repository.ClipRenditionRepository,
	downloader Downloader,
	engine Engine,
	publisher Publisher,
	workspace *storage.Workspace,
	log *slog.Logger,
) *RenditionService {
	return &RenditionService{
		renditions: renditions,
		downloader: downloader,
		engine:     engine,
		publisher:  publisher,
		workspace:  workspace,
		log:        log,
	}
}

// Generate downloads the source clip once and produces one rendition per
// target resolution. Failures are per-resolution: a bad target does not
// stop the others.
func (s *RenditionService) Generate(ctx context.Context, clipID, sourceURL string, resolutions []string) error {
	scratch := "rendition-" + clipID
	workDir, err := s.workspace.JobDir(scratch)
	if err != nil {
		return err
	}
	defer s.workspace.Remove(scratch)

	srcPath := filepath.Join(workDir, "source.mp4")
	if err := s.downloader.Download(ctx, sourceURL, srcPath); err != nil {
		return fmt.Errorf("downloading source clip %s: %w", clipID, err)
	}

	var firstErr error
	for _, res := range resolutions {
		if err := s.generateOne(ctx, clipID, srcPath, workDir, res); err != nil {
			s.log.Error("rendition failed",
				slog.String("clip_id", clipID),
				slog.String("resolution", res),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *RenditionService) generateOne(ctx context.Context, clipID, srcPath, workDir, resolution string) error {
	height, err := parseResolution(resolution)
	if err != nil {
		return err
	}

	outPath := filepath.Join(workDir, resolution+".mp4")
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", srcPath,
		"-vf", fmt.Sprintf("scale=-2:%d", height),
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-pix_fmt", "yuv420p",
		outPath,
	}
	if err := s.engine.Run(ctx, args, nil); err != nil {
		return fmt.Errorf("transcoding %s to %s: %w", clipID, resolution, err)
	}

	key := storage.RenditionKey(clipID, resolution)
	url, err := s.publisher.UploadFile(ctx, key, outPath)
	if err != nil {
		return fmt.Errorf("uploading rendition %s: %w", key, err)
	}

	if err := s.renditions.Upsert(ctx, &models.ClipRendition{
		ClipID:     clipID,
		Resolution: resolution,
		URL:        url,
		ObjectKey:  key,
	}); err != nil {
		return err
	}

	s.log.Info("rendition published",
		slog.String("clip_id", clipID),
		slog.String("resolution", resolution),
		slog.String("key", key),
	)
	return nil
}

// parseResolution converts a label like "720p" or "1080" into a height.
func parseResolution(label string) (int, error) {
	trimmed := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(label)), "p")
	height, err := strconv.Atoi(trimmed)
	if err != nil || height < 16 || height > 4320 {
		return 0, fmt.Errorf("invalid target resolution %q", label)
	}
	// Encoders require even dimensions.
	if height%2 != 0 {
		height++
	}
	return height, nil
}
