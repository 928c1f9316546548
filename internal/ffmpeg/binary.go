// Package ffmpeg locates the FFmpeg/FFprobe binaries and runs render
// invocations with progress reporting and resource monitoring.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// BinaryInfo describes the detected FFmpeg installation.
type BinaryInfo struct {
	FFmpegPath   string `json:"ffmpeg_path"`
	FFprobePath  string `json:"ffprobe_path"`
	Version      string `json:"version"`
	MajorVersion int    `json:"major_version"`
	MinorVersion int    `json:"minor_version"`
}

// BinaryDetector detects and caches the FFmpeg binary locations.
type BinaryDetector struct {
	mu           sync.RWMutex
	info         *BinaryInfo
	lastDetected time.Time
	cacheTTL     time.Duration

	ffmpegOverride  string
	ffprobeOverride string
}

// NewBinaryDetector creates a detector. Override paths from configuration
// take precedence over the environment and PATH lookup; empty overrides are
// ignored.
func NewBinaryDetector(ffmpegPath, ffprobePath string) *BinaryDetector {
	return &BinaryDetector{
		cacheTTL:        5 * time.Minute,
		ffmpegOverride:  ffmpegPath,
		ffprobeOverride: ffprobePath,
	}
}

// Detect resolves both binaries and the FFmpeg version, caching the result.
func (d *BinaryDetector) Detect(ctx context.Context) (*BinaryInfo, error) {
	d.mu.RLock()
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		info := d.info
		d.mu.RUnlock()
		return info, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		return d.info, nil
	}

	info, err := d.detect(ctx)
	if err != nil {
		return nil, err
	}
	d.info = info
	d.lastDetected = time.Now()
	return info, nil
}

// Clear drops the cached detection result.
func (d *BinaryDetector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = nil
}

func (d *BinaryDetector) detect(ctx context.Context) (*BinaryInfo, error) {
	info := &BinaryInfo{}

	ffmpegPath, err := findBinary("ffmpeg", d.ffmpegOverride, "CLIPFORGE_FFMPEG_BINARY")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	info.FFmpegPath = ffmpegPath

	// ffprobe is optional; duration probing degrades gracefully without it.
	if ffprobePath, err := findBinary("ffprobe", d.ffprobeOverride, "CLIPFORGE_FFPROBE_BINARY"); err == nil {
		info.FFprobePath = ffprobePath
	}

	out, err := exec.CommandContext(ctx, ffmpegPath, "-version").Output()
	if err != nil {
		return nil, fmt.Errorf("querying ffmpeg version: %w", err)
	}
	info.Version, info.MajorVersion, info.MinorVersion = parseVersion(string(out))
	return info, nil
}

// findBinary resolves a binary path. Search order: explicit override,
// environment variable, PATH.
func findBinary(name, override, envVar string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("configured %s path %q: %w", name, override, err)
		}
		return override, nil
	}
	if p := os.Getenv(envVar); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%s=%q: %w", envVar, p, err)
		}
		return p, nil
	}
	return exec.LookPath(name)
}

var versionRe = regexp.MustCompile(`ffmpeg version (\S+)`)

// parseVersion extracts the version string and numeric major/minor parts
// from `ffmpeg -version` output.
func parseVersion(out string) (version string, major, minor int) {
	m := versionRe.FindStringSubmatch(out)
	if m == nil {
		return "", 0, 0
	}
	version = m[1]
	parts := strings.SplitN(strings.TrimLeft(version, "n"), ".", 3)
	if len(parts) > 0 {
		major, _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 {
		minor, _ = strconv.Atoi(strings.TrimRight(parts[1], "-_abcdefghijklmnopqrstuvwxyz"))
	}
	return version, major, minor
}
