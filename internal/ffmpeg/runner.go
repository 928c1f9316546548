package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// stderrTailSize bounds how much trailing stderr output is retained for
// failure reporting.
const stderrTailSize = 1500

// ProgressFunc receives the encoded media time in seconds as FFmpeg reports
// it on stderr.
type ProgressFunc func(seconds float64)

// Runner executes FFmpeg invocations.
type Runner struct {
	ffmpegPath  string
	ffprobePath string
	log         *slog.Logger

	monitorInterval time.Duration
}

// NewRunner creates a runner for the detected binaries.
func NewRunner(info *BinaryInfo, log *slog.Logger) *Runner {
	return &Runner{
		ffmpegPath:      info.FFmpegPath,
		ffprobePath:     info.FFprobePath,
		log:             log,
		monitorInterval: 10 * time.Second,
	}
}

// Run executes ffmpeg with the given arguments, streaming progress callbacks
// as encoding advances. On failure the returned error carries the tail of the
// process's stderr output, which is where FFmpeg explains itself.
func (r *Runner) Run(ctx context.Context, args []string, progress ProgressFunc) error {
	cmd := exec.CommandContext(ctx, r.ffmpegPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("getting stderr pipe: %w", err)
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}
	r.log.Debug("ffmpeg started", "pid", cmd.Process.Pid, "args", len(args))

	monitor := NewProcessMonitor(cmd.Process.Pid, r.monitorInterval, r.log)
	monitor.Start()
	defer monitor.Stop()

	tail := newTailBuffer(stderrTailSize)
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 256*1024)
	scanner.Split(scanStatusLines)
	for scanner.Scan() {
		line := scanner.Text()
		tail.WriteLine(line)
		if secs, ok := ParseProgressLine(line); ok && progress != nil {
			progress(secs)
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg canceled after %s: %w", time.Since(started).Round(time.Second), ctx.Err())
		}
		return fmt.Errorf("ffmpeg failed after %s: %w: %s",
			time.Since(started).Round(time.Second), err, tail.String())
	}
	r.log.Debug("ffmpeg finished", "elapsed", time.Since(started).Round(time.Millisecond))
	return nil
}

// Thumbnail extracts a single frame from videoPath at one second in and
// writes it as a JPEG to outPath.
func (r *Runner) Thumbnail(ctx context.Context, videoPath, outPath string) error {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", "1",
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		outPath,
	}
	out, err := exec.CommandContext(ctx, r.ffmpegPath, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("extracting thumbnail: %w: %s", err, tailOf(out, stderrTailSize))
	}
	return nil
}

// ProbeDuration returns the container duration of the file in seconds.
func (r *Runner) ProbeDuration(ctx context.Context, path string) (float64, error) {
	if r.ffprobePath == "" {
		return 0, fmt.Errorf("ffprobe not available")
	}
	out, err := exec.CommandContext(ctx, r.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("probing %s: %w", path, err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing probed duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return dur, nil
}

var progressTimeRe = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)

// ParseProgressLine extracts the encoded media time from an FFmpeg stats
// line. Lines without a time= field report ok=false.
func ParseProgressLine(line string) (seconds float64, ok bool) {
	m := progressTimeRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])
	frac, _ := strconv.ParseFloat("0."+m[4], 64)
	return float64(h*3600+min*60+s) + frac, true
}

// scanStatusLines splits on both \n and \r. FFmpeg rewrites its stats line
// in place with carriage returns, so a newline-only scanner would starve
// until the process exits.
func scanStatusLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailBuffer retains the last n bytes of appended lines.
type tailBuffer struct {
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

// WriteLine appends a line, discarding the oldest bytes past the cap.
// Stats lines are skipped; they carry no diagnostic value.
func (t *tailBuffer) WriteLine(line string) {
	if line == "" || strings.Contains(line, "time=") {
		return
	}
	t.buf = append(t.buf, line...)
	t.buf = append(t.buf, '\n')
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
}

// String returns the retained tail as a single trimmed string.
func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.buf))
}

// tailOf returns the last max bytes of b as a trimmed string.
func tailOf(b []byte, max int) string {
	if len(b) > max {
		b = b[len(b)-max:]
	}
	return strings.TrimSpace(string(b))
}
