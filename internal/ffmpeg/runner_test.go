package ffmpeg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgressLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    float64
		wantOK  bool
	}{
		{
			name:   "typical stats line",
			line:   "frame=  251 fps= 30 q=28.0 size=    1024KiB time=00:00:08.36 bitrate=1002.1kbits/s speed=1.01x",
			want:   8.36,
			wantOK: true,
		},
		{
			name:   "hours and minutes",
			line:   "time=01:02:03.50 bitrate=900kbits/s",
			want:   3723.5,
			wantOK: true,
		},
		{
			name:   "no time field",
			line:   "Press [q] to stop, [?] for help",
			wantOK: false,
		},
		{
			name:   "empty line",
			line:   "",
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseProgressLine(tt.line)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 0.001)
			}
		})
	}
}

func TestScanStatusLines(t *testing.T) {
	// FFmpeg interleaves \r-terminated stats lines with \n-terminated
	// diagnostics; both must surface as tokens.
	input := "frame=1 time=00:00:01.00\rframe=2 time=00:00:02.00\r[libx264] warning\nlast"
	var lines []string
	data := []byte(input)
	for len(data) > 0 {
		adv, tok, err := scanStatusLines(data, true)
		require.NoError(t, err)
		if adv == 0 {
			break
		}
		lines = append(lines, string(tok))
		data = data[adv:]
	}
	assert.Equal(t, []string{
		"frame=1 time=00:00:01.00",
		"frame=2 time=00:00:02.00",
		"[libx264] warning",
		"last",
	}, lines)
}

func TestTailBuffer(t *testing.T) {
	tail := newTailBuffer(32)
	tail.WriteLine("first diagnostic line that is long")
	tail.WriteLine("second")
	tail.WriteLine("frame=9 time=00:00:09.00") // stats lines are skipped
	tail.WriteLine("third")

	got := tail.String()
	assert.True(t, len(got) <= 32)
	assert.Contains(t, got, "third")
	assert.NotContains(t, got, "time=")
}

func TestTailBufferEmpty(t *testing.T) {
	tail := newTailBuffer(100)
	assert.Empty(t, tail.String())
}

func TestParseVersion(t *testing.T) {
	out := "ffmpeg version 6.1.1-3ubuntu5 Copyright (c) 2000-2023 the FFmpeg developers\nbuilt with gcc 13\n"
	version, major, minor := parseVersion(out)
	assert.Equal(t, "6.1.1-3ubuntu5", version)
	assert.Equal(t, 6, major)
	assert.Equal(t, 1, minor)
}

func TestParseVersionGarbage(t *testing.T) {
	version, major, minor := parseVersion("not ffmpeg output")
	assert.Empty(t, version)
	assert.Zero(t, major)
	assert.Zero(t, minor)
}

func TestTailOf(t *testing.T) {
	long := strings.Repeat("x", 50) + "END"
	assert.Equal(t, "END", tailOf([]byte(long), 3))
	assert.Equal(t, "short", tailOf([]byte("short"), 100))
}
