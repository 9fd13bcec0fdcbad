package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/telcprep/sprachcache/internal/tts"
)

// maxPCMSize bounds decoded output (about 10 minutes of 44.1kHz mono).
const maxPCMSize = 60 * 1024 * 1024

// Decoder converts encoded clips to signed 16-bit little-endian PCM.
type Decoder struct {
	Binary     string // ffmpeg executable
	SampleRate int
	Channels   int
	Timeout    time.Duration
}

// DefaultDecoder returns a decoder producing 44.1kHz mono PCM.
func DefaultDecoder() Decoder {
	return Decoder{
		Binary:     "ffmpeg",
		SampleRate: 44100,
		Channels:   1,
		Timeout:    15 * time.Second,
	}
}

// isRawPCM reports whether a MIME type denotes headerless s16le samples.
func isRawPCM(mimeType string) bool {
	mt := strings.ToLower(mimeType)
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt == "audio/pcm" || mt == "audio/l16"
}

// args builds the ffmpeg command line for one clip.
func (d Decoder) args(mimeType string, rate float64) []string {
	sr := strconv.Itoa(d.SampleRate)
	ch := strconv.Itoa(d.Channels)

	args := []string{"-hide_banner", "-loglevel", "error"}
	if isRawPCM(mimeType) {
		args = append(args, "-f", "s16le", "-ar", sr, "-ac", ch)
	}
	args = append(args,
		"-i", "pipe:0",
		"-f", "s16le", // Output format: signed 16-bit little-endian
		"-acodec", "pcm_s16le",
		"-ar", sr,
		"-ac", ch,
	)
	if rate = tts.ClampRate(rate); rate != 1.0 {
		args = append(args, "-filter:a", fmt.Sprintf("atempo=%.2f", rate))
	}
	return append(args, "pipe:1")
}

// Decode returns PCM for clip at the given rate. Raw PCM at normal rate is
// passed through without spawning ffmpeg.
func (d Decoder) Decode(ctx context.Context, clip *tts.Audio, rate float64) ([]byte, error) {
	if clip.Empty() {
		return nil, errors.New("empty audio clip")
	}
	if isRawPCM(clip.MimeType) && tts.ClampRate(rate) == 1.0 {
		return clip.Data, nil
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultDecoder().Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.Binary, d.args(clip.MimeType, rate)...)
	cmd.Stdin = bytes.NewReader(clip.Data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("ffmpeg decode timeout after %s: %w", timeout, ctx.Err())
		}
		return nil, fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	pcm := stdout.Bytes()
	if len(pcm) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no PCM output, stderr: %s", strings.TrimSpace(stderr.String()))
	}
	if len(pcm) > maxPCMSize {
		return nil, fmt.Errorf("ffmpeg PCM output too large: %d bytes (max %d)", len(pcm), maxPCMSize)
	}
	return pcm, nil
}

// PCMDuration returns the play time of s16le PCM at sampleRate and channels.
func PCMDuration(size, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := size / (2 * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
