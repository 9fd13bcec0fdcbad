package fallback

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/telcprep/sprachcache/internal/tts"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestVoice(t *testing.T) {
	tests := []struct {
		tag  string
		want string
	}{
		{"de", "de"},
		{"de-DE", "de-de"},
		{"de-AT", "de-at"},
		{"en-GB", "en-gb"},
		{"EN", "en"},
		{"", "de"},
		{"not a tag!", "de"},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			if got := Voice(tt.tag); got != tt.want {
				t.Errorf("Voice(%q) = %q, want %q", tt.tag, got, tt.want)
			}
		})
	}
}

func TestArgs(t *testing.T) {
	s := New(Config{WordsPerMinute: 100, Pitch: 40}, quietLogger())

	args := s.args("de-DE", 1.5)
	want := []string{"-v", "de-de", "-s", "150", "-p", "40", "--stdin"}
	if !slices.Equal(args, want) {
		t.Errorf("args() = %v, want %v", args, want)
	}

	// Rates outside the supported range are clamped.
	args = s.args("en", 10)
	if args[3] != "200" {
		t.Errorf("words per minute = %s, want 200", args[3])
	}
}

func TestNewDefaults(t *testing.T) {
	s := New(Config{Pitch: 500}, quietLogger())
	def := DefaultConfig()
	if s.config != def {
		t.Errorf("config = %+v, want %+v", s.config, def)
	}
}

func TestSpeakMissingBinary(t *testing.T) {
	s := New(Config{Binary: "/nonexistent/espeak-ng"}, quietLogger())
	if s.Available() {
		t.Fatal("Available() = true for missing binary")
	}

	_, err := s.Speak(context.Background(), "Hallo", "de", 1)
	if !errors.Is(err, tts.ErrPlaybackFailed) {
		t.Errorf("Speak() error = %v, want ErrPlaybackFailed", err)
	}
}

func TestSpeakRejectsEmptyText(t *testing.T) {
	s := New(DefaultConfig(), quietLogger())
	if _, err := s.Speak(context.Background(), "  ", "de", 1); !errors.Is(err, tts.ErrInvalidInput) {
		t.Errorf("Speak() error = %v, want ErrInvalidInput", err)
	}
}

// sleepHandle runs `sleep` as a stand-in engine process.
func sleepHandle(t *testing.T, seconds string) *processHandle {
	t.Helper()
	bin, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	cmd := exec.Command(bin, seconds)
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting sleep: %v", err)
	}
	return startProcessHandle(cmd, new(strings.Builder))
}

func TestProcessHandleCompletes(t *testing.T) {
	h := sleepHandle(t, "0")
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not finish")
	}
	if h.Err() != nil {
		t.Errorf("Err() = %v, want nil", h.Err())
	}
}

func TestProcessHandlePauseResumeStop(t *testing.T) {
	h := sleepHandle(t, "30")

	if err := h.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if err := h.Pause(); err == nil {
		t.Error("second Pause() should fail")
	}
	if err := h.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if err := h.Resume(); err == nil {
		t.Error("Resume() when playing should fail")
	}

	_ = h.Pause()
	stopped := make(chan struct{})
	go func() {
		_ = h.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return for a paused process")
	}

	if h.Err() != nil {
		t.Errorf("Err() after Stop = %v, want nil", h.Err())
	}
	if err := h.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestProcessHandleFailure(t *testing.T) {
	bin, err := exec.LookPath("false")
	if err != nil {
		t.Skip("false not available")
	}
	cmd := exec.Command(bin)
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting false: %v", err)
	}
	h := startProcessHandle(cmd, new(strings.Builder))
	<-h.Done()
	if !errors.Is(h.Err(), tts.ErrPlaybackFailed) {
		t.Errorf("Err() = %v, want ErrPlaybackFailed", h.Err())
	}
}

func TestMockSpeaker(t *testing.T) {
	m := NewMockSpeaker(10 * time.Millisecond)
	h, err := m.Speak(context.Background(), "Guten Tag", "de", 5)
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	<-h.Done()

	calls := m.Calls()
	if len(calls) != 1 || calls[0].Text != "Guten Tag" || calls[0].Rate != tts.MaxRate {
		t.Errorf("Calls() = %+v", calls)
	}

	m.StartErr = errors.New("no engine")
	if _, err := m.Speak(context.Background(), "x", "de", 1); !errors.Is(err, tts.ErrPlaybackFailed) {
		t.Errorf("Speak() error = %v, want ErrPlaybackFailed", err)
	}
}
