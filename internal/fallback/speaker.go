// Package fallback speaks text with a local speech engine when hosted
// synthesis is unavailable. Output goes straight to the sound device, so
// nothing produced here is ever cached.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/text/language"

	"github.com/telcprep/sprachcache/internal/tts"
)

// Config configures the local speech engine.
type Config struct {
	Binary         string // espeak-ng or a compatible CLI
	WordsPerMinute int    // at rate 1.0
	Pitch          int    // 0-99
}

// DefaultConfig returns settings tuned for German listening practice.
func DefaultConfig() Config {
	return Config{
		Binary:         "espeak-ng",
		WordsPerMinute: 160,
		Pitch:          50,
	}
}

// Speaker runs one engine process per utterance.
type Speaker struct {
	config Config
	logger *log.Logger
}

var _ tts.Speaker = (*Speaker)(nil)

// New creates a speaker. Zero fields in config take their defaults.
func New(config Config, logger *log.Logger) *Speaker {
	def := DefaultConfig()
	if config.Binary == "" {
		config.Binary = def.Binary
	}
	if config.WordsPerMinute <= 0 {
		config.WordsPerMinute = def.WordsPerMinute
	}
	if config.Pitch < 0 || config.Pitch > 99 {
		config.Pitch = def.Pitch
	}
	if logger == nil {
		logger = log.Default().WithPrefix("fallback")
	}
	return &Speaker{config: config, logger: logger}
}

// Available reports whether the engine binary can be found.
func (s *Speaker) Available() bool {
	_, err := exec.LookPath(s.config.Binary)
	return err == nil
}

// Voice maps a BCP-47 tag to an engine voice name: the base language, plus
// the region when the tag names one explicitly ("de-AT" becomes "de-at").
func Voice(languageTag string) string {
	tag, err := language.Parse(strings.TrimSpace(languageTag))
	if err != nil || tag == language.Und {
		return tts.LanguageGerman
	}
	base, _ := tag.Base()
	voice := base.String()
	if region, conf := tag.Region(); conf == language.Exact {
		voice += "-" + strings.ToLower(region.String())
	}
	return voice
}

// args builds the engine command line. Text is passed on stdin.
func (s *Speaker) args(languageTag string, rate float64) []string {
	wpm := int(float64(s.config.WordsPerMinute) * tts.ClampRate(rate))
	return []string{
		"-v", Voice(languageTag),
		"-s", strconv.Itoa(wpm),
		"-p", strconv.Itoa(s.config.Pitch),
		"--stdin",
	}
}

// Speak starts speaking text and returns without waiting for it to finish.
func (s *Speaker) Speak(ctx context.Context, text, languageTag string, rate float64) (tts.Handle, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.NewTTSError(tts.ErrorCodeInvalidInput, "text is empty", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodeCanceled, "speak canceled", err)
	}

	cmd := exec.Command(s.config.Binary, s.args(languageTag, rate)...)
	// CRITICAL: stdin is set before Start so the engine never sees a
	// half-written pipe.
	cmd.Stdin = strings.NewReader(text)

	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodePlaybackFailed, "starting local speech engine", err).
			WithContext("binary", s.config.Binary)
	}
	s.logger.Debug("Local speech started", "voice", Voice(languageTag), "pid", cmd.Process.Pid, "chars", len(text))

	return startProcessHandle(cmd, &stderr), nil
}

// processHandle tracks one engine process.
type processHandle struct {
	cmd    *exec.Cmd
	stderr *strings.Builder

	mu      sync.Mutex
	paused  bool
	stopped bool

	done chan struct{}
	err  error
}

var _ tts.Handle = (*processHandle)(nil)

func startProcessHandle(cmd *exec.Cmd, stderr *strings.Builder) *processHandle {
	h := &processHandle{cmd: cmd, stderr: stderr, done: make(chan struct{})}
	go h.wait()
	return h
}

func (h *processHandle) wait() {
	defer close(h.done)
	err := h.cmd.Wait()

	h.mu.Lock()
	stopped := h.stopped
	h.mu.Unlock()

	if err != nil && !stopped {
		h.err = tts.NewTTSError(tts.ErrorCodePlaybackFailed,
			fmt.Sprintf("local speech engine failed: %s", strings.TrimSpace(h.stderr.String())), err)
	}
}

func (h *processHandle) Done() <-chan struct{} {
	return h.done
}

func (h *processHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

func (h *processHandle) finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *processHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finished() {
		return errors.New("cannot pause: speech finished")
	}
	if h.paused {
		return errors.New("cannot pause: already paused")
	}
	if err := suspend(h.cmd.Process); err != nil {
		return fmt.Errorf("pausing speech: %w", err)
	}
	h.paused = true
	return nil
}

func (h *processHandle) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.paused {
		return errors.New("cannot resume: not paused")
	}
	if err := resume(h.cmd.Process); err != nil {
		return fmt.Errorf("resuming speech: %w", err)
	}
	h.paused = false
	return nil
}

func (h *processHandle) Stop() error {
	h.mu.Lock()
	if !h.stopped && !h.finished() {
		h.stopped = true
		_ = h.cmd.Process.Kill()
		if h.paused {
			// A stopped process is not reaped until it runs again.
			_ = resume(h.cmd.Process)
			h.paused = false
		}
	}
	h.mu.Unlock()

	<-h.done
	return nil
}
