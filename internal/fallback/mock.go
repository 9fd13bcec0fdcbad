package fallback

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/telcprep/sprachcache/internal/audio"
	"github.com/telcprep/sprachcache/internal/tts"
)

// Utterance records one MockSpeaker call.
type Utterance struct {
	Text        string
	LanguageTag string
	Rate        float64
}

// MockSpeaker is a tts.Speaker for tests. Each utterance plays for Duration.
type MockSpeaker struct {
	Duration time.Duration
	StartErr error

	mu    sync.Mutex
	calls []Utterance
}

var _ tts.Speaker = (*MockSpeaker)(nil)

// NewMockSpeaker returns a speaker whose utterances last d.
func NewMockSpeaker(d time.Duration) *MockSpeaker {
	return &MockSpeaker{Duration: d}
}

func (m *MockSpeaker) Speak(ctx context.Context, text, languageTag string, rate float64) (tts.Handle, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.NewTTSError(tts.ErrorCodeInvalidInput, "text is empty", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodeCanceled, "speak canceled", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartErr != nil {
		return nil, tts.NewTTSError(tts.ErrorCodePlaybackFailed, "starting local speech engine", m.StartErr)
	}
	m.calls = append(m.calls, Utterance{Text: text, LanguageTag: languageTag, Rate: tts.ClampRate(rate)})
	return audio.NewMockHandle(m.Duration, nil), nil
}

// Calls returns the utterances spoken so far.
func (m *MockSpeaker) Calls() []Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Utterance, len(m.calls))
	copy(out, m.calls)
	return out
}
