//go:build nocgo
// +build nocgo

package audio

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/telcprep/sprachcache/internal/tts"
)

// Player is a stub for builds without CGO; every Start fails so callers
// fall back to local speech.
type Player struct{}

var _ tts.AudioOutput = (*Player)(nil)

// NewPlayer validates config and returns the stub player.
func NewPlayer(config PlayerConfig, _ *log.Logger) (*Player, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Player{}, nil
}

// Start always fails.
func (p *Player) Start(context.Context, *tts.Audio, float64) (tts.Handle, error) {
	return nil, tts.NewTTSError(tts.ErrorCodePlaybackFailed, "audio not available in nocgo build", nil)
}

// Close is a no-op.
func (p *Player) Close() error {
	return nil
}
