//go:build !nocgo
// +build !nocgo

package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/telcprep/sprachcache/internal/tts"
)

// pollInterval is how often a playing handle checks for the end of its
// stream.
const pollInterval = 20 * time.Millisecond

// Player plays clips through a single process-wide oto context, created on
// first use.
type Player struct {
	config  PlayerConfig
	decoder Decoder
	logger  *log.Logger

	ctxOnce sync.Once
	otoCtx  *oto.Context
	ctxErr  error

	mu     sync.Mutex
	closed bool
}

var _ tts.AudioOutput = (*Player)(nil)

// NewPlayer creates a player. The audio device is opened lazily so that
// commands which never play audio do not need one.
func NewPlayer(config PlayerConfig, logger *log.Logger) (*Player, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = log.Default().WithPrefix("audio")
	}

	dec := DefaultDecoder()
	dec.SampleRate = config.SampleRate
	dec.Channels = config.Channels
	if config.FFmpegBinary != "" {
		dec.Binary = config.FFmpegBinary
	}
	if config.DecodeTimeout > 0 {
		dec.Timeout = config.DecodeTimeout
	}

	return &Player{config: config, decoder: dec, logger: logger}, nil
}

func (p *Player) context() (*oto.Context, error) {
	p.ctxOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   p.config.SampleRate,
			ChannelCount: p.config.Channels,
			Format:       oto.FormatSignedInt16LE, // 16-bit little endian
			BufferSize:   p.config.BufferDuration,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			p.ctxErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		p.otoCtx = ctx
	})
	return p.otoCtx, p.ctxErr
}

// Start decodes clip and begins playback at rate.
func (p *Player) Start(ctx context.Context, clip *tts.Audio, rate float64) (tts.Handle, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, tts.NewTTSError(tts.ErrorCodePlaybackFailed, "player is closed", nil)
	}

	pcm, err := p.decoder.Decode(ctx, clip, rate)
	if err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodePlaybackFailed, "decoding audio", err)
	}

	otoCtx, err := p.context()
	if err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodePlaybackFailed, "audio device unavailable", err)
	}

	// CRITICAL: the handle keeps pcm referenced until playback ends.
	pl := otoCtx.NewPlayer(bytes.NewReader(pcm))
	pl.SetVolume(p.config.Volume)
	pl.Play()

	h := &otoHandle{
		player: pl,
		pcm:    pcm,
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
	go h.watch()

	p.logger.Debug("Playback started", "bytes", len(pcm),
		"duration", PCMDuration(len(pcm), p.config.SampleRate, p.config.Channels), "rate", rate)
	return h, nil
}

// Close marks the player closed. The oto context lives for the process.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type otoHandle struct {
	player *oto.Player
	pcm    []byte

	mu     sync.Mutex
	paused bool

	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	err      error
}

func (h *otoHandle) watch() {
	defer close(h.done)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			h.player.Pause()
			_ = h.player.Close()
			return
		case <-ticker.C:
			h.mu.Lock()
			ended := !h.paused && !h.player.IsPlaying()
			h.mu.Unlock()
			if ended {
				if err := h.player.Err(); err != nil {
					h.err = tts.NewTTSError(tts.ErrorCodePlaybackFailed, "audio stream failed", err)
				}
				_ = h.player.Close()
				h.pcm = nil
				return
			}
		}
	}
}

func (h *otoHandle) Done() <-chan struct{} {
	return h.done
}

func (h *otoHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

func (h *otoHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.paused {
		return errors.New("cannot pause: already paused")
	}
	h.player.Pause()
	h.paused = true
	return nil
}

func (h *otoHandle) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.paused {
		return errors.New("cannot resume: not paused")
	}
	h.player.Play()
	h.paused = false
	return nil
}

func (h *otoHandle) Stop() error {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
	return nil
}
