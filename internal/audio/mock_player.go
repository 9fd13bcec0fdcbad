package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/telcprep/sprachcache/internal/tts"
)

// ErrHandleFinished is returned when pausing or resuming a finished handle.
var ErrHandleFinished = errors.New("playback already finished")

// MockHandle simulates a playing clip that finishes after a fixed duration.
// Paused time does not count towards that duration.
type MockHandle struct {
	duration time.Duration
	failWith error

	mu     sync.Mutex
	paused bool

	pauseCh  chan struct{}
	resumeCh chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error
	stopped  atomic.Bool
}

var _ tts.Handle = (*MockHandle)(nil)

// NewMockHandle starts a simulated playback of length d. When failWith is
// non-nil the handle ends with that error instead of completing normally.
func NewMockHandle(d time.Duration, failWith error) *MockHandle {
	h := &MockHandle{
		duration: d,
		failWith: failWith,
		pauseCh:  make(chan struct{}),
		resumeCh: make(chan struct{}),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *MockHandle) run() {
	defer close(h.done)

	remaining := h.duration
	for {
		started := time.Now()
		timer := time.NewTimer(remaining)
		select {
		case <-timer.C:
			h.err = h.failWith
			return
		case <-h.stopCh:
			timer.Stop()
			return
		case <-h.pauseCh:
			timer.Stop()
			remaining -= time.Since(started)
			if remaining < 0 {
				remaining = 0
			}
			select {
			case <-h.resumeCh:
			case <-h.stopCh:
				return
			}
		}
	}
}

// Done is closed when playback completes, fails or is stopped.
func (h *MockHandle) Done() <-chan struct{} {
	return h.done
}

// Err returns the playback error once Done is closed.
func (h *MockHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

func (h *MockHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.paused {
		return errors.New("cannot pause: already paused")
	}
	select {
	case h.pauseCh <- struct{}{}:
		h.paused = true
		return nil
	case <-h.done:
		return ErrHandleFinished
	}
}

func (h *MockHandle) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.paused {
		return errors.New("cannot resume: not paused")
	}
	select {
	case h.resumeCh <- struct{}{}:
		h.paused = false
		return nil
	case <-h.done:
		return ErrHandleFinished
	}
}

// Stop ends playback and waits for the handle to finish. It is safe to call
// more than once.
func (h *MockHandle) Stop() error {
	h.stopOnce.Do(func() {
		h.stopped.Store(true)
		close(h.stopCh)
	})
	<-h.done
	return nil
}

// Paused reports whether the handle is currently paused.
func (h *MockHandle) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

// Stopped reports whether Stop was called.
func (h *MockHandle) Stopped() bool {
	return h.stopped.Load()
}

// MockCallbacks observes calls on a MockPlayer.
type MockCallbacks struct {
	OnStart func(clip *tts.Audio, rate float64)
}

// MockMetrics counts MockPlayer activity.
type MockMetrics struct {
	StartCount      int64
	StartErrorCount int64
}

// MockPlayer is a tts.AudioOutput for tests. Clips "play" for a simulated
// duration derived from their size and rate unless a fixed duration is set.
type MockPlayer struct {
	callbacks MockCallbacks

	mu            sync.Mutex
	fixedDuration time.Duration
	startErr      error
	playbackErr   error
	handles       []*MockHandle
	closed        bool

	startCount      atomic.Int64
	startErrorCount atomic.Int64
}

var _ tts.AudioOutput = (*MockPlayer)(nil)

// NewMockPlayer creates a mock player.
func NewMockPlayer(callbacks MockCallbacks) *MockPlayer {
	return &MockPlayer{callbacks: callbacks}
}

// SetPlaybackDuration makes every clip play for d, regardless of size.
func (m *MockPlayer) SetPlaybackDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixedDuration = d
}

// SetStartError makes Start fail with err. Pass nil to clear.
func (m *MockPlayer) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// SetPlaybackError makes subsequent playbacks end with err.
func (m *MockPlayer) SetPlaybackError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playbackErr = err
}

func (m *MockPlayer) Start(ctx context.Context, clip *tts.Audio, rate float64) (tts.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, tts.NewTTSError(tts.ErrorCodePlaybackFailed, "player is closed", nil)
	}
	if m.startErr != nil {
		m.startErrorCount.Add(1)
		return nil, tts.NewTTSError(tts.ErrorCodePlaybackFailed, "starting playback", m.startErr)
	}
	if clip.Empty() {
		m.startErrorCount.Add(1)
		return nil, tts.NewTTSError(tts.ErrorCodePlaybackFailed, "empty audio clip", nil)
	}

	rate = tts.ClampRate(rate)
	d := m.fixedDuration
	if d <= 0 {
		// Treat the payload as 44.1kHz mono PCM.
		d = time.Duration(float64(PCMDuration(len(clip.Data), 44100, 1)) / rate)
	}

	h := NewMockHandle(d, m.playbackErr)
	m.handles = append(m.handles, h)
	m.startCount.Add(1)

	if m.callbacks.OnStart != nil {
		m.callbacks.OnStart(clip, rate)
	}
	return h, nil
}

// Handles returns every handle started so far, oldest first.
func (m *MockPlayer) Handles() []*MockHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockHandle, len(m.handles))
	copy(out, m.handles)
	return out
}

// Active returns the number of handles that have not finished.
func (m *MockPlayer) Active() int {
	n := 0
	for _, h := range m.Handles() {
		select {
		case <-h.Done():
		default:
			n++
		}
	}
	return n
}

// GetMetrics returns the mock's counters.
func (m *MockPlayer) GetMetrics() MockMetrics {
	return MockMetrics{
		StartCount:      m.startCount.Load(),
		StartErrorCount: m.startErrorCount.Load(),
	}
}

// Close stops every outstanding handle.
func (m *MockPlayer) Close() error {
	m.mu.Lock()
	m.closed = true
	handles := m.handles
	m.mu.Unlock()

	for _, h := range handles {
		_ = h.Stop()
	}
	return nil
}
