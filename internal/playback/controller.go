// Package playback plays exercise text aloud, preferring cached audio,
// then hosted synthesis, then the local speech engine. At most one session
// produces audio at any time.
package playback

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/telcprep/sprachcache/internal/metrics"
	"github.com/telcprep/sprachcache/internal/speech"
	"github.com/telcprep/sprachcache/internal/tts"
)

// DefaultQueuePause is the silence between queued items.
const DefaultQueuePause = 500 * time.Millisecond

// ErrClosed is returned by Play and SpeakQueue after Close.
var ErrClosed = errors.New("playback controller closed")

// Source tells where the audio of a session came from.
type Source string

const (
	SourceNone     Source = "none"
	SourceCache    Source = "cache"
	SourceGateway  Source = "gateway"
	SourceFallback Source = "fallback"
)

// Resolver provides audio for a request; *speech.Service implements it.
type Resolver interface {
	Resolve(ctx context.Context, ownerID string, req tts.Request) (*speech.Resolution, error)
}

// Options apply to a single Play or SpeakQueue call.
type Options struct {
	OwnerID string
	Voice   string
	Rate    float64 // zero uses the controller rate
}

// Event describes the session a hook fires for.
type Event struct {
	RunID  string
	Index  int
	Text   string
	Source Source
}

// Hooks observe the controller. They run on the goroutine driving the
// session and must not block for long. OnStart runs while audio output is
// reserved and must not call Play or SpeakQueue.
type Hooks struct {
	OnCacheHit    func(Event)
	OnStart       func(Event)
	OnEnd         func(Event)
	OnError       func(Event, error)
	OnStateChange func(from, to State)
}

// Result is the outcome of one utterance. Err carries the degradation that
// happened along the way even though audio was still produced.
type Result struct {
	Source   Source
	Key      string
	Err      error
	Canceled bool
}

// QueueResult is the outcome of SpeakQueue.
type QueueResult struct {
	RunID    string
	Results  []Result
	Canceled bool
}

// Config configures a Controller.
type Config struct {
	Rate       float64
	QueuePause time.Duration
	Hooks      Hooks
	Logger     *log.Logger
}

type run struct {
	ctx    context.Context
	cancel context.CancelFunc
	gen    uint64
	id     string
}

type session struct {
	handle  tts.Handle
	event   Event
	endOnce sync.Once
}

type stateChange struct {
	from, to State
}

// Controller owns the audio output. Every method is safe for concurrent
// use; when Play calls race, the last one wins.
type Controller struct {
	resolver Resolver
	output   tts.AudioOutput
	speaker  tts.Speaker
	hooks    Hooks
	logger   *log.Logger
	pause    time.Duration

	outMu sync.Mutex

	mu       sync.Mutex
	sm       *stateMachine
	pending  []stateChange
	rate     float64
	gen      uint64
	cancel   context.CancelFunc
	active   *session
	stopping int        // detached sessions whose end has not finished
	released *sync.Cond // signaled on mu when stopping drops to zero
	closed   bool
}

// New creates a controller. speaker may be nil, in which case a gateway or
// output failure leaves the session silent.
func New(resolver Resolver, output tts.AudioOutput, speaker tts.Speaker, cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = log.Default().WithPrefix("playback")
	}
	if cfg.QueuePause <= 0 {
		cfg.QueuePause = DefaultQueuePause
	}

	c := &Controller{
		resolver: resolver,
		output:   output,
		speaker:  speaker,
		hooks:    cfg.Hooks,
		logger:   cfg.Logger,
		pause:    cfg.QueuePause,
		sm:       newStateMachine(),
		rate:     tts.ClampRate(cfg.Rate),
	}
	c.released = sync.NewCond(&c.mu)
	c.sm.onChange = func(from, to State) {
		c.pending = append(c.pending, stateChange{from, to})
	}
	return c
}

// unlock releases c.mu and then reports the state changes made while it
// was held.
func (c *Controller) unlock() {
	changes := c.pending
	c.pending = nil
	c.mu.Unlock()

	if c.hooks.OnStateChange == nil {
		return
	}
	for _, ch := range changes {
		c.hooks.OnStateChange(ch.from, ch.to)
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sm.current
}

// Rate returns the default playback rate.
func (c *Controller) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// SetRate sets the default playback rate, clamped to the supported range.
// It applies from the next session on.
func (c *Controller) SetRate(rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate = tts.ClampRate(rate)
}

func (c *Controller) rateFor(opts Options) float64 {
	if opts.Rate != 0 {
		return tts.ClampRate(opts.Rate)
	}
	return c.Rate()
}

// begin preempts whatever is running and returns a fresh run. The preempted
// session has ended, and its OnEnd fired, by the time begin returns.
func (c *Controller) begin(ctx context.Context) (*run, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.cancel != nil {
		c.cancel()
	}
	old := c.detach()
	c.sm.settle(StateStopped)

	c.gen++
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{ctx: runCtx, cancel: cancel, gen: c.gen, id: uuid.NewString()}
	c.cancel = cancel
	c.unlock()

	c.release(old)
	return r, nil
}

// detach removes the active session and counts it as stopping until
// release. Callers hold c.mu.
func (c *Controller) detach() *session {
	s := c.active
	if s != nil {
		c.active = nil
		c.stopping++
	}
	return s
}

// release ends a detached session and wakes runs waiting to open output.
func (c *Controller) release(s *session) {
	if s == nil {
		return
	}
	c.end(s)

	c.mu.Lock()
	c.stopping--
	if c.stopping == 0 {
		c.released.Broadcast()
	}
	c.unlock()
}

// awaitReleased blocks until every detached session has ended.
func (c *Controller) awaitReleased() {
	c.mu.Lock()
	for c.stopping > 0 {
		c.released.Wait()
	}
	c.unlock()
}

// abandon returns the state machine to idle for a run that gave up
// without being preempted, e.g. because its context expired.
func (c *Controller) abandon(r *run) {
	c.mu.Lock()
	if c.gen == r.gen && c.active == nil {
		c.sm.settle(StateStopped)
	}
	c.unlock()
}

// end stops a session and fires OnEnd exactly once.
func (c *Controller) end(s *session) {
	s.endOnce.Do(func() {
		_ = s.handle.Stop()
		if c.hooks.OnEnd != nil {
			c.hooks.OnEnd(s.event)
		}
	})
}

func (c *Controller) reportError(ev Event, err error) {
	c.logger.Debug("Playback degraded", "index", ev.Index, "code", tts.CodeOf(err), "err", err)
	if c.hooks.OnError != nil {
		c.hooks.OnError(ev, err)
	}
}

// Play speaks text and returns once it has finished, was stopped, or was
// preempted by another Play. Failures on the way are absorbed by falling
// back and reported in Result.Err; the error return is only for input that
// can never be played and for a closed controller.
func (c *Controller) Play(ctx context.Context, text, lang string, opts Options) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, tts.NewTTSError(tts.ErrorCodeInvalidInput, "text is empty", nil)
	}
	r, err := c.begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer r.cancel()

	return c.playOne(r, Event{RunID: r.id, Text: text}, lang, opts), nil
}

// SpeakQueue plays texts one after another with a short pause in between.
// Stop, a new Play or canceling ctx abandons the rest of the queue. Blank
// items are skipped.
func (c *Controller) SpeakQueue(ctx context.Context, texts []string, lang string, opts Options) (QueueResult, error) {
	items := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			items = append(items, t)
		}
	}
	if len(items) == 0 {
		return QueueResult{}, tts.NewTTSError(tts.ErrorCodeInvalidInput, "queue has no text", nil)
	}

	r, err := c.begin(ctx)
	if err != nil {
		return QueueResult{}, err
	}
	defer r.cancel()

	qr := QueueResult{RunID: r.id}
	c.logger.Debug("Queue started", "run", r.id, "items", len(items))

	for i, text := range items {
		if i > 0 {
			select {
			case <-time.After(c.pause):
			case <-r.ctx.Done():
			}
		}
		if r.ctx.Err() != nil {
			qr.Canceled = true
			break
		}

		res := c.playOne(r, Event{RunID: r.id, Index: i, Text: text}, lang, opts)
		qr.Results = append(qr.Results, res)
		if res.Canceled {
			qr.Canceled = true
			break
		}
	}
	return qr, nil
}

// degraded tags a gateway failure with its code, defaulting to a generic
// synthesis failure.
func degraded(err error) error {
	switch tts.CodeOf(err) {
	case tts.ErrorCodeQuotaExceeded, tts.ErrorCodeRateLimited, tts.ErrorCodeSynthesisFailed:
		return err
	default:
		return tts.NewTTSError(tts.ErrorCodeSynthesisFailed, "resolving audio", err)
	}
}

// current reports whether r still owns the controller. Callers hold c.mu.
func (c *Controller) current(r *run) bool {
	return c.gen == r.gen && r.ctx.Err() == nil
}

func (c *Controller) speak(ctx context.Context, text, lang string, rate float64) (tts.Handle, error) {
	if c.speaker == nil {
		return nil, tts.NewTTSError(tts.ErrorCodePlaybackFailed, "no local speech engine configured", nil)
	}
	return c.speaker.Speak(ctx, text, lang, rate)
}

func (c *Controller) playOne(r *run, ev Event, lang string, opts Options) Result {
	canceled := Result{Source: SourceNone, Canceled: true}

	c.mu.Lock()
	if !c.current(r) {
		c.unlock()
		c.abandon(r)
		return canceled
	}
	c.sm.transition(StateStarting)
	c.unlock()

	rate := c.rateFor(opts)
	res, err := c.resolver.Resolve(r.ctx, opts.OwnerID, tts.Request{Text: ev.Text, Language: lang, Voice: opts.Voice})
	if r.ctx.Err() != nil {
		c.abandon(r)
		return canceled
	}

	// Only one run at a time may turn a resolution into a handle. A run
	// that lost ownership meanwhile releases its handle before letting the
	// next one start.
	c.outMu.Lock()
	s, result, ok := c.open(r, ev, lang, rate, res, err)
	c.outMu.Unlock()
	if !ok {
		if result.Canceled {
			c.abandon(r)
		}
		return result
	}

	h := s.handle
	select {
	case <-h.Done():
	case <-r.ctx.Done():
	}

	c.mu.Lock()
	owned := c.active == s
	if owned {
		c.detach()
		switch {
		case r.ctx.Err() != nil:
			c.sm.settle(StateStopped)
		case h.Err() != nil:
			c.sm.settle(StateError)
		default:
			c.sm.settle(StateEnded)
		}
	}
	c.unlock()

	if owned {
		c.release(s)
	} else {
		c.end(s)
	}

	if r.ctx.Err() != nil {
		result.Canceled = true
		return result
	}
	if perr := h.Err(); perr != nil {
		if tts.CodeOf(perr) != tts.ErrorCodePlaybackFailed {
			perr = tts.NewTTSError(tts.ErrorCodePlaybackFailed, "audio playback failed", perr)
		}
		c.reportError(s.event, perr)
		result.Err = perr
	}
	return result
}

// open starts audio for a resolution, falling back to local speech, and
// installs it as the active session. ok is false when nothing is playing;
// result then says why. Callers hold c.outMu.
func (c *Controller) open(r *run, ev Event, lang string, rate float64, res *speech.Resolution, resolveErr error) (*session, Result, bool) {
	canceled := Result{Source: SourceNone, Canceled: true}

	// Preempted sessions must have stopped before this one makes a sound.
	c.awaitReleased()

	c.mu.Lock()
	owner := c.current(r)
	c.mu.Unlock()
	if !owner {
		return nil, canceled, false
	}

	var h tts.Handle
	var err error
	result := Result{Source: SourceGateway}
	if resolveErr == nil {
		result.Key = res.Key
		if res.CacheHit {
			result.Source = SourceCache
			if c.hooks.OnCacheHit != nil {
				ev.Source = SourceCache
				c.hooks.OnCacheHit(ev)
			}
		}
		h, err = c.output.Start(r.ctx, res.Audio, rate)
		if err != nil {
			result.Err = tts.NewTTSError(tts.ErrorCodePlaybackFailed, "starting audio output", err)
		}
	} else {
		result.Err = degraded(resolveErr)
	}

	if h == nil {
		if r.ctx.Err() != nil {
			return nil, canceled, false
		}
		ev.Source = SourceFallback
		c.reportError(ev, result.Err)
		metrics.FallbackActivationsTotal.WithLabelValues(string(tts.CodeOf(result.Err))).Inc()

		result.Source = SourceFallback
		h, err = c.speak(r.ctx, ev.Text, lang, rate)
		if err != nil {
			if r.ctx.Err() != nil {
				return nil, canceled, false
			}
			c.logger.Warn("Local speech failed", "err", err)
			c.reportError(ev, err)
			result.Source = SourceNone

			c.mu.Lock()
			if c.current(r) {
				c.sm.settle(StateError)
			}
			c.unlock()
			return nil, result, false
		}
	}

	ev.Source = result.Source
	s := &session{handle: h, event: ev}

	// OnStart fires before the session is published, so OnEnd always
	// follows it.
	metrics.PlaybackSessionsTotal.WithLabelValues(string(result.Source)).Inc()
	if c.hooks.OnStart != nil {
		c.hooks.OnStart(s.event)
	}

	c.mu.Lock()
	if !c.current(r) {
		c.unlock()
		c.end(s)
		canceled.Source = result.Source
		return nil, canceled, false
	}
	c.active = s
	c.sm.transition(StatePlaying)
	c.unlock()

	return s, result, true
}

// Pause pauses the active session. Without one it does nothing.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.unlock()
	if c.active == nil || c.sm.current != StatePlaying {
		return nil
	}
	if err := c.active.handle.Pause(); err != nil {
		return err
	}
	c.sm.transition(StatePaused)
	return nil
}

// Resume resumes a paused session. Without one it does nothing.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.unlock()
	if c.active == nil || c.sm.current != StatePaused {
		return nil
	}
	if err := c.active.handle.Resume(); err != nil {
		return err
	}
	c.sm.transition(StatePlaying)
	return nil
}

// Stop cancels any resolution in flight, abandons the queue and releases
// the audio handle. Calling it while idle does nothing.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	s := c.detach()
	c.sm.settle(StateStopped)
	c.unlock()

	c.release(s)
}

// Close stops playback and releases the audio output. Later calls to Play
// fail with ErrClosed.
func (c *Controller) Close() error {
	c.Stop()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.output.Close()
}
