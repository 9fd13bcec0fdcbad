package tts

import "context"

// Synthesizer turns text into encoded audio. The hosted gateway client is
// the production implementation.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*Audio, error)
}

// Handle controls one running utterance, whether it is decoded audio on the
// local output device or the local speech engine.
type Handle interface {
	// Done is closed once the utterance has ended, naturally or by Stop.
	Done() <-chan struct{}

	// Err returns the failure that ended the utterance, if any. Only
	// meaningful after Done is closed; a Stop is not a failure.
	Err() error

	Pause() error
	Resume() error

	// Stop ends the utterance and blocks until its resources are released.
	// Safe to call more than once.
	Stop() error
}

// AudioOutput starts playback of an encoded clip at a rate multiplier.
type AudioOutput interface {
	Start(ctx context.Context, clip *Audio, rate float64) (Handle, error)
	Close() error
}

// Speaker is the local on-device speech engine used when the gateway is
// unavailable.
type Speaker interface {
	Speak(ctx context.Context, text, languageTag string, rate float64) (Handle, error)
}
