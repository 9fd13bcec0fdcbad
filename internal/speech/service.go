// Package speech resolves synthesis requests through the audio cache before
// falling through to the hosted gateway.
package speech

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/telcprep/sprachcache/internal/cache"
	"github.com/telcprep/sprachcache/internal/tts"
)

// Resolution is the audio for one request and where it came from.
type Resolution struct {
	Audio    *tts.Audio
	Key      string
	CacheHit bool
}

// Service looks up synthesized audio by content key and synthesizes it on a
// miss, persisting new audio without waiting for the write.
type Service struct {
	store      *cache.Store
	synth      tts.Synthesizer
	logger     *log.Logger
	onCacheHit func(key string)
}

// NewService creates a resolver. synth may be nil, in which case only cached
// audio can be served.
func NewService(store *cache.Store, synth tts.Synthesizer, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default().WithPrefix("speech")
	}
	return &Service{store: store, synth: synth, logger: logger}
}

// OnCacheHit registers a callback fired whenever a request is served from
// the cache.
func (s *Service) OnCacheHit(fn func(key string)) {
	s.onCacheHit = fn
}

// Resolve returns audio for req on behalf of ownerID. Cache problems are
// never returned; gateway errors are returned as-is for the caller to
// classify.
func (s *Service) Resolve(ctx context.Context, ownerID string, req tts.Request) (*Resolution, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := cache.DeriveAudioKey(req.Text, req.Language, req.Voice)
	if e, ok := s.store.Get(ctx, ownerID, cache.ContentTypeAudio, key); ok && e.Payload.IsAudio() {
		if s.onCacheHit != nil {
			s.onCacheHit(key)
		}
		return &Resolution{
			Audio:    &tts.Audio{Data: e.Payload.Audio, MimeType: e.Payload.MimeType},
			Key:      key,
			CacheHit: true,
		}, nil
	}

	if s.synth == nil {
		return nil, tts.NewTTSError(tts.ErrorCodeSynthesisFailed, "no synthesis gateway configured", nil)
	}

	audio, err := s.synth.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}
	if audio.Empty() {
		return nil, tts.NewTTSError(tts.ErrorCodeSynthesisFailed, "synthesizer returned no audio", nil)
	}

	s.store.PutAsync(ctx, &cache.Entry{
		Key:         key,
		OwnerID:     ownerID,
		ContentType: cache.ContentTypeAudio,
		Payload:     cache.Payload{Audio: audio.Data, MimeType: audio.MimeType},
	})
	s.logger.Debug("Synthesized and scheduled cache write", "owner", ownerID, "key", key, "bytes", len(audio.Data))

	return &Resolution{Audio: audio, Key: key}, nil
}
