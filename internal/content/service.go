// Package content caches generated exercise and analysis documents keyed by
// the parameters they were generated from.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/telcprep/sprachcache/internal/cache"
	"github.com/telcprep/sprachcache/internal/tts"
)

// ErrNoContent is returned when a cache entry holds no JSON document.
var ErrNoContent = errors.New("cached entry has no content")

// Service stores JSON documents in the shared cache store.
type Service struct {
	store  *cache.Store
	logger *log.Logger
}

// NewService creates a content cache on top of store.
func NewService(store *cache.Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default().WithPrefix("content")
	}
	return &Service{store: store, logger: logger}
}

func checkType(ct cache.ContentType) error {
	if ct == "" {
		return tts.NewTTSError(tts.ErrorCodeInvalidInput, "content type is required", nil)
	}
	if ct == cache.ContentTypeAudio {
		return tts.NewTTSError(tts.ErrorCodeInvalidInput, "audio is not a content document type", nil).
			WithContext("content_type", ct.String())
	}
	return nil
}

// LookupRaw returns the cached document for params, if any. Cache failures
// read as a miss; only invalid input is returned as an error.
func (s *Service) LookupRaw(ctx context.Context, ownerID string, ct cache.ContentType, params any) (json.RawMessage, bool, error) {
	if err := checkType(ct); err != nil {
		return nil, false, err
	}
	key, err := cache.DeriveContentKey(ct, params)
	if err != nil {
		return nil, false, tts.NewTTSError(tts.ErrorCodeInvalidInput, "deriving content key", err)
	}

	e, ok := s.store.Get(ctx, ownerID, ct, key)
	if !ok {
		return nil, false, nil
	}
	if len(e.Payload.JSON) == 0 {
		s.logger.Warn("Ignoring cache entry without content", "owner", ownerID, "type", ct, "key", key)
		return nil, false, nil
	}
	return e.Payload.JSON, true, nil
}

// SaveRaw stores doc for params.
func (s *Service) SaveRaw(ctx context.Context, ownerID string, ct cache.ContentType, params any, doc json.RawMessage) error {
	e, err := s.entry(ownerID, ct, params, doc)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, e)
}

func (s *Service) entry(ownerID string, ct cache.ContentType, params any, doc json.RawMessage) (*cache.Entry, error) {
	if err := checkType(ct); err != nil {
		return nil, err
	}
	if len(doc) == 0 || !json.Valid(doc) {
		return nil, tts.NewTTSError(tts.ErrorCodeInvalidInput, "content must be a JSON document", ErrNoContent)
	}
	key, err := cache.DeriveContentKey(ct, params)
	if err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodeInvalidInput, "deriving content key", err)
	}
	return &cache.Entry{
		Key:         key,
		OwnerID:     ownerID,
		ContentType: ct,
		Payload:     cache.Payload{JSON: doc},
	}, nil
}

// Lookup decodes the cached document for params into T. A document that no
// longer decodes into T is treated as a miss.
func Lookup[T any](ctx context.Context, s *Service, ownerID string, ct cache.ContentType, params any) (T, bool) {
	var zero T
	raw, ok, err := s.LookupRaw(ctx, ownerID, ct, params)
	if err != nil || !ok {
		return zero, false
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		s.logger.Warn("Cached content does not match requested shape", "type", ct,
			"error", fmt.Errorf("%w: %v", cache.ErrCacheCorrupted, err))
		return zero, false
	}
	return v, true
}

// Save encodes value and stores it for params.
func Save[T any](ctx context.Context, s *Service, ownerID string, ct cache.ContentType, params any, value T) error {
	doc, err := json.Marshal(value)
	if err != nil {
		return tts.NewTTSError(tts.ErrorCodeInvalidInput, "encoding content", err)
	}
	return s.SaveRaw(ctx, ownerID, ct, params, doc)
}

// GetOrGenerate returns the cached document for params or, on a miss, the
// result of generate, which is stored in the background. The bool reports a
// cache hit. Only generate's error is ever returned.
func GetOrGenerate[T any](ctx context.Context, s *Service, ownerID string, ct cache.ContentType, params any, generate func(context.Context) (T, error)) (T, bool, error) {
	if v, ok := Lookup[T](ctx, s, ownerID, ct, params); ok {
		return v, true, nil
	}

	v, err := generate(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}

	doc, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("Generated content not cacheable", "type", ct, "error", err)
		return v, false, nil
	}
	e, err := s.entry(ownerID, ct, params, doc)
	if err != nil {
		s.logger.Warn("Generated content not cacheable", "type", ct, "error", err)
		return v, false, nil
	}
	s.store.PutAsync(ctx, e)
	return v, false, nil
}
