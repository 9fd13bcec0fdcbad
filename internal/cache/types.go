package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Common errors for cache operations
var (
	// ErrCacheMiss is returned by backends when no entry matches.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheCorrupted is returned when a stored payload cannot be decoded.
	ErrCacheCorrupted = errors.New("cache data corrupted")

	// ErrInvalidEntry is returned when an entry lacks its identifying fields.
	ErrInvalidEntry = errors.New("cache entry requires key, owner and content type")
)

// ContentType classifies cached payloads.
type ContentType string

const (
	ContentTypeAudio    ContentType = "audio_tts"
	ContentTypeExercise ContentType = "exercise"
	ContentTypeAnalysis ContentType = "analysis"
)

// String returns the storage representation of the content type.
func (c ContentType) String() string {
	return string(c)
}

// Payload is either an audio clip or a JSON document.
type Payload struct {
	Audio    []byte
	MimeType string
	JSON     json.RawMessage
}

// IsAudio reports whether the payload carries audio bytes.
func (p Payload) IsAudio() bool {
	return len(p.Audio) > 0
}

// Size returns the uncompressed payload size in bytes.
func (p Payload) Size() int64 {
	return int64(len(p.Audio) + len(p.JSON))
}

// Entry is one cached item.
type Entry struct {
	Key         string
	OwnerID     string
	ContentType ContentType
	Payload     Payload
	CreatedAt   time.Time
	AccessedAt  time.Time
	AccessCount int64
}

func (e *Entry) validate() error {
	if e == nil || e.Key == "" || e.OwnerID == "" || e.ContentType == "" {
		return ErrInvalidEntry
	}
	return nil
}

func (e *Entry) clone() *Entry {
	c := *e
	if e.Payload.Audio != nil {
		c.Payload.Audio = append([]byte(nil), e.Payload.Audio...)
	}
	if e.Payload.JSON != nil {
		c.Payload.JSON = append(json.RawMessage(nil), e.Payload.JSON...)
	}
	return &c
}

// Counts are the raw aggregates a backend reports for statistics.
type Counts struct {
	Entries  int64
	Accesses int64
	Bytes    int64
}

// Stats summarizes how many billed generations the cache has saved.
type Stats struct {
	TotalCached             int64 `json:"totalCached"`
	TotalAccesses           int64 `json:"totalAccesses"`
	EstimatedSavedCalls     int64 `json:"estimatedSavedCalls"`
	EstimatedSavingsPercent int64 `json:"estimatedSavingsPercent"`
	TotalBytes              int64 `json:"totalBytes"`
}

// Backend is a cache persistence layer. Implementations return errors
// verbatim; Store decides how to degrade.
type Backend interface {
	// Get returns ErrCacheMiss when no entry matches.
	Get(ctx context.Context, ownerID string, ct ContentType, key string) (*Entry, error)

	// Upsert inserts the entry or overwrites the one stored under
	// (Key, OwnerID), keeping the original creation time.
	Upsert(ctx context.Context, e *Entry) error

	// Touch increments the access count and sets the access time.
	Touch(ctx context.Context, ownerID string, ct ContentType, key string, at time.Time) error

	// Counts aggregates entries of one owner; an empty content type
	// aggregates all types.
	Counts(ctx context.Context, ownerID string, ct ContentType) (Counts, error)

	// DeleteOlderThan removes entries last accessed before cutoff. An
	// empty owner matches every owner.
	DeleteOlderThan(ctx context.Context, ownerID string, cutoff time.Time) (int64, error)

	// Purge removes all entries of one owner; an empty content type
	// matches all types.
	Purge(ctx context.Context, ownerID string, ct ContentType) (int64, error)

	Close() error
}
