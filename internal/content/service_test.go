package content

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/telcprep/sprachcache/internal/cache"
	"github.com/telcprep/sprachcache/internal/tts"
)

type exercise struct {
	Title     string   `json:"title"`
	Questions []string `json:"questions"`
}

type failingBackend struct{ cache.Backend }

var errDown = errors.New("database is down")

func (failingBackend) Get(context.Context, string, cache.ContentType, string) (*cache.Entry, error) {
	return nil, errDown
}

func (failingBackend) Upsert(context.Context, *cache.Entry) error { return errDown }

func (failingBackend) Close() error { return nil }

func newTestService(t *testing.T, backend cache.Backend) (*Service, *cache.Store) {
	t.Helper()
	if backend == nil {
		mem, err := cache.NewMemoryStore(10)
		if err != nil {
			t.Fatal(err)
		}
		backend = mem
	}
	logger := log.New(io.Discard)
	store := cache.NewStore(backend, cache.StoreOptions{Logger: logger})
	t.Cleanup(func() { _ = store.Close() })
	return NewService(store, logger), store
}

func TestGetOrGenerate(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()
	params := map[string]any{"teil": 1, "thema": "Arbeit"}

	calls := 0
	gen := func(context.Context) (exercise, error) {
		calls++
		return exercise{Title: "Leseverstehen", Questions: []string{"a", "b"}}, nil
	}

	first, hit, err := GetOrGenerate(ctx, svc, "u1", cache.ContentTypeExercise, params, gen)
	if err != nil || hit {
		t.Fatalf("first call = (hit %v, err %v), want generated", hit, err)
	}
	store.Wait()

	// Same parameters in a different order hit the cache.
	reordered := map[string]any{"thema": "Arbeit", "teil": 1}
	second, hit, err := GetOrGenerate(ctx, svc, "u1", cache.ContentTypeExercise, reordered, gen)
	if err != nil || !hit {
		t.Fatalf("second call = (hit %v, err %v), want hit", hit, err)
	}
	if calls != 1 {
		t.Errorf("generator called %d times, want 1", calls)
	}
	if second.Title != first.Title || len(second.Questions) != 2 {
		t.Errorf("cached value = %+v, want %+v", second, first)
	}

	// Another owner does not see it.
	if _, ok := Lookup[exercise](ctx, svc, "u2", cache.ContentTypeExercise, params); ok {
		t.Error("content leaked across owners")
	}
	// Nor does another content type.
	if _, ok := Lookup[exercise](ctx, svc, "u1", cache.ContentTypeAnalysis, params); ok {
		t.Error("content leaked across content types")
	}
}

func TestGetOrGenerate_GeneratorError(t *testing.T) {
	svc, store := newTestService(t, nil)
	boom := errors.New("model overloaded")

	_, _, err := GetOrGenerate(context.Background(), svc, "u1", cache.ContentTypeAnalysis, "essay-42",
		func(context.Context) (exercise, error) { return exercise{}, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want generator error", err)
	}
	store.Wait()

	stats, err := store.Statistics(context.Background(), "u1", "")
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalCached != 0 {
		t.Errorf("failed generation was cached: %+v", stats)
	}
}

func TestGetOrGenerate_CacheDown(t *testing.T) {
	svc, store := newTestService(t, failingBackend{})

	v, hit, err := GetOrGenerate(context.Background(), svc, "u1", cache.ContentTypeExercise, 1,
		func(context.Context) (exercise, error) { return exercise{Title: "ok"}, nil })
	store.Wait()
	if err != nil || hit || v.Title != "ok" {
		t.Errorf("GetOrGenerate() = (%+v, %v, %v), want generated value and no error", v, hit, err)
	}
}

func TestSaveAndLookup(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	if err := Save(ctx, svc, "u1", cache.ContentTypeAnalysis, "essay-1", exercise{Title: "B2"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	v, ok := Lookup[exercise](ctx, svc, "u1", cache.ContentTypeAnalysis, "essay-1")
	if !ok || v.Title != "B2" {
		t.Errorf("Lookup() = (%+v, %v)", v, ok)
	}

	// A document that does not fit the requested type is a miss.
	if _, ok := Lookup[[]int](ctx, svc, "u1", cache.ContentTypeAnalysis, "essay-1"); ok {
		t.Error("mismatched shape reported as hit")
	}
}

func TestRawValidation(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	if err := svc.SaveRaw(ctx, "u1", cache.ContentTypeExercise, 1, json.RawMessage(`{broken`)); !errors.Is(err, tts.ErrInvalidInput) {
		t.Errorf("SaveRaw(invalid JSON) error = %v, want ErrInvalidInput", err)
	}
	if err := svc.SaveRaw(ctx, "u1", cache.ContentTypeAudio, 1, json.RawMessage(`{}`)); !errors.Is(err, tts.ErrInvalidInput) {
		t.Errorf("SaveRaw(audio type) error = %v, want ErrInvalidInput", err)
	}
	if _, _, err := svc.LookupRaw(ctx, "u1", "", 1); !errors.Is(err, tts.ErrInvalidInput) {
		t.Errorf("LookupRaw(no type) error = %v, want ErrInvalidInput", err)
	}
	if _, _, err := svc.LookupRaw(ctx, "u1", cache.ContentTypeExercise, func() {}); !errors.Is(err, tts.ErrInvalidInput) {
		t.Errorf("LookupRaw(unencodable params) error = %v, want ErrInvalidInput", err)
	}

	if err := svc.SaveRaw(ctx, "u1", cache.ContentTypeExercise, 1, json.RawMessage(`{"title":"x"}`)); err != nil {
		t.Fatal(err)
	}
	raw, ok, err := svc.LookupRaw(ctx, "u1", cache.ContentTypeExercise, 1)
	if err != nil || !ok || string(raw) != `{"title":"x"}` {
		t.Errorf("LookupRaw() = (%s, %v, %v)", raw, ok, err)
	}
}
