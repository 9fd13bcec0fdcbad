package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/telcprep/sprachcache/internal/cache"
	"github.com/telcprep/sprachcache/internal/content"
	"github.com/telcprep/sprachcache/internal/speech"
	"github.com/telcprep/sprachcache/internal/tts"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSynth struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubSynth) Synthesize(_ context.Context, req tts.Request) (*tts.Audio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &tts.Audio{Data: []byte("mp3:" + req.Text), MimeType: "audio/mpeg"}, nil
}

type testServer struct {
	handler http.Handler
	store   *cache.Store
	synth   *stubSynth
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := log.New(io.Discard)

	mem, err := cache.NewMemoryStore(100)
	if err != nil {
		t.Fatal(err)
	}
	store := cache.NewStore(mem, cache.StoreOptions{Logger: logger})
	t.Cleanup(func() { _ = store.Close() })

	synth := &stubSynth{}
	srv := New(Config{Addr: "127.0.0.1:0", CORSOrigins: []string{"https://app.example"}}, Deps{
		Store:       store,
		Speech:      speech.NewService(store, synth, logger),
		Content:     content.NewService(store, logger),
		Maintenance: cache.NewMaintenance(store, cache.MaintenanceConfig{}, logger),
		Logger:      logger,
	})
	return &testServer{handler: srv.Handler(), store: store, synth: synth}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request ID header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "sprachcache_") {
		t.Errorf("metrics status %d, body lacks sprachcache collectors", w.Code)
	}
}

func TestTTS_MissThenHit(t *testing.T) {
	ts := newTestServer(t)
	body := map[string]string{"ownerId": "u1", "text": "Guten Tag", "language": "de"}

	w := ts.do(t, http.MethodPost, "/api/v1/tts", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var first ttsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil {
		t.Fatal(err)
	}
	if first.CacheHit || string(first.AudioContent) != "mp3:Guten Tag" || first.CacheKey == "" {
		t.Errorf("first response = %+v", first)
	}
	ts.store.Wait()

	w = ts.do(t, http.MethodPost, "/api/v1/tts", body)
	var second ttsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &second); err != nil {
		t.Fatal(err)
	}
	if !second.CacheHit || second.CacheKey != first.CacheKey {
		t.Errorf("second response = %+v, want cache hit", second)
	}
	if ts.synth.calls != 1 {
		t.Errorf("synth calls = %d, want 1", ts.synth.calls)
	}
}

func TestTTS_ErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantRetry  string
	}{
		{"quota", tts.NewTTSError(tts.ErrorCodeQuotaExceeded, "HTTP 402", nil), http.StatusPaymentRequired, ""},
		{"rate limited", tts.NewTTSError(tts.ErrorCodeRateLimited, "HTTP 429", nil).
			WithContext("retry_after", 30*time.Second), http.StatusTooManyRequests, "30"},
		{"sub-second retry", tts.NewTTSError(tts.ErrorCodeRateLimited, "budget", nil).
			WithContext("retry_after", 1500*time.Millisecond), http.StatusTooManyRequests, "2"},
		{"failed", tts.NewTTSError(tts.ErrorCodeSynthesisFailed, "HTTP 500", nil), http.StatusBadGateway, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.synth.err = tt.err

			w := ts.do(t, http.MethodPost, "/api/v1/tts", map[string]string{"ownerId": "u1", "text": "Hallo"})
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Retry-After"); got != tt.wantRetry {
				t.Errorf("Retry-After = %q, want %q", got, tt.wantRetry)
			}
			var body map[string]string
			_ = json.Unmarshal(w.Body.Bytes(), &body)
			if body["code"] != string(tts.CodeOf(tt.err)) {
				t.Errorf("code = %q, want %q", body["code"], tts.CodeOf(tt.err))
			}
		})
	}
}

func TestTTS_BadRequest(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/v1/tts", map[string]string{"ownerId": "u1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	w = ts.do(t, http.MethodPost, "/api/v1/tts", map[string]string{"ownerId": "u1", "text": "   "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank text status = %d, want 400", w.Code)
	}
}

func TestStatsEvictPurge(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	for _, text := range []string{"eins", "zwei"} {
		err := ts.store.Put(ctx, &cache.Entry{
			Key:         cache.DeriveAudioKey(text, "de", "default"),
			OwnerID:     "u1",
			ContentType: cache.ContentTypeAudio,
			Payload:     cache.Payload{Audio: []byte(text), MimeType: "audio/mpeg"},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	w := ts.do(t, http.MethodGet, "/api/v1/cache/stats?ownerId=u1", nil)
	var stats cache.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalCached != 2 || stats.TotalAccesses != 2 {
		t.Errorf("stats = %+v", stats)
	}

	if w := ts.do(t, http.MethodGet, "/api/v1/cache/stats", nil); w.Code != http.StatusBadRequest {
		t.Errorf("stats without owner status = %d, want 400", w.Code)
	}

	if w := ts.do(t, http.MethodPost, "/api/v1/cache/evict", map[string]any{"days": 1}); w.Code != http.StatusBadRequest {
		t.Errorf("evict without owner status = %d, want 400", w.Code)
	}

	// Nothing is older than the retention window yet.
	w = ts.do(t, http.MethodPost, "/api/v1/cache/evict", map[string]any{"ownerId": "u1", "days": 30})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"evicted":0`) {
		t.Errorf("evict = %d %s", w.Code, w.Body)
	}

	w = ts.do(t, http.MethodDelete, "/api/v1/cache/u1?contentType=audio_tts", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"purged":2`) {
		t.Errorf("purge = %d %s", w.Code, w.Body)
	}
}

func TestContentRoutes(t *testing.T) {
	ts := newTestServer(t)

	lookup := map[string]any{"ownerId": "u1", "params": map[string]any{"teil": 2, "thema": "Reisen"}}
	if w := ts.do(t, http.MethodPost, "/api/v1/content/exercise/lookup", lookup); w.Code != http.StatusNotFound {
		t.Fatalf("lookup before save status = %d, want 404", w.Code)
	}

	save := map[string]any{
		"ownerId": "u1",
		"params":  map[string]any{"thema": "Reisen", "teil": 2},
		"content": map[string]any{"title": "Hörverstehen Teil 2"},
	}
	if w := ts.do(t, http.MethodPut, "/api/v1/content/exercise", save); w.Code != http.StatusNoContent {
		t.Fatalf("save status = %d, body %s", w.Code, w.Body)
	}

	w := ts.do(t, http.MethodPost, "/api/v1/content/exercise/lookup", lookup)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Hörverstehen") {
		t.Errorf("lookup = %d %s", w.Code, w.Body)
	}

	// Audio is not a document type.
	if w := ts.do(t, http.MethodPut, "/api/v1/content/audio_tts", save); w.Code != http.StatusBadRequest {
		t.Errorf("save audio type status = %d, want 400", w.Code)
	}
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tts", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Allow-Origin = %q", got)
	}
}
