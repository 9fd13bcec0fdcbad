package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/telcprep/sprachcache/internal/metrics"
	"github.com/telcprep/sprachcache/internal/tts"
)

// maxResponseSize bounds the JSON body of a synthesis response.
const maxResponseSize = 32 << 20

// Outcomes recorded in metrics.
const (
	outcomeOK       = "ok"
	outcomeQuota    = "quota_exceeded"
	outcomeRate     = "rate_limited"
	outcomeFailed   = "failed"
	outcomeCanceled = "canceled"
)

// Config configures the gateway client.
type Config struct {
	URL               string
	APIKey            string
	Timeout           time.Duration
	RetryMax          int
	RequestsPerMinute int // 0 disables client-side pacing
	UserAgent         string
}

// DefaultConfig returns the default client settings without an endpoint.
func DefaultConfig() Config {
	return Config{
		Timeout:           30 * time.Second,
		RetryMax:          2,
		RequestsPerMinute: 60,
		UserAgent:         "sprachcache",
	}
}

// Client calls the hosted TTS function.
type Client struct {
	config  Config
	http    *retryablehttp.Client
	limiter *rate.Limiter
	logger  *log.Logger
}

var _ tts.Synthesizer = (*Client)(nil)

// synthesisResponse is the function's reply. Failures may arrive as a
// 200 with an error field instead of audio.
type synthesisResponse struct {
	AudioContent string `json:"audioContent"`
	MimeType     string `json:"mimeType"`
	Error        string `json:"error"`
}

// NewClient creates a gateway client.
func NewClient(config Config, logger *log.Logger) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("gateway URL is required")
	}
	if logger == nil {
		logger = log.Default().WithPrefix("gateway")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	r := retryablehttp.NewClient()
	r.RetryMax = config.RetryMax
	r.RetryWaitMin = 200 * time.Millisecond
	r.RetryWaitMax = 2 * time.Second
	r.HTTPClient.Timeout = config.Timeout
	r.CheckRetry = transportOnlyRetryPolicy
	r.Logger = leveledLogger{logger}

	c := &Client{config: config, http: r, logger: logger}
	if config.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1)
	}
	return c, nil
}

// transportOnlyRetryPolicy retries connection-level failures and nothing
// else. Any HTTP response, whatever its status, is final.
func transportOnlyRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err == nil {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Synthesize requests audio for req. Errors are *tts.TTSError values coded
// QuotaExceeded, RateLimited, SynthesisFailed or Canceled.
func (c *Client) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				metrics.GatewayRequestsTotal.WithLabelValues(outcomeCanceled).Inc()
				return nil, tts.NewTTSError(tts.ErrorCodeCanceled, "waiting for rate limiter", err)
			}
			// The next token is further away than the context deadline.
			metrics.GatewayRequestsTotal.WithLabelValues(outcomeRate).Inc()
			return nil, tts.NewTTSError(tts.ErrorCodeRateLimited, "client request budget exhausted", err).
				WithContext("retry_after", c.limiterInterval())
		}
	}

	start := time.Now()
	audio, outcome, err := c.do(ctx, req)
	metrics.GatewayRequestDuration.Observe(time.Since(start).Seconds())
	metrics.GatewayRequestsTotal.WithLabelValues(outcome).Inc()

	if err != nil {
		c.logger.Warn("Synthesis failed", "outcome", outcome, "chars", len(req.Text), "error", err)
		return nil, err
	}
	c.logger.Debug("Synthesized audio", "chars", len(req.Text), "bytes", len(audio.Data),
		"mime", audio.MimeType, "duration", time.Since(start))
	return audio, nil
}

func (c *Client) do(ctx context.Context, req tts.Request) (*tts.Audio, string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, outcomeFailed, tts.NewTTSError(tts.ErrorCodeSynthesisFailed, "encoding request", err)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, body)
	if err != nil {
		return nil, outcomeFailed, tts.NewTTSError(tts.ErrorCodeSynthesisFailed, "building request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		httpReq.Header.Set("apikey", c.config.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, outcomeCanceled, tts.NewTTSError(tts.ErrorCodeCanceled, "synthesis request canceled", ctx.Err())
		}
		return nil, outcomeFailed, tts.NewTTSError(tts.ErrorCodeSynthesisFailed, "synthesis request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, outcomeFailed, tts.NewTTSError(tts.ErrorCodeSynthesisFailed, "reading response", err).
			WithContext("status", resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		return nil, outcomeQuota, tts.NewTTSError(tts.ErrorCodeQuotaExceeded,
			"synthesis quota exhausted", errorFromBody(raw)).WithContext("status", resp.StatusCode)

	case resp.StatusCode == http.StatusTooManyRequests:
		te := tts.NewTTSError(tts.ErrorCodeRateLimited, "synthesis rate limited", errorFromBody(raw)).
			WithContext("status", resp.StatusCode)
		if d, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			te.WithContext("retry_after", d)
		}
		return nil, outcomeRate, te

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, outcomeFailed, tts.NewTTSError(tts.ErrorCodeSynthesisFailed,
			fmt.Sprintf("gateway returned status %d", resp.StatusCode), errorFromBody(raw)).
			WithContext("status", resp.StatusCode)
	}

	var sr synthesisResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, outcomeFailed, tts.NewTTSError(tts.ErrorCodeSynthesisFailed, "malformed response", err).
			WithContext("status", resp.StatusCode)
	}
	if sr.AudioContent == "" {
		var cause error
		if sr.Error != "" {
			cause = errors.New(sr.Error)
		}
		return nil, outcomeFailed, tts.NewTTSError(tts.ErrorCodeSynthesisFailed, "response has no audioContent", cause).
			WithContext("status", resp.StatusCode)
	}

	data, err := base64.StdEncoding.DecodeString(sr.AudioContent)
	if err != nil {
		return nil, outcomeFailed, tts.NewTTSError(tts.ErrorCodeSynthesisFailed, "audioContent is not base64", err)
	}
	mime := sr.MimeType
	if mime == "" {
		mime = "audio/mpeg"
	}
	return &tts.Audio{Data: data, MimeType: mime}, outcomeOK, nil
}

// errorFromBody extracts {"error": "..."} from a failure body, falling back
// to a trimmed prefix of the raw text.
func errorFromBody(raw []byte) error {
	var sr synthesisResponse
	if err := json.Unmarshal(raw, &sr); err == nil && sr.Error != "" {
		return errors.New(sr.Error)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil
	}
	return errors.New(truncate(text, 200))
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// limiterInterval is the spacing between requests the limiter allows.
func (c *Client) limiterInterval() time.Duration {
	limit := c.limiter.Limit()
	if limit <= 0 || limit == rate.Inf {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(limit))
}

// RetryAfter returns the server-suggested delay of a RateLimited error.
func RetryAfter(err error) (time.Duration, bool) {
	var te *tts.TTSError
	if !errors.As(err, &te) || te.Code != tts.ErrorCodeRateLimited {
		return 0, false
	}
	d, ok := te.Context["retry_after"].(time.Duration)
	return d, ok
}

func parseRetryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

// leveledLogger adapts charm's logger to retryablehttp.LeveledLogger.
type leveledLogger struct {
	l *log.Logger
}

func (r leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	r.l.Error(msg, keysAndValues...)
}

func (r leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	r.l.Debug(msg, keysAndValues...)
}

func (r leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	r.l.Debug(msg, keysAndValues...)
}

func (r leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	r.l.Warn(msg, keysAndValues...)
}
