package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/telcprep/sprachcache/internal/cache"
	"github.com/telcprep/sprachcache/internal/gateway"
	"github.com/telcprep/sprachcache/internal/tts"
)

type ttsRequest struct {
	OwnerID  string `json:"ownerId" binding:"required"`
	Text     string `json:"text" binding:"required"`
	Language string `json:"language"`
	Voice    string `json:"voice"`
}

type ttsResponse struct {
	AudioContent []byte `json:"audioContent"`
	MimeType     string `json:"mimeType"`
	CacheHit     bool   `json:"cacheHit"`
	CacheKey     string `json:"cacheKey"`
}

type evictRequest struct {
	OwnerID string `json:"ownerId" binding:"required"`
	Days    int    `json:"days"`
}

type contentLookupRequest struct {
	OwnerID string          `json:"ownerId" binding:"required"`
	Params  json.RawMessage `json:"params"`
}

type contentSaveRequest struct {
	OwnerID string          `json:"ownerId" binding:"required"`
	Params  json.RawMessage `json:"params"`
	Content json.RawMessage `json:"content" binding:"required"`
}

func abortWithError(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	body := gin.H{"error": err.Error()}
	if code := tts.CodeOf(err); code != "" {
		body["code"] = code
	}
	c.AbortWithStatusJSON(status, body)
}

// statusFor maps an error code to the HTTP status returned to clients.
func statusFor(err error) int {
	switch tts.CodeOf(err) {
	case tts.ErrorCodeInvalidInput:
		return http.StatusBadRequest
	case tts.ErrorCodeQuotaExceeded:
		return http.StatusPaymentRequired
	case tts.ErrorCodeRateLimited:
		return http.StatusTooManyRequests
	case tts.ErrorCodeCacheUnavailable:
		return http.StatusServiceUnavailable
	case tts.ErrorCodeCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleTTS(c *gin.Context) {
	var req ttsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	res, err := s.deps.Speech.Resolve(c.Request.Context(), req.OwnerID, tts.Request{
		Text:     req.Text,
		Language: req.Language,
		Voice:    req.Voice,
	})
	if err != nil {
		if d, ok := gateway.RetryAfter(err); ok {
			c.Header("Retry-After", retryAfterSeconds(d))
		}
		abortWithError(c, statusFor(err), err)
		return
	}

	c.JSON(http.StatusOK, ttsResponse{
		AudioContent: res.Audio.Data,
		MimeType:     res.Audio.MimeType,
		CacheHit:     res.CacheHit,
		CacheKey:     res.Key,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	owner := c.Query("ownerId")
	if owner == "" {
		abortWithError(c, http.StatusBadRequest, errors.New("ownerId is required"))
		return
	}

	stats, err := s.deps.Store.Statistics(c.Request.Context(), owner, cache.ContentType(c.Query("contentType")))
	if err != nil {
		abortWithError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleEvict(c *gin.Context) {
	var req evictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	n, err := s.deps.Maintenance.EvictOlderThan(c.Request.Context(), req.OwnerID, req.Days)
	if err != nil {
		abortWithError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evicted": n})
}

func (s *Server) handlePurge(c *gin.Context) {
	n, err := s.deps.Store.Purge(c.Request.Context(), c.Param("ownerId"), cache.ContentType(c.Query("contentType")))
	if err != nil {
		abortWithError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purged": n})
}

// params decodes request parameters into a generic value so that the
// content key is derived from their JSON shape, not their byte layout.
func params(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodeInvalidInput, "params must be JSON", err)
	}
	return v, nil
}

func (s *Server) handleContentLookup(c *gin.Context) {
	var req contentLookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	p, err := params(req.Params)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	doc, ok, err := s.deps.Content.LookupRaw(c.Request.Context(), req.OwnerID, cache.ContentType(c.Param("contentType")), p)
	if err != nil {
		abortWithError(c, statusFor(err), err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not cached"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", doc)
}

func (s *Server) handleContentSave(c *gin.Context) {
	var req contentSaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	p, err := params(req.Params)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	if err := s.deps.Content.SaveRaw(c.Request.Context(), req.OwnerID, cache.ContentType(c.Param("contentType")), p, req.Content); err != nil {
		abortWithError(c, statusFor(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

// retryAfterSeconds renders d in whole seconds, rounded up.
func retryAfterSeconds(d time.Duration) string {
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}
