package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	apperrors "entitlement-service/internal/common/errors"
	"entitlement-service/internal/common/validation"
	"entitlement-service/internal/entitlement"

	"github.com/gin-gonic/gin"
)

const (
	maxPayloadBytes = 1 << 20
	maxMinutes      = 1440
	headerFileSize  = "X-File-Size"
)

// RequestPayload holds the body fields the entitlement stages read. The rest
// of the body belongs to the handler.
type RequestPayload struct {
	FileSize   int64   `json:"fileSize"`
	Duration   float64 `json:"duration"`
	Resolution string  `json:"resolution"`
	FrameRate  int     `json:"frameRate"`
	Minutes    int64   `json:"minutes"`
}

var payloadSchema = validation.MustCompile("entitlement-payload", fmt.Sprintf(`{
	"type": "object",
	"properties": {
		"fileSize":   {"type": "integer", "minimum": 0},
		"duration":   {"type": "number", "minimum": 0},
		"resolution": {"type": "string", "enum": ["720p", "1080p", "4k"]},
		"frameRate":  {"type": "integer", "minimum": 1},
		"minutes":    {"type": "integer", "minimum": 1, "maximum": %d}
	}
}`, maxMinutes))

// payloadFromContext parses the JSON body once per request and restores it
// for the handler. An empty body yields a zero payload.
func payloadFromContext(c *gin.Context) (*RequestPayload, error) {
	if v, ok := c.Get(ContextKeyPayload); ok {
		if p, ok := v.(*RequestPayload); ok {
			return p, nil
		}
	}

	payload := &RequestPayload{}
	if c.Request.Body == nil {
		c.Set(ContextKeyPayload, payload)
		return payload, nil
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes+1))
	if err != nil {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("failed to read request body: %v", err))
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if len(body) > maxPayloadBytes {
		return nil, apperrors.NewInvalidInputError("request body too large")
	}

	if len(bytes.TrimSpace(body)) > 0 {
		var document interface{}
		decoder := json.NewDecoder(bytes.NewReader(body))
		decoder.UseNumber()
		if err := decoder.Decode(&document); err != nil {
			return nil, apperrors.NewInvalidInputError(fmt.Sprintf("malformed JSON body: %v", err))
		}
		if result := payloadSchema.Validate(document); !result.Valid {
			return nil, apperrors.NewInvalidInputError(result.Summary())
		}
		if err := json.Unmarshal(body, payload); err != nil {
			return nil, apperrors.NewInvalidInputError(fmt.Sprintf("malformed JSON body: %v", err))
		}
	}

	c.Set(ContextKeyPayload, payload)
	return payload, nil
}

// declaredFileSize returns the upload size in bytes: the body field first,
// then the X-File-Size header, then Content-Length. Zero means undeclared.
func declaredFileSize(c *gin.Context, payload *RequestPayload) (int64, error) {
	if payload.FileSize > 0 {
		return payload.FileSize, nil
	}
	if raw := strings.TrimSpace(c.GetHeader(headerFileSize)); raw != "" {
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || size < 0 {
			return 0, apperrors.NewInvalidInputError(fmt.Sprintf("invalid %s header: %q", headerFileSize, raw))
		}
		return size, nil
	}
	if c.Request.ContentLength > 0 {
		return c.Request.ContentLength, nil
	}
	return 0, nil
}

// bandwidthMB is the declared upload in megabytes, ignoring Content-Length.
func bandwidthMB(c *gin.Context, payload *RequestPayload) float64 {
	if payload.FileSize > 0 {
		return entitlement.BytesToMB(payload.FileSize)
	}
	if size, err := strconv.ParseInt(strings.TrimSpace(c.GetHeader(headerFileSize)), 10, 64); err == nil && size > 0 {
		return entitlement.BytesToMB(size)
	}
	return 0
}

// AmountFunc derives the usage amount for a request.
type AmountFunc func(p *RequestPayload) int64

// Fixed charges the same amount for every request.
func Fixed(n int64) AmountFunc {
	return func(*RequestPayload) int64 { return n }
}

// PayloadMinutes charges the body's minutes field, defaulting to one.
func PayloadMinutes(p *RequestPayload) int64 {
	if p.Minutes > 0 {
		return p.Minutes
	}
	return 1
}
