package errors

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorHandler turns check failures into terminal HTTP rejections.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Respond aborts the gin chain with the rejection payload for err.
// Internal failures are logged with their cause and answered with a bare 500.
func (h *ErrorHandler) Respond(c *gin.Context, err error) {
	stdErr := h.normalizeError(err)
	status := HTTPStatus(stdErr.Code)

	h.logError(c, stdErr, status)

	c.AbortWithStatusJSON(status, RejectionBody(stdErr))
}

// RejectionBody renders the wire shape of a rejection.
func RejectionBody(stdErr *StandardError) gin.H {
	if HTTPStatus(stdErr.Code) == http.StatusInternalServerError {
		return gin.H{
			"success": false,
			"message": "Internal server error",
		}
	}

	body := gin.H{
		"success": false,
		"message": stdErr.Message,
		"code":    string(stdErr.Code),
	}
	if stdErr.Code == ErrCodeInvalidInput && stdErr.Details != "" {
		body["details"] = stdErr.Details
	}
	for k, v := range stdErr.Metadata {
		if _, reserved := body[k]; reserved {
			continue
		}
		body[k] = v
	}
	return body
}

// normalizeError ensures we always have a StandardError
func (h *ErrorHandler) normalizeError(err error) *StandardError {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr
	}
	stdErr := NewInternalError(err)
	stdErr.Timestamp = time.Now().UTC()
	return stdErr
}

func (h *ErrorHandler) logError(c *gin.Context, stdErr *StandardError, status int) {
	fields := map[string]interface{}{
		"errorCode":     string(stdErr.Code),
		"errorCategory": GetErrorCategory(stdErr.Code),
		"status":        status,
		"method":        c.Request.Method,
		"path":          c.FullPath(),
	}
	if userID, ok := c.Get("userId"); ok {
		fields["userId"] = userID
	}

	if status >= http.StatusInternalServerError {
		fields["details"] = stdErr.Details
		h.logger.Error("request failed", fields)
		return
	}
	fields["message"] = stdErr.Message
	h.logger.Warn("request rejected", fields)
}
