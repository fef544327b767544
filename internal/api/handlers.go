package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"entitlement-service/internal/common/database"
	apperrors "entitlement-service/internal/common/errors"
	"entitlement-service/internal/common/logger"
	"entitlement-service/internal/entitlement"
	"entitlement-service/pkg/plans"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const readinessTimeout = 2 * time.Second

// Receipt acknowledges an entitled operation. The media and script payloads
// themselves are stored by other services.
type Receipt struct {
	ID         string    `json:"id"`
	Operation  string    `json:"operation"`
	UserID     string    `json:"userId"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

type Handlers struct {
	service   *entitlement.Service
	readiness map[string]database.Pinger
	errors    *apperrors.ErrorHandler
	now       func() time.Time
}

func NewHandlers(service *entitlement.Service, readiness map[string]database.Pinger, log logger.Logger) *Handlers {
	return &Handlers{
		service:   service,
		readiness: readiness,
		errors:    apperrors.NewErrorHandler(log.WithFields(map[string]interface{}{"component": "http"})),
		now:       time.Now,
	}
}

// PlanInfo returns {plan, limits, usage, features} for the current user.
func (h *Handlers) PlanInfo(c *gin.Context) {
	user, ok := UserFromContext(c)
	if !ok {
		h.errors.Respond(c, apperrors.NewInternalError(errNoUser))
		return
	}
	info, err := h.service.PlanInfo(c.Request.Context(), user)
	if err != nil {
		h.errors.Respond(c, err)
		return
	}
	SendSuccess(c, http.StatusOK, info)
}

// Catalog is the public plan table.
func (h *Handlers) Catalog(c *gin.Context) {
	SendSuccess(c, http.StatusOK, plans.Export())
}

// Accept acknowledges a guarded operation with a receipt. Reads answer 200,
// writes 201.
func (h *Handlers) Accept(operation string) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusCreated
		if c.Request.Method == http.MethodGet {
			status = http.StatusOK
		}
		SendSuccess(c, status, Receipt{
			ID:         uuid.New().String(),
			Operation:  operation,
			UserID:     c.GetString(ContextKeyUserID),
			AcceptedAt: h.now().UTC(),
		})
	}
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Ready pings every backing store.
func (h *Handlers) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.readiness))
	for name := range h.readiness {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(gin.H, len(names))
	ready := true
	for _, name := range names {
		if err := h.readiness[name].Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
}
