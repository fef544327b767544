package api

import (
	"context"
	"errors"
	"time"

	"entitlement-service/internal/common/auth"
	apperrors "entitlement-service/internal/common/errors"
	"entitlement-service/internal/common/logger"
	"entitlement-service/internal/common/metrics"
	"entitlement-service/internal/entitlement"
	"entitlement-service/internal/models"
	"entitlement-service/pkg/plans"

	"github.com/gin-gonic/gin"
)

var errNoUser = errors.New("entitlement stage reached without a loaded user")

// Middleware builds the gin stages of the entitlement chain.
type Middleware struct {
	service  *entitlement.Service
	verifier *auth.Verifier
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
}

func NewMiddleware(service *entitlement.Service, verifier *auth.Verifier, log logger.Logger) *Middleware {
	log = log.WithFields(map[string]interface{}{"component": "http"})
	return &Middleware{
		service:  service,
		verifier: verifier,
		errors:   apperrors.NewErrorHandler(log),
		logger:   log,
	}
}

// Authenticate verifies the bearer token and records its subject as the user id.
func (m *Middleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.verifier == nil {
			m.errors.Respond(c, apperrors.NewUnauthorizedError("token verifier not configured"))
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			m.errors.Respond(c, apperrors.NewUnauthorizedError("missing authorization header"))
			return
		}
		token, ok := auth.ExtractBearerToken(header)
		if !ok {
			m.errors.Respond(c, apperrors.NewUnauthorizedError("invalid authorization header"))
			return
		}

		claims, err := m.verifier.Verify(token)
		if err != nil {
			m.logger.Debug("token rejected", map[string]interface{}{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			})
			m.errors.Respond(c, apperrors.NewUnauthorizedError("invalid token"))
			return
		}

		c.Set(ContextKeyUserID, claims.Subject)
		c.Request = c.Request.WithContext(auth.WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

// LoadUser resolves the authenticated subject to its user record.
func (m *Middleware) LoadUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ContextKeyUserID)
		if userID == "" {
			m.errors.Respond(c, apperrors.NewUnauthorizedError("no authenticated subject"))
			return
		}

		user, err := m.service.LoadUser(c.Request.Context(), userID)
		if err != nil {
			m.errors.Respond(c, err)
			return
		}
		c.Set(ContextKeyUser, user)
		c.Next()
	}
}

// RequireActiveSubscription rejects expired, ended-trial and ended-canceled
// subscriptions, persisting a lazy expiry on the way.
func (m *Middleware) RequireActiveSubscription() gin.HandlerFunc {
	return m.withUser(func(c *gin.Context, user *models.User) error {
		return m.service.CheckSubscription(c.Request.Context(), user)
	})
}

func (m *Middleware) CheckFeature(feature string) gin.HandlerFunc {
	return m.withUser(func(c *gin.Context, user *models.User) error {
		return m.service.CheckFeature(c.Request.Context(), user, feature)
	})
}

// RequirePlan rejects users below the minimum tier.
func (m *Middleware) RequirePlan(minimum string) gin.HandlerFunc {
	return m.withUser(func(c *gin.Context, user *models.User) error {
		return m.service.RequirePlan(c.Request.Context(), user, minimum)
	})
}

// CheckUsageLimit attaches the month's ledger and the plan limits for the
// handler and TrackUsage.
func (m *Middleware) CheckUsageLimit(resource models.Resource, amount AmountFunc) gin.HandlerFunc {
	return m.withUser(func(c *gin.Context, user *models.User) error {
		payload, err := payloadFromContext(c)
		if err != nil {
			return err
		}
		n := amount(payload)

		ledger, err := m.service.CheckUsageLimit(c.Request.Context(), user, resource, n)
		if err != nil {
			return err
		}
		c.Set(ContextKeyUsage, ledger)
		c.Set(ContextKeyPlanLimits, plans.ForUser(user.Subscription.Plan).Limits)
		c.Set(contextKeyAmount, n)
		return nil
	})
}

func (m *Middleware) CheckFileSize() gin.HandlerFunc {
	return m.withUser(func(c *gin.Context, user *models.User) error {
		payload, err := payloadFromContext(c)
		if err != nil {
			return err
		}
		size, err := declaredFileSize(c, payload)
		if err != nil {
			return err
		}
		return m.service.CheckFileSize(c.Request.Context(), user, size)
	})
}

func (m *Middleware) CheckQuality() gin.HandlerFunc {
	return m.withUser(func(c *gin.Context, user *models.User) error {
		payload, err := payloadFromContext(c)
		if err != nil {
			return err
		}
		return m.service.CheckQuality(c.Request.Context(), user, entitlement.QualityRequest{
			Resolution: payload.Resolution,
			FrameRate:  payload.FrameRate,
		})
	})
}

// TrackUsage runs the rest of the chain and then increments the ledger
// attached by CheckUsageLimit, unless the handler failed. Increment errors
// are logged and counted only.
func (m *Middleware) TrackUsage(resource models.Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.IsAborted() || c.Writer.Status() >= 400 {
			return
		}

		ledger, ok := UsageFromContext(c)
		if !ok {
			m.logger.Warn("usage not tracked, no ledger on request", map[string]interface{}{
				"resource": string(resource),
				"path":     c.FullPath(),
			})
			return
		}

		amount := c.GetInt64(contextKeyAmount)
		if amount < 1 {
			amount = 1
		}
		delta := entitlement.UsageDelta{Resource: resource, Amount: amount}
		if payload, err := payloadFromContext(c); err == nil {
			delta.BandwidthMB = bandwidthMB(c, payload)
			if resource == models.ResourceRecordings {
				delta.DurationSeconds = payload.Duration
			}
		}

		m.service.TrackUsage(context.WithoutCancel(c.Request.Context()), ledger.UserID, ledger.ID, delta)
	}
}

func (m *Middleware) withUser(check func(c *gin.Context, user *models.User) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := UserFromContext(c)
		if !ok {
			m.errors.Respond(c, apperrors.NewInternalError(errNoUser))
			return
		}
		if err := check(c, user); err != nil {
			m.errors.Respond(c, err)
			return
		}
		c.Next()
	}
}

// RequestLogger writes one access log line per request.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"clientIp": c.ClientIP(),
		}
		if userID := c.GetString(ContextKeyUserID); userID != "" {
			fields["userId"] = userID
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Error("request completed", fields)
		case status >= 400:
			log.Warn("request completed", fields)
		default:
			log.Info("request completed", fields)
		}
	}
}

// InFlight tracks concurrently served requests.
func InFlight() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()
		c.Next()
	}
}
