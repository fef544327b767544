// Package entitlement decides whether a user's subscription, plan and
// monthly usage permit an operation, and keeps the usage ledger.
package entitlement

import (
	"context"
	"errors"
	"time"

	apperrors "entitlement-service/internal/common/errors"
	"entitlement-service/internal/common/logger"
	"entitlement-service/internal/common/metrics"
	"entitlement-service/internal/common/observability"
	"entitlement-service/internal/models"
	"entitlement-service/pkg/plans"
)

// Check names used in logs and metric labels.
const (
	CheckSubscription = "subscription"
	CheckUsage        = "usage_limit"
	CheckFeatureGate  = "feature"
	CheckFileSizeGate = "file_size"
	CheckQualityGate  = "quality"
	CheckPlanTier     = "plan_tier"
)

type UserRepository interface {
	Get(ctx context.Context, userID string) (*models.User, error)
	UpdateStatus(ctx context.Context, userID string, status models.SubscriptionStatus, at time.Time) error
}

type LedgerRepository interface {
	Find(ctx context.Context, userID, month string) (*models.UsageLedger, error)
	GetOrCreate(ctx context.Context, userID string, plan plans.Plan, now time.Time) (*models.UsageLedger, error)
	Increment(ctx context.Context, ledgerID string, delta UsageDelta, now time.Time) error
}

type ServiceOptions struct {
	Users         UserRepository
	Ledgers       LedgerRepository
	Events        EventPublisher
	Observability *observability.Observability
	Logger        logger.Logger
	// Timeout bounds each store round trip. Zero leaves the caller's deadline.
	Timeout time.Duration
	Clock   func() time.Time
}

// Service composes the pure checks with the user and ledger stores.
type Service struct {
	users   UserRepository
	ledgers LedgerRepository
	events  EventPublisher
	obs     *observability.Observability
	logger  logger.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewService(opts ServiceOptions) *Service {
	s := &Service{
		users:   opts.Users,
		ledgers: opts.Ledgers,
		events:  opts.Events,
		obs:     opts.Observability,
		logger:  opts.Logger,
		timeout: opts.Timeout,
		now:     opts.Clock,
	}
	if s.events == nil {
		s.events = NewNoopPublisher()
	}
	if s.logger == nil {
		s.logger = logger.NewNoOpLogger()
	}
	s.logger = s.logger.WithFields(map[string]interface{}{"component": "entitlement-service"})
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// PlanInfo is the current user's plan view.
type PlanInfo struct {
	Plan     string              `json:"plan"`
	Limits   plans.Limits        `json:"limits"`
	Usage    *models.UsageLedger `json:"usage"`
	Features map[string]bool     `json:"features"`
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// LoadUser resolves the authenticated subject to a user record.
func (s *Service) LoadUser(ctx context.Context, userID string) (*models.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperrors.NewUserNotFoundError(userID)
		}
		return nil, apperrors.NewInternalError(err)
	}
	return user, nil
}

// CheckSubscription applies EvaluateStatus. A lazy expiry is persisted and
// announced, and the request is rejected even if persisting fails.
func (s *Service) CheckSubscription(ctx context.Context, user *models.User) error {
	start := time.Now()
	now := s.now()
	decision := EvaluateStatus(user.Subscription, now)

	if decision.Update != nil {
		s.applyStatusUpdate(ctx, user, decision.Update)
	}

	err := decision.Err()
	if decision.Flagged {
		s.logger.Warn("allowing request on past_due subscription", map[string]interface{}{
			"userId": user.ID,
			"plan":   user.Subscription.Plan,
		})
		s.observeOutcome(ctx, CheckSubscription, metrics.OutcomeFlagged, "", start)
		return nil
	}
	s.observe(ctx, CheckSubscription, start, err)
	return err
}

func (s *Service) applyStatusUpdate(ctx context.Context, user *models.User, update *StatusUpdate) {
	previous := user.Subscription.Status

	writeCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.users.UpdateStatus(writeCtx, user.ID, update.Status, update.At); err != nil {
		s.logger.Error("failed to persist subscription expiry", map[string]interface{}{
			"userId": user.ID,
			"reason": update.Reason,
			"error":  err.Error(),
		})
		return
	}

	user.Subscription.Status = update.Status
	user.UpdatedAt = update.At
	metrics.SubscriptionExpirations.WithLabelValues(update.Reason).Inc()
	s.logger.Info("subscription expired", map[string]interface{}{
		"userId":         user.ID,
		"previousStatus": string(previous),
		"reason":         update.Reason,
	})

	s.publish(ctx, Event{
		Type:       EventSubscriptionExpired,
		UserID:     user.ID,
		Plan:       user.Subscription.Plan,
		OccurredAt: update.At,
		Data: map[string]interface{}{
			"previousStatus": string(previous),
			"reason":         update.Reason,
		},
	})
}

// CheckUsageLimit loads (or creates) this month's ledger and rejects when
// amount would overshoot its snapshotted limit. The ledger is returned for
// the later increment; nothing reserves the amount in between.
func (s *Service) CheckUsageLimit(ctx context.Context, user *models.User, resource models.Resource, amount int64) (*models.UsageLedger, error) {
	start := time.Now()

	ledgerCtx, cancel := s.withTimeout(ctx)
	ledger, err := s.ledgers.GetOrCreate(ledgerCtx, user.ID, plans.ForUser(user.Subscription.Plan), s.now())
	cancel()
	if err != nil {
		stdErr := apperrors.NewInternalError(err)
		s.observe(ctx, CheckUsage, start, stdErr)
		return nil, stdErr
	}

	err = CheckLimit(ledger, user.Subscription.Plan, resource, amount)
	s.observe(ctx, CheckUsage, start, err)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeUsageLimitExceeded) {
			current, limit, _ := ledger.Usage(resource)
			s.publish(ctx, Event{
				Type:       EventUsageLimitReached,
				UserID:     user.ID,
				Plan:       user.Subscription.Plan,
				OccurredAt: s.now(),
				Data: map[string]interface{}{
					"resource":     string(resource),
					"currentUsage": current,
					"limit":        limit,
					"requested":    amount,
					"month":        ledger.Month,
				},
			})
		}
		return nil, err
	}
	return ledger, nil
}

// RecordUsage persists an increment and reports failures.
func (s *Service) RecordUsage(ctx context.Context, ledgerID string, delta UsageDelta) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.ledgers.Increment(ctx, ledgerID, delta, s.now()); err != nil {
		return err
	}
	metrics.UsageIncrements.WithLabelValues(string(delta.Resource)).Inc()
	return nil
}

// TrackUsage is RecordUsage for the post-success path: failures are logged
// and counted, never returned.
func (s *Service) TrackUsage(ctx context.Context, userID, ledgerID string, delta UsageDelta) {
	if err := s.RecordUsage(ctx, ledgerID, delta); err != nil {
		metrics.UsageIncrementFailures.WithLabelValues(string(delta.Resource)).Inc()
		s.logger.Error("usage increment dropped", map[string]interface{}{
			"userId":   userID,
			"ledgerId": ledgerID,
			"resource": string(delta.Resource),
			"amount":   delta.Amount,
			"error":    err.Error(),
		})
	}
}

func (s *Service) CheckFeature(ctx context.Context, user *models.User, feature string) error {
	start := time.Now()
	err := CheckFeature(user.Subscription.Plan, feature)
	s.observe(ctx, CheckFeatureGate, start, err)
	return err
}

func (s *Service) CheckFileSize(ctx context.Context, user *models.User, sizeBytes int64) error {
	start := time.Now()
	err := CheckFileSize(user.Subscription.Plan, sizeBytes)
	s.observe(ctx, CheckFileSizeGate, start, err)
	return err
}

func (s *Service) CheckQuality(ctx context.Context, user *models.User, q QualityRequest) error {
	start := time.Now()
	err := CheckQuality(user.Subscription.Plan, q)
	s.observe(ctx, CheckQualityGate, start, err)
	return err
}

func (s *Service) RequirePlan(ctx context.Context, user *models.User, minimum string) error {
	start := time.Now()
	err := RequirePlan(user.Subscription.Plan, minimum)
	s.observe(ctx, CheckPlanTier, start, err)
	return err
}

// PlanInfo returns the user's limits, features and current month ledger.
func (s *Service) PlanInfo(ctx context.Context, user *models.User) (*PlanInfo, error) {
	plan := plans.ForUser(user.Subscription.Plan)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ledger, err := s.ledgers.GetOrCreate(ctx, user.ID, plan, s.now())
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	return &PlanInfo{
		Plan:     user.Subscription.Plan,
		Limits:   plan.Limits,
		Usage:    ledger,
		Features: plan.Features.Map(),
	}, nil
}

// Usage reads a ledger without creating one.
func (s *Service) Usage(ctx context.Context, userID, month string) (*models.UsageLedger, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.ledgers.Find(ctx, userID, month)
}

func (s *Service) publish(ctx context.Context, event Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", map[string]interface{}{
			"eventType": event.Type,
			"userId":    event.UserID,
			"error":     err.Error(),
		})
	}
}

func (s *Service) observe(ctx context.Context, check string, start time.Time, err error) {
	if err == nil {
		s.observeOutcome(ctx, check, metrics.OutcomeAllowed, "", start)
		return
	}
	stdErr, ok := apperrors.AsStandardError(err)
	if !ok || stdErr.Code == apperrors.ErrCodeInternalError {
		s.observeOutcome(ctx, check, metrics.OutcomeError, string(apperrors.ErrCodeInternalError), start)
		return
	}
	s.observeOutcome(ctx, check, metrics.OutcomeRejected, string(stdErr.Code), start)
}

func (s *Service) observeOutcome(ctx context.Context, check, outcome, code string, start time.Time) {
	elapsed := time.Since(start)
	metrics.EntitlementChecks.WithLabelValues(check, outcome).Inc()
	metrics.EntitlementCheckDuration.WithLabelValues(check).Observe(elapsed.Seconds())
	if outcome == metrics.OutcomeRejected {
		metrics.EntitlementRejections.WithLabelValues(code).Inc()
	}
	s.obs.RecordDecision(ctx, check, outcome, code)
	s.obs.RecordCheckDuration(ctx, check, elapsed)
}
