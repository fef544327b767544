package entitlement

import (
	"fmt"
	"time"

	apperrors "entitlement-service/internal/common/errors"
	"entitlement-service/internal/models"
)

// Reasons attached to a persisted status transition.
const (
	ReasonTrialEnded  = "trial_ended"
	ReasonPeriodEnded = "period_ended"
)

// StatusUpdate is a transition the caller must persist.
type StatusUpdate struct {
	Status models.SubscriptionStatus
	Reason string
	At     time.Time
}

// StatusDecision is the outcome of EvaluateStatus. Update is non-nil only
// for the trialing->expired and period-end->expired transitions. Flagged
// marks an allow that went through an unhandled status (past_due).
type StatusDecision struct {
	Allowed bool
	Code    apperrors.ErrorCode
	Update  *StatusUpdate
	Flagged bool
	detail  string
}

// Err returns the rejection for a denied decision, nil otherwise.
func (d StatusDecision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Code {
	case apperrors.ErrCodeTrialExpired:
		return apperrors.NewTrialExpiredError(d.detail)
	case apperrors.ErrCodeSubscriptionCanceled:
		return apperrors.NewSubscriptionCanceledError(d.detail)
	default:
		return apperrors.NewSubscriptionExpiredError(d.detail)
	}
}

// EvaluateStatus decides whether a subscription may be used at now. It
// performs no I/O; the returned Update carries the lazy expiry transition.
func EvaluateStatus(sub models.Subscription, now time.Time) StatusDecision {
	if sub.Status == models.StatusExpired {
		return StatusDecision{
			Code:   apperrors.ErrCodeSubscriptionExpired,
			detail: "subscription status is expired",
		}
	}

	if sub.Status == models.StatusTrialing && sub.TrialEndsAt != nil && sub.TrialEndsAt.Before(now) {
		return StatusDecision{
			Code:   apperrors.ErrCodeTrialExpired,
			Update: &StatusUpdate{Status: models.StatusExpired, Reason: ReasonTrialEnded, At: now},
			detail: fmt.Sprintf("trial ended at %s", sub.TrialEndsAt.UTC().Format(time.RFC3339)),
		}
	}

	if sub.EndDate != nil && sub.EndDate.Before(now) {
		ended := sub.EndDate.UTC().Format(time.RFC3339)
		if sub.Status == models.StatusCanceled {
			return StatusDecision{
				Code:   apperrors.ErrCodeSubscriptionCanceled,
				detail: fmt.Sprintf("canceled subscription ended at %s", ended),
			}
		}
		return StatusDecision{
			Code:   apperrors.ErrCodeSubscriptionExpired,
			Update: &StatusUpdate{Status: models.StatusExpired, Reason: ReasonPeriodEnded, At: now},
			detail: fmt.Sprintf("subscription ended at %s", ended),
		}
	}

	return StatusDecision{
		Allowed: true,
		Flagged: sub.Status == models.StatusPastDue,
	}
}
