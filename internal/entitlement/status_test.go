package entitlement

import (
	"testing"
	"time"

	apperrors "entitlement-service/internal/common/errors"
	"entitlement-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time { return &t }

// ==========================
// Status Evaluation Tests
// ==========================

func TestEvaluateStatus(t *testing.T) {
	past := timePtr(testNow.Add(-time.Hour))
	future := timePtr(testNow.Add(time.Hour))

	tests := []struct {
		name       string
		sub        models.Subscription
		allowed    bool
		code       apperrors.ErrorCode
		wantUpdate bool
		reason     string
		flagged    bool
	}{
		{
			name:    "active without end date",
			sub:     models.Subscription{Plan: "pro", Status: models.StatusActive},
			allowed: true,
		},
		{
			name:    "active with future end date",
			sub:     models.Subscription{Plan: "pro", Status: models.StatusActive, EndDate: future},
			allowed: true,
		},
		{
			name:       "active with past end date expires",
			sub:        models.Subscription{Plan: "pro", Status: models.StatusActive, EndDate: past},
			code:       apperrors.ErrCodeSubscriptionExpired,
			wantUpdate: true,
			reason:     ReasonPeriodEnded,
		},
		{
			name: "already expired",
			sub:  models.Subscription{Plan: "pro", Status: models.StatusExpired},
			code: apperrors.ErrCodeSubscriptionExpired,
		},
		{
			name: "expired ignores future dates",
			sub:  models.Subscription{Plan: "pro", Status: models.StatusExpired, EndDate: future, TrialEndsAt: future},
			code: apperrors.ErrCodeSubscriptionExpired,
		},
		{
			name:    "trialing within trial",
			sub:     models.Subscription{Plan: "pro", Status: models.StatusTrialing, TrialEndsAt: future},
			allowed: true,
		},
		{
			name:       "trialing past trial end",
			sub:        models.Subscription{Plan: "pro", Status: models.StatusTrialing, TrialEndsAt: past},
			code:       apperrors.ErrCodeTrialExpired,
			wantUpdate: true,
			reason:     ReasonTrialEnded,
		},
		{
			name:    "trialing without trial end",
			sub:     models.Subscription{Plan: "pro", Status: models.StatusTrialing},
			allowed: true,
		},
		{
			name:    "canceled in grace period",
			sub:     models.Subscription{Plan: "pro", Status: models.StatusCanceled, EndDate: future},
			allowed: true,
		},
		{
			name: "canceled after period end",
			sub:  models.Subscription{Plan: "pro", Status: models.StatusCanceled, EndDate: past},
			code: apperrors.ErrCodeSubscriptionCanceled,
		},
		{
			name:    "past_due falls through flagged",
			sub:     models.Subscription{Plan: "pro", Status: models.StatusPastDue},
			allowed: true,
			flagged: true,
		},
		{
			name:       "past_due with past end date expires",
			sub:        models.Subscription{Plan: "pro", Status: models.StatusPastDue, EndDate: past},
			code:       apperrors.ErrCodeSubscriptionExpired,
			wantUpdate: true,
			reason:     ReasonPeriodEnded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := EvaluateStatus(tt.sub, testNow)

			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.flagged, d.Flagged)
			if tt.allowed {
				assert.NoError(t, d.Err())
				assert.Nil(t, d.Update)
				return
			}

			assert.Equal(t, tt.code, d.Code)
			assert.True(t, apperrors.HasCode(d.Err(), tt.code))

			if !tt.wantUpdate {
				assert.Nil(t, d.Update)
				return
			}
			require.NotNil(t, d.Update)
			assert.Equal(t, models.StatusExpired, d.Update.Status)
			assert.Equal(t, tt.reason, d.Update.Reason)
			assert.Equal(t, testNow, d.Update.At)
		})
	}
}

func TestEvaluateStatus_BoundaryIsStrict(t *testing.T) {
	sub := models.Subscription{Plan: "pro", Status: models.StatusActive, EndDate: timePtr(testNow)}

	d := EvaluateStatus(sub, testNow)

	assert.True(t, d.Allowed)
}

func TestEvaluateStatus_ExpiredIsTerminal(t *testing.T) {
	sub := models.Subscription{Plan: "pro", Status: models.StatusTrialing, TrialEndsAt: timePtr(testNow.Add(-time.Minute))}

	first := EvaluateStatus(sub, testNow)
	require.NotNil(t, first.Update)

	sub.Status = first.Update.Status
	second := EvaluateStatus(sub, testNow.Add(time.Hour))

	assert.False(t, second.Allowed)
	assert.Equal(t, apperrors.ErrCodeSubscriptionExpired, second.Code)
	assert.Nil(t, second.Update)
}

func BenchmarkEvaluateStatus(b *testing.B) {
	sub := models.Subscription{Plan: "pro", Status: models.StatusActive, EndDate: timePtr(testNow.Add(time.Hour))}
	for i := 0; i < b.N; i++ {
		_ = EvaluateStatus(sub, testNow)
	}
}
