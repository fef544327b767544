package api

import (
	"entitlement-service/internal/models"
	"entitlement-service/pkg/plans"

	"github.com/gin-gonic/gin"
)

// Keys under which the stages share request state.
const (
	ContextKeyUserID     = "userId"
	ContextKeyUser       = "user"
	ContextKeyUsage      = "usage"
	ContextKeyPlanLimits = "planLimits"
	ContextKeyPayload    = "payload"
	contextKeyAmount     = "usageAmount"
)

func UserFromContext(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(ContextKeyUser)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}

// UsageFromContext returns the ledger attached by CheckUsageLimit.
func UsageFromContext(c *gin.Context) (*models.UsageLedger, bool) {
	v, ok := c.Get(ContextKeyUsage)
	if !ok {
		return nil, false
	}
	ledger, ok := v.(*models.UsageLedger)
	return ledger, ok
}

func PlanLimitsFromContext(c *gin.Context) (plans.Limits, bool) {
	v, ok := c.Get(ContextKeyPlanLimits)
	if !ok {
		return plans.Limits{}, false
	}
	limits, ok := v.(plans.Limits)
	return limits, ok
}
