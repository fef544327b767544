package entitlement

import (
	"fmt"
	"math"

	apperrors "entitlement-service/internal/common/errors"
	"entitlement-service/internal/models"
	"entitlement-service/pkg/plans"
)

const bytesPerMB = 1024 * 1024

// CheckLimit rejects when current + amount would exceed the ledger's
// snapshotted limit. Reaching the limit exactly is allowed.
func CheckLimit(ledger *models.UsageLedger, planName string, resource models.Resource, amount int64) error {
	if _, ok := models.ParseResource(string(resource)); !ok {
		return apperrors.NewInvalidInputError(fmt.Sprintf("unknown resource type: %s", resource))
	}
	if amount < 1 {
		return apperrors.NewInvalidInputError(fmt.Sprintf("amount must be at least 1, got %d", amount))
	}

	current, limit, _ := ledger.Usage(resource)
	if amount > limit-current {
		return apperrors.NewUsageLimitExceededError(string(resource), current, limit, planName)
	}
	return nil
}

// CheckFeature rejects when the plan lacks the named flag. Unknown feature
// names are treated as absent.
func CheckFeature(planName, feature string) error {
	enabled, _ := plans.ForUser(planName).Features.Has(feature)
	if !enabled {
		return apperrors.NewFeatureNotAvailableError(feature, planName, plans.PlansWithFeature(feature))
	}
	return nil
}

// RequirePlan rejects users ranked below minimum.
func RequirePlan(userPlan, minimum string) error {
	required := plans.Rank(minimum)
	if required == 0 {
		return apperrors.NewInternalError(fmt.Errorf("unknown minimum plan %q", minimum))
	}
	if plans.Rank(userPlan) < required {
		return apperrors.NewPlanUpgradeRequiredError(userPlan, minimum)
	}
	return nil
}

// BytesToMB converts a byte count to megabytes, rounded to two decimals.
func BytesToMB(size int64) float64 {
	return math.Round(float64(size)/bytesPerMB*100) / 100
}

// CheckFileSize rejects uploads above the plan's maximum. A non-positive
// size means nothing was declared.
func CheckFileSize(planName string, sizeBytes int64) error {
	if sizeBytes <= 0 {
		return nil
	}
	maxMB := plans.ForUser(planName).Limits.MaxVideoSizeMB
	if sizeBytes > maxMB*bytesPerMB {
		return apperrors.NewFileSizeExceededError(BytesToMB(sizeBytes), maxMB, planName)
	}
	return nil
}

// QualityRequest is the requested recording quality. Zero values are not checked.
type QualityRequest struct {
	Resolution string
	FrameRate  int
}

// CheckQuality validates resolution first, then frame rate.
func CheckQuality(planName string, q QualityRequest) error {
	if err := CheckResolution(planName, q.Resolution); err != nil {
		return err
	}
	return CheckFrameRate(planName, q.FrameRate)
}

func CheckResolution(planName, resolution string) error {
	if resolution == "" {
		return nil
	}
	if !plans.IsResolution(resolution) {
		return apperrors.NewInvalidInputError(fmt.Sprintf("unsupported resolution: %s", resolution))
	}
	maxRes := plans.ForUser(planName).Limits.MaxResolution
	if plans.ResolutionRank(resolution) > plans.ResolutionRank(maxRes) {
		return apperrors.NewResolutionNotAvailableError(resolution, maxRes, planName)
	}
	return nil
}

func CheckFrameRate(planName string, frameRate int) error {
	if frameRate == 0 {
		return nil
	}
	if frameRate < 0 {
		return apperrors.NewInvalidInputError(fmt.Sprintf("invalid frame rate: %d", frameRate))
	}
	maxFPS := plans.ForUser(planName).Limits.MaxFrameRate
	if frameRate > maxFPS {
		return apperrors.NewFramerateNotAvailableError(frameRate, maxFPS, planName)
	}
	return nil
}
