// Package errors provides the entitlement rejection taxonomy and the
// structured error type carried from the checks to the HTTP layer.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode is the stable machine-readable rejection code.
type ErrorCode string

// Subscription status
const (
	ErrCodeSubscriptionExpired  ErrorCode = "SUBSCRIPTION_EXPIRED"
	ErrCodeTrialExpired         ErrorCode = "TRIAL_EXPIRED"
	ErrCodeSubscriptionCanceled ErrorCode = "SUBSCRIPTION_CANCELED"
)

// Plan capabilities and quotas
const (
	ErrCodeFeatureNotAvailable    ErrorCode = "FEATURE_NOT_AVAILABLE"
	ErrCodeUsageLimitExceeded     ErrorCode = "USAGE_LIMIT_EXCEEDED"
	ErrCodeFileSizeExceeded       ErrorCode = "FILE_SIZE_EXCEEDED"
	ErrCodeResolutionNotAvailable ErrorCode = "RESOLUTION_NOT_AVAILABLE"
	ErrCodeFramerateNotAvailable  ErrorCode = "FRAMERATE_NOT_AVAILABLE"
	ErrCodePlanUpgradeRequired    ErrorCode = "PLAN_UPGRADE_REQUIRED"
)

// Request and infrastructure
const (
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeUnauthorized  ErrorCode = "UNAUTHORIZED"
	ErrCodeUserNotFound  ErrorCode = "USER_NOT_FOUND"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// StandardError is a structured rejection. Metadata keys are flattened into
// the response body next to success/message/code.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is matches on code so callers can compare against a bare StandardError.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// ==========================
// 2. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, metadata map[string]interface{}) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: false,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
}

// NewSubscriptionExpiredError rejects a subscription past its end date.
func NewSubscriptionExpiredError(details string) *StandardError {
	return newError(ErrCodeSubscriptionExpired,
		"Your subscription has expired. Please renew to continue.", details, nil)
}

// NewTrialExpiredError rejects a trial past its end.
func NewTrialExpiredError(details string) *StandardError {
	return newError(ErrCodeTrialExpired,
		"Your free trial has ended. Please upgrade to continue.", details, nil)
}

// NewSubscriptionCanceledError rejects a canceled subscription whose paid period is over.
func NewSubscriptionCanceledError(details string) *StandardError {
	return newError(ErrCodeSubscriptionCanceled,
		"Your subscription was canceled and the billing period has ended.", details, nil)
}

// NewFeatureNotAvailableError lists the plans that do carry the feature.
func NewFeatureNotAvailableError(feature, plan string, availableIn []string) *StandardError {
	if availableIn == nil {
		availableIn = []string{}
	}
	return newError(ErrCodeFeatureNotAvailable,
		fmt.Sprintf("The %s feature is not available on the %s plan.", feature, plan), "",
		map[string]interface{}{
			"feature":     feature,
			"plan":        plan,
			"availableIn": availableIn,
		})
}

// NewUsageLimitExceededError reports the monthly counter against its limit.
func NewUsageLimitExceededError(resource string, currentUsage, limit int64, plan string) *StandardError {
	return newError(ErrCodeUsageLimitExceeded,
		fmt.Sprintf("Monthly %s limit reached for the %s plan.", resource, plan), "",
		map[string]interface{}{
			"resource":     resource,
			"currentUsage": currentUsage,
			"limit":        limit,
			"plan":         plan,
		})
}

// NewFileSizeExceededError rejects an upload above the plan's maximum.
func NewFileSizeExceededError(fileSizeMB float64, maxSizeMB int64, plan string) *StandardError {
	return newError(ErrCodeFileSizeExceeded,
		fmt.Sprintf("File size exceeds the %d MB limit of the %s plan.", maxSizeMB, plan), "",
		map[string]interface{}{
			"fileSizeMB": fileSizeMB,
			"maxSizeMB":  maxSizeMB,
			"plan":       plan,
		})
}

// NewResolutionNotAvailableError rejects a resolution above the plan's maximum.
func NewResolutionNotAvailableError(requested, maxResolution, plan string) *StandardError {
	return newError(ErrCodeResolutionNotAvailable,
		fmt.Sprintf("%s recording is not available on the %s plan.", requested, plan), "",
		map[string]interface{}{
			"requestedResolution": requested,
			"maxResolution":       maxResolution,
			"plan":                plan,
		})
}

// NewFramerateNotAvailableError rejects a frame rate above the plan's maximum.
func NewFramerateNotAvailableError(requested, maxFrameRate int, plan string) *StandardError {
	return newError(ErrCodeFramerateNotAvailable,
		fmt.Sprintf("%d fps recording is not available on the %s plan.", requested, plan), "",
		map[string]interface{}{
			"requestedFrameRate": requested,
			"maxFrameRate":       maxFrameRate,
			"plan":               plan,
		})
}

// NewPlanUpgradeRequiredError rejects a user below the required tier.
func NewPlanUpgradeRequiredError(currentPlan, requiredPlan string) *StandardError {
	return newError(ErrCodePlanUpgradeRequired,
		fmt.Sprintf("This action requires the %s plan or higher.", requiredPlan), "",
		map[string]interface{}{
			"currentPlan":  currentPlan,
			"requiredPlan": requiredPlan,
		})
}

// NewInvalidInputError is the generic bad-request rejection.
func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Invalid request", details, nil)
}

// NewUnauthorizedError rejects a missing or invalid credential.
func NewUnauthorizedError(details string) *StandardError {
	return newError(ErrCodeUnauthorized, "Authentication required", details, nil)
}

// NewUserNotFoundError rejects a token whose subject has no user record.
func NewUserNotFoundError(userID string) *StandardError {
	return newError(ErrCodeUserNotFound, "User not found", fmt.Sprintf("user %s", userID), nil)
}

// NewInternalError wraps a persistence or lookup failure. It is retryable
// from the client's point of view.
func NewInternalError(err error) *StandardError {
	e := newError(ErrCodeInternalError, "Internal server error", "", nil)
	if err != nil {
		e.Details = err.Error()
	}
	e.Retryable = true
	return e
}

// ==========================
// 3. HTTP Mapping
// ==========================

// HTTPStatus returns the response status for a code.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeSubscriptionExpired,
		ErrCodeTrialExpired,
		ErrCodeSubscriptionCanceled,
		ErrCodeFeatureNotAvailable,
		ErrCodeUsageLimitExceeded,
		ErrCodeResolutionNotAvailable,
		ErrCodeFramerateNotAvailable,
		ErrCodePlanUpgradeRequired:
		return http.StatusForbidden
	case ErrCodeFileSizeExceeded:
		return http.StatusRequestEntityTooLarge
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ==========================
// 4. Utility Functions
// ==========================

// AsStandardError unwraps err to a StandardError if one is in the chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandardError(err)
	return ok && stdErr.Code == code
}

// GetErrorCategory groups codes for metrics labels and logs.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "SUBSCRIPTION") || strings.Contains(codeStr, "TRIAL"):
		return "SUBSCRIPTION"
	case strings.Contains(codeStr, "FEATURE") || strings.Contains(codeStr, "PLAN"):
		return "PLAN"
	case strings.Contains(codeStr, "USAGE"):
		return "USAGE"
	case strings.Contains(codeStr, "FILE_SIZE") || strings.Contains(codeStr, "RESOLUTION") || strings.Contains(codeStr, "FRAMERATE"):
		return "QUALITY"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	case strings.Contains(codeStr, "UNAUTHORIZED") || strings.Contains(codeStr, "USER"):
		return "AUTH"
	default:
		return "INTERNAL"
	}
}
