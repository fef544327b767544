package models

import "time"

type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "active"
	StatusCanceled SubscriptionStatus = "canceled"
	StatusExpired  SubscriptionStatus = "expired"
	StatusTrialing SubscriptionStatus = "trialing"
	StatusPastDue  SubscriptionStatus = "past_due"
)

// Subscription is the billing state embedded in a user record.
type Subscription struct {
	Plan        string             `json:"plan"`
	Status      SubscriptionStatus `json:"status"`
	TrialEndsAt *time.Time         `json:"trialEndsAt,omitempty"`
	EndDate     *time.Time         `json:"endDate,omitempty"`
}

type User struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	Subscription Subscription `json:"subscription"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}
