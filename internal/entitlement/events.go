package entitlement

import (
	"context"
	"time"

	"entitlement-service/internal/common/aws"
	"entitlement-service/internal/common/logger"
)

const (
	EventSubscriptionExpired = "subscription.expired"
	EventUsageLimitReached   = "usage.limit_reached"
)

// Event is the message body published for entitlement state changes.
type Event struct {
	Type       string                 `json:"type"`
	UserID     string                 `json:"userId"`
	Plan       string                 `json:"plan"`
	OccurredAt time.Time              `json:"occurredAt"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// EventPublisher delivers events. Publishing is best effort; callers log
// errors and carry on.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

type noopPublisher struct{}

// NewNoopPublisher drops every event.
func NewNoopPublisher() EventPublisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, Event) error { return nil }

// SNSPublisher sends events to an SNS topic, attributed by type and user.
type SNSPublisher struct {
	client *aws.SNSClient
	logger logger.Logger
}

func NewSNSPublisher(client *aws.SNSClient, log logger.Logger) *SNSPublisher {
	return &SNSPublisher{
		client: client,
		logger: log.WithFields(map[string]interface{}{"component": "sns-publisher"}),
	}
}

func (p *SNSPublisher) Publish(ctx context.Context, event Event) error {
	messageID, err := p.client.PublishJSON(ctx, event.Type, event.UserID, event)
	if err != nil {
		return err
	}
	p.logger.Debug("event published", map[string]interface{}{
		"eventType": event.Type,
		"userId":    event.UserID,
		"messageId": messageID,
	})
	return nil
}
