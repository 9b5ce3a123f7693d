package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

const (
	EmailSignupConfirmation = "signup_confirmation"
	EmailPasswordReset      = "password_reset"

	defaultPublishTimeout = 15 * time.Second
)

// AccountEmail is the body of an account email request. A mail worker
// subscribed to the topic renders and sends it.
type AccountEmail struct {
	Type       string    `json:"-"`
	Email      string    `json:"email"`
	Link       string    `json:"link"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Mailer hands account emails to the delivery pipeline.
type Mailer interface {
	Send(ctx context.Context, email AccountEmail) error
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// PubSubMailer publishes account emails to a Pub/Sub topic.
type PubSubMailer struct {
	pub publisher
}

// NewPubSubMailer wraps the account email topic publisher.
func NewPubSubMailer(p *gcppubsub.Publisher) (*PubSubMailer, error) {
	if p == nil {
		return nil, errors.New("account email publisher is required")
	}
	return &PubSubMailer{pub: &gcpPublisher{Publisher: p}}, nil
}

func (m *PubSubMailer) Send(ctx context.Context, email AccountEmail) error {
	if email.Type == "" || email.Email == "" {
		return fmt.Errorf("email type and recipient are required")
	}
	data, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("encode account email: %w", err)
	}
	msg := &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type": email.Type,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	if _, err := m.pub.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish %s email: %w", email.Type, err)
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
