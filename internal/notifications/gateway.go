package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/phoenix-backend/pkg/enums"
	"github.com/angelmondragon/phoenix-backend/pkg/logger"
)

const defaultPublishTimeout = 10 * time.Second

// Message is one outbound client or staff notification. Rendering is done by
// the mailer consuming the topic.
type Message struct {
	Kind      enums.NotificationKind     `json:"kind"`
	Priority  enums.NotificationPriority `json:"priority"`
	ClientID  string                     `json:"client_id,omitempty"`
	Recipient string                     `json:"recipient"`
	Subject   string                     `json:"subject,omitempty"`
	Data      map[string]any             `json:"data,omitempty"`
	CreatedAt time.Time                  `json:"created_at"`
}

// Gateway delivers notifications.
type Gateway interface {
	Send(ctx context.Context, msg Message) error
}

type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

// PubSubGateway publishes notifications as JSON to a Pub/Sub topic and waits
// for the server acknowledgement.
type PubSubGateway struct {
	pub     publisher
	timeout time.Duration
}

func NewPubSubGateway(p *gcppubsub.Publisher) (*PubSubGateway, error) {
	if p == nil {
		return nil, errors.New("pubsub publisher is required")
	}
	return &PubSubGateway{pub: &gcpPublisher{Publisher: p}, timeout: defaultPublishTimeout}, nil
}

func (g *PubSubGateway) Send(ctx context.Context, msg Message) error {
	if !msg.Kind.IsValid() {
		return fmt.Errorf("unknown notification kind %q", msg.Kind)
	}
	if msg.Priority == "" {
		msg.Priority = enums.NotificationPriorityNormal
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	result := g.pub.Publish(publishCtx, &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"kind":     string(msg.Kind),
			"priority": string(msg.Priority),
		},
	})
	if result == nil {
		return errors.New("publish result is nil")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return p.Publisher.Publish(ctx, msg)
}

// LogGateway writes notifications to the structured log. Used when no topic is configured.
type LogGateway struct {
	logg *logger.Logger
}

func NewLogGateway(logg *logger.Logger) *LogGateway {
	return &LogGateway{logg: logg}
}

func (g *LogGateway) Send(ctx context.Context, msg Message) error {
	if g.logg == nil {
		return nil
	}
	ctx = g.logg.WithFields(ctx, map[string]any{
		"notification_kind":      msg.Kind,
		"notification_priority":  msg.Priority,
		"notification_recipient": msg.Recipient,
		"client_id":              msg.ClientID,
	})
	g.logg.Info(ctx, "notification.logged")
	return nil
}
