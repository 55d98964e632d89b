package notify

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	KindYourTurn  = "your_turn"
	KindRequeued  = "requeued"
	KindCancelled = "cancelled"
)

type Notification struct {
	NotificationID string            `json:"notification_id"`
	CustomerID     string            `json:"customer_id"`
	OrganizationID string            `json:"organization_id"`
	Kind           string            `json:"kind"`
	Message        string            `json:"message"`
	Payload        map[string]string `json:"payload,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Sink delivers customer-facing messages. Delivery is best effort: callers
// dispatch asynchronously and a failed Notify never fails a queue operation.
type Sink interface {
	Notify(ctx context.Context, note Notification) error
}

// New fills in the generated fields and renders the message body.
func New(customerID, organizationID, kind string, payload map[string]string) Notification {
	return Notification{
		NotificationID: uuid.NewString(),
		CustomerID:     customerID,
		OrganizationID: organizationID,
		Kind:           kind,
		Message:        renderMessage(kind, payload),
		Payload:        payload,
		CreatedAt:      time.Now().UTC(),
	}
}

func renderMessage(kind string, payload map[string]string) string {
	template := ""
	switch kind {
	case KindYourTurn:
		template = "Ticket {ticket_number}: it is your turn now."
	case KindRequeued:
		template = "Ticket {ticket_number}: you were moved to position {position}."
	case KindCancelled:
		template = "Ticket {ticket_number}: your appointment was cancelled."
	default:
		return ""
	}
	result := template
	result = strings.ReplaceAll(result, "{ticket_number}", payload["ticket_number"])
	result = strings.ReplaceAll(result, "{position}", payload["position"])
	return result
}

// RedisSink publishes notifications to a per-organization channel. A
// realtime or push-delivery service subscribes on the other end.
type RedisSink struct {
	client        *redis.Client
	channelPrefix string
}

func NewRedisSink(client *redis.Client, channelPrefix string) *RedisSink {
	if channelPrefix == "" {
		channelPrefix = "queue:notify"
	}
	return &RedisSink{client: client, channelPrefix: channelPrefix}
}

func (s *RedisSink) Notify(ctx context.Context, note Notification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channelPrefix+":"+note.OrganizationID, payload).Err()
}

// LogSink is the fallback when no Redis is configured.
type LogSink struct{}

func (LogSink) Notify(ctx context.Context, note Notification) error {
	log.Printf("notify kind=%s customer=%s org=%s message=%q", note.Kind, note.CustomerID, note.OrganizationID, note.Message)
	return nil
}
