package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/invoq-hq/be-approvals/internal/natsclient"
)

// NotificationPublisher publishes approval workflow events to NATS JetStream
// for consumption by the notifications service.
//
// Subject convention: notifications.approvals.<event_type>
//
// All publish operations are non-fatal. Errors are logged but never propagated
// to the caller, so notification failures never interrupt approval operations.
type NotificationPublisher struct {
	nats *natsclient.Client
	log  zerolog.Logger
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// client. A nil client disables publishing entirely.
func NewNotificationPublisher(nats *natsclient.Client, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nats: nats, log: log}
}

// Send publishes one approval event. Fire-and-forget.
func (p *NotificationPublisher) Send(ctx context.Context, event *NotificationEvent) {
	if p.nats == nil {
		return
	}
	if len(event.Recipients) == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", event.EventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.approvals.%s", event.EventType)
	if err := p.nats.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("instance_id", event.InstanceID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("instance_id", event.InstanceID).
		Int("recipients", len(event.Recipients)).
		Msg("notification: event published")
}
