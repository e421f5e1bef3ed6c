package ports

import (
	"context"

	"messenger-relay/internal/domain"
)

// Notifier relays a text notification to the Messenger recipient without
// making the caller wait for delivery.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// OptInSink receives OTN grants extracted by the webhook intake. The sink
// owner is responsible for storing them keyed by PSID.
type OptInSink interface {
	HandOff(ctx context.Context, grant domain.OptInGrant) error
}

// NotificationConsumer consumes queued notifications.
type NotificationConsumer interface {
	// Consume starts delivery of notifications; each is passed to the handler.
	// Blocks until ctx is cancelled or a fatal error occurs.
	Consume(ctx context.Context, handler func(ctx context.Context, n domain.Notification) error) error
}
