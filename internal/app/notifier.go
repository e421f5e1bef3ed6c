package app

import (
	"context"
	"log/slog"
	"sync"

	"messenger-relay/internal/domain"
)

// InlineNotifier is the Notifier used when no broker is configured: each
// notification is delivered in its own goroutine, detached from the request
// that produced it.
type InlineNotifier struct {
	delivery *DeliveryService
	log      *slog.Logger
	wg       sync.WaitGroup
}

// NewInlineNotifier returns a Notifier that delivers in-process.
func NewInlineNotifier(delivery *DeliveryService, log *slog.Logger) *InlineNotifier {
	return &InlineNotifier{delivery: delivery, log: log}
}

// Notify starts delivery and returns immediately.
func (n *InlineNotifier) Notify(ctx context.Context, note domain.Notification) error {
	ctx = context.WithoutCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		res := n.delivery.Deliver(ctx, note.Request())
		if !res.OK() {
			n.log.Error("relay notification", "notification_id", note.ID, "attempts", res.Attempts, "err", res.Failure)
		}
	}()
	return nil
}

// Wait blocks until every started delivery has finished.
func (n *InlineNotifier) Wait() {
	n.wg.Wait()
}

// LogOptInSink only logs grants. It stands in for the external token store
// when no broker is configured.
type LogOptInSink struct {
	log *slog.Logger
}

// NewLogOptInSink returns an OptInSink that logs each grant.
func NewLogOptInSink(log *slog.Logger) *LogOptInSink {
	return &LogOptInSink{log: log}
}

// HandOff logs the grant.
func (s *LogOptInSink) HandOff(_ context.Context, grant domain.OptInGrant) error {
	s.log.Warn("opt-in grant not stored: no token store configured",
		"psid", grant.PSID,
		"payload", grant.Payload,
	)
	return nil
}

// HandleNotification delivers a queued notification for the relay worker.
// Only a cancelled delivery returns an error, so the broker requeues it;
// every other failure has already been retried and is dropped after logging.
func (s *DeliveryService) HandleNotification(ctx context.Context, n domain.Notification) error {
	res := s.Deliver(ctx, n.Request())
	if res.OK() {
		s.log.Info("notification delivered", "notification_id", n.ID, "attempts", res.Attempts)
		return nil
	}

	if res.Failure.Kind == domain.KindCancelled {
		return res.Failure
	}
	s.log.Error("notification dropped",
		"notification_id", n.ID,
		"kind", string(res.Failure.Kind),
		"attempts", res.Attempts,
		"err", res.Failure,
	)
	return nil
}
