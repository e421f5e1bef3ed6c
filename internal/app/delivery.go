package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"messenger-relay/internal/domain"
	"messenger-relay/internal/observability"
	"messenger-relay/internal/ports"

	"github.com/google/uuid"
)

var errUndecodableResponse = errors.New("send api answered 2xx with a body that is not JSON")

// DeliveryConfig is the read-only configuration of a DeliveryService.
type DeliveryConfig struct {
	AccessToken string // Only its presence is checked here; the transport puts it on the URL
	DefaultPSID string
	Retry       domain.RetryPolicy
}

// DeliveryService sends one text message to Messenger, retrying transient
// failures with a constant delay. It holds no per-call state, so concurrent
// Deliver calls are independent.
type DeliveryService struct {
	transport ports.MessengerTransport
	cfg       DeliveryConfig
	metrics   *observability.Metrics
	log       *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewDeliveryService wires the service with its dependencies. metrics may be nil.
func NewDeliveryService(
	transport ports.MessengerTransport,
	cfg DeliveryConfig,
	metrics *observability.Metrics,
	log *slog.Logger,
) *DeliveryService {
	return &DeliveryService{
		transport: transport,
		cfg:       cfg,
		metrics:   metrics,
		log:       log,
		sleep:     sleepContext,
	}
}

// Deliver sends req and reports the outcome. It never returns an error or
// panics past this boundary: every path is a DeliveryResult.
func (s *DeliveryService) Deliver(ctx context.Context, req domain.MessageRequest) domain.DeliveryResult {
	start := time.Now()
	res := s.deliver(ctx, req)

	result, kind := "success", ""
	if !res.OK() {
		result, kind = "failure", string(res.Failure.Kind)
	}
	s.metrics.ObserveDelivery(result, kind, time.Since(start))
	return res
}

func (s *DeliveryService) deliver(ctx context.Context, req domain.MessageRequest) domain.DeliveryResult {
	if s.cfg.AccessToken == "" {
		s.log.Error("PAGE_ACCESS_TOKEN is not set")
		return domain.Failed(domain.KindConfiguration, "server configuration error: PAGE_ACCESS_TOKEN is missing", domain.ErrMissingAccessToken)
	}
	if req.Content == "" {
		s.log.Error("message content is required")
		return domain.Failed(domain.KindValidation, "message content is required", domain.ErrEmptyContent)
	}

	addr, err := domain.ResolveRecipient(s.cfg.DefaultPSID, req.RecipientToken)
	if err != nil {
		s.log.Error("no recipient address", "err", err)
		return domain.Failed(domain.KindConfiguration, "missing recipient PSID or one-time notification token", err)
	}
	payload := domain.BuildPayload(addr, req.Content)

	log := s.log.With("delivery_id", uuid.NewString(), "recipient_kind", string(addr.Kind))

	var (
		result  domain.DeliveryResult
		attempt int
	)
	for {
		log.Info("sending message",
			"attempt", attempt+1,
			"url", s.transport.Endpoint(),
			"preview", domain.Preview(payload.Message.Text),
			"payload", payload,
		)

		body, failure := s.attempt(ctx, payload)
		if failure == nil {
			log.Info("message sent", "attempt", attempt+1, "response", body)
			result = domain.Succeeded(body, attempt+1)
			break
		}

		log.Error("send attempt failed",
			"attempt", attempt+1,
			"kind", string(failure.Kind),
			"status", failure.StatusCode,
			"err", failure.Err,
		)
		result = domain.DeliveryResult{Failure: failure, Attempts: attempt + 1}

		if !failure.Kind.Retryable() || attempt >= s.cfg.Retry.MaxRetries {
			break
		}

		// Send API has no idempotency key, so a retried non-OK answer can
		// produce a duplicate if the provider did accept the first call.
		log.Warn("retrying send", "next_attempt", attempt+2, "delay", s.cfg.Retry.Delay)
		if err := s.sleep(ctx, s.cfg.Retry.Delay); err != nil {
			result.Failure = &domain.DeliveryFailure{
				Kind:       domain.KindCancelled,
				Detail:     "delivery cancelled",
				StatusCode: failure.StatusCode,
				Err:        err,
			}
			break
		}
		attempt++
	}

	return result
}

// attempt makes one call and classifies what came back.
func (s *DeliveryService) attempt(ctx context.Context, payload domain.OutboundPayload) (json.RawMessage, *domain.DeliveryFailure) {
	resp, err := s.transport.Send(ctx, payload)
	if err != nil {
		s.metrics.ObserveAttempt("transport_error")
		kind := classifyTransportError(ctx, err)
		detail := "internal server error while sending message"
		if kind == domain.KindCancelled {
			detail = "delivery cancelled"
		}
		return nil, &domain.DeliveryFailure{Kind: kind, Detail: detail, Err: err}
	}

	if !resp.OK() {
		s.metrics.ObserveAttempt("non_ok")
		return nil, &domain.DeliveryFailure{
			Kind:       domain.KindTransient,
			Detail:     errorDetail(resp),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("send api returned status %d", resp.StatusCode),
		}
	}

	s.metrics.ObserveAttempt("ok")
	if !json.Valid(resp.Body) {
		return nil, &domain.DeliveryFailure{
			Kind:       domain.KindFatal,
			Detail:     string(resp.Body),
			StatusCode: resp.StatusCode,
			Err:        errUndecodableResponse,
		}
	}
	return json.RawMessage(resp.Body), nil
}

// errorDetail keeps a provider error body as JSON when it parses, and as raw
// text when it does not.
func errorDetail(resp ports.SendResponse) any {
	if len(resp.Body) == 0 {
		return fmt.Sprintf("send api returned status %d", resp.StatusCode)
	}
	if json.Valid(resp.Body) {
		return json.RawMessage(resp.Body)
	}
	return string(resp.Body)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
