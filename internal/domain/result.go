package domain

import (
	"encoding/json"
	"time"
)

// FailureKind classifies why a delivery did not succeed.
type FailureKind string

const (
	KindConfiguration FailureKind = "configuration_error"      // Missing credential or recipient; never retried
	KindValidation    FailureKind = "validation_error"         // Empty content; never retried
	KindTransient     FailureKind = "transient_delivery_error" // Timeout, reset or non-OK response; retried
	KindFatal         FailureKind = "fatal_delivery_error"     // Anything else during the call; never retried
	KindCancelled     FailureKind = "cancelled"                // Caller context ended mid-delivery
)

// Retryable reports whether the delivery loop may try again after this kind.
func (k FailureKind) Retryable() bool {
	return k == KindTransient
}

// DeliveryFailure is the Failure arm of a DeliveryResult.
type DeliveryFailure struct {
	Kind       FailureKind
	Detail     any // string, or the provider's JSON error body
	StatusCode int // last HTTP status seen, 0 if the call never returned
	Err        error
}

func (f *DeliveryFailure) Error() string {
	if f.Err != nil {
		return string(f.Kind) + ": " + f.Err.Error()
	}
	return string(f.Kind)
}

func (f *DeliveryFailure) Unwrap() error { return f.Err }

// DeliveryResult is what a send returns to its caller: either Body (success)
// or Failure. Attempts counts the outbound calls made.
type DeliveryResult struct {
	Body     json.RawMessage
	Failure  *DeliveryFailure
	Attempts int
}

// Succeeded builds the Success arm.
func Succeeded(body json.RawMessage, attempts int) DeliveryResult {
	return DeliveryResult{Body: body, Attempts: attempts}
}

// Failed builds the Failure arm.
func Failed(kind FailureKind, detail any, err error) DeliveryResult {
	return DeliveryResult{Failure: &DeliveryFailure{Kind: kind, Detail: detail, Err: err}}
}

// OK reports whether the message was accepted by the provider.
func (r DeliveryResult) OK() bool { return r.Failure == nil }

type deliveryResultJSON struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   any             `json:"error,omitempty"`
}

// MarshalJSON renders {"success":true,"data":...} or {"success":false,"error":...}.
func (r DeliveryResult) MarshalJSON() ([]byte, error) {
	if r.OK() {
		return json.Marshal(deliveryResultJSON{Success: true, Data: r.Body})
	}
	detail := r.Failure.Detail
	if detail == nil {
		detail = r.Failure.Error()
	}
	return json.Marshal(deliveryResultJSON{Success: false, Error: detail})
}

// RetryPolicy bounds the delivery loop: one initial try plus MaxRetries more,
// waiting a constant Delay in between.
type RetryPolicy struct {
	MaxRetries int           `yaml:"max_retries"`
	Delay      time.Duration `yaml:"delay"`
}

// DefaultRetryPolicy is 3 retries 2s apart (4 calls, ~6s worst case).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Delay: 2000 * time.Millisecond}
}
