package ports

import (
	"context"

	"messenger-relay/internal/domain"
)

// SendResponse is the raw answer to one Send API call.
type SendResponse struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r SendResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// MessengerTransport performs exactly one Send API call. Retrying is the
// caller's job; a returned error means the call itself did not complete.
type MessengerTransport interface {
	Send(ctx context.Context, payload domain.OutboundPayload) (SendResponse, error)

	// Endpoint is the URL the call goes to, with credentials redacted.
	Endpoint() string
}

// LocationProvider resolves a client IP to an approximate place. An empty ip
// means the caller's own address.
type LocationProvider interface {
	Lookup(ctx context.Context, ip string) (domain.Location, error)
}

// WeatherProvider returns current conditions for a place name.
type WeatherProvider interface {
	Current(ctx context.Context, place, lang string) (*domain.CurrentConditions, error)
}

// PageFetcher downloads a web page for the HTML proxy endpoint.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}
