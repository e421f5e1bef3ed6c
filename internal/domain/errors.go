package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrMissingAccessToken = errors.New("page access token is not configured")
	ErrNoRecipient        = errors.New("no usable recipient address: PSID and one-time token are both missing")
	ErrEmptyContent       = errors.New("message content is required")
	ErrMissingVerifyToken = errors.New("webhook verify token is not configured")
	ErrMissingAPIKey      = errors.New("api key is not configured")
	ErrUnsupportedObject  = errors.New("webhook object is not a page")
	ErrWeatherNotFound    = errors.New("no weather data for this place")
	ErrInvalidURL         = errors.New("url must be an absolute http or https url")
)

// UpstreamStatusError is a non-OK answer from a third-party API (IPinfo,
// WeatherAPI, a proxied page).
type UpstreamStatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("%s request failed with status %d", e.Service, e.StatusCode)
}
