package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"messenger-relay/internal/domain"
	"messenger-relay/internal/ports"
)

// DefaultBaseURL is the versioned Graph API root.
const DefaultBaseURL = "https://graph.facebook.com/v19.0"

// maxResponseBytes caps how much of a Send API answer is read.
const maxResponseBytes = 1 << 20

// Client implements ports.MessengerTransport against the Graph Send API.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// New creates a Client posting to {baseURL}/me/messages with accessToken.
func New(baseURL, accessToken string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Endpoint is the Send API URL with the access token redacted.
func (c *Client) Endpoint() string {
	return c.baseURL + "/me/messages?access_token=REDACTED"
}

func (c *Client) url() string {
	return c.baseURL + "/me/messages?access_token=" + url.QueryEscape(c.accessToken)
}

// Send posts payload once. A non-2xx answer is returned as a response, not an
// error; errors mean the HTTP exchange itself failed.
func (c *Client) Send(ctx context.Context, payload domain.OutboundPayload) (ports.SendResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return ports.SendResponse{}, fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(), bytes.NewReader(body))
	if err != nil {
		return ports.SendResponse{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.SendResponse{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return ports.SendResponse{}, fmt.Errorf("read response: %w", err)
	}

	return ports.SendResponse{StatusCode: resp.StatusCode, Body: respBody}, nil
}
