package ipinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"messenger-relay/internal/domain"
)

// DefaultBaseURL is the IPinfo API root.
const DefaultBaseURL = "https://ipinfo.io"

// Client implements ports.LocationProvider using IPinfo.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a Client authenticating with token.
func New(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type lookupResponse struct {
	City   string `json:"city"`
	Region string `json:"region"`
}

// Lookup fetches {base}/{ip}/json, or {base}/json for the caller's own IP.
func (c *Client) Lookup(ctx context.Context, ip string) (domain.Location, error) {
	endpoint := c.baseURL + "/json"
	if ip != "" {
		endpoint = c.baseURL + "/" + url.PathEscape(ip) + "/json"
	}
	endpoint += "?token=" + url.QueryEscape(c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Location{}, fmt.Errorf("new request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Location{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Location{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return domain.Location{}, &domain.UpstreamStatusError{Service: "ipinfo", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var lr lookupResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return domain.Location{}, fmt.Errorf("decode response: %w", err)
	}

	return domain.Location{City: lr.City, Region: lr.Region, Raw: body}, nil
}
