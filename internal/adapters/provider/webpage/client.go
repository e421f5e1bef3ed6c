package webpage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"messenger-relay/internal/domain"
)

// maxPageBytes caps the size of a proxied page.
const maxPageBytes = 5 << 20

// Client implements ports.PageFetcher with a plain GET.
type Client struct {
	httpClient *http.Client
}

// New creates a Client.
func New() *Client {
	return &Client{httpClient: &http.Client{Timeout: 15 * time.Second}}
}

// Fetch returns the body of pageURL. Non-2xx answers are errors.
func (c *Client) Fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &domain.UpstreamStatusError{Service: "page", StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(body), nil
}
