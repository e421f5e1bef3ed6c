package weatherapi

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

// DefaultBaseURL is the WeatherAPI v1 root.
const DefaultBaseURL = "https://api.weatherapi.com/v1"

// Client implements ports.WeatherProvider using WeatherAPI.
type Client struct {
	baseURL    string
	key        string
	httpClient *http.Client
}

// New creates a Client authenticating with key.
func New(baseURL, key string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		key:        key,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type currentResponse struct {
	Current *struct {
		TempC     *float64 `json:"temp_c"`
		Condition struct {
			Text string `json:"text"`
			Icon string `json:"icon"`
		} `json:"condition"`
	} `json:"current"`
}

// Current fetches current.json for place in lang. A nil result with a nil
// error means the answer had no "current" block.
func (c *Client) Current(ctx context.Context, place, lang string) (*domain.CurrentConditions, error) {
	q := url.Values{}
	q.Set("q", place)
	q.Set("lang", lang)
	q.Set("key", c.key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/current.json?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &domain.UpstreamStatusError{Service: "weather api", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var cr currentResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if cr.Current == nil {
		return nil, nil
	}

	return &domain.CurrentConditions{
		TempC:   cr.Current.TempC,
		Text:    cr.Current.Condition.Text,
		IconURL: cr.Current.Condition.Icon,
	}, nil
}
