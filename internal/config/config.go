package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"messenger-relay/internal/domain"

	"gopkg.in/yaml.v3"
)

// Config holds every setting the binaries read. Credentials are optional at
// load time; each code path checks the ones it needs when it runs.
type Config struct {
	HTTPAddr        string `yaml:"http_addr"`
	WebhookAddr     string `yaml:"webhook_addr"`
	AMQPURL         string `yaml:"amqp_url"`
	GraphAPIURL     string `yaml:"graph_api_url"`
	IPInfoURL       string `yaml:"ipinfo_url"`
	WeatherAPIURL   string `yaml:"weather_api_url"`
	PageAccessToken string `yaml:"page_access_token"`
	PageScopedUser  string `yaml:"page_scoped_user_id"`
	VerifyToken     string `yaml:"verify_token"`
	IPInfoKey       string `yaml:"ip_info_key"`
	WeatherAPIKey   string `yaml:"weather_api_key"`
	DefaultCity     string `yaml:"default_city"`
	DefaultLang     string `yaml:"default_lang"`
	AllowedOrigins  string `yaml:"allowed_origins"`

	Retry domain.RetryPolicy `yaml:"retry"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		HTTPAddr:       ":8080",
		WebhookAddr:    ":8081",
		GraphAPIURL:    "https://graph.facebook.com/v19.0",
		IPInfoURL:      "https://ipinfo.io",
		WeatherAPIURL:  "https://api.weatherapi.com/v1",
		DefaultCity:    "Hanoi",
		DefaultLang:    "vi",
		AllowedOrigins: "*",
		Retry:          domain.DefaultRetryPolicy(),
	}
}

// FromEnv builds a Config from defaults and environment variables only.
func FromEnv() Config {
	c := Defaults()
	c.applyEnv(os.Getenv)
	return c
}

// Load layers an optional YAML file (CONFIG_FILE) under the environment.
func Load() (Config, error) {
	c := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := c.mergeYAML(raw); err != nil {
			return Config{}, err
		}
	}
	c.applyEnv(os.Getenv)
	return c, nil
}

func (c *Config) mergeYAML(raw []byte) error {
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("decode config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	set(&c.HTTPAddr, "HTTP_ADDR")
	set(&c.WebhookAddr, "WEBHOOK_ADDR")
	set(&c.AMQPURL, "AMQP_URL")
	set(&c.GraphAPIURL, "GRAPH_API_URL")
	set(&c.IPInfoURL, "IPINFO_URL")
	set(&c.WeatherAPIURL, "WEATHER_API_URL")
	set(&c.PageAccessToken, "PAGE_ACCESS_TOKEN")
	set(&c.PageScopedUser, "PAGE_SCOPED_USER_ID")
	set(&c.VerifyToken, "VERIFY_TOKEN")
	set(&c.IPInfoKey, "IP_INFO_KEY")
	set(&c.WeatherAPIKey, "WEATHER_API_KEY")
	set(&c.DefaultCity, "DEFAULT_CITY")
	set(&c.DefaultLang, "DEFAULT_LANG")
	set(&c.AllowedOrigins, "ALLOWED_ORIGINS")

	if v := getenv("DELIVERY_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Retry.MaxRetries = n
		}
	}
	if v := getenv("DELIVERY_RETRY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			c.Retry.Delay = d
		}
	}
}

// Missing returns the env names of required settings that are unset, for the
// given subset of credentials.
func (c Config) Missing(keys ...string) []string {
	values := map[string]string{
		"PAGE_ACCESS_TOKEN":   c.PageAccessToken,
		"PAGE_SCOPED_USER_ID": c.PageScopedUser,
		"VERIFY_TOKEN":        c.VerifyToken,
		"IP_INFO_KEY":         c.IPInfoKey,
		"WEATHER_API_KEY":     c.WeatherAPIKey,
	}
	var missing []string
	for _, k := range keys {
		if values[k] == "" {
			missing = append(missing, k)
		}
	}
	return missing
}
