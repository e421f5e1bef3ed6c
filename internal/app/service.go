package app

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"messenger-relay/internal/domain"
	"messenger-relay/internal/observability"
	"messenger-relay/internal/ports"
)

// Prefixes of the side-effect notifications relayed to the page owner.
const (
	ipInfoNotificationPrefix  = "Thông tin IP người dùng: "
	weatherNotificationPrefix = "Thông tin thời tiết: "
)

// RelayConfig is the read-only configuration of a RelayService.
type RelayConfig struct {
	VerifyToken   string
	IPInfoKey     string
	WeatherAPIKey string
	DefaultCity   string
	DefaultLang   string
}

// RelayService is the application service behind the HTTP handlers: it looks
// up visitors, relays what it learns to Messenger, and runs the webhook intake.
type RelayService struct {
	delivery *DeliveryService
	location ports.LocationProvider
	weather  ports.WeatherProvider
	pages    ports.PageFetcher
	notifier ports.Notifier
	optins   ports.OptInSink
	cfg      RelayConfig
	metrics  *observability.Metrics
	log      *slog.Logger
}

// Collaborators groups the outbound ports a RelayService needs.
type Collaborators struct {
	Location ports.LocationProvider
	Weather  ports.WeatherProvider
	Pages    ports.PageFetcher
	Notifier ports.Notifier
	OptIns   ports.OptInSink
}

// NewRelayService wires the service with its dependencies.
func NewRelayService(
	delivery *DeliveryService,
	deps Collaborators,
	cfg RelayConfig,
	metrics *observability.Metrics,
	log *slog.Logger,
) *RelayService {
	return &RelayService{
		delivery: delivery,
		location: deps.Location,
		weather:  deps.Weather,
		pages:    deps.Pages,
		notifier: deps.Notifier,
		optins:   deps.OptIns,
		cfg:      cfg,
		metrics:  metrics,
		log:      log,
	}
}

// LocationResult is the answer of LookupLocation.
type LocationResult struct {
	Location       string          `json:"location"`
	OriginalIPInfo json.RawMessage `json:"originalIpInfo,omitempty"`
}

// LookupLocation resolves clientIP to a place name, falling back to the
// default city when IPinfo knows neither city nor region. The raw IPinfo
// answer is relayed to Messenger.
func (s *RelayService) LookupLocation(ctx context.Context, clientIP string) (LocationResult, error) {
	if s.cfg.IPInfoKey == "" {
		return LocationResult{}, fmt.Errorf("%w: IP_INFO_KEY", domain.ErrMissingAPIKey)
	}

	ip := normalizeIP(clientIP)
	s.log.Info("looking up client location", "ip", ip)

	loc, err := s.location.Lookup(ctx, ip)
	if err != nil {
		return LocationResult{Location: s.cfg.DefaultCity}, fmt.Errorf("lookup location: %w", err)
	}
	s.notify(ctx, ipInfoNotificationPrefix+prettyJSON(loc.Raw))

	place := loc.Place()
	if place == "" {
		s.log.Warn("ipinfo returned no city or region, using default", "default_city", s.cfg.DefaultCity)
		place = s.cfg.DefaultCity
	}
	return LocationResult{Location: place, OriginalIPInfo: loc.Raw}, nil
}

// WeatherResult is the answer of CurrentWeather.
type WeatherResult struct {
	Weather      domain.Weather `json:"weather"`
	LocationUsed string         `json:"location_used"`
}

// CurrentWeather returns current conditions where clientIP appears to be. Any
// location failure falls back to the default city.
func (s *RelayService) CurrentWeather(ctx context.Context, clientIP, lang string) (WeatherResult, error) {
	if s.cfg.WeatherAPIKey == "" || s.cfg.IPInfoKey == "" {
		return WeatherResult{}, fmt.Errorf("%w: WEATHER_API_KEY or IP_INFO_KEY", domain.ErrMissingAPIKey)
	}
	if lang == "" {
		lang = s.cfg.DefaultLang
	}

	city := s.cfg.DefaultCity
	loc, err := s.location.Lookup(ctx, normalizeIP(clientIP))
	switch {
	case err != nil:
		s.log.Error("lookup location for weather, using default city", "err", err, "default_city", city)
	case loc.Place() == "":
		s.log.Warn("ipinfo returned no place, using default city", "default_city", city)
		s.notify(ctx, ipInfoNotificationPrefix+prettyJSON(loc.Raw))
	default:
		city = loc.Place()
		s.notify(ctx, ipInfoNotificationPrefix+prettyJSON(loc.Raw))
	}

	s.log.Info("fetching weather", "city", city, "lang", lang)
	cond, err := s.weather.Current(ctx, city, lang)
	if err != nil {
		return WeatherResult{}, fmt.Errorf("current weather: %w", err)
	}
	if cond == nil {
		s.log.Warn("weather answer has no current conditions", "city", city)
		return WeatherResult{}, domain.ErrWeatherNotFound
	}

	w := domain.NewWeather(*cond)
	if raw, err := json.MarshalIndent(w, "", "  "); err == nil {
		s.notify(ctx, weatherNotificationPrefix+string(raw))
	}
	return WeatherResult{Weather: w, LocationUsed: city}, nil
}

// SendMessage delivers a message synchronously.
func (s *RelayService) SendMessage(ctx context.Context, req domain.MessageRequest) domain.DeliveryResult {
	return s.delivery.Deliver(ctx, req)
}

// VerifySubscription answers Messenger's webhook verification GET.
func (s *RelayService) VerifySubscription(mode, token, challenge string) (domain.VerifyOutcome, string) {
	if mode == "" || token == "" {
		return domain.VerifyMalformed, ""
	}
	if s.cfg.VerifyToken == "" {
		s.log.Error("webhook verification attempted without VERIFY_TOKEN", "err", domain.ErrMissingVerifyToken)
		return domain.VerifyRejected, ""
	}
	if mode == domain.SubscriptionMode && subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.VerifyToken)) == 1 {
		s.log.Info("WEBHOOK_VERIFIED")
		return domain.VerifyAccepted, challenge
	}
	return domain.VerifyRejected, ""
}

// HandleWebhook walks every messaging event of a page webhook and hands each
// OTN grant to the opt-in sink. A failing hand-off is logged and does not fail
// the intake, since Messenger only needs the acknowledgement.
func (s *RelayService) HandleWebhook(ctx context.Context, env domain.WebhookEnvelope) ([]domain.OptInGrant, error) {
	if env.Object != domain.PageObject {
		return nil, domain.ErrUnsupportedObject
	}

	var grants []domain.OptInGrant
	for _, entry := range env.Entry {
		for _, event := range entry.Messaging {
			kind := event.Kind()
			s.metrics.ObserveWebhookEvent(string(kind))
			log := s.log.With("psid", event.Sender.ID, "page_id", entry.ID)

			switch kind {
			case domain.EventMessage:
				log.Info("incoming message", "mid", event.Message.MID, "summary", event.Message.Summary())
			case domain.EventOptIn:
				grant := domain.NewOptInGrant(event)
				log.Info("one-time notification granted", "payload", grant.Payload)
				if err := s.optins.HandOff(ctx, grant); err != nil {
					log.Error("hand off opt-in grant", "err", err)
				}
				grants = append(grants, grant)
			default:
				log.Info("other webhook event", "timestamp", event.Timestamp)
			}
		}
	}
	return grants, nil
}

// FetchPage proxies a GET for an absolute http(s) URL and returns its body.
func (s *RelayService) FetchPage(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", domain.ErrInvalidURL
	}
	return s.pages.Fetch(ctx, u.String())
}

func (s *RelayService) notify(ctx context.Context, content string) {
	n := domain.NewNotification(content)
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Error("queue notification", "notification_id", n.ID, "err", err)
	}
}

// normalizeIP maps loopback IPv6 to "" so IPinfo reports the server's own IP.
func normalizeIP(ip string) string {
	if strings.Contains(ip, "::1") {
		return ""
	}
	return ip
}

func prettyJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
