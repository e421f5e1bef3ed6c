package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"messenger-relay/internal/app"
	"messenger-relay/internal/domain"

	"github.com/gofiber/fiber/v2"
)

// Handler holds all HTTP handlers for the relay.
type Handler struct {
	svc         *app.RelayService
	defaultCity string
	log         *slog.Logger
}

// NewHandler wires up a Handler with its dependencies.
func NewHandler(svc *app.RelayService, defaultCity string, log *slog.Logger) *Handler {
	return &Handler{svc: svc, defaultCity: defaultCity, log: log}
}

// Register mounts all routes onto the given router.
func (h *Handler) Register(router fiber.Router) {
	router.Get("/get-location", h.GetLocation)
	router.Get("/get-weather", h.GetWeather)
	router.Get("/get-html", h.GetHTML)
	router.Post("/send-message", h.SendMessage)
	h.RegisterWebhook(router)
}

// RegisterWebhook mounts only the Messenger webhook.
func (h *Handler) RegisterWebhook(router fiber.Router) {
	router.Get("/webhook", h.VerifyWebhook)
	router.Post("/webhook", h.ReceiveWebhook)
}

// ── Send API ──────────────────────────────────────────────────────────────────

type sendMessageRequest struct {
	Message           string `json:"message"`
	OneTimeNotifToken string `json:"one_time_notif_token"`
}

// SendMessage relays a text message to Messenger and waits for the outcome.
//
// POST /send-message
// Body: { "message": "...", "one_time_notif_token": "..." }
func (h *Handler) SendMessage(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid request body"})
	}

	res := h.svc.SendMessage(c.UserContext(), domain.MessageRequest{
		Content:        req.Message,
		RecipientToken: req.OneTimeNotifToken,
	})
	return c.Status(deliveryStatus(res)).JSON(res)
}

// deliveryStatus maps configuration and validation failures to 400 and every
// other failure to 500.
func deliveryStatus(res domain.DeliveryResult) int {
	if res.OK() {
		return fiber.StatusOK
	}
	switch res.Failure.Kind {
	case domain.KindConfiguration, domain.KindValidation:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// ── Location & weather ────────────────────────────────────────────────────────

// GetLocation reports where the caller appears to be.
//
// GET /get-location
func (h *Handler) GetLocation(c *fiber.Ctx) error {
	res, err := h.svc.LookupLocation(c.UserContext(), ClientIP(c))
	if err != nil {
		h.log.Error("get location", "err", err)
		if errors.Is(err, domain.ErrMissingAPIKey) {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "server configuration error: IPinfo API key is missing"})
		}
		var upstream *domain.UpstreamStatusError
		if errors.As(err, &upstream) {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": fmt.Sprintf("IPinfo API request failed with status %d", upstream.StatusCode)})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "internal error while looking up location", "location": h.defaultCity})
	}

	return c.JSON(fiber.Map{"success": true, "location": res.Location, "originalIpInfo": res.OriginalIPInfo})
}

// GetWeather reports current weather where the caller appears to be.
//
// GET /get-weather?lang=vi
func (h *Handler) GetWeather(c *fiber.Ctx) error {
	res, err := h.svc.CurrentWeather(c.UserContext(), ClientIP(c), c.Query("lang"))
	if err != nil {
		h.log.Error("get weather", "err", err)
		var upstream *domain.UpstreamStatusError
		switch {
		case errors.Is(err, domain.ErrMissingAPIKey):
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "server configuration error: API keys are missing"})
		case errors.Is(err, domain.ErrWeatherNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "no weather data found for this city"})
		case errors.As(err, &upstream):
			return c.Status(upstream.StatusCode).JSON(fiber.Map{"success": false, "error": fmt.Sprintf("Weather API request failed with status %d", upstream.StatusCode)})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "internal error while fetching weather"})
		}
	}

	return c.JSON(fiber.Map{"success": true, "weather": res.Weather, "location_used": res.LocationUsed})
}

// GetHTML proxies a page fetch for the browser.
//
// GET /get-html?url=https://...
func (h *Handler) GetHTML(c *fiber.Ctx) error {
	target := c.Query("url")
	if target == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing url parameter"})
	}

	html, err := h.svc.FetchPage(c.UserContext(), target)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidURL) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		h.log.Error("get html", "url", target, "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not fetch html", "details": err.Error()})
	}

	c.Type("html", "utf-8")
	return c.SendString(html)
}

// ── Webhook ───────────────────────────────────────────────────────────────────

// VerifyWebhook answers the subscription challenge.
//
// GET /webhook?hub.mode=subscribe&hub.verify_token=...&hub.challenge=...
func (h *Handler) VerifyWebhook(c *fiber.Ctx) error {
	outcome, challenge := h.svc.VerifySubscription(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)

	switch outcome {
	case domain.VerifyAccepted:
		return c.Status(fiber.StatusOK).SendString(challenge)
	case domain.VerifyRejected:
		return c.SendStatus(fiber.StatusForbidden)
	default:
		return c.SendStatus(fiber.StatusBadRequest)
	}
}

// ReceiveWebhook accepts messaging events.
//
// POST /webhook
// Body: { "object": "page", "entry": [ { "messaging": [ ... ] } ] }
func (h *Handler) ReceiveWebhook(c *fiber.Ctx) error {
	var env domain.WebhookEnvelope
	if err := json.Unmarshal(c.Body(), &env); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid webhook body"})
	}

	if _, err := h.svc.HandleWebhook(c.UserContext(), env); err != nil {
		if errors.Is(err, domain.ErrUnsupportedObject) {
			return c.SendStatus(fiber.StatusNotFound)
		}
		h.log.Error("handle webhook", "err", err)
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.Status(fiber.StatusOK).SendString("EVENT_RECEIVED")
}

// ClientIP is the visitor address as reported by the edge proxy: X-Real-IP,
// else the first X-Forwarded-For hop. Empty when neither is set.
func ClientIP(c *fiber.Ctx) string {
	if ip := strings.TrimSpace(c.Get("X-Real-IP")); ip != "" {
		return ip
	}
	fwd := c.Get("X-Forwarded-For")
	if first, _, found := strings.Cut(fwd, ","); found {
		return strings.TrimSpace(first)
	}
	return strings.TrimSpace(fwd)
}
