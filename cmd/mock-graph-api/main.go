package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"messenger-relay/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// sendResponse is what the Send API answers on success.
type sendResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	addr := getenv("HTTP_ADDR", ":9090")
	// The first FAIL_FIRST calls per recipient answer 500, to exercise the
	// relay's retry loop.
	failFirst, _ := strconv.Atoi(getenv("FAIL_FIRST", "0"))
	calls := newCallCounter()

	fiberApp := fiber.New(fiber.Config{AppName: "mock-graph-api"})

	// POST /me/messages?access_token=... mimics the Messenger Send API.
	fiberApp.Post("/me/messages", func(c *fiber.Ctx) error {
		if c.Query("access_token") == "" {
			return c.Status(fiber.StatusBadRequest).JSON(graphError("An access token is required to request this resource.", 104))
		}

		var payload domain.OutboundPayload
		if err := c.BodyParser(&payload); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(graphError("invalid body", 100))
		}

		to := payload.Address()
		n := calls.next(to.Value)
		if n <= failFirst {
			log.Warn("mock graph api failing call", "call", n, "recipient_kind", string(to.Kind))
			return c.Status(fiber.StatusInternalServerError).JSON(graphError("An unexpected error has occurred. Please retry your request later.", 2))
		}

		recipient := payload.Recipient.ID
		if recipient == "" {
			recipient = uuid.NewString()
		}
		resp := sendResponse{RecipientID: recipient, MessageID: "m_" + uuid.NewString()}
		log.Info("mock graph api received message",
			"call", n,
			"recipient_kind", string(to.Kind),
			"tag", payload.Tag,
			"preview", domain.Preview(payload.Message.Text),
			"message_id", resp.MessageID,
		)
		return c.JSON(resp)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("mock-graph-api listening", "addr", addr, "fail_first", failFirst)
		if err := fiberApp.Listen(addr); err != nil {
			log.Error("fiber listen", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down mock-graph-api")
	_ = fiberApp.Shutdown()
}

// callCounter counts Send API calls per recipient address.
type callCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func newCallCounter() *callCounter {
	return &callCounter{calls: make(map[string]int)}
}

func (c *callCounter) next(recipient string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[recipient]++
	return c.calls[recipient]
}

func graphError(msg string, code int) fiber.Map {
	return fiber.Map{"error": fiber.Map{"message": msg, "type": "OAuthException", "code": code}}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
