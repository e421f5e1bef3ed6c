package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"messenger-relay/internal/adapters/provider/messenger"
	"messenger-relay/internal/adapters/queue/rabbitmq"
	"messenger-relay/internal/app"
	cfg "messenger-relay/internal/config"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	conf, err := cfg.Load()
	if err != nil {
		log.Error("load config", "err", err)
		os.Exit(1)
	}
	if conf.AMQPURL == "" {
		log.Error("AMQP_URL is required for relay-worker")
		os.Exit(1)
	}

	// ── Adapters ─────────────────────────────────────────────────────────────
	consumer, err := rabbitmq.NewConsumer(conf.AMQPURL, log)
	if err != nil {
		log.Error("connect rabbitmq consumer", "err", err)
		os.Exit(1)
	}
	defer consumer.Close()

	sendAPI := messenger.New(conf.GraphAPIURL, conf.PageAccessToken)

	// ── Application service ──────────────────────────────────────────────────
	delivery := app.NewDeliveryService(sendAPI, app.DeliveryConfig{
		AccessToken: conf.PageAccessToken,
		DefaultPSID: conf.PageScopedUser,
		Retry:       conf.Retry,
	}, nil, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("relay-worker started", "send_api", sendAPI.Endpoint())

	if err := consumer.Consume(ctx, delivery.HandleNotification); err != nil && ctx.Err() == nil {
		log.Error("consumer error", "err", err)
		os.Exit(1)
	}

	log.Info("shutting down relay-worker")
}
