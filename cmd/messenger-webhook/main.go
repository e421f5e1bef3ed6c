package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"messenger-relay/internal/adapters/queue/rabbitmq"
	"messenger-relay/internal/app"
	cfg "messenger-relay/internal/config"
	"messenger-relay/internal/middleware"
	"messenger-relay/internal/observability"
	"messenger-relay/internal/ports"
	"messenger-relay/internal/transport"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	if err := run(log); err != nil {
		log.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	conf, err := cfg.Load()
	if err != nil {
		return err
	}
	if conf.VerifyToken == "" {
		log.Warn("VERIFY_TOKEN is not set, every verification will be rejected")
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	var optins ports.OptInSink = app.NewLogOptInSink(log)
	if conf.AMQPURL != "" {
		publisher, err := rabbitmq.NewPublisher(conf.AMQPURL)
		if err != nil {
			return errors.New("failed to connect to rabbitmq: " + err.Error())
		}
		defer publisher.Close()
		optins = publisher
	}

	svc := app.NewRelayService(nil, app.Collaborators{OptIns: optins}, app.RelayConfig{
		VerifyToken: conf.VerifyToken,
	}, metrics, log)

	fiberApp := fiber.New(fiber.Config{
		AppName:               "messenger-webhook",
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
		IdleTimeout:           60 * time.Second,
		ServerHeader:          "",
		BodyLimit:             512 * 1024, // 512KB - webhooks are small
	})

	fiberApp.Use(recover.New())
	fiberApp.Use(logger.New())
	fiberApp.Use(middleware.RequestIDMiddleware())
	fiberApp.Use(middleware.SecurityHeaders())

	transport.RegisterOps(fiberApp, reg)

	handler := transport.NewHandler(svc, conf.DefaultCity, log)
	handler.RegisterWebhook(fiberApp)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		log.Info("messenger-webhook started", "addr", conf.WebhookAddr)
		if err := fiberApp.Listen(conf.WebhookAddr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		return errors.New("failed to shutdown gracefully: " + err.Error())
	}

	log.Info("messenger-webhook stopped gracefully")
	return nil
}
