package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"messenger-relay/internal/adapters/provider/ipinfo"
	"messenger-relay/internal/adapters/provider/messenger"
	"messenger-relay/internal/adapters/provider/weatherapi"
	"messenger-relay/internal/adapters/provider/webpage"
	"messenger-relay/internal/adapters/queue/rabbitmq"
	"messenger-relay/internal/app"
	cfg "messenger-relay/internal/config"
	"messenger-relay/internal/middleware"
	"messenger-relay/internal/observability"
	"messenger-relay/internal/transport"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
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
	if missing := conf.Missing("PAGE_ACCESS_TOKEN", "PAGE_SCOPED_USER_ID", "VERIFY_TOKEN", "IP_INFO_KEY", "WEATHER_API_KEY"); len(missing) > 0 {
		log.Warn("configuration incomplete, affected routes will fail", "missing", missing)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	// ── Adapters ─────────────────────────────────────────────────────────────
	sendAPI := messenger.New(conf.GraphAPIURL, conf.PageAccessToken)
	delivery := app.NewDeliveryService(sendAPI, app.DeliveryConfig{
		AccessToken: conf.PageAccessToken,
		DefaultPSID: conf.PageScopedUser,
		Retry:       conf.Retry,
	}, metrics, log)

	deps := app.Collaborators{
		Location: ipinfo.New(conf.IPInfoURL, conf.IPInfoKey),
		Weather:  weatherapi.New(conf.WeatherAPIURL, conf.WeatherAPIKey),
		Pages:    webpage.New(),
	}

	var inline *app.InlineNotifier
	if conf.AMQPURL != "" {
		publisher, err := rabbitmq.NewPublisher(conf.AMQPURL)
		if err != nil {
			return errors.New("failed to connect to rabbitmq: " + err.Error())
		}
		defer publisher.Close()
		deps.Notifier, deps.OptIns = publisher, publisher
	} else {
		log.Info("AMQP_URL not set, relaying notifications in-process")
		inline = app.NewInlineNotifier(delivery, log)
		deps.Notifier, deps.OptIns = inline, app.NewLogOptInSink(log)
	}

	// ── Application service ──────────────────────────────────────────────────
	svc := app.NewRelayService(delivery, deps, app.RelayConfig{
		VerifyToken:   conf.VerifyToken,
		IPInfoKey:     conf.IPInfoKey,
		WeatherAPIKey: conf.WeatherAPIKey,
		DefaultCity:   conf.DefaultCity,
		DefaultLang:   conf.DefaultLang,
	}, metrics, log)

	fiberApp := fiber.New(fiber.Config{
		AppName:               "relay-api",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// A send can take ~6s of retry delay on top of four calls
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		ServerHeader: "",
		BodyLimit:    1 * 1024 * 1024, // 1MB
	})

	fiberApp.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	fiberApp.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${method} ${path} ${latency}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	fiberApp.Use(middleware.RequestIDMiddleware())
	fiberApp.Use(middleware.SecurityHeaders())
	fiberApp.Use(middleware.CORSConfig(conf.AllowedOrigins))
	fiberApp.Use(middleware.Preflight())

	transport.RegisterOps(fiberApp, reg)

	handler := transport.NewHandler(svc, conf.DefaultCity, log)
	api := fiberApp.Group("/api")
	handler.Register(api)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		log.Info("relay-api started", "addr", conf.HTTPAddr, "send_api", sendAPI.Endpoint())
		if err := fiberApp.Listen(conf.HTTPAddr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		return errors.New("failed to shutdown gracefully: " + err.Error())
	}
	if inline != nil {
		inline.Wait()
	}

	log.Info("relay-api stopped gracefully")
	return nil
}
