package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	bookingapp "carrental/internal/app/handlers/booking"
	"carrental/internal/app/handlers/lifecycle"
	"carrental/internal/app/handlers/notifications"
	appoutbox "carrental/internal/app/outbox"
	"carrental/internal/app/payments"
	"carrental/internal/app/services/auth"
	"carrental/internal/domain/timezone"
	"carrental/internal/infra/broker/kafka"
	"carrental/internal/infra/config"
	ginserver "carrental/internal/infra/http/gin"
	"carrental/internal/infra/obs"
	infraoutbox "carrental/internal/infra/outbox"
	"carrental/internal/infra/security"
	"carrental/internal/infra/worker"
)

const devJWTSecret = "carrental-dev-secret"

type application struct {
	handlers ginserver.Handlers
	health   obs.HealthHandlers
	workers  map[string]func(ctx context.Context) error
	closers  []func(ctx context.Context) error
}

func (a *application) close(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{workers: map[string]func(ctx context.Context) error{}}

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if store.close != nil {
		app.closers = append(app.closers, store.close)
	}
	ext, err := openAdapters(ctx, cfg, logger)
	if err != nil {
		app.close(logger)
		return nil, err
	}
	app.closers = append(app.closers, ext.closers...)

	tz := timezone.NewNormalizer(cfg.DefaultTimezone)
	encoder := appoutbox.JSONEventEncoder{IDGenerator: newID}

	deps := bookingapp.Deps{
		UoWFactory: store.factory,
		Locker:     ext.locker,
		Scheduler:  store.jobs,
		Payments: &payments.Coordinator{
			Gateway:  ext.gateway,
			Ledger:   ext.ledger,
			Invoices: ext.invoices,
			Logger:   logger,
			Now:      utcNow,
		},
		Calendar:     ext.calendar,
		Timezones:    tz,
		Outbox:       store.outbox,
		Encoder:      encoder,
		Logger:       logger,
		Clock:        utcNow,
		NewID:        newID,
		ReminderLead: cfg.ReminderLead,
	}
	commandBus := registerCommands(deps, store.settleInbox, store, logger)
	queryBus := registerQueries(bookingapp.QueryDeps{UoWFactory: store.factory, Timezones: tz}, logger)

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		logger.Warn("JWT_SECRET not set; using the development secret")
		jwtSecret = devJWTSecret
	}
	authSvc := &auth.Service{
		Users:    store.users,
		Verifier: security.NewJWTVerifier(jwtSecret, cfg.JWTIssuer),
		Logger:   logger,
		Now:      utcNow,
	}
	limiter, err := ginserver.NewRateLimiter(cfg.RateLimit, ext.redis, logger)
	if err != nil {
		app.close(logger)
		return nil, err
	}
	app.handlers = ginserver.Handlers{
		Booking:        ginserver.BookingHandler{Commands: commandBus, Queries: queryBus, Logger: logger},
		Vehicle:        ginserver.VehicleHandler{Commands: commandBus, Queries: queryBus, Logger: logger},
		Group:          ginserver.GroupHandler{Commands: commandBus, Queries: queryBus, Logger: logger},
		Me:             ginserver.MeHandler{Commands: commandBus, Queries: queryBus, Logger: logger},
		Webhook:        &ginserver.WebhookHandler{Commands: commandBus, Parser: ext.webhooks, Logger: logger},
		Timezones:      ginserver.Timezones(utcNow),
		AuthMiddleware: ginserver.AuthMiddleware{Service: authSvc, Logger: logger}.Handle,
		WriteLimiter:   limiter,
	}
	checks := ext.checks
	if store.ping != nil {
		checks["mongo"] = store.ping
	}
	app.health = obs.HealthHandlers{Checks: checks, Timeout: 2 * time.Second}

	lifecycleHandlers := &lifecycle.Handlers{
		UoWFactory: store.factory,
		Notifier:   ext.notifier,
		Outbox:     store.outbox,
		Encoder:    encoder,
		Timezones:  tz,
		Logger:     logger,
		Clock:      utcNow,
	}
	jobs := &worker.JobRunner{
		Store:    store.jobs,
		Handler:  lifecycleHandlers.Router(),
		Interval: cfg.JobPollInterval,
		Logger:   logger,
		Clock:    utcNow,
	}
	app.workers["jobs"] = jobs.Run

	sweeper := worker.NewSweeper(commandBus, cfg.SweepSchedule, cfg.PaymentGrace, logger)
	if err := sweeper.Start(); err != nil {
		app.close(logger)
		return nil, err
	}
	app.closers = append(app.closers, func(ctx context.Context) error {
		sweeper.Stop(ctx)
		return nil
	})

	notifier := &notifications.Handler{
		UoWFactory: store.factory,
		Notifier:   ext.notifier,
		Inbox:      store.notifyInbox,
		Timezones:  tz,
		Logger:     logger,
	}
	if err := wireEvents(app, cfg, store, notifier, logger); err != nil {
		app.close(logger)
		return nil, err
	}
	return app, nil
}

// wireEvents routes committed events to the notification handler: in process
// for memory storage, through the outbox relay otherwise, via Kafka when
// brokers are configured.
func wireEvents(app *application, cfg config.Config, store *storage, notifier *notifications.Handler, logger *slog.Logger) error {
	if store.memOutbox != nil {
		store.memOutbox.Subscribe(func(ctx context.Context, rec appoutbox.EventRecord) {
			if err := notifier.Handle(ctx, rec); err != nil {
				logger.Warn("notification failed", "event_id", rec.ID, "event", rec.Name, "error", err)
			}
		})
		return nil
	}
	if store.outboxQueue == nil {
		return errors.New("outbox queue missing")
	}

	var producer infraoutbox.Producer = infraoutbox.DirectProducer{Handlers: []infraoutbox.RecordHandler{notifier.Handle}}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := kafka.NewProducer(cfg.KafkaBrokers, "carrental", nil)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		app.closers = append(app.closers, func(context.Context) error { return kp.Close() })
		producer = kp

		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, nil,
			kafka.RecordHandler{Next: notifier.Handle, Logger: logger}, logger)
		if err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		app.closers = append(app.closers, func(context.Context) error { return consumer.Close() })
		topics := []string{infraoutbox.TopicFor(cfg.KafkaTopicPrefix, "booking.created")}
		app.workers["notifications"] = func(ctx context.Context) error { return consumer.Run(ctx, topics) }
	}

	relay := &infraoutbox.Worker{
		Store:       store.outboxQueue,
		Producer:    producer,
		Interval:    cfg.OutboxPollInterval,
		TopicPrefix: cfg.KafkaTopicPrefix,
		Source:      infraoutbox.DefaultSource,
		Backoff:     cfg.RetryBackoff,
		Logger:      logger,
		Now:         utcNow,
	}
	app.workers["outbox"] = relay.Run
	return nil
}
