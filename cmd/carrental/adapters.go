package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"carrental/internal/app/policies"
	"carrental/internal/domain/availability"
	"carrental/internal/infra/calendar/google"
	"carrental/internal/infra/config"
	"carrental/internal/infra/db/postgres"
	redislock "carrental/internal/infra/lock/redis"
	"carrental/internal/infra/notify/email"
	"carrental/internal/infra/obs"
	"carrental/internal/infra/payments/stripe"
	"carrental/internal/infra/storage/memory"
	"carrental/internal/infra/storage/s3"
)

// adapters are the outbound integrations. Each falls back to an in-process
// implementation when its settings are empty.
type adapters struct {
	gateway  policies.PaymentGateway
	ledger   policies.PaymentLedger
	invoices policies.InvoiceArchive
	calendar policies.Calendar
	notifier policies.Notifier
	webhooks policies.WebhookParser
	locker   availability.Locker
	redis    *goredis.Client

	checks  map[string]obs.Check
	closers []func(ctx context.Context) error
}

var errWebhookSecretMissing = errors.New("STRIPE_WEBHOOK_SECRET is required outside dev")

func openAdapters(ctx context.Context, cfg config.Config, logger *slog.Logger) (*adapters, error) {
	a := &adapters{checks: map[string]obs.Check{}}

	if cfg.StripeSecretKey != "" {
		gw, err := stripe.NewGateway(cfg.StripeSecretKey, nil)
		if err != nil {
			return nil, fmt.Errorf("stripe gateway: %w", err)
		}
		a.gateway = gw
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set; payments are simulated")
		a.gateway = memory.NewGateway()
	}
	switch {
	case cfg.StripeWebhookSecret != "":
		a.webhooks = stripe.WebhookParser{Secret: cfg.StripeWebhookSecret}
	case cfg.IsDev():
		a.webhooks = memory.WebhookParser{}
	default:
		return nil, errWebhookSecretMissing
	}

	if cfg.PostgresDSN != "" {
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		ledger := postgres.NewLedger(db)
		if err := ledger.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ledger schema: %w", err)
		}
		a.ledger = ledger
		a.checks["postgres"] = db.PingContext
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
	} else {
		a.ledger = memory.NewLedger()
	}

	if cfg.S3Endpoint != "" {
		archive, err := s3.NewInvoiceArchive(s3.Options{
			Endpoint:  cfg.S3Endpoint,
			UseSSL:    cfg.S3UseSSL,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("invoice archive: %w", err)
		}
		a.invoices = archive
	} else {
		a.invoices = memory.NewInvoiceArchive()
	}

	if cfg.GoogleCalendarID != "" {
		cal, err := google.New(ctx, cfg.GoogleCalendarID, cfg.GoogleCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("google calendar: %w", err)
		}
		a.calendar = cal
	}

	if cfg.SMTPHost != "" {
		n, err := email.NewNotifier(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("email notifier: %w", err)
		}
		a.notifier = n
	} else {
		a.notifier = memory.NewNotifier()
	}

	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.redis = rdb
		a.locker = redislock.NewLocker(rdb, cfg.BookingLockTTL, logger)
		a.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
	} else {
		a.locker = availability.NewKeyedMutex()
	}
	return a, nil
}
