package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"carrental/internal/app/middleware"
	appoutbox "carrental/internal/app/outbox"
	"carrental/internal/app/schedule"
	"carrental/internal/app/uow"
	domainuser "carrental/internal/domain/user"
	"carrental/internal/infra/config"
	"carrental/internal/infra/db/mongo"
	"carrental/internal/infra/inbox"
	infraoutbox "carrental/internal/infra/outbox"
	"carrental/internal/infra/storage/memory"
	"carrental/internal/infra/worker"
)

type inboxStore interface {
	Seen(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

type jobStore interface {
	schedule.Scheduler
	worker.DueRunner
}

// storage is the persistence selected by STORAGE_MODE.
type storage struct {
	factory     uow.UoWFactory
	users       domainuser.Repository
	idempotency middleware.IdempotencyStore
	outbox      appoutbox.Outbox
	settleInbox inboxStore
	notifyInbox inboxStore
	jobs        jobStore

	// exactly one of these is set
	memOutbox   *memory.Outbox
	outboxQueue *infraoutbox.Store

	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (*storage, error) {
	if cfg.StorageMode != config.StorageMongo {
		logger.Warn("using in-memory storage; data is lost on restart")
		factory := memory.NewFactory()
		box := memory.NewOutbox()
		idem := memory.NewIdempotencyStore()
		if cfg.IdempotencyTTL > 0 {
			idem.TTL = cfg.IdempotencyTTL
		}
		return &storage{
			factory:     factory,
			users:       factory.UserRepo,
			idempotency: idem,
			outbox:      box,
			settleInbox: memory.NewInbox(),
			notifyInbox: memory.NewInbox(),
			jobs:        memory.NewJobStore(),
			memOutbox:   box,
		}, nil
	}

	client, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	if err := client.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}
	idem, err := mongo.NewIdempotencyStore(ctx, client.DB, cfg.IdempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("idempotency store: %w", err)
	}
	queue, err := infraoutbox.NewStore(ctx, client.DB)
	if err != nil {
		return nil, fmt.Errorf("outbox store: %w", err)
	}
	settleInbox, err := inbox.NewStore(ctx, client.DB, "payments.webhook")
	if err != nil {
		return nil, fmt.Errorf("webhook inbox: %w", err)
	}
	notifyInbox, err := inbox.NewStore(ctx, client.DB, "notifications")
	if err != nil {
		return nil, fmt.Errorf("notification inbox: %w", err)
	}
	jobs := mongo.NewJobStore(client.DB)
	if cfg.JobLockTTL > 0 {
		jobs.LockTTL = cfg.JobLockTTL
	}
	if len(cfg.RetryBackoff) > 0 {
		jobs.Backoff = cfg.RetryBackoff
	}
	factory := mongo.NewFactory(client.DB)
	logger.Info("mongo storage ready", "database", cfg.MongoDB)
	return &storage{
		factory:     factory,
		users:       factory.UserRepo,
		idempotency: idem,
		outbox:      queue,
		settleInbox: settleInbox,
		notifyInbox: notifyInbox,
		jobs:        jobs,
		outboxQueue: queue,
		ping:        client.Ping,
		close: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return client.Close(ctx)
		},
	}, nil
}
