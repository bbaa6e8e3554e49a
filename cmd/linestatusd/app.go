package main

import (
	"context"
	"fmt"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"line-status-backend/config"
	"line-status-backend/internal/activity"
	"line-status-backend/internal/db"
	"line-status-backend/internal/events"
	"line-status-backend/internal/ledger"
	"line-status-backend/internal/logging"
	"line-status-backend/internal/model"
	"line-status-backend/internal/mw"
	"line-status-backend/internal/notification"
	"line-status-backend/internal/oee"
	"line-status-backend/internal/shift"
	"line-status-backend/internal/status"
	"line-status-backend/internal/store"
)

const serviceName = "linestatusd"

// app wires every component from the configuration.
type app struct {
	cfg        *config.Config
	log        *zap.Logger
	db         *gorm.DB
	store      store.Store
	cal        *shift.Calendar
	controller *status.Controller
	aggregator *oee.Aggregator
	responses  *mw.ResponseCache
	webpush    *webpush.Options
	workers    *notification.WorkerPool
	redis      *redis.Client
}

func loadConfig(path string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	log.Info("configuration loaded", zap.String("path", path))
	return cfg, log, nil
}

// newApp opens the database, provisions the configured lines and builds the
// controller and aggregator. Push notifications are only wired when withPush
// is set, since their workers need a running process.
func newApp(ctx context.Context, path string, withPush bool) (*app, error) {
	cfg, log, err := loadConfig(path)
	if err != nil {
		return nil, err
	}

	gormDB, err := db.Init(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	cal, err := shift.FromConfig(&cfg.Calendar)
	if err != nil {
		return nil, fmt.Errorf("invalid calendar: %w", err)
	}

	st := store.NewGormStore(gormDB)
	lines := make([]model.Line, 0, len(cfg.Lines))
	for _, l := range cfg.Lines {
		lines = append(lines, model.Line{ID: l.ID, Name: l.Name})
	}
	if err := st.Provision(ctx, lines, time.Now()); err != nil {
		return nil, err
	}
	log.Info("lines provisioned", zap.Int("count", len(lines)))

	a := &app{cfg: cfg, log: log, db: gormDB, store: st, cal: cal}

	a.responses = mw.NewResponseCache(time.Duration(cfg.Server.CacheTTLSeconds)*time.Second, log)
	notifiers := []status.Notifier{a.responses}
	if cfg.Redis.Addr != "" {
		a.redis = events.NewRedisClient(&cfg.Redis)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			log.Warn("redis is unreachable, status events will be dropped until it recovers", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		notifiers = append(notifiers, events.NewRedisPublisher(a.redis, cfg.Redis.Stream, log))
	}

	a.webpush = &webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}
	if withPush {
		if cfg.Push.Enabled() {
			a.workers = notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, a.webpush, log)
			notifiers = append(notifiers, a.workers)
		} else {
			log.Warn("VAPID keys are not configured, push notifications are disabled")
		}
	}

	source, err := activity.NewSource(&cfg.Activity, gormDB, log)
	if err != nil {
		return nil, err
	}

	rates := oee.NewRateTable(cfg.Lines)
	led := ledger.New(gormDB, log)
	a.controller = status.New(cal, st, led, rates, log,
		status.WithActivitySource(source),
		status.WithNotifiers(notifiers...),
		status.WithStoreTimeout(cfg.Scheduler.StoreTimeout),
	)
	a.aggregator = oee.NewAggregator(cal, st, led, rates, cfg.Calendar.PlannedMinutes, cfg.Calendar.ProductionHours, log,
		oee.WithQueryTimeout(cfg.Scheduler.StoreTimeout),
	)
	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.log.Sync()
}
