package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"line-status-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// queueFactor sizes the job buffer relative to the worker count.
const queueFactor = 16

// WorkerPool sends push notifications for line status changes.
type WorkerPool struct {
	size    int
	jobs    chan model.StatusChange
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	log     *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, log *zap.Logger) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan model.StatusChange, size*queueFactor),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     log,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug("notification worker started", zap.Int("worker", id))
	for {
		select {
		case change := <-wp.jobs:
			wp.sendNotificationsForLine(ctx, change)
		case <-ctx.Done():
			wp.log.Debug("notification worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// LineStatusChanged queues a notification for a real status change. When the
// queue is full the change is dropped.
func (wp *WorkerPool) LineStatusChanged(_ context.Context, change model.StatusChange) {
	if !change.Changed() {
		return
	}
	select {
	case wp.jobs <- change:
	default:
		wp.log.Warn("notification queue full, dropping status change", zap.String("line_id", change.LineID))
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan model.StatusChange {
	return wp.jobs
}

// Message is the push payload for a status change.
func Message(lineLabel string, status model.LineStatus) string {
	return fmt.Sprintf("Line %s is now %s", lineLabel, status)
}

// sendNotificationsForLine notifies every subscription following the line.
func (wp *WorkerPool) sendNotificationsForLine(ctx context.Context, change model.StatusChange) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_line_mapping slm ON slm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("slm.line_id = ?", change.LineID).
		Find(&subscriptions).Error
	if err != nil {
		wp.log.Error("failed to fetch subscriptions", zap.String("line_id", change.LineID), zap.Error(err))
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	label := change.LineName
	if label == "" {
		label = change.LineID
		var line model.Line
		if err := wp.db.WithContext(ctx).
			Select("name").
			First(&line, "id = ?", change.LineID).Error; err != nil {
			wp.log.Warn("failed to fetch line name", zap.String("line_id", change.LineID), zap.Error(err))
		} else if line.Name != "" {
			label = line.Name
		}
	}

	wp.log.Info("sending status notifications",
		zap.String("line_id", change.LineID),
		zap.Int("subscriptions", len(subscriptions)))

	message := Message(label, change.Status)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.Error("failed to send notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		wp.log.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.log.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}
