package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"line-status-backend/internal/model"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func change(lineID, name string, from, to model.LineStatus) model.StatusChange {
	return model.StatusChange{LineID: lineID, LineName: name, Previous: from, Requested: to, Status: to, At: time.Now()}
}

func created() *http.Response {
	return &http.Response{StatusCode: http.StatusCreated, Body: io.NopCloser(bytes.NewBufferString(""))}
}

const subscriptionsQuery = `SELECT .* FROM "push_subscriptions".*JOIN .*subscription_line_mapping.*WHERE .*slm\.line_id = \$1`

func TestWorkerPool_LineStatusChanged(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{}, zap.NewNop())

	wp.LineStatusChanged(context.Background(), change("L1", "Line 1", model.LineActive, model.LineActive))
	assert.Len(t, wp.Jobs(), 0, "unchanged status is not queued")

	wp.LineStatusChanged(context.Background(), change("L1", "Line 1", model.LineActive, model.LineStopped))
	select {
	case job := <-wp.Jobs():
		assert.Equal(t, "L1", job.LineID)
		assert.Equal(t, model.LineStopped, job.Status)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_DropsWhenQueueFull(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{}, zap.NewNop())

	for i := 0; i < queueFactor+5; i++ {
		wp.LineStatusChanged(context.Background(), change("L1", "Line 1", model.LineStopped, model.LineActive))
	}
	assert.Len(t, wp.Jobs(), queueFactor)
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, gormDB, &webpush.Options{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	t.Run("sends notification for one subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.Equal(t, "Line Assembly 1 is now active", string(payload))
				wg.Done()
				return created(), nil
			},
		}

		mock.ExpectQuery(subscriptionsQuery).
			WithArgs("L1").
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow("https://example.com/push", "test_p256dh", "test_auth", time.Now()))

		wp.LineStatusChanged(ctx, change("L1", "Assembly 1", model.LineStopped, model.LineActive))
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusGone,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(subscriptionsQuery).
			WithArgs("L2").
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow("https://example.com/expired", "test_p256dh_expired", "test_auth_expired", time.Now()))

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
			WithArgs("https://example.com/expired").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		wp.LineStatusChanged(ctx, change("L2", "Line 2", model.LineActive, model.LineIssue))

		assert.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("looks up the line name when missing", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "Line Packaging is now maintenance", string(payload))
				wg.Done()
				return created(), nil
			},
		}

		mock.ExpectQuery(subscriptionsQuery).
			WithArgs("L3").
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow("https://example.com/lookup", "k", "a", time.Now()))
		mock.ExpectQuery(`SELECT "name" FROM "lines" WHERE id = \$1 ORDER BY "lines"."id" LIMIT \$[0-9]+`).
			WithArgs("L3", 1).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Packaging"))

		wp.LineStatusChanged(ctx, change("L3", "", model.LineActive, model.LineMaintenance))
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("falls back to line ID when lookup fails", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/fallback", sub.Endpoint)
				assert.Equal(t, "Line L4 is now stopped", string(payload))
				wg.Done()
				return created(), nil
			},
		}

		mock.ExpectQuery(subscriptionsQuery).
			WithArgs("L4").
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow("https://example.com/fallback", "k", "a", time.Now()))
		mock.ExpectQuery(`SELECT "name" FROM "lines" WHERE id = \$1 ORDER BY "lines"."id" LIMIT \$[0-9]+`).
			WithArgs("L4", 1).
			WillReturnError(fmt.Errorf("line not found"))

		wp.LineStatusChanged(ctx, change("L4", "", model.LineActive, model.LineStopped))
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
