package activity

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// HTTPSource asks a remote issue/task service for a line's snapshot at
// GET {base}/lines/{id}/activity.
type HTTPSource struct {
	client *resty.Client
	log    *zap.Logger
}

// NewHTTPSource creates a source calling baseURL.
func NewHTTPSource(baseURL string, timeout time.Duration, log *zap.Logger) *HTTPSource {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Accept", "application/json")

	return &HTTPSource{client: client, log: log}
}

// Snapshot fetches the snapshot of a line.
func (s *HTTPSource) Snapshot(ctx context.Context, lineID string) (Snapshot, error) {
	var snap Snapshot
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&snap).
		Get("/lines/" + url.PathEscape(lineID) + "/activity")
	if err != nil {
		s.log.Error("activity request failed", zap.String("line_id", lineID), zap.Error(err))
		return Snapshot{}, fmt.Errorf("failed to fetch activity for line %s: %w", lineID, err)
	}
	if resp.IsError() {
		s.log.Warn("activity service returned error",
			zap.String("line_id", lineID),
			zap.Int("status_code", resp.StatusCode()))
		return Snapshot{}, fmt.Errorf("activity service returned %d for line %s", resp.StatusCode(), lineID)
	}
	return snap, nil
}
