package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"line-status-backend/config"
	"line-status-backend/internal/db/dbtest"
	"line-status-backend/internal/ledger"
	"line-status-backend/internal/model"
	"line-status-backend/internal/mw"
	"line-status-backend/internal/oee"
	"line-status-backend/internal/shift"
	"line-status-backend/internal/status"
	"line-status-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func setupRouter(t *testing.T, webpushOptions *webpush.Options) (*gin.Engine, *Handler) {
	t.Helper()
	gormDB := dbtest.Open(t)
	log := zap.NewNop()

	cal, err := shift.New([]shift.Shift{
		{Name: "morning", Start: 8 * 60, End: 12 * 60},
		{Name: "afternoon", Start: 13 * 60, End: 17 * 60},
	}, shift.Window{Start: 12 * 60, End: 13 * 60}, time.UTC)
	require.NoError(t, err)

	lineCfg := []config.LineConfig{
		{ID: "L1", Name: "Line 1", RateMin: 900, RateMax: 1100},
		{ID: "L2", Name: "Line 2", RateMin: 500, RateMax: 700},
	}
	st := store.NewGormStore(gormDB)
	require.NoError(t, st.Provision(context.Background(), []model.Line{
		{ID: "L1", Name: "Line 1"},
		{ID: "L2", Name: "Line 2"},
	}, testNow.Add(-time.Hour)))

	led := ledger.New(gormDB, log)
	rates := oee.NewRateTable(lineCfg)
	responses := mw.NewResponseCache(30*time.Second, log)
	ctrl := status.New(cal, st, led, rates, log, status.WithNotifiers(responses))
	agg := oee.NewAggregator(cal, st, led, rates, 240, nil, log)

	h := NewHandler(ctrl, agg, gormDB, webpushOptions, log)
	h.now = func() time.Time { return testNow }

	r := NewRouter(h, &config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTLSeconds: 30}, responses)
	return r, h
}

func do(r http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestLines(t *testing.T) {
	r, _ := setupRouter(t, nil)

	w := do(r, http.MethodGet, "/api/lines", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var lines []model.Line
	decode(t, w, &lines)
	require.Len(t, lines, 2)
	assert.Equal(t, "L1", lines[0].ID)
	assert.Equal(t, model.LineStopped, lines[0].Status)

	w = do(r, http.MethodGet, "/api/lines/L2", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/lines/L9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPutLineStatus(t *testing.T) {
	r, h := setupRouter(t, nil)

	w := do(r, http.MethodPut, "/api/lines/L1/status", gin.H{"status": "active"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var line model.Line
	decode(t, w, &line)
	assert.Equal(t, model.LineActive, line.Status)

	w = do(r, http.MethodPut, "/api/lines/L1/status", gin.H{"status": "running"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPut, "/api/lines/L1/status", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())

	w = do(r, http.MethodPut, "/api/lines/L9/status", gin.H{"status": "active"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Lunch forces the line to stop.
	h.now = func() time.Time { return testNow.Add(3*time.Hour + 30*time.Minute) }
	w = do(r, http.MethodPut, "/api/lines/L2/status", gin.H{"status": "active"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &line)
	assert.Equal(t, model.LineStopped, line.Status)
}

func TestLineActivity(t *testing.T) {
	r, _ := setupRouter(t, nil)

	w := do(r, http.MethodPost, "/api/lines/L1/activity", gin.H{"hasOpenIssue": true, "hasActiveStandardTask": true})
	require.Equal(t, http.StatusOK, w.Code)
	var line model.Line
	decode(t, w, &line)
	assert.Equal(t, model.LineIssue, line.Status)

	w = do(r, http.MethodPost, "/api/lines/L1/recompute", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestReports(t *testing.T) {
	r, h := setupRouter(t, nil)

	w := do(r, http.MethodPut, "/api/lines/L1/status", gin.H{"status": "active"})
	require.Equal(t, http.StatusOK, w.Code)
	h.now = func() time.Time { return testNow.Add(30 * time.Minute) }

	w = do(r, http.MethodGet, "/api/stopped-time", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st oee.StoppedTime
	decode(t, w, &st)
	assert.Equal(t, 2, st.TotalLines)
	assert.Equal(t, 1, st.CurrentlyStoppedLineCount)
	// L1 was stopped 08:00-09:00, L2 is still stopped since 08:00.
	assert.Equal(t, 60+90, st.CurrentShift)

	w = do(r, http.MethodGet, "/api/oee", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rep oee.Report
	decode(t, w, &rep)
	require.Len(t, rep.Lines, 2)
	assert.Equal(t, 2, rep.Overall.LineCount)
	assert.Positive(t, rep.Lines[0].ActualOutput)

	w = do(r, http.MethodGet, "/api/production/hourly?line_id=L1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var series oee.Series
	decode(t, w, &series)
	assert.Equal(t, "L1", series.LineID)
	assert.Equal(t, rep.Lines[0].ActualOutput, series.Total)

	w = do(r, http.MethodGet, "/api/reports/daily.xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "line-report-2025-03-10.xlsx")
	assert.NotZero(t, w.Body.Len())
}

func TestReports_CacheDroppedOnStatusChange(t *testing.T) {
	r, h := setupRouter(t, nil)

	w := do(r, http.MethodGet, "/api/oee", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get(mw.CacheStatusHeader))
	w = do(r, http.MethodGet, "/api/oee", nil)
	assert.Equal(t, "HIT", w.Header().Get(mw.CacheStatusHeader))

	w = do(r, http.MethodPut, "/api/lines/L1/status", gin.H{"status": "active"})
	require.Equal(t, http.StatusOK, w.Code)
	h.now = func() time.Time { return testNow.Add(30 * time.Minute) }

	w = do(r, http.MethodGet, "/api/oee", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get(mw.CacheStatusHeader))
	var rep oee.Report
	decode(t, w, &rep)
	require.Len(t, rep.Lines, 2)
	assert.Positive(t, rep.Lines[0].ActualOutput)
}

func TestSubscriptions(t *testing.T) {
	r, _ := setupRouter(t, nil)
	endpoint := "https://push.example.com/abc"

	w := do(r, http.MethodPut, "/api/subscriptions", gin.H{
		"endpoint": endpoint, "p256dh": "key", "auth": "secret",
		"subscribed_lines": []string{"L1", "L2", "L9"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(r, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subscribed_lines":["L1","L2"]}`, w.Body.String())

	w = do(r, http.MethodPut, "/api/subscriptions", gin.H{
		"endpoint": endpoint, "p256dh": "key2", "auth": "secret2",
		"subscribed_lines": []string{"L2"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	w = do(r, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	assert.JSONEq(t, `{"subscribed_lines":["L2"]}`, w.Body.String())

	w = do(r, http.MethodDelete, "/api/subscriptions", gin.H{"endpoint": endpoint})
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(r, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/subscriptions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPutSubscription_InvalidBody(t *testing.T) {
	r, _ := setupRouter(t, nil)

	w := do(r, http.MethodPut, "/api/subscriptions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())
}

func TestVAPIDPublicKey(t *testing.T) {
	r, _ := setupRouter(t, nil)
	w := do(r, http.MethodGet, "/api/vapid_public_key", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	r, _ = setupRouter(t, &webpush.Options{VAPIDPublicKey: "pub"})
	w = do(r, http.MethodGet, "/api/vapid_public_key", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"pub"}`, w.Body.String())
}
