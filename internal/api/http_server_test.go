package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cablepark/internal/config"
	"cablepark/internal/database"
	"cablepark/internal/events"
	"cablepark/internal/export"
	"cablepark/internal/localtime"
	"cablepark/internal/models"
	"cablepark/internal/service"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var berlin = localtime.MustLoad("Europe/Berlin")

func openAPIConfig() config.APIConfig {
	return config.APIConfig{Enabled: true, HTTP: config.APIHTTPConfig{Enabled: true}}
}

func newTestServices(t *testing.T) (Services, *database.DB) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "schedule.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var list []models.DayHours
	for d := models.Monday; d <= models.Sunday; d++ {
		list = append(list, models.DayHours{Day: d, Open: models.NewClockTime(9, 0), Close: models.NewClockTime(21, 0)})
	}
	hours, err := models.HoursFromList(list)
	require.NoError(t, err)
	require.NoError(t, db.ReplaceOperatingHours(context.Background(), hours))

	facility := &service.Facility{
		Zone:            berlin,
		Hours:           db,
		ReferencePrefix: "WB",
		MinPrice:        decimal.NewFromInt(10),
		DefaultPrice:    decimal.NewFromInt(25),
		MaxBookingDays:  90,
		Now:             func() time.Time { return time.Date(2025, 5, 20, 6, 0, 0, 0, time.UTC) },
	}
	bus := events.NewEventBus()
	schedule := service.NewScheduleService(db, db, facility, nil, &logger)
	return Services{
		Zone:     berlin,
		Bookings: service.NewBookingService(db, facility, bus, &logger),
		Schedule: schedule,
		Admin:    service.NewAdminService(db, db, facility, bus, &logger),
		Exports:  export.NewExporter(schedule, t.TempDir(), &logger),
		Ready:    db.PingContext,
	}, db
}

func newTestHTTPServer(t *testing.T, cfg config.APIConfig) *httptest.Server {
	t.Helper()
	svc, _ := newTestServices(t)
	logger := zerolog.Nop()
	ts := httptest.NewServer(NewHTTPServer(cfg, svc, &logger).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, body string, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

const bookingBody = `{
	"date": "2025-05-21",
	"start": "10:00",
	"duration_minutes": 60,
	"customer": {"name": "Lena Vogel", "email": "lena@example.com"}
}`

func TestHealthAndReady(t *testing.T) {
	ts := newTestHTTPServer(t, openAPIConfig())

	resp, body := do(t, ts, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	resp, body = do(t, ts, http.MethodGet, "/readyz", "", requestIDHeader, "req-123")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, "req-123", resp.Header.Get(requestIDHeader))
}

func TestReadyFailure(t *testing.T) {
	svc, _ := newTestServices(t)
	svc.Ready = func(context.Context) error { return errors.New("database is gone") }
	logger := zerolog.Nop()
	ts := httptest.NewServer(NewHTTPServer(openAPIConfig(), svc, &logger).Handler())
	defer ts.Close()

	resp, body := do(t, ts, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "database is gone", body["error"])
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	ts := newTestHTTPServer(t, openAPIConfig())

	resp, body := do(t, ts, http.MethodPost, "/api/v1/bookings/preview", `{"date":"2025-05-21","start":"10:00","duration_minutes":60}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["bookable"])

	resp, body = do(t, ts, http.MethodPost, "/api/v1/bookings", bookingBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	booking := body["booking"].(map[string]any)
	ref := booking["reference"].(string)
	assert.Equal(t, "WB-2505-0001", ref)
	assert.Len(t, body["slots"], 2)

	resp, body = do(t, ts, http.MethodPost, "/api/v1/bookings", strings.Replace(bookingBody, `"10:00"`, `"10:30"`, 1))
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body["message"], "pick different times")
	conflicts := body["conflicts"].([]any)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ref, conflicts[0].(map[string]any)["booking_reference"])

	resp, body = do(t, ts, http.MethodGet, "/api/v1/bookings/"+ref, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["groups"], 1)

	resp, body = do(t, ts, http.MethodDelete, "/api/v1/bookings/"+ref+"?mode=delete", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "delete", body["mode"])

	resp, _ = do(t, ts, http.MethodGet, "/api/v1/bookings/"+ref, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, ts, http.MethodDelete, "/api/v1/bookings/"+ref+"?mode=archive", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateBookingValidation(t *testing.T) {
	ts := newTestHTTPServer(t, openAPIConfig())

	resp, _ := do(t, ts, http.MethodPost, "/api/v1/bookings", `{"date":"2025-05-21","start":"10:15","duration_minutes":30,"customer":{"name":"A","email":"a@example.com"}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, ts, http.MethodPost, "/api/v1/bookings", `{"date":"2025-05-21","unknown":true}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, ts, http.MethodPost, "/api/v1/bookings", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGridAndBulkOverHTTP(t *testing.T) {
	ts := newTestHTTPServer(t, openAPIConfig())

	resp, body := do(t, ts, http.MethodPost, "/api/v1/bookings", bookingBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	booked := body["slots"].([]any)[0].(map[string]any)

	resp, body = do(t, ts, http.MethodGet, "/api/v1/grid?week=2025-05-21", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2025-05-19", body["monday"])
	assert.Len(t, body["cells"], 7*26)
	assert.Len(t, body["groups"], 1)

	resp, _ = do(t, ts, http.MethodGet, "/api/v1/grid?week=21.05.2025", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	blockBooked := fmt.Sprintf(`{"action":"block","reason":"storm","targets":[{"id":%v}]}`, booked["id"])
	resp, _ = do(t, ts, http.MethodPost, "/api/v1/admin/slots/bulk", blockBooked)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	start := berlin.Wall(localtime.Date{Year: 2025, Month: time.May, Day: 21}, models.NewClockTime(15, 0))
	cell := fmt.Sprintf(`{"action":"make_available","price":"15","targets":[{"id":%d,"start":%q,"end":%q}]}`,
		-(1 + 2*models.MinutesPerDay + 15*60), start.Format(time.RFC3339), start.Add(models.SlotDuration).Format(time.RFC3339))
	resp, body = do(t, ts, http.MethodPost, "/api/v1/admin/slots/bulk", cell)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	slots := body["slots"].([]any)
	require.Len(t, slots, 1)
	assert.Equal(t, "available", slots[0].(map[string]any)["status"])
	assert.Equal(t, "15", slots[0].(map[string]any)["price"])

	resp, _ = do(t, ts, http.MethodPost, "/api/v1/admin/slots/bulk", `{"action":"teleport","targets":[{"id":1}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, ts, http.MethodPost, "/api/v1/admin/slots/bulk", `{"action":"clear","targets":[{"id":424242}]}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReplaceHoursOverHTTP(t *testing.T) {
	ts := newTestHTTPServer(t, openAPIConfig())

	resp, _ := do(t, ts, http.MethodPut, "/api/v1/admin/hours", `{"operating_hours":[{"day":"monday","open":"08:00","close":"22:00"}]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, ts, http.MethodPut, "/api/v1/admin/hours", `{"operating_hours":[{"day":"monday","open":"22:00","close":"08:00"}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExportOverHTTP(t *testing.T) {
	ts := newTestHTTPServer(t, openAPIConfig())

	resp, _ := do(t, ts, http.MethodGet, "/api/v1/admin/export?week=2025-05-21", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxMIME, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "schedule_week_2025-05-19.xlsx")
}

func TestHTTPAuth(t *testing.T) {
	cfg := openAPIConfig()
	cfg.Auth = config.APIAuthConfig{
		Enabled: true,
		APIKeys: []config.APIClientKey{
			{Key: "front-desk", Extra: "secret", Permissions: []string{PermReadGrid, PermWriteBookings}},
			{Key: "ops", Extra: "secret"},
		},
	}
	ts := newTestHTTPServer(t, cfg)

	resp, body := do(t, ts, http.MethodGet, "/api/v1/grid", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, errMissingKey.Error(), body["error"])

	resp, _ = do(t, ts, http.MethodGet, "/api/v1/grid", "", "X-API-Key", "front-desk", "X-API-Extra", "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, ts, http.MethodGet, "/api/v1/grid", "", "X-API-Key", "front-desk", "X-API-Extra", "secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, ts, http.MethodPut, "/api/v1/admin/hours", `{"operating_hours":[]}`, "X-API-Key", "front-desk", "X-API-Extra", "secret")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// a client without listed permissions may do everything
	resp, _ = do(t, ts, http.MethodGet, "/api/v1/admin/export", "", "X-API-Key", "ops", "X-API-Extra", "secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// health checks never need credentials
	resp, _ = do(t, ts, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPRateLimit(t *testing.T) {
	cfg := openAPIConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 2}
	ts := newTestHTTPServer(t, cfg)

	for i := 0; i < 2; i++ {
		resp, _ := do(t, ts, http.MethodGet, "/api/v1/grid", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := do(t, ts, http.MethodGet, "/api/v1/grid", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, errRateLimited.Error(), body["error"])
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestHTTPServer(t, openAPIConfig())

	resp, _ := do(t, ts, http.MethodGet, "/api/v1/nothing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, ts, http.MethodPatch, "/api/v1/grid", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
