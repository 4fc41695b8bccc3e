// Package client is a typed HTTP client for the schedule API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cablepark/internal/domain"
	"cablepark/internal/grid"
	"cablepark/internal/localtime"
	"cablepark/internal/models"
	"cablepark/internal/service"

	"github.com/redis/go-redis/v9"
)

const gridCachePrefix = "client:grid:"

// Client calls the schedule API with an API key. Week grids can be cached
// in Redis; every write through the client drops that cache.
type Client struct {
	baseURL     string
	apiKey      string
	apiExtra    string
	keyHeader   string
	extraHeader string
	httpClient  *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

// New constructs a client with baseURL, API key and extra header value.
func New(baseURL, apiKey, apiExtra string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		apiExtra:    apiExtra,
		keyHeader:   "x-api-key",
		extraHeader: "x-api-extra",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

// SetHeaderNames overrides the auth header names the server expects.
func (c *Client) SetHeaderNames(keyHeader, extraHeader string) {
	if keyHeader != "" {
		c.keyHeader = keyHeader
	}
	if extraHeader != "" {
		c.extraHeader = extraHeader
	}
}

// UseRedisCache configures optional Redis caching for week grids.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// Error is a non-2xx answer from the API. It matches the domain sentinels
// with errors.Is.
type Error struct {
	StatusCode  int               `json:"-"`
	Message     string            `json:"error"`
	Remediation string            `json:"message,omitempty"`
	Conflicts   []domain.Conflict `json:"conflicts,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return domain.ErrValidation
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConflict
	case http.StatusUnprocessableEntity:
		return domain.ErrState
	}
	return nil
}

// Week fetches the grid for the week containing week. A zero date asks for
// the current week and bypasses the cache.
func (c *Client) Week(ctx context.Context, week localtime.Date) (*service.WeekView, error) {
	endpoint := c.baseURL + "/api/v1/grid"
	cacheKey := ""
	if !week.IsZero() {
		endpoint += "?week=" + url.QueryEscape(week.String())
		cacheKey = gridCachePrefix + week.String()
	}

	var view service.WeekView
	if cacheKey != "" && c.readCache(ctx, cacheKey, &view) {
		return &view, nil
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &view); err != nil {
		return nil, err
	}
	if cacheKey != "" {
		c.writeCache(ctx, cacheKey, view)
	}
	return &view, nil
}

// Preview asks whether a window could be booked right now.
func (c *Client) Preview(ctx context.Context, req grid.WindowRequest) (*service.Preview, error) {
	var resp service.Preview
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/api/v1/bookings/preview", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CreateBooking(ctx context.Context, req service.BookingRequest) (*service.BookingResult, error) {
	var resp service.BookingResult
	if err := c.write(ctx, http.MethodPost, c.baseURL+"/api/v1/bookings", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetBooking(ctx context.Context, reference string) (*service.BookingView, error) {
	var resp service.BookingView
	if err := c.doJSON(ctx, http.MethodGet, c.bookingURL(reference, ""), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CancelBooking(ctx context.Context, reference string, mode service.CancelMode) (*service.CancelResult, error) {
	var resp service.CancelResult
	if err := c.write(ctx, http.MethodDelete, c.bookingURL(reference, string(mode)), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ApplyBulk runs an admin action over grid cells.
func (c *Client) ApplyBulk(ctx context.Context, req service.BulkRequest) (*service.BulkResult, error) {
	var resp service.BulkResult
	if err := c.write(ctx, http.MethodPost, c.baseURL+"/api/v1/admin/slots/bulk", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReplaceHours sets the weekly operating hours. Days left out are closed.
func (c *Client) ReplaceHours(ctx context.Context, days []models.DayHours) (models.OperatingHours, error) {
	body := struct {
		OperatingHours []models.DayHours `json:"operating_hours"`
	}{days}
	var resp struct {
		OperatingHours models.OperatingHours `json:"operating_hours"`
	}
	if err := c.write(ctx, http.MethodPut, c.baseURL+"/api/v1/admin/hours", body, &resp); err != nil {
		return models.OperatingHours{}, err
	}
	return resp.OperatingHours, nil
}

// Export streams the week workbook into w and returns the server's file name.
func (c *Client) Export(ctx context.Context, week localtime.Date, w io.Writer) (string, error) {
	endpoint := c.baseURL + "/api/v1/admin/export"
	if !week.IsZero() {
		endpoint += "?week=" + url.QueryEscape(week.String())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", decodeError(resp)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("read workbook: %w", err)
	}
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	if err != nil {
		return "", nil
	}
	return params["filename"], nil
}

func (c *Client) bookingURL(reference, mode string) string {
	endpoint := c.baseURL + "/api/v1/bookings/" + url.PathEscape(reference)
	if mode != "" {
		endpoint += "?mode=" + url.QueryEscape(mode)
	}
	return endpoint
}

// write performs a mutating call and drops cached grids whatever the outcome.
func (c *Client) write(ctx context.Context, method, endpoint string, body, out any) error {
	defer c.dropCache(ctx)
	return c.doJSON(ctx, method, endpoint, body, out)
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(val, out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) dropCache(ctx context.Context) {
	if c.redis == nil {
		return
	}
	iter := c.redis.Scan(ctx, 0, gridCachePrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		_ = c.redis.Del(ctx, keys...).Err()
	}
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(data, apiErr); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(c.keyHeader, c.apiKey)
	}
	if c.apiExtra != "" {
		req.Header.Set(c.extraHeader, c.apiExtra)
	}
}
