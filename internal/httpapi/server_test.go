package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagnunAVF/shorturls/internal/shortener"
	"github.com/MagnunAVF/shorturls/internal/storage/memory"
)

const baseURL = "http://sho.rt"

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestApp(t *testing.T) (*fiber.App, *testClock) {
	t.Helper()
	store := memory.New()
	clock := &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	engine := shortener.NewEngine(store, store, shortener.Options{}, shortener.WithClock(clock.Now))
	return New(engine, Config{BaseURL: baseURL}), clock
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func create(t *testing.T, app *fiber.App, body map[string]any) string {
	t.Helper()
	resp, out := doJSON(t, app, http.MethodPost, "/shorturls", body)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, out)
	return strings.TrimPrefix(out["shortLink"].(string), baseURL+"/")
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t)

	resp, out := doJSON(t, app, http.MethodGet, "/healthz", nil)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", out["status"])
}

func TestCreate(t *testing.T) {
	app, _ := newTestApp(t)

	resp, out := doJSON(t, app, http.MethodPost, "/shorturls", map[string]any{"url": "https://example.com"})

	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Regexp(t, `^http://sho\.rt/[A-Za-z0-9]{6}$`, out["shortLink"])
	assert.Equal(t, "2025-03-01T12:30:00Z", out["expiry"])
}

func TestCreate_CustomCodeAndValidity(t *testing.T) {
	app, _ := newTestApp(t)

	resp, out := doJSON(t, app, http.MethodPost, "/shorturls", map[string]any{
		"url": "https://example.com", "validity": 5, "shortcode": "promo",
	})

	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, baseURL+"/promo", out["shortLink"])
	assert.Equal(t, "2025-03-01T12:05:00Z", out["expiry"])

	resp, out = doJSON(t, app, http.MethodPost, "/shorturls", map[string]any{
		"url": "https://other.com", "shortcode": "promo",
	})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "shortcode already exists", out["error"])
}

func TestCreate_BadRequests(t *testing.T) {
	app, _ := newTestApp(t)

	cases := map[string]any{
		"missing url":     map[string]any{},
		"ftp url":         map[string]any{"url": "ftp://bad.com"},
		"negative ttl":    map[string]any{"url": "https://a.io", "validity": -1},
		"bad shortcode":   map[string]any{"url": "https://a.io", "shortcode": "no spaces"},
		"validity type":   map[string]any{"url": "https://a.io", "validity": "ten"},
		"non-object body": []string{"https://a.io"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp, out := doJSON(t, app, http.MethodPost, "/shorturls", body)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, out["error"])
		})
	}
}

func TestRedirectAndStats(t *testing.T) {
	app, clock := newTestApp(t)
	code := create(t, app, map[string]any{"url": "https://example.com/page", "validity": 1})

	req := httptest.NewRequest(http.MethodGet, "/"+code, nil)
	req.Header.Set(fiber.HeaderReferer, "https://news.example")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://example.com/page", resp.Header.Get(fiber.HeaderLocation))

	clock.now = clock.now.Add(10 * time.Second)
	resp, _ = doJSON(t, app, http.MethodGet, "/"+code, nil)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)

	resp, out := doJSON(t, app, http.MethodGet, "/shorturls/"+code, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://example.com/page", out["original_url"])
	assert.Equal(t, "2025-03-01T12:00:00Z", out["created_at"])
	assert.Equal(t, "2025-03-01T12:01:00Z", out["expiry"])
	assert.EqualValues(t, 2, out["total_clicks"])

	clicks := out["clicks"].([]any)
	require.Len(t, clicks, 2)
	first := clicks[0].(map[string]any)
	assert.Equal(t, "2025-03-01T12:00:00Z", first["timestamp"])
	assert.Equal(t, "https://news.example", first["referrer"])
	assert.NotEmpty(t, first["ip_address"])
	second := clicks[1].(map[string]any)
	assert.Nil(t, second["referrer"])

	clock.now = clock.now.Add(time.Minute)
	resp, out = doJSON(t, app, http.MethodGet, "/"+code, nil)
	assert.Equal(t, fiber.StatusGone, resp.StatusCode)
	assert.Equal(t, "shortcode has expired", out["error"])

	// Stats outlive expiry.
	resp, out = doJSON(t, app, http.MethodGet, "/shorturls/"+code, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, out["total_clicks"])
}

func TestRedirect_KeepsEachReferrer(t *testing.T) {
	app, _ := newTestApp(t)
	code := create(t, app, map[string]any{"url": "https://example.com"})

	const n = 5
	for i := 0; i < n; i++ {
		req := httptest.NewRequest(http.MethodGet, "/"+code, nil)
		req.Header.Set(fiber.HeaderReferer, fmt.Sprintf("https://ref-%d.example/page", i))
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusFound, resp.StatusCode)
	}
	// Unrelated traffic reuses the request buffers.
	for i := 0; i < n; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(fiber.HeaderReferer, "https://overwritten.example/xxxxxxxx")
		_, err := app.Test(req)
		require.NoError(t, err)
	}

	resp, out := doJSON(t, app, http.MethodGet, "/shorturls/"+code, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	clicks := out["clicks"].([]any)
	require.Len(t, clicks, n)
	for i, c := range clicks {
		assert.Equal(t, fmt.Sprintf("https://ref-%d.example/page", i), c.(map[string]any)["referrer"])
	}
}

func TestCreate_Validity(t *testing.T) {
	app, _ := newTestApp(t)

	t.Run("numeric string", func(t *testing.T) {
		resp, out := doJSON(t, app, http.MethodPost, "/shorturls", map[string]any{"url": "https://example.com", "validity": "5"})
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
		assert.Equal(t, "2025-03-01T12:05:00Z", out["expiry"])
	})

	t.Run("largest representable", func(t *testing.T) {
		resp, out := doJSON(t, app, http.MethodPost, "/shorturls", map[string]any{
			"url": "https://example.com", "validity": shortener.MaxValidityMinutes,
		})
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
		expiry, err := time.Parse(time.RFC3339Nano, out["expiry"].(string))
		require.NoError(t, err)
		assert.Greater(t, expiry.Year(), 2300)
	})

	rejected := map[string]any{
		"overflows duration": shortener.MaxValidityMinutes + 1,
		"wraps to positive":  307445735,
		"overflows int64":    json.Number("99999999999999999999"),
		"fraction":           "1.5",
	}
	for name, validity := range rejected {
		t.Run(name, func(t *testing.T) {
			resp, out := doJSON(t, app, http.MethodPost, "/shorturls", map[string]any{"url": "https://example.com", "validity": validity})
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, out["error"], "validity")
		})
	}
}

func TestUnknownCode(t *testing.T) {
	app, _ := newTestApp(t)

	for _, path := range []string{"/nope", "/shorturls/nope"} {
		resp, out := doJSON(t, app, http.MethodGet, path, nil)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, path)
		assert.Equal(t, "shortcode does not exist", out["error"])
	}
}

func TestStats_EmptyClicksIsArray(t *testing.T) {
	app, _ := newTestApp(t)
	code := create(t, app, map[string]any{"url": "https://example.com"})

	req := httptest.NewRequest(http.MethodGet, "/shorturls/"+code, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(raw), `"clicks":[]`)
	assert.Contains(t, string(raw), `"total_clicks":0`)
}

type stubShortener struct{ err error }

func (s stubShortener) Allocate(context.Context, shortener.AllocateRequest) (*shortener.Mapping, error) {
	return nil, s.err
}

func (s stubShortener) Resolve(context.Context, string, shortener.Visit) (string, error) {
	return "", s.err
}

func (s stubShortener) Stats(context.Context, string) (*shortener.Stats, error) {
	return nil, s.err
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{fmt.Errorf("%w: after 256 attempts", shortener.ErrAllocationExhausted), fiber.StatusServiceUnavailable, "shortcode allocation exhausted"},
		{errors.New("connection refused"), fiber.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		app := New(stubShortener{err: tc.err}, Config{BaseURL: baseURL})

		resp, out := doJSON(t, app, http.MethodPost, "/shorturls", map[string]any{"url": "https://a.io"})

		assert.Equal(t, tc.status, resp.StatusCode)
		assert.Equal(t, tc.msg, out["error"])
	}
}
