package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/payment-gateway/internal/merchant/application"
	"github.com/dmehra2102/payment-gateway/internal/merchant/domain"
	merchanthttp "github.com/dmehra2102/payment-gateway/internal/merchant/infrastructure/http"
	"github.com/dmehra2102/payment-gateway/internal/merchant/infrastructure/memory"
	"github.com/dmehra2102/payment-gateway/pkg/apperr"
	"github.com/dmehra2102/payment-gateway/pkg/logging"
	"github.com/dmehra2102/payment-gateway/pkg/ratelimit"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	svc := application.NewService(logging.Discard(), memory.NewRepository())
	_, err := svc.Seed(context.Background(), domain.Merchant{
		ID: "m1", Name: "Test", Email: "test@example.com",
		APIKey: "key", APISecret: "secret", WebhookSecret: "whsec",
	})
	require.NoError(t, err)

	h := merchanthttp.NewHandler(logging.Discard(), svc)
	r := chi.NewRouter()
	r.Route("/api/v1/test", func(r chi.Router) { h.TestRoutes(r, "test@example.com") })
	r.Group(func(r chi.Router) {
		r.Use(h.Authenticate)
		r.Route("/api/v1", h.Routes)
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth {
		req.Header.Set("X-Api-Key", "key")
		req.Header.Set("X-Api-Secret", "secret")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate_RejectsMissingCredentials(t *testing.T) {
	rec := do(t, newRouter(t), http.MethodGet, "/api/v1/merchant/webhook", "", false)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"error":{"code":"AUTHENTICATION_ERROR","description":"Invalid API credentials"}}`, rec.Body.String())
}

func TestWebhookConfigRoutes(t *testing.T) {
	r := newRouter(t)

	rec := do(t, r, http.MethodGet, "/api/v1/merchant/webhook", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"webhook_url":null,"webhook_secret":"whsec"}`, rec.Body.String())

	rec = do(t, r, http.MethodPost, "/api/v1/merchant/webhook", `{"webhook_url":"http://localhost:4000/hook"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"webhook_url":"http://localhost:4000/hook"}`, rec.Body.String())

	rec = do(t, r, http.MethodPost, "/api/v1/merchant/webhook/regenerate", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		WebhookSecret string `json:"webhook_secret"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.WebhookSecret, 32)
}

func TestTestMerchantRoute(t *testing.T) {
	rec := do(t, newRouter(t), http.MethodGet, "/api/v1/test/merchant", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"id":"m1","email":"test@example.com","api_key":"key","seeded":true}`, rec.Body.String())
}

func TestRateLimitKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Api-Key", "key")
	require.Equal(t, "ip:10.0.0.1", merchanthttp.RateLimitKey(req))

	req = req.WithContext(merchanthttp.WithMerchant(req.Context(), domain.Merchant{ID: "m1"}))
	require.Equal(t, "merchant:m1", merchanthttp.RateLimitKey(req))
}

func TestMerchantLimitAppliesAfterAuthentication(t *testing.T) {
	svc := application.NewService(logging.Discard(), memory.NewRepository())
	_, err := svc.Seed(context.Background(), domain.Merchant{
		ID: "m1", Name: "Test", Email: "test@example.com", APIKey: "key", APISecret: "secret",
	})
	require.NoError(t, err)
	h := merchanthttp.NewHandler(logging.Discard(), svc)

	limiter := ratelimit.New(0.001, 1, time.Minute)
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(h.Authenticate)
		r.Use(limiter.Middleware(merchanthttp.RateLimitKey, apperr.WriteRateLimited))
		r.Route("/api/v1", h.Routes)
	})

	for _, key := range []string{"rotated-1", "rotated-2"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/merchant/webhook", nil)
		req.Header.Set("X-Api-Key", key)
		req.Header.Set("X-Api-Secret", "secret")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	require.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/api/v1/merchant/webhook", "", true).Code)
	rec := do(t, r, http.MethodGet, "/api/v1/merchant/webhook", "", true)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Contains(t, rec.Body.String(), apperr.CodeRateLimited)
}
