package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/payment-gateway/internal/merchant/application"
	"github.com/dmehra2102/payment-gateway/internal/merchant/domain"
	"github.com/dmehra2102/payment-gateway/pkg/apperr"
	"github.com/dmehra2102/payment-gateway/pkg/ratelimit"
)

type ctxKey struct{}

// MerchantFrom returns the merchant attached by Authenticate.
func MerchantFrom(ctx context.Context) (domain.Merchant, bool) {
	m, ok := ctx.Value(ctxKey{}).(domain.Merchant)
	return m, ok
}

// WithMerchant is exported for handler tests in other packages.
func WithMerchant(ctx context.Context, m domain.Merchant) context.Context {
	return context.WithValue(ctx, ctxKey{}, m)
}

// RateLimitKey buckets authenticated requests by merchant. It must run after
// Authenticate; unauthenticated requests fall back to the client address.
func RateLimitKey(r *http.Request) string {
	if m, ok := MerchantFrom(r.Context()); ok {
		return "merchant:" + m.ID
	}
	return ratelimit.ByClientIP(r)
}

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("merchant-http"),
	}
}

// Authenticate rejects requests without a valid X-Api-Key/X-Api-Secret pair.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m, err := h.service.Authenticate(r.Context(), r.Header.Get("X-Api-Key"), r.Header.Get("X-Api-Secret"))
		if err != nil {
			if !errors.Is(err, apperr.ErrAuth) {
				h.log.Error("authenticate failed", "err", err)
			}
			apperr.Write(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithMerchant(r.Context(), m)))
	})
}

// Routes are mounted behind Authenticate.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/merchant/webhook", h.getWebhook)
	r.Post("/merchant/webhook", h.setWebhook)
	r.Post("/merchant/webhook/regenerate", h.regenerate)
}

// TestRoutes are public.
func (h *Handler) TestRoutes(r chi.Router, email string) {
	r.Get("/merchant", func(w http.ResponseWriter, r *http.Request) {
		m, err := h.service.ByEmail(r.Context(), email)
		if errors.Is(err, apperr.ErrNotFound) {
			apperr.WriteJSON(w, http.StatusNotFound, map[string]bool{"seeded": false})
			return
		}
		if err != nil {
			h.fail(w, err)
			return
		}
		apperr.WriteJSON(w, http.StatusOK, map[string]any{
			"id":      m.ID,
			"email":   m.Email,
			"api_key": m.APIKey,
			"seeded":  true,
		})
	})
}

type webhookConfigResp struct {
	WebhookURL    *string `json:"webhook_url"`
	WebhookSecret string  `json:"webhook_secret"`
}

func (h *Handler) getWebhook(w http.ResponseWriter, r *http.Request) {
	m, _ := MerchantFrom(r.Context())
	cfg, err := h.service.WebhookConfig(r.Context(), m.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, webhookConfigResp{WebhookURL: nullable(cfg.URL), WebhookSecret: cfg.Secret})
}

func (h *Handler) setWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SetWebhookURL")
	defer span.End()

	var req struct {
		WebhookURL *string `json:"webhook_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.BadRequest("invalid body"))
		return
	}
	raw := ""
	if req.WebhookURL != nil {
		raw = *req.WebhookURL
	}

	m, _ := MerchantFrom(ctx)
	saved, err := h.service.SetWebhookURL(ctx, m.ID, raw)
	if err != nil {
		h.fail(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]*string{"webhook_url": nullable(saved)})
}

func (h *Handler) regenerate(w http.ResponseWriter, r *http.Request) {
	m, _ := MerchantFrom(r.Context())
	secret, err := h.service.RegenerateSecret(r.Context(), m.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"webhook_secret": secret})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if apperr.Status(err) >= http.StatusInternalServerError {
		h.log.Error("merchant request failed", "err", err)
	}
	apperr.Write(w, err)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
