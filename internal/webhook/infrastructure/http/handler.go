package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	merchanthttp "github.com/dmehra2102/payment-gateway/internal/merchant/infrastructure/http"
	"github.com/dmehra2102/payment-gateway/internal/webhook/application"
	"github.com/dmehra2102/payment-gateway/internal/webhook/domain"
	"github.com/dmehra2102/payment-gateway/pkg/apperr"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("webhook-http"),
	}
}

// Routes are mounted behind merchant authentication.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/webhooks", h.list)
	r.Post("/webhooks/{id}/retry", h.retry)
}

// logView never carries the payload or the merchant's secret.
type logView struct {
	ID            string     `json:"id"`
	Event         string     `json:"event"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	CreatedAt     time.Time  `json:"created_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
	ResponseCode  *int       `json:"response_code"`
}

type listResp struct {
	Data   []logView `json:"data"`
	Total  int       `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

func newLogView(l domain.Log) logView {
	return logView{
		ID:            l.ID,
		Event:         l.Event,
		Status:        string(l.Status),
		Attempts:      l.Attempts,
		CreatedAt:     l.CreatedAt,
		LastAttemptAt: l.LastAttemptAt,
		ResponseCode:  l.ResponseCode,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", application.DefaultPageSize)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}

	m, _ := merchanthttp.MerchantFrom(r.Context())
	page, err := h.service.List(r.Context(), m.ID, limit, offset)
	if err != nil {
		h.fail(w, err)
		return
	}

	out := listResp{Data: make([]logView, 0, len(page.Logs)), Total: page.Total, Limit: page.Limit, Offset: page.Offset}
	for _, l := range page.Logs {
		out.Data = append(out.Data, newLogView(l))
	}
	apperr.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RetryWebhook")
	defer span.End()

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("webhook.log_id", id))

	m, _ := merchanthttp.MerchantFrom(ctx)
	l, err := h.service.Retry(ctx, m.ID, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]string{
		"id":      l.ID,
		"status":  string(l.Status),
		"message": "Webhook retry scheduled",
	})
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		apperr.Write(w, apperr.BadRequest(name+" must be a non-negative integer"))
		return 0, false
	}
	return n, true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if apperr.Status(err) >= http.StatusInternalServerError {
		h.log.Error("webhook request failed", "err", err)
	}
	apperr.Write(w, err)
}
