package http

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	merchanthttp "github.com/dmehra2102/payment-gateway/internal/merchant/infrastructure/http"
	"github.com/dmehra2102/payment-gateway/internal/payment/application"
	"github.com/dmehra2102/payment-gateway/internal/payment/domain"
	"github.com/dmehra2102/payment-gateway/pkg/apperr"
)

const IdempotencyHeader = "Idempotency-Key"

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("payment-http"),
	}
}

// Routes are mounted behind merchant authentication.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)

	r.Post("/payments", h.createPayment)
	r.Get("/payments", h.listPayments)
	r.Get("/payments/{id}", h.getPayment)
	r.Post("/payments/{id}/capture", h.capturePayment)

	r.Post("/payments/{id}/refunds", h.createRefund)
	r.Get("/refunds/{id}", h.getRefund)
}

// PublicRoutes serve the hosted checkout without credentials.
func (h *Handler) PublicRoutes(r chi.Router) {
	r.Get("/orders/{id}/public", h.getPublicOrder)
	r.Post("/payments/public", h.createPublicPayment)
	r.Get("/payments/{id}/public", h.getPublicPayment)
}

type createOrderReq struct {
	Amount   json.Number    `json:"amount"`
	Currency string         `json:"currency"`
	Receipt  *string        `json:"receipt"`
	Notes    map[string]any `json:"notes"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	var req createOrderReq
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := req.Amount.Int64()
	if err != nil {
		apperr.Write(w, apperr.BadRequest("amount must be at least 100"))
		return
	}

	m, _ := merchanthttp.MerchantFrom(ctx)
	order, err := h.service.CreateOrder(ctx, m.ID, application.CreateOrderInput{
		Amount:   amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusCreated, order)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	m, _ := merchanthttp.MerchantFrom(r.Context())
	order, err := h.service.GetOrder(r.Context(), m.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) getPublicOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetPublicOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, order)
}

type cardReq struct {
	Number      string     `json:"number"`
	ExpiryMonth flexString `json:"expiry_month"`
	ExpiryYear  flexString `json:"expiry_year"`
	CVV         string     `json:"cvv"`
	HolderName  string     `json:"holder_name"`
}

type createPaymentReq struct {
	OrderID string   `json:"order_id"`
	Method  string   `json:"method"`
	VPA     string   `json:"vpa"`
	Card    *cardReq `json:"card"`
}

func (req createPaymentReq) input() application.CreatePaymentInput {
	in := application.CreatePaymentInput{OrderID: req.OrderID, Method: req.Method, VPA: req.VPA}
	if req.Card != nil {
		in.Card = &domain.CardInput{
			Number:      req.Card.Number,
			ExpiryMonth: string(req.Card.ExpiryMonth),
			ExpiryYear:  string(req.Card.ExpiryYear),
			CVV:         req.Card.CVV,
			HolderName:  req.Card.HolderName,
		}
	}
	return in
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createPaymentReq
	if !h.decode(w, r, &req) {
		return
	}

	m, _ := merchanthttp.MerchantFrom(ctx)
	body, err := h.service.CreatePayment(ctx, m.ID, r.Header.Get(IdempotencyHeader), req.input())
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

func (h *Handler) createPublicPayment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreatePublicPayment")
	defer span.End()

	var req createPaymentReq
	if !h.decode(w, r, &req) {
		return
	}
	payment, err := h.service.CreatePublicPayment(ctx, req.input())
	if err != nil {
		h.fail(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusCreated, payment)
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	m, _ := merchanthttp.MerchantFrom(r.Context())
	payment, err := h.service.GetPayment(r.Context(), m.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, payment)
}

func (h *Handler) getPublicPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.service.GetPublicPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, payment)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			apperr.Write(w, apperr.BadRequest("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	m, _ := merchanthttp.MerchantFrom(r.Context())
	payments, err := h.service.ListPayments(r.Context(), m.ID, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]any{"data": payments})
}

func (h *Handler) capturePayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount *int64 `json:"amount"`
	}
	if !h.decodeOptional(w, r, &req) {
		return
	}
	m, _ := merchanthttp.MerchantFrom(r.Context())
	payment, err := h.service.CapturePayment(r.Context(), m.ID, chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		h.fail(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, payment)
}

func (h *Handler) createRefund(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateRefund")
	defer span.End()

	var req struct {
		Amount json.Number `json:"amount"`
		Reason *string     `json:"reason"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := req.Amount.Int64()
	if err != nil || amount <= 0 {
		apperr.Write(w, apperr.BadRequest("Refund amount required"))
		return
	}

	m, _ := merchanthttp.MerchantFrom(ctx)
	refund, err := h.service.CreateRefund(ctx, m.ID, chi.URLParam(r, "id"), amount, req.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusCreated, refund)
}

func (h *Handler) getRefund(w http.ResponseWriter, r *http.Request) {
	m, _ := merchanthttp.MerchantFrom(r.Context())
	refund, err := h.service.GetRefund(r.Context(), m.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, refund)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		apperr.Write(w, apperr.BadRequest("invalid body"))
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r.Body); err != nil {
		apperr.Write(w, apperr.BadRequest("invalid body"))
		return false
	}
	if len(bytes.TrimSpace(buf.Bytes())) == 0 {
		return true
	}
	if err := json.Unmarshal(buf.Bytes(), v); err != nil {
		apperr.Write(w, apperr.BadRequest("invalid body"))
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if apperr.Status(err) >= http.StatusInternalServerError {
		h.log.Error("payment request failed", "err", err)
	}
	apperr.Write(w, err)
}

// flexString accepts a JSON string or number. Checkout forms send card
// expiry fields either way.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
