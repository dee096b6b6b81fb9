package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/skyward-labs/ndc-gateway/internal/domain"
	"github.com/skyward-labs/ndc-gateway/internal/platform/auth"
	"github.com/skyward-labs/ndc-gateway/internal/platform/httpx"
	"github.com/skyward-labs/ndc-gateway/internal/services"
)

const maxOrderBodySize = 128 * 1024

type createOrderRequest struct {
	OfferID     string                      `json:"offerId"`
	GuaranteeID string                      `json:"guaranteeId"`
	Passengers  map[string]domain.Passenger `json:"passengers"`
}

// OrderHandlers exposes the booking endpoints.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireSession())
	}
	r.Post("/createWithOffer", h.create)
	r.Get("/{offerID}/status", h.status)
	r.Get("/{orderID}", h.retrieve)
}

func (h *OrderHandlers) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	session, ok := sessionFromContext(ctx, w)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOrderBodySize)).Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be a valid order creation request", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.OfferID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "offerId is required", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.GuaranteeID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "guaranteeId is required", http.StatusBadRequest))
		return
	}

	confirmation, err := h.orders.Create(ctx, session, services.CreateOrderRequest{
		OfferID:     strings.TrimSpace(req.OfferID),
		GuaranteeID: strings.TrimSpace(req.GuaranteeID),
		Passengers:  req.Passengers,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, confirmation)
}

func (h *OrderHandlers) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	session, ok := sessionFromContext(ctx, w)
	if !ok {
		return
	}

	offerID := strings.TrimSpace(chi.URLParam(r, "offerID"))
	if offerID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "offer id is required", http.StatusBadRequest))
		return
	}

	status, err := h.orders.Status(ctx, session, offerID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *OrderHandlers) retrieve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	session, ok := sessionFromContext(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	confirmation, err := h.orders.Retrieve(ctx, session, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, confirmation)
}
