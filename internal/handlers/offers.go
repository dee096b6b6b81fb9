package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	domain "github.com/skyward-labs/ndc-gateway/internal/domain"
	"github.com/skyward-labs/ndc-gateway/internal/platform/auth"
	"github.com/skyward-labs/ndc-gateway/internal/platform/httpx"
	"github.com/skyward-labs/ndc-gateway/internal/services"
)

const maxOfferBodySize = 256 * 1024

type searchCriteriaRequest struct {
	Itinerary  domain.ItineraryCriteria   `json:"itinerary"`
	Passengers []domain.PassengerCriteria `json:"passengers"`
}

// OfferHandlers exposes the shopping endpoints: search, price and seat map.
type OfferHandlers struct {
	authn  *auth.Authenticator
	offers services.OfferService
}

// NewOfferHandlers constructs a new OfferHandlers instance.
func NewOfferHandlers(authn *auth.Authenticator, offers services.OfferService) *OfferHandlers {
	return &OfferHandlers{
		authn:  authn,
		offers: offers,
	}
}

// Routes registers the /offers endpoints.
func (h *OfferHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireSession())
	}
	r.Post("/search", h.search)
	r.Post("/{offerIDs}/price", h.price)
	r.Post("/{offerIDs}/seatmap", h.seatMap)
}

func (h *OfferHandlers) search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.offers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("offer_service_unavailable", "offer service unavailable", http.StatusServiceUnavailable))
		return
	}

	session, ok := sessionFromContext(ctx, w)
	if !ok {
		return
	}

	var req searchCriteriaRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOfferBodySize)).Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid search criteria JSON", http.StatusBadRequest))
		return
	}
	if len(req.Itinerary.Segments) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "at least one itinerary segment is required", http.StatusBadRequest))
		return
	}
	if len(req.Passengers) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "at least one passenger is required", http.StatusBadRequest))
		return
	}

	outcome, err := h.offers.Search(ctx, session, domain.SearchCriteria{
		Itinerary:  req.Itinerary,
		Passengers: req.Passengers,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

func (h *OfferHandlers) price(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.offers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("offer_service_unavailable", "offer service unavailable", http.StatusServiceUnavailable))
		return
	}

	session, ok := sessionFromContext(ctx, w)
	if !ok {
		return
	}

	offerIDs, ok := offerIDsFromPath(ctx, w, r)
	if !ok {
		return
	}

	var selections []domain.OptionSelection
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOfferBodySize)).Decode(&selections); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be a JSON array of option selections", http.StatusBadRequest))
			return
		}
	}

	priced, err := h.offers.Price(ctx, session, offerIDs, selections)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, priced)
}

func (h *OfferHandlers) seatMap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.offers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("offer_service_unavailable", "offer service unavailable", http.StatusServiceUnavailable))
		return
	}

	session, ok := sessionFromContext(ctx, w)
	if !ok {
		return
	}

	offerIDs, ok := offerIDsFromPath(ctx, w, r)
	if !ok {
		return
	}

	var req domain.SeatMapRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOfferBodySize)).Decode(&req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be a valid seat map request", http.StatusBadRequest))
			return
		}
	}

	seatMap, err := h.offers.SeatMap(ctx, session, offerIDs, req)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, seatMap)
}

// offerIDsFromPath splits the comma-separated offer id path parameter.
func offerIDsFromPath(ctx context.Context, w http.ResponseWriter, r *http.Request) ([]string, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "offerIDs"))
	if raw == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "offer ids are required", http.StatusBadRequest))
		return nil, false
	}

	parts := strings.Split(raw, ",")
	offerIDs := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			offerIDs = append(offerIDs, part)
		}
	}
	if len(offerIDs) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "offer ids are required", http.StatusBadRequest))
		return nil, false
	}
	return offerIDs, true
}

// sessionFromContext converts the authenticated identity into the session
// passed to the services. Requests without an identity are rejected.
func sessionFromContext(ctx context.Context, w http.ResponseWriter) (domain.SessionContext, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.OrgID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return domain.SessionContext{}, false
	}
	return domain.SessionContext{
		OrgID:      identity.OrgID,
		ClientName: identity.ClientName,
		RequestID:  middleware.GetReqID(ctx),
	}, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeServiceError maps service failures onto the error envelope, keeping
// the stable machine code in the error field.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var be *domain.Error
	if errors.As(err, &be) {
		httpx.WriteError(ctx, w, httpx.NewError(string(be.Code), be.Message, be.Status))
		return
	}
	if errors.Is(err, services.ErrOfferInvalidInput) || errors.Is(err, services.ErrOrderInvalidInput) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError(string(domain.CodeUnknownError), "internal error", http.StatusInternalServerError))
}
