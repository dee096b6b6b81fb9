package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/skyward-labs/ndc-gateway/internal/domain"
	"github.com/skyward-labs/ndc-gateway/internal/platform/auth"
	"github.com/skyward-labs/ndc-gateway/internal/services"
)

type stubOfferService struct {
	searchFunc  func(ctx context.Context, session domain.SessionContext, criteria domain.SearchCriteria) (services.SearchOutcome, error)
	priceFunc   func(ctx context.Context, session domain.SessionContext, offerIDs []string, selections []domain.OptionSelection) (domain.PricedOffer, error)
	seatMapFunc func(ctx context.Context, session domain.SessionContext, offerIDs []string, req domain.SeatMapRequest) (domain.SeatMap, error)
}

func (s *stubOfferService) Search(ctx context.Context, session domain.SessionContext, criteria domain.SearchCriteria) (services.SearchOutcome, error) {
	return s.searchFunc(ctx, session, criteria)
}

func (s *stubOfferService) Price(ctx context.Context, session domain.SessionContext, offerIDs []string, selections []domain.OptionSelection) (domain.PricedOffer, error) {
	return s.priceFunc(ctx, session, offerIDs, selections)
}

func (s *stubOfferService) SeatMap(ctx context.Context, session domain.SessionContext, offerIDs []string, req domain.SeatMapRequest) (domain.SeatMap, error) {
	return s.seatMapFunc(ctx, session, offerIDs, req)
}

func authenticatedRequest(t *testing.T, method, target, body string) *http.Request {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{
		OrgID:      "did:orgid:0x1234",
		ClientName: "sandbox-client",
	}))
}

func newOfferRouter(service services.OfferService) chi.Router {
	r := chi.NewRouter()
	NewOfferHandlers(nil, service).Routes(r)
	return r
}

func TestOfferHandlersSearch(t *testing.T) {
	var gotSession domain.SessionContext
	var gotCriteria domain.SearchCriteria
	service := &stubOfferService{
		searchFunc: func(_ context.Context, session domain.SessionContext, criteria domain.SearchCriteria) (services.SearchOutcome, error) {
			gotSession = session
			gotCriteria = criteria
			results := domain.NewSearchResults()
			results.Offers["offer-a"] = domain.Offer{
				Provider: "prov-a",
				Price:    domain.Price{Public: 412.20, Currency: "USD"},
			}
			return services.SearchOutcome{Results: results}, nil
		},
	}

	body := `{
		"itinerary": {"segments": [{
			"origin": {"iataCode": "CDG", "locationType": "airport"},
			"destination": {"iataCode": "JFK", "locationType": "airport"},
			"departureTime": "2026-04-01T09:00:00Z"
		}]},
		"passengers": [{"type": "ADT", "count": 1}]
	}`

	rr := httptest.NewRecorder()
	newOfferRouter(service).ServeHTTP(rr, authenticatedRequest(t, http.MethodPost, "/search", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotSession.OrgID != "did:orgid:0x1234" {
		t.Fatalf("expected session org from identity, got %q", gotSession.OrgID)
	}
	if len(gotCriteria.Itinerary.Segments) != 1 || gotCriteria.Itinerary.Segments[0].Origin.IATACode != "CDG" {
		t.Fatalf("unexpected decoded criteria %#v", gotCriteria)
	}

	var payload struct {
		Results struct {
			Offers map[string]domain.Offer `json:"offers"`
		} `json:"results"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := payload.Results.Offers["offer-a"]; !ok {
		t.Fatalf("expected offer-a in response, got %s", rr.Body.String())
	}
}

func TestOfferHandlersSearchRequiresIdentity(t *testing.T) {
	service := &stubOfferService{
		searchFunc: func(context.Context, domain.SessionContext, domain.SearchCriteria) (services.SearchOutcome, error) {
			t.Fatalf("service must not be called without identity")
			return services.SearchOutcome{}, nil
		},
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{}`))
	newOfferRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestOfferHandlersSearchRejectsEmptyCriteria(t *testing.T) {
	service := &stubOfferService{
		searchFunc: func(context.Context, domain.SessionContext, domain.SearchCriteria) (services.SearchOutcome, error) {
			t.Fatalf("service must not be called for invalid criteria")
			return services.SearchOutcome{}, nil
		},
	}

	rr := httptest.NewRecorder()
	newOfferRouter(service).ServeHTTP(rr, authenticatedRequest(t, http.MethodPost, "/search", `{"itinerary":{"segments":[]},"passengers":[]}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestOfferHandlersPriceSplitsOfferIDs(t *testing.T) {
	var gotOfferIDs []string
	var gotSelections []domain.OptionSelection
	service := &stubOfferService{
		priceFunc: func(_ context.Context, _ domain.SessionContext, offerIDs []string, selections []domain.OptionSelection) (domain.PricedOffer, error) {
			gotOfferIDs = offerIDs
			gotSelections = selections
			return domain.PricedOffer{
				OfferID:    "offer-priced",
				Expiration: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
				Price:      domain.Price{Public: 435.50, Currency: "USD"},
			}, nil
		},
	}

	body := `[{"code": "SEAT-12A", "segmentId": "seg-1", "passengerId": "pax-1", "seatNumber": "12A"}]`

	rr := httptest.NewRecorder()
	newOfferRouter(service).ServeHTTP(rr, authenticatedRequest(t, http.MethodPost, "/offer-a,offer-b/price", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(gotOfferIDs) != 2 || gotOfferIDs[0] != "offer-a" || gotOfferIDs[1] != "offer-b" {
		t.Fatalf("expected split offer ids, got %v", gotOfferIDs)
	}
	if len(gotSelections) != 1 || gotSelections[0].SeatNumber != "12A" {
		t.Fatalf("unexpected selections %#v", gotSelections)
	}
}

func TestOfferHandlersPriceMapsBusinessError(t *testing.T) {
	service := &stubOfferService{
		priceFunc: func(context.Context, domain.SessionContext, []string, []domain.OptionSelection) (domain.PricedOffer, error) {
			return domain.PricedOffer{}, domain.ErrOfferNotFound("offer-gone")
		},
	}

	rr := httptest.NewRecorder()
	newOfferRouter(service).ServeHTTP(rr, authenticatedRequest(t, http.MethodPost, "/offer-gone/price", ""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["error"] != string(domain.CodeOfferNotFound) {
		t.Fatalf("expected machine code %s in envelope, got %v", domain.CodeOfferNotFound, payload["error"])
	}
}

func TestOfferHandlersSeatMap(t *testing.T) {
	service := &stubOfferService{
		seatMapFunc: func(_ context.Context, _ domain.SessionContext, offerIDs []string, _ domain.SeatMapRequest) (domain.SeatMap, error) {
			if len(offerIDs) != 1 || offerIDs[0] != "offer-a" {
				t.Fatalf("unexpected offer ids %v", offerIDs)
			}
			return domain.SeatMap{Segments: map[string][]domain.CabinMap{"seg-1": {{Name: "economy"}}}}, nil
		},
	}

	rr := httptest.NewRecorder()
	newOfferRouter(service).ServeHTTP(rr, authenticatedRequest(t, http.MethodPost, "/offer-a/seatmap", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "seg-1") {
		t.Fatalf("expected seat map segments in response, got %s", rr.Body.String())
	}
}
