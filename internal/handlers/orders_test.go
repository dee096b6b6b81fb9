package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/skyward-labs/ndc-gateway/internal/domain"
	"github.com/skyward-labs/ndc-gateway/internal/services"
)

type stubOrderService struct {
	createFunc   func(ctx context.Context, session domain.SessionContext, req services.CreateOrderRequest) (domain.OrderConfirmation, error)
	statusFunc   func(ctx context.Context, session domain.SessionContext, offerID string) (domain.OrderStatusResponse, error)
	retrieveFunc func(ctx context.Context, session domain.SessionContext, orderID string) (domain.OrderConfirmation, error)
}

func (s *stubOrderService) Create(ctx context.Context, session domain.SessionContext, req services.CreateOrderRequest) (domain.OrderConfirmation, error) {
	return s.createFunc(ctx, session, req)
}

func (s *stubOrderService) Status(ctx context.Context, session domain.SessionContext, offerID string) (domain.OrderStatusResponse, error) {
	return s.statusFunc(ctx, session, offerID)
}

func (s *stubOrderService) Retrieve(ctx context.Context, session domain.SessionContext, orderID string) (domain.OrderConfirmation, error) {
	return s.retrieveFunc(ctx, session, orderID)
}

func newOrderRouter(service services.OrderService) chi.Router {
	r := chi.NewRouter()
	NewOrderHandlers(nil, service).Routes(r)
	return r
}

func TestOrderHandlersCreate(t *testing.T) {
	var gotReq services.CreateOrderRequest
	service := &stubOrderService{
		createFunc: func(_ context.Context, session domain.SessionContext, req services.CreateOrderRequest) (domain.OrderConfirmation, error) {
			if session.OrgID != "did:orgid:0x1234" {
				t.Fatalf("unexpected session org %s", session.OrgID)
			}
			gotReq = req
			return domain.OrderConfirmation{
				OrderID: "order-uuid-1",
				Order: domain.Order{
					Price:             domain.Price{Public: 435.50, Currency: "USD"},
					BookingReferences: []domain.BookingReference{{CarrierCode: "AF", Reference: "ABC123"}},
				},
			}, nil
		},
	}

	body := `{
		"offerId": "offer-1",
		"guaranteeId": "tok-1",
		"passengers": {"pax-1": {"type": "ADT", "firstnames": ["JANE"], "lastnames": ["DOE"]}}
	}`

	rr := httptest.NewRecorder()
	newOrderRouter(service).ServeHTTP(rr, authenticatedRequest(t, http.MethodPost, "/createWithOffer", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotReq.OfferID != "offer-1" || gotReq.GuaranteeID != "tok-1" {
		t.Fatalf("unexpected decoded request %#v", gotReq)
	}
	if len(gotReq.Passengers) != 1 {
		t.Fatalf("expected 1 passenger, got %d", len(gotReq.Passengers))
	}

	var payload domain.OrderConfirmation
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.OrderID != "order-uuid-1" {
		t.Fatalf("unexpected order id %s", payload.OrderID)
	}
}

func TestOrderHandlersCreateValidation(t *testing.T) {
	service := &stubOrderService{
		createFunc: func(context.Context, domain.SessionContext, services.CreateOrderRequest) (domain.OrderConfirmation, error) {
			t.Fatalf("service must not be called for invalid requests")
			return domain.OrderConfirmation{}, nil
		},
	}
	router := newOrderRouter(service)

	for _, body := range []string{
		`{"guaranteeId": "tok-1"}`,
		`{"offerId": "offer-1"}`,
		`not json`,
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, authenticatedRequest(t, http.MethodPost, "/createWithOffer", body))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for body %q, got %d", body, rr.Code)
		}
	}
}

func TestOrderHandlersCreateConflictEnvelope(t *testing.T) {
	service := &stubOrderService{
		createFunc: func(context.Context, domain.SessionContext, services.CreateOrderRequest) (domain.OrderConfirmation, error) {
			return domain.OrderConfirmation{}, domain.NewError(domain.CodeOrderAlreadyExists, http.StatusConflict, "order already exists or is in progress for offer offer-1")
		},
	}

	rr := httptest.NewRecorder()
	newOrderRouter(service).ServeHTTP(rr, authenticatedRequest(t, http.MethodPost, "/createWithOffer", `{"offerId":"offer-1","guaranteeId":"tok-1"}`))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["error"] != string(domain.CodeOrderAlreadyExists) {
		t.Fatalf("expected %s in envelope, got %v", domain.CodeOrderAlreadyExists, payload["error"])
	}
}

func TestOrderHandlersStatus(t *testing.T) {
	service := &stubOrderService{
		statusFunc: func(_ context.Context, _ domain.SessionContext, offerID string) (domain.OrderStatusResponse, error) {
			if offerID != "offer-1" {
				t.Fatalf("unexpected offer id %s", offerID)
			}
			return domain.OrderStatusResponse{Stage: domain.StageInProgress}, nil
		},
	}

	rr := httptest.NewRecorder()
	newOrderRouter(service).ServeHTTP(rr, authenticatedRequest(t, http.MethodGet, "/offer-1/status", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload domain.OrderStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Stage != domain.StageInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", payload.Stage)
	}
}

func TestOrderHandlersRetrieve(t *testing.T) {
	service := &stubOrderService{
		retrieveFunc: func(_ context.Context, _ domain.SessionContext, orderID string) (domain.OrderConfirmation, error) {
			if orderID != "order-uuid-1" {
				t.Fatalf("unexpected order id %s", orderID)
			}
			return domain.OrderConfirmation{
				OrderID:    orderID,
				Order:      domain.Order{Price: domain.Price{Public: 435.50, Currency: "USD"}},
				SyncStatus: domain.SyncStatusCached,
			}, nil
		},
	}

	rr := httptest.NewRecorder()
	newOrderRouter(service).ServeHTTP(rr, authenticatedRequest(t, http.MethodGet, "/order-uuid-1", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload domain.OrderConfirmation
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.SyncStatus != domain.SyncStatusCached {
		t.Fatalf("expected CACHED sync status, got %s", payload.SyncStatus)
	}
}
