package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/skyward-labs/ndc-gateway/internal/domain"
)

func TestHTTPClientAirShopping(t *testing.T) {
	var gotAuth string
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(ShoppingReply{
			ResponseID:       "resp-1",
			CurrencyDecimals: map[string]int{"USD": 2},
			Offers: map[string]Offer{
				"native-offer-1": {Total: Money{Raw: 43000, Currency: "USD"}},
			},
		})
	}))
	defer server.Close()

	client, err := NewHTTPClient(HTTPClientConfig{Endpoint: server.URL, APIKey: "adapter-key"})
	if err != nil {
		t.Fatalf("NewHTTPClient returned error: %v", err)
	}

	reply, err := client.AirShopping(context.Background(), SearchRequest{
		Criteria: domain.SearchCriteria{},
	})
	if err != nil {
		t.Fatalf("AirShopping returned error: %v", err)
	}

	if gotAuth != "Bearer adapter-key" {
		t.Errorf("unexpected authorization header: %s", gotAuth)
	}
	if gotPath != "/air-shopping" {
		t.Errorf("unexpected path: %s", gotPath)
	}
	if reply.ResponseID != "resp-1" {
		t.Errorf("unexpected response id: %s", reply.ResponseID)
	}
	if len(reply.Raw) == 0 {
		t.Errorf("expected raw body preserved for archiving")
	}
	offer := reply.Offers["native-offer-1"]
	if offer.Total.Raw != 43000 || offer.Total.Currency != "USD" {
		t.Errorf("unexpected offer total: %+v", offer.Total)
	}
}

func TestHTTPClientServerErrorIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream boom", http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewHTTPClient(HTTPClientConfig{Endpoint: server.URL})
	if err != nil {
		t.Fatalf("NewHTTPClient returned error: %v", err)
	}

	_, err = client.OfferPrice(context.Background(), PriceRequest{ResponseID: "resp-1"})
	if err == nil {
		t.Fatalf("expected error")
	}
	var backendErr *Error
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected backend error, got %T", err)
	}
	if !backendErr.Temporary {
		t.Errorf("expected temporary error for 502")
	}
	if backendErr.Status() != http.StatusBadGateway {
		t.Errorf("unexpected status: %d", backendErr.Status())
	}
}

func TestHTTPClientClientErrorIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewHTTPClient(HTTPClientConfig{Endpoint: server.URL})
	if err != nil {
		t.Fatalf("NewHTTPClient returned error: %v", err)
	}

	_, err = client.OrderCreate(context.Background(), OrderCreateRequest{OfferID: "offer-1"})
	var backendErr *Error
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if backendErr.Temporary {
		t.Errorf("expected permanent error for 400")
	}
}

func TestHTTPClientOrderRetrieveUnsupported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not implemented", http.StatusNotImplemented)
	}))
	defer server.Close()

	client, err := NewHTTPClient(HTTPClientConfig{Endpoint: server.URL})
	if err != nil {
		t.Fatalf("NewHTTPClient returned error: %v", err)
	}

	_, err = client.OrderRetrieve(context.Background(), OrderRetrieveRequest{OrderID: "native-1"})
	if !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation, got %v", err)
	}
}

func TestHTTPClientDeadlineSurfacesAsTimeout(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	client, err := NewHTTPClient(HTTPClientConfig{Endpoint: server.URL})
	if err != nil {
		t.Fatalf("NewHTTPClient returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = client.AirShopping(ctx, SearchRequest{})
	if !IsTimeout(err) {
		t.Fatalf("expected timeout classification, got %v", err)
	}
}

func TestHTTPClientInvalidReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	client, err := NewHTTPClient(HTTPClientConfig{Endpoint: server.URL})
	if err != nil {
		t.Fatalf("NewHTTPClient returned error: %v", err)
	}

	if _, err := client.SeatAvailability(context.Background(), SeatMapRequest{}); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestNewHTTPClientRequiresEndpoint(t *testing.T) {
	if _, err := NewHTTPClient(HTTPClientConfig{}); err == nil {
		t.Fatalf("expected endpoint validation error")
	}
}
