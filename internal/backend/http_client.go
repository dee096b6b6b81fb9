package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	pathAirShopping      = "/air-shopping"
	pathOfferPrice       = "/offer-price"
	pathSeatAvailability = "/seat-availability"
	pathOrderCreate      = "/order-create"
	pathOrderRetrieve    = "/order-retrieve"

	maxReplyBytes = 8 << 20
)

// HTTPClientConfig configures an adapter-backed endpoint client.
type HTTPClientConfig struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
}

// HTTPClient talks JSON to an airline adapter endpoint. One instance serves
// one endpoint; credentials and base URL come from configuration.
type HTTPClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPClient constructs a client for the configured adapter endpoint.
func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("backend: endpoint is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}

	return &HTTPClient{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		client:   client,
	}, nil
}

// AirShopping implements Client.
func (c *HTTPClient) AirShopping(ctx context.Context, req SearchRequest) (*ShoppingReply, error) {
	var reply ShoppingReply
	raw, err := c.post(ctx, "AirShopping", pathAirShopping, req, &reply)
	if err != nil {
		return nil, err
	}
	reply.Raw = raw
	return &reply, nil
}

// OfferPrice implements Client.
func (c *HTTPClient) OfferPrice(ctx context.Context, req PriceRequest) (*PricingReply, error) {
	var reply PricingReply
	raw, err := c.post(ctx, "OfferPrice", pathOfferPrice, req, &reply)
	if err != nil {
		return nil, err
	}
	reply.Raw = raw
	return &reply, nil
}

// SeatAvailability implements Client.
func (c *HTTPClient) SeatAvailability(ctx context.Context, req SeatMapRequest) (*SeatMapReply, error) {
	var reply SeatMapReply
	raw, err := c.post(ctx, "SeatAvailability", pathSeatAvailability, req, &reply)
	if err != nil {
		return nil, err
	}
	reply.Raw = raw
	return &reply, nil
}

// OrderCreate implements Client.
func (c *HTTPClient) OrderCreate(ctx context.Context, req OrderCreateRequest) (*OrderReply, error) {
	var reply OrderReply
	raw, err := c.post(ctx, "OrderCreate", pathOrderCreate, req, &reply)
	if err != nil {
		return nil, err
	}
	reply.Raw = raw
	return &reply, nil
}

// OrderRetrieve implements Client.
func (c *HTTPClient) OrderRetrieve(ctx context.Context, req OrderRetrieveRequest) (*OrderReply, error) {
	var reply OrderReply
	raw, err := c.post(ctx, "OrderRetrieve", pathOrderRetrieve, req, &reply)
	if err != nil {
		var backendErr *Error
		if errors.As(err, &backendErr) && backendErr.status == http.StatusNotImplemented {
			return nil, ErrUnsupportedOperation
		}
		return nil, err
	}
	reply.Raw = raw
	return &reply, nil
}

// post sends one JSON request and decodes the reply, returning the raw body
// for archiving.
func (c *HTTPClient) post(ctx context.Context, operation, path string, payload, reply any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewError(operation, "encode request", false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(operation, "build request", false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("backend %s: %w", operation, context.DeadlineExceeded)
		}
		return nil, NewError(operation, "transport failure", true, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, NewError(operation, "read reply", true, err)
	}

	if resp.StatusCode != http.StatusOK {
		backendErr := NewError(operation,
			fmt.Sprintf("endpoint returned status %d", resp.StatusCode),
			resp.StatusCode >= http.StatusInternalServerError,
			nil)
		backendErr.status = resp.StatusCode
		return nil, backendErr
	}

	if err := json.Unmarshal(raw, reply); err != nil {
		return nil, NewError(operation, "decode reply", false, err)
	}
	return raw, nil
}
