package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxGuaranteeReplyBytes = 1 << 20

// HTTPGuaranteeConfig configures the settlement service client.
type HTTPGuaranteeConfig struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
}

// HTTPGuaranteeService resolves card tokens and deposit guarantees from the
// external settlement service over JSON.
type HTTPGuaranteeService struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPGuaranteeService constructs a settlement service client.
func NewHTTPGuaranteeService(cfg HTTPGuaranteeConfig) (*HTTPGuaranteeService, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("payments: guarantee endpoint is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	return &HTTPGuaranteeService{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		client:   client,
	}, nil
}

type cardTokenReply struct {
	ID             string `json:"id"`
	Brand          string `json:"brand"`
	AccountNumber  string `json:"accountNumber"`
	ExpiryMonth    string `json:"expiryMonth"`
	ExpiryYear     string `json:"expiryYear"`
	CardHolderName string `json:"cardholderName"`
	BillingAddress string `json:"billingAddress"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
}

type guaranteeReply struct {
	GuaranteeID   string    `json:"guaranteeId"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	CreditorOrgID string    `json:"creditorOrgId"`
	DebtorOrgID   string    `json:"debtorOrgId"`
	Expiration    time.Time `json:"expiration"`
}

// RetrieveToken implements GuaranteeService.
func (s *HTTPGuaranteeService) RetrieveToken(ctx context.Context, tokenID string) (CardToken, error) {
	var reply cardTokenReply
	if err := s.get(ctx, "/tokens/"+tokenID, &reply, ErrTokenNotFound); err != nil {
		return CardToken{}, err
	}

	amount, err := parseDecimalAmount(reply.Amount)
	if err != nil {
		return CardToken{}, fmt.Errorf("payments: token %s amount: %w", tokenID, err)
	}

	return CardToken{
		ID:             reply.ID,
		Brand:          reply.Brand,
		AccountNumber:  reply.AccountNumber,
		ExpiryMonth:    reply.ExpiryMonth,
		ExpiryYear:     reply.ExpiryYear,
		CardHolderName: reply.CardHolderName,
		BillingAddress: reply.BillingAddress,
		Amount:         amount,
		Currency:       strings.ToUpper(strings.TrimSpace(reply.Currency)),
	}, nil
}

// GetGuarantee implements GuaranteeService.
func (s *HTTPGuaranteeService) GetGuarantee(ctx context.Context, guaranteeID string) (Guarantee, error) {
	var reply guaranteeReply
	if err := s.get(ctx, "/balances/guarantees/"+guaranteeID, &reply, ErrGuaranteeNotFound); err != nil {
		return Guarantee{}, err
	}

	amount, err := parseDecimalAmount(reply.Amount)
	if err != nil {
		return Guarantee{}, fmt.Errorf("payments: guarantee %s amount: %w", guaranteeID, err)
	}

	return Guarantee{
		GuaranteeID:   reply.GuaranteeID,
		Amount:        amount,
		Currency:      strings.ToUpper(strings.TrimSpace(reply.Currency)),
		CreditorOrgID: reply.CreditorOrgID,
		DebtorOrgID:   reply.DebtorOrgID,
		Expiration:    reply.Expiration,
	}, nil
}

func (s *HTTPGuaranteeService) get(ctx context.Context, path string, reply any, notFound error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+path, nil)
	if err != nil {
		return fmt.Errorf("payments: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("payments: settlement service unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return notFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("payments: settlement service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGuaranteeReplyBytes))
	if err != nil {
		return fmt.Errorf("payments: read settlement reply: %w", err)
	}
	if err := json.Unmarshal(body, reply); err != nil {
		return fmt.Errorf("payments: decode settlement reply: %w", err)
	}
	return nil
}

// parseDecimalAmount reads the service's decimal-string amounts. The wire
// format always carries amounts as strings to avoid float drift in transit.
func parseDecimalAmount(value string) (float64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	amount, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", value)
	}
	if amount < 0 {
		return 0, fmt.Errorf("negative amount %q", value)
	}
	return amount, nil
}
