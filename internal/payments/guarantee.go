package payments

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTokenNotFound indicates the guarantee service holds no card token under the id.
	ErrTokenNotFound = errors.New("payments: card token not found")
	// ErrGuaranteeNotFound indicates the guarantee service holds no deposit guarantee under the id.
	ErrGuaranteeNotFound = errors.New("payments: guarantee not found")
)

// CardToken is a detokenised card instrument held by the guarantee service.
// Amount and Currency, when present, bound what the token may be charged.
type CardToken struct {
	ID             string
	Brand          string
	AccountNumber  string
	ExpiryMonth    string
	ExpiryYear     string
	CardHolderName string
	BillingAddress string
	Amount         float64
	Currency       string
}

// Guarantee is a pre-established deposit claimable after booking.
type Guarantee struct {
	GuaranteeID   string
	Amount        float64
	Currency      string
	CreditorOrgID string
	DebtorOrgID   string
	Expiration    time.Time
}

// GuaranteeService is the external settlement collaborator vouching for the
// client organisation's funds. Implementations own transport and credential
// handling.
type GuaranteeService interface {
	// RetrieveToken resolves a card token guarantee to its instrument data.
	RetrieveToken(ctx context.Context, tokenID string) (CardToken, error)
	// GetGuarantee resolves a deposit guarantee.
	GetGuarantee(ctx context.Context, guaranteeID string) (Guarantee, error)
}
