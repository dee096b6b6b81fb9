// Package components records booked travel components against the payment
// guarantee that funded them, for downstream settlement and reconciliation.
// Recording is strictly best-effort: a booking never fails because the
// ledger could not be reached.
package components

import (
	"context"
	"time"
)

// TravelComponent is one settled piece of travel, today always flights.
type TravelComponent struct {
	ComponentType string    `json:"componentType"`
	RecordLocator string    `json:"recordLocator,omitempty"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	BookedAt      time.Time `json:"bookedAt"`
}

// Notification ties booked components to the guarantee they settle against.
type Notification struct {
	GuaranteeID string            `json:"guaranteeId"`
	OrderID     string            `json:"orderId"`
	OfferID     string            `json:"offerId"`
	OrgID       string            `json:"orgId"`
	ProviderID  string            `json:"providerId"`
	Components  []TravelComponent `json:"components"`
}

// Notifier records booked components. Implementations must be safe to call
// after a committed booking; errors are reported for logging only.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// NopNotifier discards notifications. Used when no ledger is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error { return nil }
