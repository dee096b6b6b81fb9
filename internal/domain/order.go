package domain

import "time"

// ProcessingStage is the lifecycle stage of an order record. IN_PROGRESS is
// written before any external call; COMPLETED and CREATION_FAILED are
// terminal and an order never leaves a terminal stage.
type ProcessingStage string

const (
	StageInProgress     ProcessingStage = "IN_PROGRESS"
	StageCompleted      ProcessingStage = "COMPLETED"
	StageCreationFailed ProcessingStage = "CREATION_FAILED"
	StageNotFound       ProcessingStage = "NOT_FOUND"
)

// GuaranteeType is the payment mechanism backing an order.
type GuaranteeType string

const (
	// GuaranteeTypeToken charges a tokenised card directly.
	GuaranteeTypeToken GuaranteeType = "TOKEN"
	// GuaranteeTypeDeposit claims a pre-established credit guarantee after booking.
	GuaranteeTypeDeposit GuaranteeType = "DEPOSIT"
)

// SyncStatus tells the caller whether a retrieved order reflects the
// backend in real time or the last persisted confirmation.
type SyncStatus string

const (
	SyncStatusRealtime SyncStatus = "REALTIME"
	SyncStatusCached   SyncStatus = "CACHED"
)

// BookingReference is a record locator issued by a carrier or aggregator.
type BookingReference struct {
	CarrierCode string `firestore:"airlineCode,omitempty" json:"airlineCode,omitempty"`
	Reference   string `firestore:"referenceNumber" json:"referenceNumber"`
}

// Order is the confirmed booking as exposed to the client.
type Order struct {
	Price             Price              `firestore:"price" json:"price"`
	BookingReferences []BookingReference `firestore:"travelDocuments,omitempty" json:"travelDocuments,omitempty"`
	Passengers        map[string]Passenger `firestore:"passengers,omitempty" json:"passengers,omitempty"`
	Status            string             `firestore:"status,omitempty" json:"status,omitempty"`
}

// OrderConfirmation is returned from order creation and retrieval.
type OrderConfirmation struct {
	OrderID    string     `json:"orderId"`
	Order      Order      `json:"order"`
	SyncStatus SyncStatus `json:"syncStatus,omitempty"`
}

// OrderStatusResponse is the outcome of a status lookup by offer id. The
// confirmation is present only when the stage is COMPLETED.
type OrderStatusResponse struct {
	Stage        ProcessingStage    `json:"status"`
	Confirmation *OrderConfirmation `json:"confirmation,omitempty"`
}

// BookingFeeCharge is an authorised booking-fee payment. It must end up
// either captured or reverted; anything else is a leaked authorisation.
type BookingFeeCharge struct {
	ChargeID  string `firestore:"chargeId" json:"chargeId"`
	Provider  string `firestore:"provider" json:"provider"`
	Amount    int64  `firestore:"amount" json:"amount"`
	Currency  string `firestore:"currency" json:"currency"`
	Reference string `firestore:"reference" json:"reference"`
}

// OrderRecord is the persisted state of one order-creation attempt, keyed
// by the offer id it was created from. OrderID starts equal to the offer id
// and is replaced once the backend assigns a real order id.
type OrderRecord struct {
	OrderID          string            `firestore:"orderId"`
	OfferID          string            `firestore:"offerId"`
	OrgID            string            `firestore:"orgId"`
	ProviderID       string            `firestore:"providerId"`
	Stage            ProcessingStage   `firestore:"processingStage"`
	GuaranteeID      string            `firestore:"guaranteeId"`
	GuaranteeType    GuaranteeType     `firestore:"guaranteeType,omitempty"`
	ProviderOrderID  string            `firestore:"providerOrderId,omitempty"`
	Confirmation     *Order            `firestore:"confirmation,omitempty"`
	BookingFeeCharge *BookingFeeCharge `firestore:"bookingFeeCharge,omitempty"`
	CreatedAt        time.Time         `firestore:"createdAt"`
	UpdatedAt        time.Time         `firestore:"updatedAt"`
}

// OfferRecord is the persisted summary of a client-visible offer, used to
// route follow-up calls to the issuing provider and to validate payments.
type OfferRecord struct {
	OfferID    string    `firestore:"offerId"`
	ProviderID string    `firestore:"providerId"`
	Price      float64   `firestore:"price"`
	Currency   string    `firestore:"currency"`
	Expiration time.Time `firestore:"expiration"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

// Expired reports whether the offer can no longer be acted upon at now.
func (o OfferRecord) Expired(now time.Time) bool {
	return !o.Expiration.IsZero() && !now.Before(o.Expiration)
}
