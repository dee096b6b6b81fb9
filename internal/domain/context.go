package domain

import "time"

// ContextRecordType tags which pipeline stage produced a context record.
type ContextRecordType string

const (
	ContextShopping ContextRecordType = "SHOPPING"
	ContextPricing  ContextRecordType = "PRICING"
	ContextSeatMap  ContextRecordType = "SEATMAP"
)

// ContextRecord persists the raw backend response of one pipeline stage
// together with the identity mapping derived from it. NDC carries no
// session, so every follow-up call re-supplies this context. Records are
// append-only and never mutated; several client identifiers may index the
// same record (e.g. outbound and inbound offers sharing one shopping
// response).
type ContextRecord struct {
	ContextID   string            `firestore:"contextId"`
	ProviderID  string            `firestore:"providerId"`
	Type        ContextRecordType `firestore:"dataType"`
	Identifiers []string          `firestore:"identifiers"`
	Payload     []byte            `firestore:"payload"`
	CreatedAt   time.Time         `firestore:"createdAt"`
}
