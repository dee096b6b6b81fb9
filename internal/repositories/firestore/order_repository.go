package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/skyward-labs/ndc-gateway/internal/domain"
	pfirestore "github.com/skyward-labs/ndc-gateway/internal/platform/firestore"
)

const ordersCollection = "orders"

// OrderRepository persists order records through their creation lifecycle.
// The document id is the offer id, so the whole collection doubles as a
// duplicate-booking guard. Firestore rejects a second Create under the same
// id, which turns the guard into a single atomic write instead of a
// check-then-act sequence.
type OrderRepository struct {
	base *pfirestore.BaseRepository[domain.OrderRecord]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[domain.OrderRecord](provider, ordersCollection, nil, nil)
	return &OrderRepository{base: base}, nil
}

// Create inserts the record keyed by its offer id. A record already present
// under the same offer surfaces as a conflict error.
func (r *OrderRepository) Create(ctx context.Context, record domain.OrderRecord) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(record.OfferID) == "" {
		return errors.New("order repository: offer id is required")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	_, err := r.base.Create(ctx, record.OfferID, record)
	return err
}

// Update overwrites the record under its offer id.
func (r *OrderRepository) Update(ctx context.Context, record domain.OrderRecord) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(record.OfferID) == "" {
		return errors.New("order repository: offer id is required")
	}
	record.UpdatedAt = time.Now().UTC()
	_, err := r.base.Set(ctx, record.OfferID, record)
	return err
}

// FindByOfferID loads the record created from the offer.
func (r *OrderRepository) FindByOfferID(ctx context.Context, offerID string) (domain.OrderRecord, error) {
	if r == nil || r.base == nil {
		return domain.OrderRecord{}, errors.New("order repository not initialised")
	}
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return domain.OrderRecord{}, pfirestore.NotFoundError("orders.get", errors.New("offer id is required"))
	}
	doc, err := r.base.Get(ctx, offerID)
	if err != nil {
		return domain.OrderRecord{}, err
	}
	return doc.Data, nil
}

// FindByOrderID looks the record up by the client-facing order id assigned
// once creation completes.
func (r *OrderRepository) FindByOrderID(ctx context.Context, orderID string) (domain.OrderRecord, error) {
	if r == nil || r.base == nil {
		return domain.OrderRecord{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.OrderRecord{}, pfirestore.NotFoundError("orders.find", errors.New("order id is required"))
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).Limit(1)
	})
	if err != nil {
		return domain.OrderRecord{}, err
	}
	if len(docs) == 0 {
		return domain.OrderRecord{}, pfirestore.NotFoundError("orders.find", errors.New("no record for order id"))
	}
	return docs[0].Data, nil
}
