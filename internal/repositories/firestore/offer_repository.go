package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/oklog/ulid/v2"

	domain "github.com/skyward-labs/ndc-gateway/internal/domain"
	pfirestore "github.com/skyward-labs/ndc-gateway/internal/platform/firestore"
)

const offersCollection = "offers"

// OfferRepository persists client-visible offer summaries.
type OfferRepository struct {
	base *pfirestore.BaseRepository[domain.OfferRecord]
}

// NewOfferRepository constructs a Firestore-backed offer repository.
func NewOfferRepository(provider *pfirestore.Provider) (*OfferRepository, error) {
	if provider == nil {
		return nil, errors.New("offer repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[domain.OfferRecord](provider, offersCollection, nil, nil)
	return &OfferRepository{base: base}, nil
}

// Save appends a new offer record. Repricing writes a fresh document rather
// than mutating the prior one, so document ids are independent of offer ids.
func (r *OfferRepository) Save(ctx context.Context, offer domain.OfferRecord) error {
	if r == nil || r.base == nil {
		return errors.New("offer repository not initialised")
	}
	if strings.TrimSpace(offer.OfferID) == "" {
		return errors.New("offer repository: offer id is required")
	}
	if offer.CreatedAt.IsZero() {
		offer.CreatedAt = time.Now().UTC()
	}
	_, err := r.base.Set(ctx, ulid.Make().String(), offer)
	return err
}

// FindCurrent returns the most recent unexpired record for the offer id.
func (r *OfferRepository) FindCurrent(ctx context.Context, offerID string, now time.Time) (domain.OfferRecord, error) {
	if r == nil || r.base == nil {
		return domain.OfferRecord{}, errors.New("offer repository not initialised")
	}
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return domain.OfferRecord{}, pfirestore.NotFoundError("offers.find", errors.New("offer id is required"))
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("offerId", "==", offerID)
	})
	if err != nil {
		return domain.OfferRecord{}, err
	}

	var latest *domain.OfferRecord
	for i := range docs {
		candidate := docs[i].Data
		if candidate.Expired(now) {
			continue
		}
		if latest == nil || candidate.CreatedAt.After(latest.CreatedAt) {
			latest = &candidate
		}
	}
	if latest == nil {
		return domain.OfferRecord{}, pfirestore.NotFoundError("offers.find", errors.New("offer missing or expired"))
	}
	return *latest, nil
}
