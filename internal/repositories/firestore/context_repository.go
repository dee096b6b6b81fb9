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

const contextsCollection = "contexts"

// ContextRepository persists transaction context records. Records are keyed
// by their ULID context id and queried back either directly or through the
// client-visible identifiers they carry.
type ContextRepository struct {
	base *pfirestore.BaseRepository[domain.ContextRecord]
}

// NewContextRepository constructs a Firestore-backed context repository.
func NewContextRepository(provider *pfirestore.Provider) (*ContextRepository, error) {
	if provider == nil {
		return nil, errors.New("context repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[domain.ContextRecord](provider, contextsCollection, nil, nil)
	return &ContextRepository{base: base}, nil
}

// Insert stores the record, assigning a context id when missing.
func (r *ContextRepository) Insert(ctx context.Context, record domain.ContextRecord) (domain.ContextRecord, error) {
	if r == nil || r.base == nil {
		return domain.ContextRecord{}, errors.New("context repository not initialised")
	}
	if strings.TrimSpace(record.ProviderID) == "" {
		return domain.ContextRecord{}, errors.New("context repository: provider id is required")
	}
	if record.ContextID == "" {
		record.ContextID = ulid.Make().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if _, err := r.base.Set(ctx, record.ContextID, record); err != nil {
		return domain.ContextRecord{}, err
	}
	return record, nil
}

// FindByIdentifier returns every record of the given type for the provider
// that carries the identifier. Callers decide how to break ties.
func (r *ContextRepository) FindByIdentifier(ctx context.Context, providerID string, recordType domain.ContextRecordType, identifier string) ([]domain.ContextRecord, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("context repository not initialised")
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, nil
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("providerId", "==", providerID).
			Where("dataType", "==", string(recordType)).
			Where("identifiers", "array-contains", identifier)
	})
	if err != nil {
		return nil, err
	}
	records := make([]domain.ContextRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, doc.Data)
	}
	return records, nil
}

// FindByContextID loads a record by its id.
func (r *ContextRepository) FindByContextID(ctx context.Context, contextID string) (domain.ContextRecord, error) {
	if r == nil || r.base == nil {
		return domain.ContextRecord{}, errors.New("context repository not initialised")
	}
	contextID = strings.TrimSpace(contextID)
	if contextID == "" {
		return domain.ContextRecord{}, pfirestore.NotFoundError("contexts.get", errors.New("context id is required"))
	}
	doc, err := r.base.Get(ctx, contextID)
	if err != nil {
		return domain.ContextRecord{}, err
	}
	return doc.Data, nil
}
