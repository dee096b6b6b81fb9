// Package metadata implements the transaction context store. NDC sessions
// are stateless on the gateway side: every request that continues a prior
// transaction reconstructs its state from a persisted context record found
// through one of the client identifiers minted during the earlier stage.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/skyward-labs/ndc-gateway/internal/domain"
	"github.com/skyward-labs/ndc-gateway/internal/repositories"
)

var (
	// ErrContextNotFound indicates no stored record matches the identifier.
	ErrContextNotFound = errors.New("metadata: context not found")
	// ErrContextInvalidInput indicates the caller supplied invalid parameters.
	ErrContextInvalidInput = errors.New("metadata: invalid input")
)

// Store persists and resolves transaction context records.
type Store interface {
	// Store marshals the payload and persists it indexed by every
	// identifier, returning the assigned context id.
	Store(ctx context.Context, providerID string, recordType domain.ContextRecordType, identifiers []string, payload any) (string, error)
	// Find resolves the most recent record of the given type carrying the
	// identifier and unmarshals its payload into out.
	Find(ctx context.Context, providerID string, recordType domain.ContextRecordType, identifier string, out any) (domain.ContextRecord, error)
}

// StoreDeps bundles collaborators required to construct a context store.
type StoreDeps struct {
	Repository repositories.ContextRepository
	Logger     *zap.Logger
	Clock      func() time.Time
}

type contextStore struct {
	repo   repositories.ContextRepository
	logger *zap.Logger
	clock  func() time.Time
}

// NewStore constructs a Store backed by the context repository.
func NewStore(deps StoreDeps) (Store, error) {
	if deps.Repository == nil {
		return nil, errors.New("metadata store: repository is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &contextStore{
		repo:   deps.Repository,
		logger: logger.Named("metadata"),
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *contextStore) Store(ctx context.Context, providerID string, recordType domain.ContextRecordType, identifiers []string, payload any) (string, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return "", fmt.Errorf("%w: provider id is required", ErrContextInvalidInput)
	}
	keys := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		if id = strings.TrimSpace(id); id != "" {
			keys = append(keys, id)
		}
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("%w: at least one identifier is required", ErrContextInvalidInput)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("metadata store: encode payload: %w", err)
	}

	record, err := s.repo.Insert(ctx, domain.ContextRecord{
		ProviderID:  providerID,
		Type:        recordType,
		Identifiers: keys,
		Payload:     body,
		CreatedAt:   s.clock(),
	})
	if err != nil {
		return "", err
	}
	return record.ContextID, nil
}

func (s *contextStore) Find(ctx context.Context, providerID string, recordType domain.ContextRecordType, identifier string, out any) (domain.ContextRecord, error) {
	providerID = strings.TrimSpace(providerID)
	identifier = strings.TrimSpace(identifier)
	if providerID == "" {
		return domain.ContextRecord{}, fmt.Errorf("%w: provider id is required", ErrContextInvalidInput)
	}
	if identifier == "" {
		return domain.ContextRecord{}, fmt.Errorf("%w: identifier is required", ErrContextInvalidInput)
	}

	records, err := s.repo.FindByIdentifier(ctx, providerID, recordType, identifier)
	if err != nil {
		return domain.ContextRecord{}, err
	}
	if len(records) == 0 {
		return domain.ContextRecord{}, fmt.Errorf("%w: %s/%s %q", ErrContextNotFound, providerID, recordType, identifier)
	}

	record := records[0]
	for _, candidate := range records[1:] {
		if candidate.CreatedAt.After(record.CreatedAt) {
			record = candidate
		}
	}
	if len(records) > 1 {
		// Identifiers are minted per transaction, so duplicates mean a
		// replayed write or an identifier reuse upstream.
		s.logger.Warn("multiple context records share an identifier",
			zap.String("providerId", providerID),
			zap.String("dataType", string(recordType)),
			zap.String("identifier", identifier),
			zap.Int("matches", len(records)),
			zap.String("selectedContextId", record.ContextID))
	}

	if out != nil {
		if err := json.Unmarshal(record.Payload, out); err != nil {
			return domain.ContextRecord{}, fmt.Errorf("metadata store: decode payload %s: %w", record.ContextID, err)
		}
	}
	return record, nil
}
