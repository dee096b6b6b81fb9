// Package payments covers the money side of a booking: the external
// guarantee service that vouches for the client's funds, and the charge
// providers used to collect the gateway's own booking fee.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ChargeStatus enumerates the normalised charge states shared across providers.
type ChargeStatus string

const (
	// ChargeStatusAuthorized indicates funds are held but not yet collected.
	ChargeStatusAuthorized ChargeStatus = "authorized"
	// ChargeStatusCaptured indicates the PSP reports the charge as collected.
	ChargeStatusCaptured ChargeStatus = "captured"
	// ChargeStatusReverted indicates the authorisation was released.
	ChargeStatusReverted ChargeStatus = "reverted"
	// ChargeStatusFailed indicates the PSP reports a failure and no further action is possible.
	ChargeStatusFailed ChargeStatus = "failed"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// AuthorizeRequest places a hold for the amount against the instrument.
type AuthorizeRequest struct {
	Amount         int64
	Currency       string
	InstrumentID   string
	Reference      string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// CaptureRequest collects a previously authorised charge.
type CaptureRequest struct {
	ChargeID       string
	IdempotencyKey string
}

// RevertRequest releases a previously authorised charge.
type RevertRequest struct {
	ChargeID       string
	IdempotencyKey string
}

// Charge is the normalised view of a PSP charge.
type Charge struct {
	ChargeID string
	Provider string
	Status   ChargeStatus
	Amount   int64
	Currency string
	Raw      map[string]any
}

// Provider defines the contract for PSP adapters to implement. Every charge
// follows authorize then exactly one of capture or revert.
type Provider interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (Charge, error)
	Capture(ctx context.Context, req CaptureRequest) (Charge, error)
	Revert(ctx context.Context, req RevertRequest) (Charge, error)
}

// Manager routes charge operations to the provider named by policy.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used when no key is supplied.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
	}
	if _, ok := copyMap["stripe"]; ok {
		m.defaultProvider = "stripe"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) resolveProvider(key string) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if key = strings.TrimSpace(strings.ToLower(key)); key != "" {
		if p, ok := m.providers[key]; ok {
			return key, p, nil
		}
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, key)
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// Authorize delegates to the named provider.
func (m *Manager) Authorize(ctx context.Context, providerKey string, req AuthorizeRequest) (Charge, error) {
	key, provider, err := m.resolveProvider(providerKey)
	if err != nil {
		return Charge{}, err
	}
	charge, err := provider.Authorize(ctx, req)
	if err != nil {
		return Charge{}, err
	}
	charge.Provider = key
	return charge, nil
}

// Capture delegates to the named provider.
func (m *Manager) Capture(ctx context.Context, providerKey string, req CaptureRequest) (Charge, error) {
	key, provider, err := m.resolveProvider(providerKey)
	if err != nil {
		return Charge{}, err
	}
	charge, err := provider.Capture(ctx, req)
	if err != nil {
		return Charge{}, err
	}
	charge.Provider = key
	return charge, nil
}

// Revert delegates to the named provider.
func (m *Manager) Revert(ctx context.Context, providerKey string, req RevertRequest) (Charge, error) {
	key, provider, err := m.resolveProvider(providerKey)
	if err != nil {
		return Charge{}, err
	}
	charge, err := provider.Revert(ctx, req)
	if err != nil {
		return Charge{}, err
	}
	charge.Provider = key
	return charge, nil
}
