// Package rules evaluates per-organisation distribution policy: which
// providers an organisation may search, how its bookings are guaranteed,
// and whether a booking fee applies. Policy lives entirely in configuration
// profiles; the engine holds no airline-specific logic.
package rules

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	domain "github.com/skyward-labs/ndc-gateway/internal/domain"
)

// FeePolicy describes the booking fee charged on top of a provider's fare.
// Amount is in minor units of Currency.
type FeePolicy struct {
	Amount         int64
	Currency       string
	ChargeProvider string
}

// Profile is one organisation's distribution policy.
type Profile struct {
	OrgID      string
	Providers  []string
	Guarantee  domain.GuaranteeType
	BookingFee *FeePolicy
}

// Engine resolves session-scoped policy questions from loaded profiles.
type Engine struct {
	profiles map[string]Profile
}

// NewEngine builds an engine from the configured profiles. Profiles are
// validated eagerly so a malformed deployment fails at startup.
func NewEngine(profiles []Profile) (*Engine, error) {
	byOrg := make(map[string]Profile, len(profiles))
	for _, profile := range profiles {
		orgID := strings.TrimSpace(profile.OrgID)
		if orgID == "" {
			return nil, errors.New("rules: profile without org id")
		}
		if _, exists := byOrg[orgID]; exists {
			return nil, fmt.Errorf("rules: duplicate profile for org %s", orgID)
		}
		switch profile.Guarantee {
		case "", domain.GuaranteeTypeToken, domain.GuaranteeTypeDeposit:
		default:
			return nil, fmt.Errorf("rules: org %s: unknown guarantee type %q", orgID, profile.Guarantee)
		}
		if fee := profile.BookingFee; fee != nil {
			if fee.Amount <= 0 || strings.TrimSpace(fee.Currency) == "" || strings.TrimSpace(fee.ChargeProvider) == "" {
				return nil, fmt.Errorf("rules: org %s: incomplete booking fee policy", orgID)
			}
		}
		byOrg[orgID] = profile
	}
	return &Engine{profiles: byOrg}, nil
}

// EligibleProviders returns the provider ids the session's organisation may
// search. An organisation without a profile gets no providers; an absent
// org id in the session is a client error.
func (e *Engine) EligibleProviders(session domain.SessionContext) ([]string, error) {
	profile, err := e.profileFor(session)
	if err != nil {
		return nil, err
	}
	providers := make([]string, len(profile.Providers))
	copy(providers, profile.Providers)
	return providers, nil
}

// GuaranteeType returns the payment mechanism required of the organisation
// when booking with the provider. Organisations without an explicit policy
// default to deposit guarantees.
func (e *Engine) GuaranteeType(session domain.SessionContext, providerID string) (domain.GuaranteeType, error) {
	profile, err := e.profileFor(session)
	if err != nil {
		return "", err
	}
	if profile.Guarantee == "" {
		return domain.GuaranteeTypeDeposit, nil
	}
	return profile.Guarantee, nil
}

// BookingFee returns the fee policy applying when the organisation books
// with the provider, or nil when no fee is configured.
func (e *Engine) BookingFee(session domain.SessionContext, providerID string) (*FeePolicy, error) {
	profile, err := e.profileFor(session)
	if err != nil {
		return nil, err
	}
	if profile.BookingFee == nil {
		return nil, nil
	}
	fee := *profile.BookingFee
	return &fee, nil
}

func (e *Engine) profileFor(session domain.SessionContext) (Profile, error) {
	orgID := strings.TrimSpace(session.OrgID)
	if orgID == "" {
		return Profile{}, domain.NewError(domain.CodeInvalidOrg, http.StatusBadRequest, "session carries no organisation id")
	}
	return e.profiles[orgID], nil
}
