package auth

import (
	"context"
	"strings"
)

// Identity captures the authenticated client organisation extracted from a
// verified bearer token. The gateway authenticates organisations, not end
// users; OrgID is the stable key every policy decision hangs off.
type Identity struct {
	OrgID      string
	ClientName string
	Issuer     string
	Audience   string
	Claims     map[string]any
}

// Claim returns the named claim as a trimmed string when present.
func (i *Identity) Claim(name string) string {
	if i == nil || i.Claims == nil {
		return ""
	}
	value, _ := i.Claims[name].(string)
	return strings.TrimSpace(value)
}

type contextKey string

const identityContextKey contextKey = "github.com/skyward-labs/ndc-gateway/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
