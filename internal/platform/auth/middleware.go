package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

const (
	defaultOrgClaim    = "iss"
	defaultClientClaim = "sub"
)

// Authenticator validates client bearer tokens against a JWKS cache and
// resolves them to an organisation identity. The organisation identifier
// travels in the issuer claim, following the decentralised-identifier token
// profile the distribution partners sign with.
type Authenticator struct {
	cache   *JWKSCache
	logger  Logger
	metrics MetricsRecorder
	now     func() time.Time

	audience    string
	orgClaim    string
	clientClaim string
}

// AuthenticatorOption customises the authenticator.
type AuthenticatorOption func(*Authenticator)

// NewAuthenticator constructs an Authenticator over the provided JWKS cache.
func NewAuthenticator(cache *JWKSCache, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		cache:       cache,
		logger:      log.Default(),
		now:         time.Now,
		orgClaim:    defaultOrgClaim,
		clientClaim: defaultClientClaim,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	return a
}

// WithAudience requires tokens to carry the given audience.
func WithAudience(audience string) AuthenticatorOption {
	return func(a *Authenticator) {
		a.audience = strings.TrimSpace(audience)
	}
}

// WithOrgClaim overrides the claim holding the organisation identifier.
func WithOrgClaim(claim string) AuthenticatorOption {
	return func(a *Authenticator) {
		claim = strings.TrimSpace(claim)
		if claim != "" {
			a.orgClaim = claim
		}
	}
}

// WithAuthLogger overrides the authenticator logger.
func WithAuthLogger(logger Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAuthMetrics sets the metrics recorder.
func WithAuthMetrics(recorder MetricsRecorder) AuthenticatorOption {
	return func(a *Authenticator) {
		a.metrics = recorder
	}
}

// WithAuthClock injects a custom clock (primarily for testing).
func WithAuthClock(now func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// RequireSession enforces a valid bearer token and stores the resolved
// organisation identity on the request context.
func (a *Authenticator) RequireSession() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := a.now()
			ctx := r.Context()

			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				a.record(ctx, false, "token_missing", start)
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "bearer token missing")
				return
			}

			if a == nil || a.cache == nil {
				a.record(ctx, false, "cache_unavailable", start)
				respondAuthError(w, http.StatusServiceUnavailable, "verification_unavailable", "token verification unavailable")
				return
			}

			parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))

			claims := jwt.MapClaims{}
			if _, err := parser.ParseWithClaims(tokenStr, claims, a.cache.Keyfunc(ctx)); err != nil {
				status := http.StatusUnauthorized
				reason := "token_invalid"
				if errors.Is(err, ErrJWKSFetchFailed) {
					status = http.StatusServiceUnavailable
					reason = "jwks_unavailable"
				}
				if a.logger != nil {
					a.logger.Printf("auth: bearer verification failed (%s): %v", reason, err)
				}
				a.record(ctx, false, reason, start)
				respondAuthError(w, status, "invalid_token", "bearer token verification failed")
				return
			}

			if a.audience != "" {
				if !containsString(audienceFromClaims(claims), a.audience) {
					a.record(ctx, false, "audience_mismatch", start)
					respondAuthError(w, http.StatusUnauthorized, "invalid_token", "token audience mismatch")
					return
				}
			}

			orgID, _ := claims[a.orgClaim].(string)
			orgID = strings.TrimSpace(orgID)
			if orgID == "" {
				a.record(ctx, false, "org_missing", start)
				respondAuthError(w, http.StatusForbidden, "invalid_org", "token carries no organisation identifier")
				return
			}

			clientName, _ := claims[a.clientClaim].(string)
			issuer, _ := claims["iss"].(string)

			identity := &Identity{
				OrgID:      orgID,
				ClientName: strings.TrimSpace(clientName),
				Issuer:     issuer,
				Audience:   a.audience,
				Claims:     cloneClaims(claims),
			}

			a.record(ctx, true, "ok", start)
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

func (a *Authenticator) record(ctx context.Context, success bool, reason string, start time.Time) {
	if a == nil || a.metrics == nil {
		return
	}
	a.metrics.RecordVerification(ctx, "bearer", success, reason, a.now().Sub(start))
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}

	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
		"status":  status,
	})
}

func audienceFromClaims(claims jwt.MapClaims) []string {
	raw, ok := claims["aud"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return []string{strings.TrimSpace(v)}
	case []string:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				continue
			}
			if str = strings.TrimSpace(str); str != "" {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func cloneClaims(claims jwt.MapClaims) map[string]any {
	out := make(map[string]any, len(claims))
	for key, value := range claims {
		out[key] = value
	}
	return out
}
