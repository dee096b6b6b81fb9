package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	defaultEnvFile       = ".env"
	defaultPort          = "8080"
	defaultReadTimeout   = 15 * time.Second
	defaultWriteTimeout  = 120 * time.Second
	defaultIdleTimeout   = 120 * time.Second
	defaultSearchTimeout = 60 * time.Second
	defaultEnvironment   = "local"
	defaultOrgClaim      = "iss"
	defaultChargeKey     = "stripe"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Firestore  FirestoreConfig
	Auth       AuthConfig
	Providers  []ProviderConfig
	Rules      RulesConfig
	Payments   PaymentsConfig
	Guarantees GuaranteesConfig
	Components ComponentsConfig
	Archive    ArchiveConfig
	Search     SearchConfig

	Environment string
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// AuthConfig controls client bearer token verification.
type AuthConfig struct {
	JWKSURL  string
	Audience string
	OrgClaim string
}

// ProviderConfig describes one NDC backend connection. Capabilities that
// differ between carriers are flags here, never code branches elsewhere.
type ProviderConfig struct {
	ID                    string
	AirlineCode           string
	Endpoint              string
	APIKey                string
	SupportsOrderRetrieve bool
}

// RulesConfig carries the per-organisation policy profiles, usually as one
// JSON document in the environment.
type RulesConfig struct {
	Profiles []OrgProfileConfig
}

// OrgProfileConfig is the decoded policy profile for one client organisation.
type OrgProfileConfig struct {
	OrgID      string            `json:"org"`
	Providers  []string          `json:"providers"`
	Guarantee  string            `json:"guarantee,omitempty"`
	BookingFee *BookingFeeConfig `json:"bookingFee,omitempty"`
}

// BookingFeeConfig configures the optional booking fee charged on card-token
// bookings. Amount is in minor currency units.
type BookingFeeConfig struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	ChargeProvider string `json:"chargeProvider,omitempty"`
}

// PaymentsConfig collects charge provider credentials.
type PaymentsConfig struct {
	StripeAPIKey    string
	StripeAccountID string
}

// GuaranteesConfig points at the external settlement/guarantee service.
type GuaranteesConfig struct {
	Endpoint string
	APIKey   string
}

// ComponentsConfig configures the travel-components ledger notifier.
type ComponentsConfig struct {
	ProjectID string
	Topic     string
}

// ArchiveConfig names the bucket receiving raw wire-message archives.
type ArchiveConfig struct {
	Bucket string
}

// SearchConfig tunes the shopping fan-out.
type SearchConfig struct {
	Timeout time.Duration
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	secrets []missingSecret
}

type missingSecret struct {
	name     string
	redacted string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.secrets) == 0 {
		return "missing required secrets"
	}
	names := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		names = append(names, secret.redacted)
	}
	sort.Strings(names)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(names, ", "))
}

// RedactedNames returns a copy of the redacted secret identifiers.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.redacted)
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.name)
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

// EnvironmentValues returns the effective key/value environment map after applying the same precedence
// rules as Load (dotenv < OS env < explicit env map). Callers can use the result to initialise
// dependencies before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	merge := func(source map[string]string) {
		for key, value := range source {
			values[key] = value
		}
	}

	merge(dotEnvValues)

	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			if key == "" {
				continue
			}
			values[key] = parts[1]
		}
	}

	merge(options.envMap)

	return values, nil
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory.
// Identifiers match the config field names recorded by the loader
// (e.g. "Payments.StripeAPIKey" or "Providers[aa].APIKey").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// WithPanicOnMissingSecrets causes Load to panic when required secrets are missing.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) {
		o.panicOnMissingSecrets = true
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "GATEWAY_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "GATEWAY_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "GATEWAY_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "GATEWAY_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "GATEWAY_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "GATEWAY_FIRESTORE_EMULATOR_HOST", ""),
		},
		Auth: AuthConfig{
			JWKSURL:  stringWithDefault(lookup, "GATEWAY_AUTH_JWKS_URL", ""),
			Audience: stringWithDefault(lookup, "GATEWAY_AUTH_AUDIENCE", ""),
			OrgClaim: stringWithDefault(lookup, "GATEWAY_AUTH_ORG_CLAIM", defaultOrgClaim),
		},
		Payments: PaymentsConfig{
			StripeAPIKey:    stringWithDefault(lookup, "GATEWAY_PAYMENTS_STRIPE_API_KEY", ""),
			StripeAccountID: stringWithDefault(lookup, "GATEWAY_PAYMENTS_STRIPE_ACCOUNT_ID", ""),
		},
		Guarantees: GuaranteesConfig{
			Endpoint: stringWithDefault(lookup, "GATEWAY_GUARANTEES_ENDPOINT", ""),
			APIKey:   stringWithDefault(lookup, "GATEWAY_GUARANTEES_API_KEY", ""),
		},
		Components: ComponentsConfig{
			ProjectID: stringWithDefault(lookup, "GATEWAY_COMPONENTS_PROJECT_ID", ""),
			Topic:     stringWithDefault(lookup, "GATEWAY_COMPONENTS_TOPIC", ""),
		},
		Archive: ArchiveConfig{
			Bucket: stringWithDefault(lookup, "GATEWAY_ARCHIVE_BUCKET", ""),
		},
		Search: SearchConfig{
			Timeout: durationWithDefault(lookup, "GATEWAY_SEARCH_TIMEOUT", defaultSearchTimeout),
		},
		Environment: strings.ToLower(stringWithDefault(lookup, "GATEWAY_ENVIRONMENT", defaultEnvironment)),
	}

	cfg.Providers, err = providersFromEnv(lookup)
	if err != nil {
		return Config{}, err
	}

	cfg.Rules.Profiles, err = profilesFromEnv(lookup)
	if err != nil {
		return Config{}, err
	}
	for i := range cfg.Rules.Profiles {
		if fee := cfg.Rules.Profiles[i].BookingFee; fee != nil && fee.ChargeProvider == "" {
			fee.ChargeProvider = defaultChargeKey
		}
	}

	resolvedSecrets := make(map[string]string)
	recordSecret := func(name, value string) {
		resolvedSecrets[name] = strings.TrimSpace(value)
	}
	resolveField := func(name string, field *string) error {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return err
		}
		*field = resolved
		recordSecret(name, resolved)
		return nil
	}

	// Components default to the Firestore project when unspecified.
	if cfg.Components.ProjectID == "" {
		cfg.Components.ProjectID = cfg.Firestore.ProjectID
	}

	secretFields := []struct {
		name  string
		field *string
	}{
		{"Payments.StripeAPIKey", &cfg.Payments.StripeAPIKey},
		{"Guarantees.APIKey", &cfg.Guarantees.APIKey},
	}
	for _, target := range secretFields {
		if err := resolveField(target.name, target.field); err != nil {
			return Config{}, err
		}
	}
	for i := range cfg.Providers {
		name := fmt.Sprintf("Providers[%s].APIKey", cfg.Providers[i].ID)
		if err := resolveField(name, &cfg.Providers[i].APIKey); err != nil {
			return Config{}, err
		}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolvedSecrets); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}

	return cfg, nil
}

// providersFromEnv reads the provider id list and one env block per provider.
// The id list drives which blocks are read; ids are upper-cased in key names.
func providersFromEnv(lookup func(string) (string, bool)) ([]ProviderConfig, error) {
	ids := csvWithDefault(lookup, "GATEWAY_PROVIDERS")
	providers := make([]ProviderConfig, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		key := strings.ToLower(id)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("config: duplicate provider id %q", id)
		}
		seen[key] = struct{}{}

		prefix := "GATEWAY_PROVIDER_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		providers = append(providers, ProviderConfig{
			ID:                    key,
			AirlineCode:           strings.ToUpper(stringWithDefault(lookup, prefix+"_AIRLINE_CODE", "")),
			Endpoint:              stringWithDefault(lookup, prefix+"_ENDPOINT", ""),
			APIKey:                stringWithDefault(lookup, prefix+"_API_KEY", ""),
			SupportsOrderRetrieve: boolWithDefault(lookup, prefix+"_SUPPORTS_ORDER_RETRIEVE", false),
		})
	}
	return providers, nil
}

// profilesFromEnv decodes the organisation policy profiles from a single
// JSON document.
func profilesFromEnv(lookup func(string) (string, bool)) ([]OrgProfileConfig, error) {
	raw, ok := lookup("GATEWAY_RULES_PROFILES")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var profiles []OrgProfileConfig
	if err := json.Unmarshal([]byte(raw), &profiles); err != nil {
		return nil, fmt.Errorf("config: decode GATEWAY_RULES_PROFILES: %w", err)
	}
	return profiles, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" {
		return value, nil
	}
	if !isSecretReference(value) {
		return value, nil
	}
	if resolver == nil {
		normalized := normalizeSecretReference(value)
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	normalized := normalizeSecretReference(value)
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if len(cfg.Providers) == 0 {
		missing = append(missing, "Providers")
	}
	for _, provider := range cfg.Providers {
		if provider.Endpoint == "" {
			missing = append(missing, fmt.Sprintf("Providers[%s].Endpoint", provider.ID))
		}
		if provider.AirlineCode == "" {
			missing = append(missing, fmt.Sprintf("Providers[%s].AirlineCode", provider.ID))
		}
	}
	for _, profile := range cfg.Rules.Profiles {
		if strings.TrimSpace(profile.OrgID) == "" {
			missing = append(missing, "Rules.Profiles[].OrgID")
		}
		if fee := profile.BookingFee; fee != nil {
			if fee.Amount <= 0 || strings.TrimSpace(fee.Currency) == "" {
				missing = append(missing, fmt.Sprintf("Rules.Profiles[%s].BookingFee", profile.OrgID))
			}
		}
	}
	if cfg.Search.Timeout <= 0 {
		missing = append(missing, "Search.Timeout")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	if len(required) == 0 {
		return nil
	}
	missing := make([]missingSecret, 0, len(required))
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if value := strings.TrimSpace(resolved[trimmed]); value != "" {
			continue
		}
		missing = append(missing, missingSecret{
			name:     trimmed,
			redacted: redactSecretName(trimmed),
		})
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{secrets: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
