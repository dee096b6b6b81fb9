// Package pricing converts the integer minor-unit amounts returned by NDC
// backends into decimal currency amounts, using the per-currency decimal
// metadata each backend response embeds.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/skyward-labs/ndc-gateway/internal/domain"
)

// DefaultCurrency is used for zero amounts that arrive without a currency
// code. Some backends omit the code entirely on zero amounts.
const DefaultCurrency = "USD"

// ErrMissingCurrencyMetadata indicates a non-zero amount referenced a
// currency absent from the response's decimals table. It aborts conversion
// of the single offer being processed, not the whole batch.
var ErrMissingCurrencyMetadata = errors.New("pricing: missing currency metadata")

// Normalizer converts raw backend amounts using a decimals table parsed
// from one backend response. It is discarded once that response has been
// fully converted; the table itself travels inside the stored context
// payload when historical reconversion is needed.
type Normalizer struct {
	decimals        map[string]int
	defaultCurrency string
}

// Option customises a Normalizer.
type Option func(*Normalizer)

// WithDefaultCurrency overrides the currency assumed for zero amounts
// without a code.
func WithDefaultCurrency(code string) Option {
	return func(n *Normalizer) {
		if trimmed := strings.ToUpper(strings.TrimSpace(code)); trimmed != "" {
			n.defaultCurrency = trimmed
		}
	}
}

// NewNormalizer builds a Normalizer from a currency-to-decimals table.
// Currency codes are matched case-insensitively.
func NewNormalizer(decimals map[string]int, opts ...Option) *Normalizer {
	table := make(map[string]int, len(decimals))
	for code, d := range decimals {
		table[strings.ToUpper(strings.TrimSpace(code))] = d
	}
	n := &Normalizer{
		decimals:        table,
		defaultCurrency: DefaultCurrency,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Convert returns rawAmount divided by 10^decimals(currency). Zero amounts
// bypass the table lookup entirely.
func (n *Normalizer) Convert(rawAmount int64, currency string) (float64, error) {
	if rawAmount == 0 {
		return 0, nil
	}
	decimals, err := n.lookup(currency)
	if err != nil {
		return 0, err
	}
	return ConvertAmount(rawAmount, decimals), nil
}

// Price builds a domain price from a raw amount. A zero amount without a
// currency code yields zero in the configured default currency.
func (n *Normalizer) Price(rawAmount int64, currency string) (domain.Price, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if rawAmount == 0 {
		if code == "" {
			code = n.defaultCurrency
		}
		return domain.Price{Public: 0, Currency: code}, nil
	}
	decimals, err := n.lookup(code)
	if err != nil {
		return domain.Price{}, err
	}
	return domain.Price{Public: ConvertAmount(rawAmount, decimals), Currency: code}, nil
}

// Decimals exposes the table for persistence inside a context payload.
func (n *Normalizer) Decimals() map[string]int {
	out := make(map[string]int, len(n.decimals))
	for k, v := range n.decimals {
		out[k] = v
	}
	return out
}

func (n *Normalizer) lookup(currency string) (int, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	decimals, ok := n.decimals[code]
	if !ok {
		return 0, fmt.Errorf("currency %q: %w", code, ErrMissingCurrencyMetadata)
	}
	return decimals, nil
}

// ConvertAmount divides a raw minor-unit amount by 10^decimals.
func ConvertAmount(rawAmount int64, decimals int) float64 {
	return float64(rawAmount) / math.Pow10(decimals)
}
