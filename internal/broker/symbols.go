package broker

import (
	"strings"

	"basket-trading/internal/model"
)

// Canonical index names.
const (
	IndexNifty      = "NIFTY"
	IndexBankNifty  = "BANKNIFTY"
	IndexFinNifty   = "FINNIFTY"
	IndexMidcpNifty = "MIDCPNIFTY"
	IndexNiftyNext  = "NIFTYNXT50"
	IndexNiftyIT    = "NIFTYIT"
	IndexIndiaVIX   = "INDIAVIX"
	IndexSensex     = "SENSEX"
	IndexBankex     = "BANKEX"
)

// KiteIndexNames maps Kite's index tradingsymbols to canonical names.
var KiteIndexNames = map[string]string{
	"NIFTY 50":          IndexNifty,
	"NIFTY BANK":        IndexBankNifty,
	"NIFTY FIN SERVICE": IndexFinNifty,
	"NIFTY MID SELECT":  IndexMidcpNifty,
	"NIFTY NEXT 50":     IndexNiftyNext,
	"NIFTY IT":          IndexNiftyIT,
	"INDIA VIX":         IndexIndiaVIX,
	"SENSEX":            IndexSensex,
	"BANKEX":            IndexBankex,
}

// AngelIndexNames maps SmartAPI's index symbols to canonical names.
var AngelIndexNames = map[string]string{
	"Nifty 50":          IndexNifty,
	"Nifty Bank":        IndexBankNifty,
	"Nifty Fin Service": IndexFinNifty,
	"NIFTY MID SELECT":  IndexMidcpNifty,
	"Nifty Next 50":     IndexNiftyNext,
	"Nifty IT":          IndexNiftyIT,
	"India VIX":         IndexIndiaVIX,
	"SENSEX":            IndexSensex,
	"BANKEX":            IndexBankex,
}

// AngelEquitySuffixes are the NSE series markers SmartAPI appends to equity symbols.
var AngelEquitySuffixes = []string{"-EQ", "-BE", "-BZ", "-BL", "-SM", "-ST"}

// Normalizer maps between a broker's native symbols and canonical symbols.
// Both directions are pure: a fixed index table plus identity for equities
// (after stripping the broker's equity-segment suffix).
type Normalizer struct {
	toCanonical map[string]string
	toNative    map[string]string

	stripSuffixes []string
	nseSuffix     string // appended to NSE equities in ToBroker
}

// NewNormalizer builds a normalizer from a native->canonical index table.
// The table must be one-to-one so round trips are exact.
func NewNormalizer(indexNames map[string]string, stripSuffixes []string, nseSuffix string) *Normalizer {
	n := &Normalizer{
		toCanonical:   make(map[string]string, len(indexNames)),
		toNative:      make(map[string]string, len(indexNames)),
		stripSuffixes: stripSuffixes,
		nseSuffix:     nseSuffix,
	}
	for native, canonical := range indexNames {
		n.toCanonical[native] = canonical
		n.toNative[canonical] = native
	}
	return n
}

// NewKiteNormalizer returns the variant A normalizer.
func NewKiteNormalizer() *Normalizer {
	return NewNormalizer(KiteIndexNames, nil, "")
}

// NewAngelNormalizer returns the variant B normalizer.
func NewAngelNormalizer() *Normalizer {
	return NewNormalizer(AngelIndexNames, AngelEquitySuffixes, "-EQ")
}

// ToUnified canonicalizes a native symbol.
func (n *Normalizer) ToUnified(native, exchange string) string {
	native = strings.TrimSpace(native)
	if canonical, ok := n.toCanonical[native]; ok {
		return canonical
	}
	if model.IsIndexExchange(exchange) {
		return native
	}
	return n.StripSuffix(native)
}

// ToBroker converts a canonical symbol to the broker's native form. Index
// names are reversed on any exchange label, mirroring ToUnified.
func (n *Normalizer) ToBroker(symbol, exchange string) string {
	if native, ok := n.toNative[symbol]; ok {
		return native
	}
	if model.IsIndexExchange(exchange) {
		return symbol
	}
	if n.nseSuffix != "" && exchange == model.ExchangeNSE && !n.hasSuffix(symbol) {
		return symbol + n.nseSuffix
	}
	return symbol
}

// IsIndexName reports whether native is one of the broker's index names.
func (n *Normalizer) IsIndexName(native string) bool {
	_, ok := n.toCanonical[strings.TrimSpace(native)]
	return ok
}

// StripSuffix removes a trailing equity-segment marker ("SBIN-EQ" -> "SBIN").
func (n *Normalizer) StripSuffix(native string) string {
	for _, s := range n.stripSuffixes {
		if strings.HasSuffix(native, s) {
			return strings.TrimSuffix(native, s)
		}
	}
	return native
}

func (n *Normalizer) hasSuffix(symbol string) bool {
	for _, s := range n.stripSuffixes {
		if strings.HasSuffix(symbol, s) {
			return true
		}
	}
	return false
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) <= size {
		if len(items) == 0 {
			return nil
		}
		return [][]T{items}
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
