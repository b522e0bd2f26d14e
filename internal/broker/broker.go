// Package broker defines the capability contract every broker integration
// implements, plus the symbol normalization shared by the adapters.
//
// Adapters live in sub-packages (kite, angelone) and are constructed through
// the factory package so callers never branch on broker internals.
package broker

import (
	"context"

	"basket-trading/internal/model"
)

// Type is the closed set of supported brokers.
type Type = model.BrokerType

// Supported broker types.
const (
	Zerodha  = model.BrokerZerodha
	AngelOne = model.BrokerAngelOne
)

// Types lists every supported broker, in a stable order.
func Types() []Type {
	return []Type{Zerodha, AngelOne}
}

// Credentials are the decrypted secrets needed to build an adapter. Which
// fields are required depends on the broker; see factory.ValidateCredentials.
type Credentials struct {
	APIKey     string `json:"api_key" yaml:"api_key"`
	APISecret  string `json:"api_secret" yaml:"api_secret"`
	ClientCode string `json:"client_code,omitempty" yaml:"client_code,omitempty"`
	MPIN       string `json:"mpin,omitempty" yaml:"mpin,omitempty"`
	TOTP       string `json:"totp,omitempty" yaml:"totp,omitempty"`               // one-time code
	TOTPSecret string `json:"totp_secret,omitempty" yaml:"totp_secret,omitempty"` // base32 seed, generates TOTP when no code is given
}

// AuthArtifact is whatever the login flow produced for CreateSession:
// the request token from the redirect flow, or a fresh one-time code for the
// challenge flow.
type AuthArtifact struct {
	RequestToken string
	TOTP         string
}

// Broker is the capability contract. Implementations hold one account's
// session and are not meant to be shared between accounts.
type Broker interface {
	Type() Type

	// LoginURL returns the URL the user must visit to start a redirect login.
	// Challenge-based brokers return their publisher login page.
	LoginURL() string
	// CreateSession completes the auth handshake and stores the token inside
	// the adapter. Fails with tradeerr.ErrAuth on a bad artifact.
	CreateSession(ctx context.Context, artifact AuthArtifact) (model.Session, error)
	// Session returns the current session, or false before CreateSession.
	Session() (model.Session, bool)

	// DownloadCatalog fetches the full instrument master, filtered to equity
	// and index rows on NSE/BSE. Safe to retry wholesale.
	DownloadCatalog(ctx context.Context) ([]model.UnifiedSymbol, error)

	ToUnifiedSymbol(nativeSymbol, exchange string) string
	ToBrokerSymbol(symbol, exchange string) string

	// GetQuotes and GetLTP batch all instruments into as few calls as the
	// broker allows. Results are keyed by Instrument.Key().
	GetQuotes(ctx context.Context, instruments []model.Instrument) (map[string]model.Quote, error)
	GetLTP(ctx context.Context, instruments []model.Instrument) (map[string]float64, error)

	PlaceOrder(ctx context.Context, order model.Order) (model.OrderResult, error)
	ModifyOrder(ctx context.Context, orderID string, update model.OrderUpdate) (model.OrderResult, error)
	CancelOrder(ctx context.Context, orderID, variety string) (model.OrderResult, error)
	GetOrders(ctx context.Context) ([]model.OrderStatus, error)

	GetHoldings(ctx context.Context) ([]model.Holding, error)
	GetPositions(ctx context.Context) ([]model.Position, error)
	GetFunds(ctx context.Context) (model.Funds, error)
	GetProfile(ctx context.Context) (model.Profile, error)
}
