// Package factory builds broker adapters from a broker type and credentials.
// It is the only place that knows which concrete adapters exist.
package factory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"basket-trading/internal/broker"
	"basket-trading/internal/broker/angelone"
	"basket-trading/internal/broker/kite"
	"basket-trading/internal/tradeerr"
)

// AuthFlow tells the caller how to drive login.
type AuthFlow string

const (
	// AuthRedirect: send the user to LoginURL, pass the returned request token.
	AuthRedirect AuthFlow = "redirect"
	// AuthChallenge: pass a one-time code (or let the adapter derive one).
	AuthChallenge AuthFlow = "challenge"
)

// Requirements describes what a broker needs from the caller.
type Requirements struct {
	Type            broker.Type `json:"type"`
	AuthFlow        AuthFlow    `json:"authFlow"`
	RequiredFields  []string    `json:"requiredFields"`
	OrdersPerSecond int         `json:"ordersPerSecond"`
}

// Validation lists the problems found in a credential set.
type Validation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// CredentialProvider supplies decrypted credentials for an account's broker.
type CredentialProvider interface {
	Credentials(ctx context.Context, t broker.Type) (broker.Credentials, error)
}

// Middleware wraps every adapter the factory builds (metrics, tracing).
type Middleware func(broker.Broker) broker.Broker

// Factory creates adapters. It holds no per-account state.
type Factory struct {
	provider   CredentialProvider
	log        *slog.Logger
	kiteOpts   []kite.Option
	angelOpts  []angelone.Option
	middleware []Middleware
}

// Option configures a Factory.
type Option func(*Factory)

func WithLogger(l *slog.Logger) Option {
	return func(f *Factory) { f.log = l }
}

func WithKiteOptions(opts ...kite.Option) Option {
	return func(f *Factory) { f.kiteOpts = append(f.kiteOpts, opts...) }
}

func WithAngelOptions(opts ...angelone.Option) Option {
	return func(f *Factory) { f.angelOpts = append(f.angelOpts, opts...) }
}

func WithMiddleware(m ...Middleware) Option {
	return func(f *Factory) { f.middleware = append(f.middleware, m...) }
}

// New returns a factory. provider may be nil if only Create is used.
func New(provider CredentialProvider, opts ...Option) *Factory {
	f := &Factory{provider: provider, log: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create validates creds and builds the adapter for t.
func (f *Factory) Create(t broker.Type, creds broker.Credentials) (broker.Broker, error) {
	const op = "create"
	v := ValidateCredentials(t, creds)
	if !v.Valid {
		return nil, tradeerr.WithBroker(tradeerr.Validation(op, "%s", strings.Join(v.Errors, "; ")), string(t))
	}

	var b broker.Broker
	switch t {
	case broker.Zerodha:
		b = kite.New(creds, append([]kite.Option{kite.WithLogger(f.log)}, f.kiteOpts...)...)
	case broker.AngelOne:
		b = angelone.New(creds, append([]angelone.Option{angelone.WithLogger(f.log)}, f.angelOpts...)...)
	default:
		return nil, tradeerr.Validation(op, "unsupported broker %q", t)
	}
	for _, m := range f.middleware {
		b = m(b)
	}
	return b, nil
}

// FromProvider fetches credentials for t from the injected provider and
// builds the adapter.
func (f *Factory) FromProvider(ctx context.Context, t broker.Type) (broker.Broker, error) {
	if f.provider == nil {
		return nil, tradeerr.Validation("fromProvider", "no credential provider configured")
	}
	creds, err := f.provider.Credentials(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("load %s credentials: %w", t, err)
	}
	return f.Create(t, creds)
}

// ValidateCredentials reports every missing field for t. No network calls.
func ValidateCredentials(t broker.Type, creds broker.Credentials) Validation {
	var errs []string
	missing := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, name+" is required")
		}
	}

	switch t {
	case broker.Zerodha:
		missing("api_key", creds.APIKey)
		missing("api_secret", creds.APISecret)
	case broker.AngelOne:
		missing("api_key", creds.APIKey)
		missing("api_secret", creds.APISecret)
		missing("client_code", creds.ClientCode)
		missing("mpin", creds.MPIN)
		if strings.TrimSpace(creds.TOTP) == "" && strings.TrimSpace(creds.TOTPSecret) == "" {
			errs = append(errs, "totp or totp_secret is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("unsupported broker %q", t))
	}
	return Validation{Valid: len(errs) == 0, Errors: errs}
}

// GetRequirements describes the auth flow and required fields for t.
func GetRequirements(t broker.Type) (Requirements, error) {
	switch t {
	case broker.Zerodha:
		return Requirements{
			Type:            t,
			AuthFlow:        AuthRedirect,
			RequiredFields:  []string{"api_key", "api_secret"},
			OrdersPerSecond: kite.OrdersPerSecond,
		}, nil
	case broker.AngelOne:
		return Requirements{
			Type:            t,
			AuthFlow:        AuthChallenge,
			RequiredFields:  []string{"api_key", "api_secret", "client_code", "mpin", "totp|totp_secret"},
			OrdersPerSecond: angelone.OrdersPerSecond,
		}, nil
	default:
		return Requirements{}, tradeerr.Validation("getRequirements", "unsupported broker %q", t)
	}
}

// ParseType maps user input ("Zerodha", "angel", "angelone") to a broker type.
func ParseType(s string) (broker.Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zerodha", "kite":
		return broker.Zerodha, nil
	case "angelone", "angel", "smartapi":
		return broker.AngelOne, nil
	}
	return "", tradeerr.Validation("parseType", "unsupported broker %q", s)
}
