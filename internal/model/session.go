package model

import "time"

// BrokerType names a supported broker integration.
type BrokerType string

const (
	// BrokerZerodha is Kite Connect: redirect login, request token exchange.
	BrokerZerodha BrokerType = "zerodha"
	// BrokerAngelOne is SmartAPI: client code + MPIN + TOTP challenge.
	BrokerAngelOne BrokerType = "angelone"
)

// Session is the authenticated state returned by a broker login. It belongs to
// the adapter that created it and must not be shared across accounts.
type Session struct {
	Broker       BrokerType `json:"broker"`
	UserID       string     `json:"userId"`
	UserName     string     `json:"userName,omitempty"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	FeedToken    string     `json:"-"`
	LoginTime    time.Time  `json:"loginTime"`
	ExpiresAt    time.Time  `json:"expiresAt"`
}

// Expired reports whether the session is past its expiry at t.
func (s *Session) Expired(t time.Time) bool {
	return !s.ExpiresAt.IsZero() && !t.Before(s.ExpiresAt)
}
