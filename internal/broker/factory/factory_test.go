package factory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basket-trading/internal/broker"
	"basket-trading/internal/broker/angelone"
	"basket-trading/internal/broker/kite"
	"basket-trading/internal/tradeerr"
)

type stubProvider struct {
	creds map[broker.Type]broker.Credentials
	err   error
}

func (p stubProvider) Credentials(_ context.Context, t broker.Type) (broker.Credentials, error) {
	if p.err != nil {
		return broker.Credentials{}, p.err
	}
	return p.creds[t], nil
}

func TestValidateCredentials(t *testing.T) {
	v := ValidateCredentials(broker.Zerodha, broker.Credentials{APIKey: "k"})
	assert.False(t, v.Valid)
	assert.Equal(t, []string{"api_secret is required"}, v.Errors)

	v = ValidateCredentials(broker.Zerodha, broker.Credentials{APIKey: "k", APISecret: "s"})
	assert.True(t, v.Valid)
	assert.Empty(t, v.Errors)

	v = ValidateCredentials(broker.AngelOne, broker.Credentials{APIKey: "k", APISecret: "s"})
	assert.False(t, v.Valid)
	assert.ElementsMatch(t, []string{
		"client_code is required",
		"mpin is required",
		"totp or totp_secret is required",
	}, v.Errors)

	v = ValidateCredentials(broker.AngelOne, broker.Credentials{APIKey: "k", APISecret: "s", ClientCode: "c", MPIN: "1", TOTPSecret: "JBSWY3DPEHPK3PXP"})
	assert.True(t, v.Valid)

	v = ValidateCredentials("upstox", broker.Credentials{})
	assert.False(t, v.Valid)
}

func TestCreate(t *testing.T) {
	f := New(nil)

	b, err := f.Create(broker.Zerodha, broker.Credentials{APIKey: "k", APISecret: "s"})
	require.NoError(t, err)
	assert.IsType(t, &kite.Adapter{}, b)
	assert.Equal(t, broker.Zerodha, b.Type())

	b, err = f.Create(broker.AngelOne, broker.Credentials{APIKey: "k", APISecret: "s", ClientCode: "c", MPIN: "1", TOTP: "123456"})
	require.NoError(t, err)
	assert.IsType(t, &angelone.Adapter{}, b)

	_, err = f.Create(broker.AngelOne, broker.Credentials{APIKey: "k"})
	assert.True(t, errors.Is(err, tradeerr.ErrValidation))

	_, err = f.Create("upstox", broker.Credentials{APIKey: "k", APISecret: "s"})
	assert.True(t, errors.Is(err, tradeerr.ErrValidation))
}

type tagged struct {
	broker.Broker
}

func TestCreate_AppliesMiddleware(t *testing.T) {
	f := New(nil, WithMiddleware(func(b broker.Broker) broker.Broker { return tagged{b} }))
	b, err := f.Create(broker.Zerodha, broker.Credentials{APIKey: "k", APISecret: "s"})
	require.NoError(t, err)
	assert.IsType(t, tagged{}, b)
}

func TestFromProvider(t *testing.T) {
	p := stubProvider{creds: map[broker.Type]broker.Credentials{
		broker.Zerodha: {APIKey: "k", APISecret: "s"},
	}}
	f := New(p)

	b, err := f.FromProvider(context.Background(), broker.Zerodha)
	require.NoError(t, err)
	assert.Equal(t, broker.Zerodha, b.Type())

	_, err = f.FromProvider(context.Background(), broker.AngelOne)
	assert.True(t, errors.Is(err, tradeerr.ErrValidation))

	boom := errors.New("vault sealed")
	_, err = New(stubProvider{err: boom}).FromProvider(context.Background(), broker.Zerodha)
	assert.ErrorIs(t, err, boom)

	_, err = New(nil).FromProvider(context.Background(), broker.Zerodha)
	assert.True(t, errors.Is(err, tradeerr.ErrValidation))
}

func TestGetRequirements(t *testing.T) {
	r, err := GetRequirements(broker.Zerodha)
	require.NoError(t, err)
	assert.Equal(t, AuthRedirect, r.AuthFlow)
	assert.Equal(t, kite.OrdersPerSecond, r.OrdersPerSecond)

	r, err = GetRequirements(broker.AngelOne)
	require.NoError(t, err)
	assert.Equal(t, AuthChallenge, r.AuthFlow)
	assert.Contains(t, r.RequiredFields, "mpin")

	_, err = GetRequirements("upstox")
	assert.True(t, errors.Is(err, tradeerr.ErrValidation))
}

func TestParseType(t *testing.T) {
	for in, want := range map[string]broker.Type{"Zerodha": broker.Zerodha, "kite": broker.Zerodha, " angel ": broker.AngelOne} {
		got, err := ParseType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseType("upstox")
	assert.Error(t, err)
}
