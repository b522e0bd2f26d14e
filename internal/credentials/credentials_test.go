package credentials

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basket-trading/internal/broker"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestEnvProvider(t *testing.T) {
	env := map[string]string{
		"ZERODHA_API_KEY":    "zk",
		"ZERODHA_API_SECRET": " zs ",
		"ANGEL_API_KEY":      "ak",
		"ANGEL_CLIENT_CODE":  "C1",
		"ANGEL_TOTP_SECRET":  "SECRET",
	}
	p := EnvProvider{Getenv: func(k string) string { return env[k] }}

	z, err := p.Credentials(context.Background(), broker.Zerodha)
	require.NoError(t, err)
	assert.Equal(t, broker.Credentials{APIKey: "zk", APISecret: "zs"}, z)

	a, err := p.Credentials(context.Background(), broker.AngelOne)
	require.NoError(t, err)
	assert.Equal(t, "C1", a.ClientCode)
	assert.Equal(t, "SECRET", a.TOTPSecret)

	_, err = p.Credentials(context.Background(), "upstox")
	assert.Error(t, err)
}

func TestSecretBoxRoundTrip(t *testing.T) {
	sb, err := NewSecretBox(testKey)
	require.NoError(t, err)

	blob, err := sb.Encrypt([]byte("hello"))
	require.NoError(t, err)
	plain, err := sb.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(plain))

	blob[len(blob)-1] ^= 0xff
	_, err = sb.Decrypt(blob)
	assert.True(t, errors.Is(err, ErrDecrypt))

	_, err = sb.Decrypt([]byte("short"))
	assert.True(t, errors.Is(err, ErrDecrypt))
}

func TestNewSecretBox_BadKeys(t *testing.T) {
	_, err := NewSecretBox("abcd")
	assert.Error(t, err)
	_, err = NewSecretBox("not a key!")
	assert.Error(t, err)
}

func TestFileProvider(t *testing.T) {
	sb, err := NewSecretBox(testKey)
	require.NoError(t, err)

	sealed, err := Seal(sb, map[broker.Type]broker.Credentials{
		broker.Zerodha:  {APIKey: "zk", APISecret: "zs"},
		broker.AngelOne: {APIKey: "ak", APISecret: "as", ClientCode: "C1", MPIN: "1234", TOTPSecret: "SECRET"},
	})
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(sealed), "zs"))

	path := filepath.Join(t.TempDir(), "creds.enc")
	require.NoError(t, os.WriteFile(path, sealed, 0o600))

	p := FileProvider{Path: path, Decrypter: sb}
	a, err := p.Credentials(context.Background(), broker.AngelOne)
	require.NoError(t, err)
	assert.Equal(t, "1234", a.MPIN)

	z, err := p.Credentials(context.Background(), broker.Zerodha)
	require.NoError(t, err)
	assert.Equal(t, "zs", z.APISecret)

	other, err := NewSecretBox(strings.Repeat("ff", 32))
	require.NoError(t, err)
	_, err = FileProvider{Path: path, Decrypter: other}.Credentials(context.Background(), broker.Zerodha)
	assert.True(t, errors.Is(err, ErrDecrypt))

	_, err = FileProvider{Path: path}.Credentials(context.Background(), broker.Zerodha)
	assert.Error(t, err)
}
