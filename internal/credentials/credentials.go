// Package credentials supplies decrypted broker credentials to the adapter
// factory. Nothing here is cached at package level; each provider owns its
// source.
package credentials

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
	"gopkg.in/yaml.v3"

	"basket-trading/internal/broker"
)

// ---- env ----

// EnvProvider reads credentials from environment variables prefixed per
// broker: ZERODHA_API_KEY, ZERODHA_API_SECRET, ANGEL_API_KEY, ANGEL_API_SECRET,
// ANGEL_CLIENT_CODE, ANGEL_MPIN, ANGEL_TOTP, ANGEL_TOTP_SECRET.
type EnvProvider struct {
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

var envPrefix = map[broker.Type]string{
	broker.Zerodha:  "ZERODHA_",
	broker.AngelOne: "ANGEL_",
}

func (p EnvProvider) Credentials(_ context.Context, t broker.Type) (broker.Credentials, error) {
	prefix, ok := envPrefix[t]
	if !ok {
		return broker.Credentials{}, fmt.Errorf("no env mapping for broker %q", t)
	}
	get := p.Getenv
	if get == nil {
		get = os.Getenv
	}
	env := func(k string) string { return strings.TrimSpace(get(prefix + k)) }
	return broker.Credentials{
		APIKey:     env("API_KEY"),
		APISecret:  env("API_SECRET"),
		ClientCode: env("CLIENT_CODE"),
		MPIN:       env("MPIN"),
		TOTP:       env("TOTP"),
		TOTPSecret: env("TOTP_SECRET"),
	}, nil
}

// ---- encrypted file ----

// Decrypter opens credential blobs encrypted at rest.
type Decrypter interface {
	Decrypt(ciphertext []byte) ([]byte, error)
}

const (
	keySize   = 32
	nonceSize = 24
)

// ErrDecrypt is returned when a blob fails authentication.
var ErrDecrypt = errors.New("credentials: decryption failed")

// SecretBox is a NaCl secretbox Decrypter. Blobs are nonce || sealed box.
type SecretBox struct {
	key [keySize]byte
}

// NewSecretBox parses a 32-byte key given as hex or standard base64.
func NewSecretBox(key string) (*SecretBox, error) {
	key = strings.TrimSpace(key)
	raw, err := hex.DecodeString(key)
	if err != nil {
		raw, err = base64.StdEncoding.DecodeString(key)
	}
	if err != nil {
		return nil, fmt.Errorf("credentials key: not hex or base64")
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("credentials key: want %d bytes, got %d", keySize, len(raw))
	}
	sb := &SecretBox{}
	copy(sb.key[:], raw)
	return sb, nil
}

// Encrypt seals plaintext with a random nonce.
func (s *SecretBox) Encrypt(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

func (s *SecretBox) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < nonceSize+secretbox.Overhead {
		return nil, ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], blob[:nonceSize])
	out, ok := secretbox.Open(nil, blob[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrDecrypt
	}
	return out, nil
}

// FileProvider reads a base64 encrypted YAML document keyed by broker type:
//
//	zerodha:
//	  api_key: ...
//	  api_secret: ...
//	angelone:
//	  api_key: ...
type FileProvider struct {
	Path      string
	Decrypter Decrypter
}

func (p FileProvider) Credentials(_ context.Context, t broker.Type) (broker.Credentials, error) {
	all, err := p.load()
	if err != nil {
		return broker.Credentials{}, err
	}
	c, ok := all[t]
	if !ok {
		return broker.Credentials{}, fmt.Errorf("no credentials for %s in %s", t, p.Path)
	}
	return c, nil
}

func (p FileProvider) load() (map[broker.Type]broker.Credentials, error) {
	if p.Decrypter == nil {
		return nil, errors.New("credentials: no decrypter configured")
	}
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	blob, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	plain, err := p.Decrypter.Decrypt(blob)
	if err != nil {
		return nil, err
	}
	var all map[broker.Type]broker.Credentials
	if err := yaml.Unmarshal(plain, &all); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return all, nil
}

// Seal encrypts a credential set for FileProvider. Used by the CLI's
// "seal" command and by tests.
func Seal(s *SecretBox, all map[broker.Type]broker.Credentials) ([]byte, error) {
	plain, err := yaml.Marshal(all)
	if err != nil {
		return nil, fmt.Errorf("marshal credentials: %w", err)
	}
	blob, err := s.Encrypt(plain)
	if err != nil {
		return nil, err
	}
	return []byte(base64.StdEncoding.EncodeToString(blob)), nil
}
