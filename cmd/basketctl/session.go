package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"basket-trading/internal/broker"
	"basket-trading/internal/credentials"
	"basket-trading/internal/model"
)

// sessionFile is the on-disk form of a broker session. Tokens are sealed with
// the credentials key when one is configured.
type sessionFile struct {
	Broker       model.BrokerType `json:"broker"`
	UserID       string           `json:"userId"`
	UserName     string           `json:"userName,omitempty"`
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken,omitempty"`
	FeedToken    string           `json:"feedToken,omitempty"`
	LoginTime    time.Time        `json:"loginTime"`
	ExpiresAt    time.Time        `json:"expiresAt"`
}

type sessionStore struct {
	path string
	box  *credentials.SecretBox // nil writes plaintext
}

func newSessionStore(dataPath string, t broker.Type, box *credentials.SecretBox) sessionStore {
	return sessionStore{
		path: filepath.Join(filepath.Dir(dataPath), string(t)+".session"),
		box:  box,
	}
}

func (s sessionStore) save(sess model.Session) error {
	data, err := json.Marshal(sessionFile{
		Broker:       sess.Broker,
		UserID:       sess.UserID,
		UserName:     sess.UserName,
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		FeedToken:    sess.FeedToken,
		LoginTime:    sess.LoginTime,
		ExpiresAt:    sess.ExpiresAt,
	})
	if err != nil {
		return err
	}
	if s.box != nil {
		blob, err := s.box.Encrypt(data)
		if err != nil {
			return err
		}
		data = []byte(base64.StdEncoding.EncodeToString(blob))
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// load returns the stored session, or false when none exists or it expired.
func (s sessionStore) load(now time.Time) (model.Session, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.Session{}, false, nil
	}
	if err != nil {
		return model.Session{}, false, err
	}
	if s.box != nil {
		blob, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return model.Session{}, false, fmt.Errorf("decode session: %w", err)
		}
		if data, err = s.box.Decrypt(blob); err != nil {
			return model.Session{}, false, fmt.Errorf("session %s: %w", s.path, err)
		}
	}
	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return model.Session{}, false, fmt.Errorf("parse session: %w", err)
	}
	sess := model.Session{
		Broker:       f.Broker,
		UserID:       f.UserID,
		UserName:     f.UserName,
		AccessToken:  f.AccessToken,
		RefreshToken: f.RefreshToken,
		FeedToken:    f.FeedToken,
		LoginTime:    f.LoginTime,
		ExpiresAt:    f.ExpiresAt,
	}
	if sess.Expired(now) {
		return model.Session{}, false, nil
	}
	return sess, true, nil
}

// sessionUser is implemented by the concrete adapters.
type sessionUser interface {
	UseSession(model.Session)
}

// adapter walks middleware wrappers down to the concrete adapter.
func adapter(b broker.Broker) broker.Broker {
	for {
		w, ok := b.(interface{ Unwrap() broker.Broker })
		if !ok {
			return b
		}
		b = w.Unwrap()
	}
}

// restoreSession hands a stored session to the adapter under b.
func restoreSession(b broker.Broker, sess model.Session) bool {
	u, ok := adapter(b).(sessionUser)
	if ok {
		u.UseSession(sess)
	}
	return ok
}
