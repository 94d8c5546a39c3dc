package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
)

// ErrDecrypt is returned when a stored secret cannot be decrypted with the
// configured passphrase.
var ErrDecrypt = errors.New("decrypt preference")

// Encrypted wraps a Prefs and age-encrypts the values of selected keys with
// a passphrase. Other keys pass through unchanged.
type Encrypted struct {
	inner     Prefs
	recipient *age.ScryptRecipient
	identity  *age.ScryptIdentity
	secret    map[string]bool
}

// NewEncrypted encrypts the given keys, or only KeyAuthToken when none are
// named. workFactor tunes scrypt; zero keeps the age default.
func NewEncrypted(inner Prefs, passphrase string, workFactor int, keys ...string) (*Encrypted, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("create scrypt recipient: %w", err)
	}
	if workFactor > 0 {
		recipient.SetWorkFactor(workFactor)
	}
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("create scrypt identity: %w", err)
	}
	if len(keys) == 0 {
		keys = []string{KeyAuthToken}
	}
	secret := make(map[string]bool, len(keys))
	for _, k := range keys {
		secret[k] = true
	}
	return &Encrypted{inner: inner, recipient: recipient, identity: identity, secret: secret}, nil
}

func (e *Encrypted) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := e.inner.Get(ctx, key)
	if err != nil || !ok || !e.secret[key] {
		return v, ok, err
	}
	raw, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return "", false, fmt.Errorf("%w %s: %v", ErrDecrypt, key, err)
	}
	plain, err := decryptData(raw, e.identity)
	if err != nil {
		return "", false, fmt.Errorf("%w %s: %v", ErrDecrypt, key, err)
	}
	return string(plain), true, nil
}

func (e *Encrypted) Set(ctx context.Context, key, value string) error {
	if !e.secret[key] {
		return e.inner.Set(ctx, key, value)
	}
	sealed, err := encryptData([]byte(value), e.recipient)
	if err != nil {
		return fmt.Errorf("encrypt preference %s: %w", key, err)
	}
	return e.inner.Set(ctx, key, base64.StdEncoding.EncodeToString(sealed))
}

func (e *Encrypted) Delete(ctx context.Context, key string) error {
	return e.inner.Delete(ctx, key)
}

func encryptData(data []byte, recipient *age.ScryptRecipient) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decryptData(data []byte, identity *age.ScryptIdentity) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(data), identity)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
