package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testWorkFactor = 10

func newSQLite(t *testing.T) *SQLitePrefs {
	t.Helper()
	p, err := NewSQLitePrefs(filepath.Join(t.TempDir(), "nested", "prefs.db"))
	if err != nil {
		t.Fatalf("NewSQLitePrefs() error = %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPrefs_Contract(t *testing.T) {
	impls := map[string]func(t *testing.T) Prefs{
		"memory": func(t *testing.T) Prefs { return NewMemoryPrefs() },
		"sqlite": func(t *testing.T) Prefs { return newSQLite(t) },
	}
	for name, newPrefs := range impls {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := newPrefs(t)

			if _, ok, err := p.Get(ctx, KeyGoals); err != nil || ok {
				t.Fatalf("Get() on empty store = %v, %v", ok, err)
			}
			if err := p.Set(ctx, KeyGoals, "накопить"); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if err := p.Set(ctx, KeyGoals, "накопить на отпуск"); err != nil {
				t.Fatalf("Set() overwrite error = %v", err)
			}
			if v, ok, err := p.Get(ctx, KeyGoals); err != nil || !ok || v != "накопить на отпуск" {
				t.Errorf("Get() = %q, %v, %v", v, ok, err)
			}
			if err := p.Delete(ctx, KeyGoals); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, ok, _ := p.Get(ctx, KeyGoals); ok {
				t.Error("key still present after Delete")
			}
			if err := p.Delete(ctx, "missing"); err != nil {
				t.Errorf("Delete(missing) error = %v", err)
			}
		})
	}
}

func TestSQLitePrefs_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prefs.db")

	first, err := NewSQLitePrefs(path)
	if err != nil {
		t.Fatalf("NewSQLitePrefs() error = %v", err)
	}
	first.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	if err := first.Set(ctx, KeyProfile, `{"name":"Анна"}`); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	first.Close()

	second, err := NewSQLitePrefs(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer second.Close()
	if v, ok, _ := second.Get(ctx, KeyProfile); !ok || v != `{"name":"Анна"}` {
		t.Errorf("Get() after reopen = %q, %v", v, ok)
	}
	at, ok, err := second.UpdatedAt(ctx, KeyProfile)
	if err != nil || !ok || !at.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("UpdatedAt() = %v, %v, %v", at, ok, err)
	}
}

func TestEncrypted_RoundTrip(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryPrefs()
	enc, err := NewEncrypted(inner, "correct horse", testWorkFactor)
	if err != nil {
		t.Fatalf("NewEncrypted() error = %v", err)
	}

	if err := enc.Set(ctx, KeyAuthToken, "tok-123"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := enc.Set(ctx, KeyGoals, "plain goals"); err != nil {
		t.Fatalf("Set(goals) error = %v", err)
	}

	raw, _, _ := inner.Get(ctx, KeyAuthToken)
	if raw == "" || strings.Contains(raw, "tok-123") {
		t.Errorf("stored token = %q, want ciphertext", raw)
	}
	if raw, _, _ := inner.Get(ctx, KeyGoals); raw != "plain goals" {
		t.Errorf("stored goals = %q, want plaintext", raw)
	}
	if v, ok, err := enc.Get(ctx, KeyAuthToken); err != nil || !ok || v != "tok-123" {
		t.Errorf("Get() = %q, %v, %v", v, ok, err)
	}
	if _, ok, err := enc.Get(ctx, "absent"); ok || err != nil {
		t.Errorf("Get(absent) = %v, %v", ok, err)
	}
}

func TestEncrypted_WrongPassphrase(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryPrefs()
	enc, _ := NewEncrypted(inner, "right", testWorkFactor)
	if err := enc.Set(ctx, KeyAuthToken, "tok"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	other, _ := NewEncrypted(inner, "wrong", testWorkFactor)
	if _, _, err := other.Get(ctx, KeyAuthToken); !errors.Is(err, ErrDecrypt) {
		t.Errorf("Get() with wrong passphrase error = %v, want ErrDecrypt", err)
	}

	_ = inner.Set(ctx, KeyAuthToken, "not base64!")
	if _, _, err := enc.Get(ctx, KeyAuthToken); !errors.Is(err, ErrDecrypt) {
		t.Errorf("Get() on garbage error = %v, want ErrDecrypt", err)
	}
}
