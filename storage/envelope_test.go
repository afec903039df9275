package storage

import (
	"bytes"
	"testing"

	"github.com/jmcleod/ballotbox/internal/util"
)

func TestEnvelope(t *testing.T) {
	key, _ := util.NewAESKey()
	plain := []byte("top secret")
	aad := []byte("context")

	env, err := SealRecord(key, plain, aad)
	if err != nil {
		t.Fatalf("SealRecord failed: %v", err)
	}

	if env.Ver != 1 {
		t.Errorf("expected version 1, got %d", env.Ver)
	}

	decrypted, err := OpenRecord(key, env, aad)
	if err != nil {
		t.Fatalf("OpenRecord failed: %v", err)
	}

	if !bytes.Equal(plain, decrypted) {
		t.Errorf("expected %s, got %s", plain, decrypted)
	}

	t.Run("WrongAAD", func(t *testing.T) {
		_, err := OpenRecord(key, env, []byte("wrong context"))
		if err == nil {
			t.Error("expected error with wrong AAD, got nil")
		}
	})

	t.Run("WrongKey", func(t *testing.T) {
		other, _ := util.NewAESKey()
		_, err := OpenRecord(other, env, aad)
		if err == nil {
			t.Error("expected error with wrong key, got nil")
		}
	})

	t.Run("OpenSealedWithoutKey", func(t *testing.T) {
		_, err := env.Open(nil, aad)
		if err == nil {
			t.Error("expected error opening sealed envelope without key")
		}
	})
}

func TestRawRecord(t *testing.T) {
	plain := []byte("T")
	env := RawRecord(plain)
	if env.Scheme != SchemeRaw {
		t.Fatalf("expected scheme %q, got %q", SchemeRaw, env.Scheme)
	}

	plain[0] = 'X'
	got, err := env.Open(nil, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if string(got) != "T" {
		t.Errorf("expected raw payload %q, got %q", "T", got)
	}

	if _, err := OpenRecord(make([]byte, 32), env, nil); err == nil {
		t.Error("OpenRecord should refuse raw envelopes")
	}
}

func TestEnvelopeUnknownScheme(t *testing.T) {
	env := &Envelope{Ver: 1, Scheme: "rot13", Ciphertext: []byte("x")}
	if _, err := env.Open(nil, nil); err == nil {
		t.Error("expected error for unknown scheme")
	}
}
