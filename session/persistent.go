package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/ballotbox/auth"
	icrypto "github.com/jmcleod/ballotbox/internal/crypto"
	"github.com/jmcleod/ballotbox/internal/util"
	"github.com/jmcleod/ballotbox/storage"
)

const (
	storeNamespace  = "session"
	storeRecordType = "KV"
	sealVersion     = 1
	sealKeyInfo     = "ballotbox:session_seal_key:v1"

	// KeyAccessToken holds the bearer credential.
	KeyAccessToken = "accessToken"
	// KeyUser holds the JSON-encoded UserProfile.
	KeyUser = "user"
)

// ErrStoreClosed is returned by reads and writes after Close.
var ErrStoreClosed = errors.New("session store is closed")

// PersistentStore keeps the credential and the cached profile in a
// storage.Repository so that they survive a restart. Both records are
// written and removed together in one batch.
//
// When a seal secret is configured, records are encrypted at rest with
// AES-256-GCM under a key derived from the secret. The key lives in a
// memguard enclave and is only decrypted into a locked buffer for the
// duration of one seal or open. Records that cannot be opened are reported
// as absent.
type PersistentStore struct {
	repo storage.Repository

	mu     sync.RWMutex
	key    *memguard.Enclave
	closed bool
}

// StoreOption configures a PersistentStore.
type StoreOption func(*PersistentStore) error

// WithSealSecret enables at-rest sealing with a key derived from secret.
// An empty secret leaves records unsealed.
func WithSealSecret(secret string) StoreOption {
	return func(p *PersistentStore) error {
		if secret == "" {
			return nil
		}
		key, err := util.HKDF([]byte(secret), nil, []byte(sealKeyInfo))
		if err != nil {
			return fmt.Errorf("deriving seal key: %w", err)
		}
		// NewEnclave wipes key.
		p.key = memguard.NewEnclave(key)
		return nil
	}
}

// NewPersistentStore creates a store over repo.
func NewPersistentStore(repo storage.Repository, opts ...StoreOption) (*PersistentStore, error) {
	p := &PersistentStore{repo: repo}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Close drops the seal key enclave. Every later read or write fails with
// ErrStoreClosed, so sealed records can no longer be opened through p.
func (p *PersistentStore) Close() {
	p.mu.Lock()
	p.key = nil
	p.closed = true
	p.mu.Unlock()
}

// withKey runs fn with the seal key opened in a locked buffer that is
// destroyed when fn returns. fn gets a nil key when sealing is off.
func (p *PersistentStore) withKey(fn func(key []byte) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrStoreClosed
	}
	if p.key == nil {
		return fn(nil)
	}
	buf, err := p.key.Open()
	if err != nil {
		return fmt.Errorf("opening seal key enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// Token returns the stored credential, or "" when none is stored or it is
// unreadable.
func (p *PersistentStore) Token() string {
	data, err := p.read(KeyAccessToken)
	if err != nil || data == nil {
		return ""
	}
	return string(data)
}

// Load returns the stored credential and profile. Missing or unreadable
// records come back as "" and nil; only repository failures are errors.
func (p *PersistentStore) Load() (string, *auth.UserProfile, error) {
	tokenData, err := p.read(KeyAccessToken)
	if err != nil {
		return "", nil, err
	}
	userData, err := p.read(KeyUser)
	if err != nil {
		return "", nil, err
	}

	var profile *auth.UserProfile
	if userData != nil {
		var u auth.UserProfile
		if json.Unmarshal(userData, &u) == nil {
			profile = &u
		}
	}
	return string(tokenData), profile, nil
}

// Save writes the credential and the profile in one batch.
func (p *PersistentStore) Save(token string, profile auth.UserProfile) error {
	userData, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	tokenEnv, err := p.seal(KeyAccessToken, []byte(token))
	if err != nil {
		return err
	}
	userEnv, err := p.seal(KeyUser, userData)
	if err != nil {
		return err
	}
	return p.repo.Batch(storeNamespace, func(tx storage.BatchTx) error {
		if err := tx.Put(storeRecordType, KeyAccessToken, tokenEnv); err != nil {
			return err
		}
		return tx.Put(storeRecordType, KeyUser, userEnv)
	})
}

// SaveProfile replaces only the cached profile.
func (p *PersistentStore) SaveProfile(profile auth.UserProfile) error {
	userData, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	env, err := p.seal(KeyUser, userData)
	if err != nil {
		return err
	}
	return p.repo.Put(storeNamespace, storeRecordType, KeyUser, env)
}

// Clear removes both records in one batch. Clearing an empty store succeeds.
func (p *PersistentStore) Clear() error {
	return p.repo.Batch(storeNamespace, func(tx storage.BatchTx) error {
		if err := tx.Delete(storeRecordType, KeyAccessToken); err != nil {
			return err
		}
		return tx.Delete(storeRecordType, KeyUser)
	})
}

func (p *PersistentStore) seal(name string, plaintext []byte) (*storage.Envelope, error) {
	var env *storage.Envelope
	err := p.withKey(func(key []byte) error {
		if key == nil {
			env = storage.RawRecord(plaintext)
			return nil
		}
		var err error
		env, err = storage.SealRecord(key, plaintext, recordAAD(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sealing %s: %w", name, err)
	}
	return env, nil
}

// read returns nil data for records that are missing or cannot be opened.
func (p *PersistentStore) read(name string) ([]byte, error) {
	env, err := p.repo.Get(storeNamespace, storeRecordType, name)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrNamespaceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	var data []byte
	err = p.withKey(func(key []byte) error {
		opened, openErr := env.Open(key, recordAAD(name))
		if openErr == nil {
			data = opened
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

func recordAAD(name string) []byte {
	return icrypto.AADRecord(storeNamespace, storeRecordType, name, sealVersion)
}
