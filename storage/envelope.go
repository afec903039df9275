package storage

import (
	"fmt"

	"github.com/jmcleod/ballotbox/internal/util"
)

const (
	// SchemeRaw stores the payload unencrypted in Ciphertext.
	SchemeRaw = "raw"
	// SchemeAES256GCM stores an AES-256-GCM sealed payload.
	SchemeAES256GCM = "aes256gcm"

	envelopeVersion = 1
)

// Envelope is a stored record, either raw or AES-256-GCM sealed.
type Envelope struct {
	Ver        int    `json:"ver"`
	Scheme     string `json:"scheme"`
	Nonce      []byte `json:"nonce,omitempty"`
	Ciphertext []byte `json:"ciphertext"`
}

// RawRecord wraps plaintext into an unsealed Envelope.
func RawRecord(plaintext []byte) *Envelope {
	return &Envelope{
		Ver:        envelopeVersion,
		Scheme:     SchemeRaw,
		Ciphertext: util.CopyBytes(plaintext),
	}
}

// SealRecord encrypts plaintext into an Envelope using the given record key and AAD.
func SealRecord(recordKey, plaintext, aad []byte) (*Envelope, error) {
	cipher, err := util.EncryptAESWithAAD(plaintext, recordKey, aad)
	if err != nil {
		return nil, err
	}

	// util.EncryptAESWithAAD returns nonce || ciphertext.
	nonce := cipher[:12]
	ciphertext := cipher[12:]

	return &Envelope{
		Ver:        envelopeVersion,
		Scheme:     SchemeAES256GCM,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

// OpenRecord decrypts an Envelope using the given record key and AAD.
func OpenRecord(recordKey []byte, envelope *Envelope, aad []byte) ([]byte, error) {
	if envelope.Ver != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version: %d", envelope.Ver)
	}
	if envelope.Scheme != SchemeAES256GCM {
		return nil, fmt.Errorf("unsupported envelope scheme: %s", envelope.Scheme)
	}

	// Reconstruct nonce || ciphertext without mutating envelope fields.
	fullCipher := make([]byte, len(envelope.Nonce)+len(envelope.Ciphertext))
	copy(fullCipher, envelope.Nonce)
	copy(fullCipher[len(envelope.Nonce):], envelope.Ciphertext)

	return util.DecryptAESWithAAD(fullCipher, recordKey, aad)
}

// Open returns the payload of the envelope. Raw envelopes are returned as-is
// and sealed envelopes require recordKey. A nil recordKey refuses sealed
// records rather than returning ciphertext.
func (e *Envelope) Open(recordKey, aad []byte) ([]byte, error) {
	switch e.Scheme {
	case SchemeRaw:
		if e.Ver != envelopeVersion {
			return nil, fmt.Errorf("unsupported envelope version: %d", e.Ver)
		}
		return util.CopyBytes(e.Ciphertext), nil
	case SchemeAES256GCM:
		if recordKey == nil {
			return nil, fmt.Errorf("sealed record requires a key")
		}
		return OpenRecord(recordKey, e, aad)
	default:
		return nil, fmt.Errorf("unsupported envelope scheme: %s", e.Scheme)
	}
}
