package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"

	"golang.org/x/crypto/argon2"
)

// ErrSealedEntryTooShort is returned by OpenEntry for input shorter than a nonce.
var ErrSealedEntryTooShort = errors.New("sealed entry too short")

// MakeVerifier returns a value that proves knowledge of masterKey without
// revealing it.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// DeriveMasterKey stretches password with argon2id into a 32-byte key.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, keyBytes)
}

// SealEntry serializes entry to JSON and encrypts it with AES-GCM under key.
// The result is nonce ‖ ciphertext; a fresh nonce is drawn per call.
func SealEntry(entry any, key []byte) ([]byte, error) {
	plaintext, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// OpenEntry reverses SealEntry and unmarshals the JSON into v.
func OpenEntry(sealed, key []byte, v any) error {
	aead, err := newGCM(key)
	if err != nil {
		return err
	}
	if len(sealed) < aead.NonceSize() {
		return ErrSealedEntryTooShort
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, v)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
