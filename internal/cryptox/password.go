package cryptox

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/dmitrijs2005/gophpair/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	keyBytes     = 32

	saltBytes  = 16
	nonceBytes = 12

	// passwordSealV1 prefixes every sealed payload so the format can evolve.
	passwordSealV1 byte = 1
)

// Encrypt seals plaintext under password and returns base64 text of
// version ‖ salt ‖ nonce ‖ ciphertext. Salt and nonce are fresh per call, so
// sealing the same plaintext twice gives different output.
func Encrypt(plaintext []byte, password string) (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, keyBytes)
	defer common.WipeByteArray(key)

	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	out := make([]byte, 0, 1+saltBytes+nonceBytes+len(plaintext)+aead.Overhead())
	out = append(out, passwordSealV1)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, []byte{passwordSealV1})

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a value produced by Encrypt. It fails closed: malformed
// input, an unknown version, a wrong password or tampering all return false.
func Decrypt(ciphertext string, password string) ([]byte, bool) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, false
	}
	if len(raw) < 1+saltBytes+nonceBytes || raw[0] != passwordSealV1 {
		return nil, false
	}

	salt := raw[1 : 1+saltBytes]
	nonce := raw[1+saltBytes : 1+saltBytes+nonceBytes]
	sealed := raw[1+saltBytes+nonceBytes:]

	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, keyBytes)
	defer common.WipeByteArray(key)

	aead, err := newGCM(key)
	if err != nil {
		return nil, false
	}
	plaintext, err := aead.Open(nil, nonce, sealed, []byte{passwordSealV1})
	if err != nil {
		return nil, false
	}
	return plaintext, true
}
