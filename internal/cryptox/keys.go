package cryptox

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/dmitrijs2005/gophpair/internal/models"
)

// GenerateKeyPair returns a fresh Ed25519 key pair.
func GenerateKeyPair() (models.KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return models.KeyPair{}, err
	}
	return models.KeyPair{PrivateKey: priv, PublicKey: pub}, nil
}

// Sign signs payload with privateKey.
func Sign(privateKey ed25519.PrivateKey, payload []byte) []byte {
	return ed25519.Sign(privateKey, payload)
}

// Verify reports whether signature is a valid signature of data by publicKey.
// Keys of the wrong size verify as false.
func Verify(data, signature []byte, publicKey ed25519.PublicKey) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(publicKey, data, signature)
}

// DeriveParticipantID returns the hex SHA-256 digest of publicKey.
func DeriveParticipantID(publicKey ed25519.PublicKey) models.ParticipantID {
	sum := sha256.Sum256(publicKey)
	return models.ParticipantID(hex.EncodeToString(sum[:]))
}
