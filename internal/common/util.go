package common

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

// passwordAlphabet omits characters that are easy to confuse when a password
// is read aloud or typed from a screen (0/O, 1/l/I).
const passwordAlphabet = "23456789abcdefghijkmnpqrstuvwxyz"

// MakeRandHexString generates size random bytes and returns them hex-encoded,
// so the result is twice as long as size.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// MakeRandPassword returns n characters drawn uniformly from passwordAlphabet
// using crypto/rand.
func MakeRandPassword(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = passwordAlphabet[idx.Int64()]
	}
	return string(out), nil
}

// GenerateRandByteArray returns size bytes from crypto/rand.
func GenerateRandByteArray(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// WipeByteArray overwrites b with zeros. Nil is a no-op.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
