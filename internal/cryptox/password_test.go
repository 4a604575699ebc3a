package cryptox

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	passwords := []string{"7f3ac9", "", "a longer pass phrase with spaces", "пароль"}

	for _, pw := range passwords {
		kp, err := GenerateKeyPair()
		require.NoError(t, err)

		ct, err := Encrypt(kp.PublicKey, pw)
		require.NoError(t, err)

		pt, ok := Decrypt(ct, pw)
		require.True(t, ok, "password %q", pw)
		assert.Equal(t, []byte(kp.PublicKey), pt)
	}
}

func TestEncrypt_FreshOutputPerCall(t *testing.T) {
	a, err := Encrypt([]byte("same key"), "pw")
	require.NoError(t, err)
	b, err := Encrypt([]byte("same key"), "pw")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecrypt_WrongPassword(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	ct, err := Encrypt(kp.PublicKey, "7f3ac9")
	require.NoError(t, err)

	for _, wrong := range []string{"7f3ac8", "7F3AC9", "", "7f3ac9 "} {
		pt, ok := Decrypt(ct, wrong)
		assert.False(t, ok, "password %q", wrong)
		assert.Nil(t, pt)
	}
}

func TestDecrypt_MalformedInput(t *testing.T) {
	valid, err := Encrypt([]byte("pk"), "pw")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(valid)
	require.NoError(t, err)

	badVersion := append([]byte(nil), raw...)
	badVersion[0] = 9

	tampered := append([]byte(nil), raw...)
	tampered[len(tampered)-1] ^= 0x01

	inputs := map[string]string{
		"not base64":  "!!!",
		"empty":       "",
		"too short":   base64.StdEncoding.EncodeToString(raw[:10]),
		"bad version": base64.StdEncoding.EncodeToString(badVersion),
		"tampered":    base64.StdEncoding.EncodeToString(tampered),
		"plaintext":   base64.StdEncoding.EncodeToString([]byte("just a public key, not sealed")),
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			_, ok := Decrypt(in, "pw")
			assert.False(t, ok)
		})
	}
}
