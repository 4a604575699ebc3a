package relay

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/gophpair/internal/common"
	"github.com/dmitrijs2005/gophpair/internal/models"
)

// tokenIDBytes is the size of the random jti that lets a receiver reject
// a packaged token seen before.
const tokenIDBytes = 16

var errInvalidToken = errors.New("invalid secondary token")

// Claims wraps a secondary token. The issuer and audience are the sender's
// and receiver's participant ids.
type Claims struct {
	jwt.RegisteredClaims
	Token string `json:"tok"`
}

// Package signs token with the sender's session key.
func Package(token models.SecondaryToken, from, to models.ParticipantID, key ed25519.PrivateKey, now time.Time, ttl time.Duration) (string, error) {
	id, err := common.MakeRandHexString(tokenIDBytes)
	if err != nil {
		return "", err
	}
	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    string(from),
			Audience:  jwt.ClaimStrings{string(to)},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Token: base64.StdEncoding.EncodeToString(token),
	})
	return t.SignedString(key)
}

// Unpackage verifies a packaged token against the sender's public key and
// checks that it was addressed to us. It returns the token and its jti.
func Unpackage(packaged string, from, to models.ParticipantID, key ed25519.PublicKey, now func() time.Time) (models.SecondaryToken, string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(packaged, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(string(from)),
		jwt.WithAudience(string(to)),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		return nil, "", err
	}
	if !token.Valid || claims.ID == "" {
		return nil, "", errInvalidToken
	}

	raw, err := base64.StdEncoding.DecodeString(claims.Token)
	if err != nil {
		return nil, "", errInvalidToken
	}
	return models.SecondaryToken(raw), claims.ID, nil
}
