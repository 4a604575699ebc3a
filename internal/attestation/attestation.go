// Package attestation proves and checks session membership. A device attests
// by signing a fresh random challenge with its session private key; a peer
// is accepted only when the signature verifies against a participant key
// already stored for the current session.
package attestation

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gophpair/internal/common"
	"github.com/dmitrijs2005/gophpair/internal/cryptox"
	"github.com/dmitrijs2005/gophpair/internal/logging"
	"github.com/dmitrijs2005/gophpair/internal/metrics"
	"github.com/dmitrijs2005/gophpair/internal/models"
	"github.com/dmitrijs2005/gophpair/internal/transport"
)

const replayCacheSize = 1024

// SessionReader is the part of the session store attestation needs.
type SessionReader interface {
	Get(ctx context.Context) (*models.MySessionData, error)
	Participants(ctx context.Context) ([]ed25519.PublicKey, error)
}

// ValidatedPeer is the capability handed out for a peer whose attestation
// verified. Its zero value is not a validated peer, and it can only be built
// by this package.
type ValidatedPeer struct {
	endpoint      transport.Endpoint
	publicKey     ed25519.PublicKey
	participantID models.ParticipantID
}

func (p ValidatedPeer) Endpoint() transport.Endpoint { return p.endpoint }

func (p ValidatedPeer) PublicKey() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), p.publicKey...)
}

func (p ValidatedPeer) ParticipantID() models.ParticipantID { return p.participantID }

// IsZero reports whether p was not produced by a successful validation.
func (p ValidatedPeer) IsZero() bool {
	return p.endpoint == "" || len(p.publicKey) != ed25519.PublicKeySize
}

type Service struct {
	store          SessionReader
	challengeBytes int
	logger         logging.Logger
	metrics        *metrics.Metrics

	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

func NewService(store SessionReader, challengeBytes int, logger logging.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:          store,
		challengeBytes: challengeBytes,
		logger:         logger.With("module", "attestation"),
		metrics:        m,
		seen:           make(map[string]struct{}),
	}
}

// Attest signs a fresh challenge with the current session's private key.
func (s *Service) Attest(ctx context.Context) (models.SignedAttestationPayload, error) {
	session, err := s.store.Get(ctx)
	if err != nil {
		return models.SignedAttestationPayload{}, err
	}
	if session == nil {
		return models.SignedAttestationPayload{}, common.ErrNoSession
	}
	challenge, err := common.MakeRandHexString(s.challengeBytes)
	if err != nil {
		return models.SignedAttestationPayload{}, fmt.Errorf("make challenge: %w", err)
	}
	return Sign(session.PrivateKey, challenge), nil
}

// Sign builds the payload for challenge.
func Sign(privateKey ed25519.PrivateKey, challenge string) models.SignedAttestationPayload {
	sig := cryptox.Sign(privateKey, []byte(challenge))
	return models.SignedAttestationPayload{
		Challenge: challenge,
		Signature: base64.StdEncoding.EncodeToString(sig),
	}
}

// Encode is the wire form. A struct of two strings always marshals.
func Encode(p models.SignedAttestationPayload) []byte {
	b, _ := json.Marshal(p)
	return b
}

func Decode(raw []byte) (models.SignedAttestationPayload, bool) {
	var p models.SignedAttestationPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Challenge == "" || p.Signature == "" {
		return models.SignedAttestationPayload{}, false
	}
	return p, true
}

// Validate reports whether payload is signed by any of keys.
func Validate(payload models.SignedAttestationPayload, keys []ed25519.PublicKey) bool {
	_, ok := signer(payload, keys)
	return ok
}

func signer(payload models.SignedAttestationPayload, keys []ed25519.PublicKey) (ed25519.PublicKey, bool) {
	sig, err := base64.StdEncoding.DecodeString(payload.Signature)
	if err != nil {
		return nil, false
	}
	for _, k := range keys {
		if cryptox.Verify([]byte(payload.Challenge), sig, k) {
			return k, true
		}
	}
	return nil, false
}

// ValidatePeer checks an attestation written by from. A challenge is only
// accepted once. With no current session the result is false and the
// condition is logged as invalid state.
func (s *Service) ValidatePeer(ctx context.Context, from transport.Endpoint, raw []byte) (ValidatedPeer, bool) {
	payload, ok := Decode(raw)
	if !ok {
		s.logger.Warn(ctx, "malformed attestation", "from", from)
		s.metrics.Attestation(metrics.ResultInvalid)
		return ValidatedPeer{}, false
	}

	keys, err := s.store.Participants(ctx)
	if err != nil {
		if errors.Is(err, common.ErrNoSession) {
			s.logger.Error(ctx, "attestation received with no current session", "from", from, "error", common.ErrInvalidState)
			s.metrics.Attestation(metrics.ResultNoSession)
		} else {
			s.logger.Error(ctx, "load participants", "error", err)
			s.metrics.Attestation(metrics.ResultError)
		}
		return ValidatedPeer{}, false
	}

	key, ok := signer(payload, keys)
	if !ok {
		s.logger.Warn(ctx, "attestation rejected", "from", from)
		s.metrics.Attestation(metrics.ResultInvalid)
		return ValidatedPeer{}, false
	}
	if !s.remember(payload.Challenge) {
		s.logger.Warn(ctx, "attestation challenge replayed", "from", from)
		s.metrics.Attestation(metrics.ResultReplay)
		return ValidatedPeer{}, false
	}

	s.metrics.Attestation(metrics.ResultOK)
	return ValidatedPeer{
		endpoint:      from,
		publicKey:     append(ed25519.PublicKey(nil), key...),
		participantID: cryptox.DeriveParticipantID(key),
	}, true
}

// remember records challenge and reports whether it was new. The oldest
// entries are evicted once the cache is full.
func (s *Service) remember(challenge string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[challenge]; ok {
		return false
	}
	if len(s.order) >= replayCacheSize {
		delete(s.seen, s.order[0])
		s.order = s.order[1:]
	}
	s.seen[challenge] = struct{}{}
	s.order = append(s.order, challenge)
	return true
}
