package attestation

import (
	"context"
	"crypto/ed25519"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophpair/internal/common"
	"github.com/dmitrijs2005/gophpair/internal/cryptox"
	"github.com/dmitrijs2005/gophpair/internal/logging"
	"github.com/dmitrijs2005/gophpair/internal/metrics"
	"github.com/dmitrijs2005/gophpair/internal/models"
)

type fakeStore struct {
	session *models.MySessionData
	err     error
}

func (f *fakeStore) Get(context.Context) (*models.MySessionData, error) {
	return f.session, f.err
}

func (f *fakeStore) Participants(context.Context) ([]ed25519.PublicKey, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.session == nil {
		return nil, common.ErrNoSession
	}
	if !f.session.HasParticipant() {
		return []ed25519.PublicKey{}, nil
	}
	return []ed25519.PublicKey{f.session.Participant.PublicKey}, nil
}

func keyPair(t *testing.T) models.KeyPair {
	t.Helper()
	kp, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)
	return kp
}

// pairedSessions returns two sessions that hold each other as participant.
func pairedSessions(t *testing.T) (a, b *models.MySessionData) {
	t.Helper()
	ka, kb := keyPair(t), keyPair(t)
	id := models.NewSessionID()
	a = &models.MySessionData{SessionID: id, PrivateKey: ka.PrivateKey, PublicKey: ka.PublicKey, CreatedByMe: true,
		Participant: &models.Participant{PublicKey: kb.PublicKey}}
	b = &models.MySessionData{SessionID: id, PrivateKey: kb.PrivateKey, PublicKey: kb.PublicKey,
		Participant: &models.Participant{PublicKey: ka.PublicKey}}
	return a, b
}

func TestValidate_SetMembership(t *testing.T) {
	signerKeys, other := keyPair(t), keyPair(t)
	p := Sign(signerKeys.PrivateKey, "challenge")

	assert.True(t, Validate(p, []ed25519.PublicKey{signerKeys.PublicKey}))
	assert.True(t, Validate(p, []ed25519.PublicKey{other.PublicKey, signerKeys.PublicKey}))
	assert.False(t, Validate(p, []ed25519.PublicKey{other.PublicKey}))
	assert.False(t, Validate(p, nil), "empty participant set")

	tampered := p
	tampered.Challenge = "challengf"
	assert.False(t, Validate(tampered, []ed25519.PublicKey{signerKeys.PublicKey}))

	bad := p
	bad.Signature = "%%%"
	assert.False(t, Validate(bad, []ed25519.PublicKey{signerKeys.PublicKey}))
}

func TestAttest_FreshChallenges(t *testing.T) {
	a, _ := pairedSessions(t)
	svc := NewService(&fakeStore{session: a}, 32, logging.Discard(), nil)
	ctx := context.Background()

	p1, err := svc.Attest(ctx)
	require.NoError(t, err)
	p2, err := svc.Attest(ctx)
	require.NoError(t, err)

	assert.Len(t, p1.Challenge, 64)
	assert.NotEqual(t, p1.Challenge, p2.Challenge)
	assert.True(t, Validate(p1, []ed25519.PublicKey{a.PublicKey}))
}

func TestAttest_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewService(&fakeStore{}, 32, logging.Discard(), nil).Attest(ctx)
	require.ErrorIs(t, err, common.ErrNoSession)

	boom := errors.New("boom")
	_, err = NewService(&fakeStore{err: boom}, 32, logging.Discard(), nil).Attest(ctx)
	require.ErrorIs(t, err, boom)
}

func TestEncodeDecode(t *testing.T) {
	p := models.SignedAttestationPayload{Challenge: "c", Signature: "s"}
	assert.JSONEq(t, `{"challenge":"c","signature":"s"}`, string(Encode(p)))

	got, ok := Decode(Encode(p))
	require.True(t, ok)
	assert.Equal(t, p, got)

	for _, raw := range []string{"", "{", `{"challenge":"c"}`, `{"signature":"s"}`, `[]`} {
		_, ok := Decode([]byte(raw))
		assert.False(t, ok, raw)
	}
}

func TestValidatePeer_AcceptsPairedPeer(t *testing.T) {
	a, b := pairedSessions(t)
	ctx := context.Background()
	peer := NewService(&fakeStore{session: b}, 16, logging.Discard(), nil)
	svc := NewService(&fakeStore{session: a}, 16, logging.Discard(), nil)

	p, err := peer.Attest(ctx)
	require.NoError(t, err)

	vp, ok := svc.ValidatePeer(ctx, "peer-b", Encode(p))
	require.True(t, ok)
	assert.False(t, vp.IsZero())
	assert.Equal(t, "peer-b", string(vp.Endpoint()))
	assert.Equal(t, b.PublicKey, vp.PublicKey())
	assert.Equal(t, cryptox.DeriveParticipantID(b.PublicKey), vp.ParticipantID())
}

func TestValidatePeer_RejectsReplay(t *testing.T) {
	a, b := pairedSessions(t)
	ctx := context.Background()
	m := metrics.New()
	svc := NewService(&fakeStore{session: a}, 16, logging.Discard(), m)

	raw := Encode(Sign(b.PrivateKey, "once"))
	_, ok := svc.ValidatePeer(ctx, "peer-b", raw)
	require.True(t, ok)
	_, ok = svc.ValidatePeer(ctx, "peer-b", raw)
	assert.False(t, ok)

	expected := `
# HELP gophpair_attestations_total Received peer attestations by validation result.
# TYPE gophpair_attestations_total counter
gophpair_attestations_total{result="ok"} 1
gophpair_attestations_total{result="replay"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "gophpair_attestations_total"))
}

func TestValidatePeer_RejectsThirdDevice(t *testing.T) {
	a, _ := pairedSessions(t)
	intruder := keyPair(t)
	svc := NewService(&fakeStore{session: a}, 16, logging.Discard(), nil)

	vp, ok := svc.ValidatePeer(context.Background(), "intruder", Encode(Sign(intruder.PrivateKey, "hello")))
	assert.False(t, ok)
	assert.True(t, vp.IsZero())
}

func TestValidatePeer_RejectsOwnReflectedAttestation(t *testing.T) {
	a, _ := pairedSessions(t)
	svc := NewService(&fakeStore{session: a}, 16, logging.Discard(), nil)

	_, ok := svc.ValidatePeer(context.Background(), "mirror", Encode(Sign(a.PrivateKey, "mine")))
	assert.False(t, ok)
}

func TestValidatePeer_InvalidState(t *testing.T) {
	a, b := pairedSessions(t)
	raw := Encode(Sign(b.PrivateKey, "x"))
	ctx := context.Background()

	_, ok := NewService(&fakeStore{}, 16, logging.Discard(), nil).ValidatePeer(ctx, "p", raw)
	assert.False(t, ok, "no session")

	a.Participant = nil
	_, ok = NewService(&fakeStore{session: a}, 16, logging.Discard(), nil).ValidatePeer(ctx, "p", raw)
	assert.False(t, ok, "no participant yet")

	_, ok = NewService(&fakeStore{err: common.ErrPersistence}, 16, logging.Discard(), nil).ValidatePeer(ctx, "p", raw)
	assert.False(t, ok, "store failure")

	_, ok = NewService(&fakeStore{session: a}, 16, logging.Discard(), nil).ValidatePeer(ctx, "p", []byte("junk"))
	assert.False(t, ok, "malformed")
}

func TestReplayCache_Evicts(t *testing.T) {
	svc := NewService(&fakeStore{}, 16, logging.Discard(), nil)
	require.True(t, svc.remember("first"))
	for i := 0; i < replayCacheSize; i++ {
		require.True(t, svc.remember(strings.Repeat("x", i+1)))
	}
	assert.True(t, svc.remember("first"), "oldest entry evicted")
	assert.Len(t, svc.order, replayCacheSize)
}

func TestValidatedPeer_ZeroValue(t *testing.T) {
	assert.True(t, ValidatedPeer{}.IsZero())
}
