package pairing

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophpair/internal/attestation"
	"github.com/dmitrijs2005/gophpair/internal/common"
	"github.com/dmitrijs2005/gophpair/internal/cryptox"
	"github.com/dmitrijs2005/gophpair/internal/metrics"
	"github.com/dmitrijs2005/gophpair/internal/models"
	"github.com/dmitrijs2005/gophpair/internal/transport"
)

var errEmptyPassword = errors.New("empty peering password")

func (p *Protocol) host(ctx context.Context) (models.PeeringPassword, models.PasswordLink, error) {
	if err := p.begin(ctx, roleHost); err != nil {
		return models.PeeringPassword{}, "", p.fail(ctx, err)
	}

	value, err := p.newPassword(p.cfg.PasswordLength)
	if err != nil {
		return models.PeeringPassword{}, "", p.abort(ctx, fmt.Errorf("make password: %w", err))
	}
	session, err := p.newSession(ctx, true)
	if err != nil {
		return models.PeeringPassword{}, "", p.abort(ctx, err)
	}

	p.password = value
	p.update(ctx, func(s *Status) {
		s.State = models.StateAwaitingPeerKey
		s.Session = session.Shared()
	})
	p.logger.Info(ctx, "hosting pairing attempt", "session", session.SessionID, "attempt", p.gen)
	p.drainPendingKeys(ctx)

	pw := models.PeeringPassword{Value: value}
	return pw, models.NewPasswordLink(p.cfg.Scheme, pw), nil
}

func (p *Protocol) await(ctx context.Context) error {
	if err := p.begin(ctx, roleJoiner); err != nil {
		return p.fail(ctx, err)
	}
	p.update(ctx, func(s *Status) { s.State = models.StateAwaitingPassword })
	p.logger.Info(ctx, "waiting for pairing password", "attempt", p.gen)
	return nil
}

func (p *Protocol) join(ctx context.Context, pw models.PeeringPassword) error {
	if pw.Value == "" {
		return p.fail(ctx, errEmptyPassword)
	}
	if p.role != roleJoiner || p.password != "" {
		if err := p.begin(ctx, roleJoiner); err != nil {
			return p.fail(ctx, err)
		}
	}

	session, err := p.newSession(ctx, false)
	if err != nil {
		return p.abort(ctx, err)
	}
	enc, err := cryptox.Encrypt(session.PublicKey, pw.Value)
	if err != nil {
		return p.abort(ctx, fmt.Errorf("encrypt public key: %w", err))
	}

	p.password = pw.Value
	p.outbound = models.EncryptedPublicKey{Value: enc}.Bytes()
	p.latch = false
	p.update(ctx, func(s *Status) {
		s.State = models.StateAwaitingPeerKey
		s.Session = session.Shared()
	})
	p.logger.Info(ctx, "joining pairing attempt", "session", session.SessionID, "attempt", p.gen)

	if len(p.endpoints) == 0 {
		p.logger.Warn(ctx, "no endpoint in range yet, key held until discovery", "error", common.ErrTransportUnavailable)
	}
	for _, ep := range p.endpoints {
		p.writeKey(ctx, ep, p.outbound)
	}
	p.drainPendingKeys(ctx)
	return nil
}

func (p *Protocol) cancel(ctx context.Context) error {
	if p.role == roleNone {
		return nil
	}
	shared := p.discardUnpaired(ctx)
	p.finish()
	p.metrics.Handshake(metrics.ResultCancelled)
	p.logger.Info(ctx, "pairing attempt cancelled")
	p.rest(ctx, shared, common.ErrPairingCancelled)
	return nil
}

// release runs when the actor stops. An attempt still in progress is
// cancelled so that its unpaired session does not outlive the process.
func (p *Protocol) release(ctx context.Context) {
	if p.role == roleNone {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	_ = p.cancel(ctx)
}

func (p *Protocol) onTimeout(ctx context.Context, gen uint64) {
	if gen != p.gen || p.role == roleNone {
		return
	}
	shared := p.discardUnpaired(ctx)
	p.finish()
	p.metrics.Handshake(metrics.ResultTimeout)
	p.logger.Warn(ctx, "pairing attempt timed out", "attempt", gen)
	p.rest(ctx, shared, common.ErrPairingTimeout)
}

// begin starts attempt number gen+1 in role r, abandoning any attempt in
// progress. A paired session must be deleted before pairing again; an
// unpaired one left by an earlier attempt is discarded.
func (p *Protocol) begin(ctx context.Context, r role) error {
	session, err := p.store.Get(ctx)
	if err != nil {
		return err
	}
	if session.HasParticipant() {
		return fmt.Errorf("%w: session %s is already paired", common.ErrInvalidState, session.SessionID)
	}
	if p.role != roleNone {
		p.finish()
	}
	if r == roleHost {
		// The host's password did not exist before now.
		p.pendKeys = nil
	}
	if session != nil {
		if err := p.store.Delete(ctx); err != nil {
			return err
		}
		p.publish(ctx, nil)
	}

	p.gen++
	p.role = r
	p.latch = r == roleHost
	p.armTimer()
	p.update(ctx, func(s *Status) { *s = Status{State: models.StateIdle} })
	return nil
}

// finish ends the current attempt. Held keys and attestations belong to it
// and are dropped.
func (p *Protocol) finish() {
	p.stopTimer()
	p.role = roleNone
	p.password = ""
	p.latch = false
	p.outbound = nil
	p.pendKeys = nil
	p.pendAtts = nil
}

// abort ends an attempt that failed while starting.
func (p *Protocol) abort(ctx context.Context, err error) error {
	shared := p.discardUnpaired(ctx)
	p.finish()
	p.metrics.Handshake(metrics.ResultError)
	p.rest(ctx, shared, err)
	return err
}

// rest records the state left behind by an attempt: exchanged when the
// session kept its participant, idle otherwise.
func (p *Protocol) rest(ctx context.Context, shared *models.SharedSessionData, err error) {
	state := models.StateIdle
	if shared != nil && shared.IsReady == models.ReadyYes {
		state = models.StateExchanged
	}
	p.update(ctx, func(s *Status) {
		s.State = state
		s.Session = shared
		s.Err = err
	})
}

func (p *Protocol) fail(ctx context.Context, err error) error {
	p.logger.Error(ctx, "pairing step failed", "error", err)
	p.update(ctx, func(s *Status) { s.Err = err })
	return err
}

func (p *Protocol) newSession(ctx context.Context, createdByMe bool) (*models.MySessionData, error) {
	kp, err := cryptox.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	session := &models.MySessionData{
		SessionID:     models.NewSessionID(),
		PrivateKey:    kp.PrivateKey,
		PublicKey:     kp.PublicKey,
		ParticipantID: cryptox.DeriveParticipantID(kp.PublicKey),
		CreatedByMe:   createdByMe,
	}
	if err := p.store.Save(ctx, session); err != nil {
		return nil, err
	}
	p.publish(ctx, session.Shared())
	return session, nil
}

// discardUnpaired deletes a session that never got a participant and
// returns the shared view of what remains.
func (p *Protocol) discardUnpaired(ctx context.Context) *models.SharedSessionData {
	session, err := p.store.Get(ctx)
	if err != nil {
		p.logger.Error(ctx, "load session", "error", err)
		return nil
	}
	if session == nil || session.HasParticipant() {
		return session.Shared()
	}
	if err := p.store.Delete(ctx); err != nil {
		p.logger.Error(ctx, "delete unpaired session", "error", err)
		return session.Shared()
	}
	p.publish(ctx, nil)
	return nil
}

func (p *Protocol) onKey(ctx context.Context, pkt transport.Packet) {
	if p.role == roleNone && p.state() >= models.StateExchanged {
		p.logger.Debug(ctx, "key after finished attempt dropped", "from", pkt.From)
		return
	}
	if p.password == "" {
		p.pendKeys = hold(p.pendKeys, pkt)
		p.logger.Debug(ctx, "key received before password, holding", "from", pkt.From)
		return
	}

	plain, ok := cryptox.Decrypt(models.EncryptedPublicKeyFromBytes(pkt.Data).Value, p.password)
	if !ok || len(plain) != ed25519.PublicKeySize {
		p.logger.Warn(ctx, "cannot decrypt peer key", "from", pkt.From, "error", common.ErrInvalidPeerData)
		p.metrics.Handshake(metrics.ResultInvalid)
		p.update(ctx, func(s *Status) { s.Err = common.ErrInvalidPeerData })
		return
	}
	key := ed25519.PublicKey(plain)

	session, err := p.ensureSession(ctx)
	if err != nil {
		p.metrics.Handshake(metrics.ResultError)
		_ = p.fail(ctx, err)
		return
	}
	if isOwnKey(session, key) {
		p.logger.Debug(ctx, "own key echoed back, ignoring", "from", pkt.From)
		return
	}

	updated, err := p.store.SetPeer(ctx, models.Participant{PublicKey: key})
	if err != nil {
		if errors.Is(err, common.ErrParticipantConflict) {
			p.metrics.Handshake(metrics.ResultInvalid)
		} else {
			p.metrics.Handshake(metrics.ResultError)
		}
		_ = p.fail(ctx, err)
		return
	}
	if p.state() >= models.StateExchanged {
		p.logger.Debug(ctx, "duplicate peer key ignored", "from", pkt.From)
		return
	}

	p.peer = pkt.From
	p.metrics.Handshake(metrics.ResultOK)
	p.logger.Info(ctx, "peer key stored", "from", pkt.From, "participant", cryptox.DeriveParticipantID(key))

	if p.latch {
		p.latch = false
		p.replyWithKey(ctx, session, pkt.From)
	}

	shared := updated.Shared()
	p.update(ctx, func(s *Status) {
		s.State = models.StateExchanged
		s.Session = shared
		s.Err = nil
	})
	p.publish(ctx, shared)

	p.sendAttestation(ctx)
	p.drainPendingAtts(ctx)
}

// ensureSession returns the stored session. A host that lost its session
// creates a new one; a joiner always has one once it knows the password.
func (p *Protocol) ensureSession(ctx context.Context) (*models.MySessionData, error) {
	session, err := p.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}
	if p.role != roleHost {
		return nil, fmt.Errorf("%w: joiner has no session", common.ErrInvalidState)
	}
	return p.newSession(ctx, true)
}

func (p *Protocol) replyWithKey(ctx context.Context, session *models.MySessionData, to transport.Endpoint) {
	enc, err := cryptox.Encrypt(session.PublicKey, p.password)
	if err != nil {
		_ = p.fail(ctx, fmt.Errorf("encrypt public key: %w", err))
		return
	}
	p.writeKey(ctx, to, models.EncryptedPublicKey{Value: enc}.Bytes())
}

func (p *Protocol) writeKey(ctx context.Context, to transport.Endpoint, data []byte) {
	if !p.tr.Write(ctx, to, transport.CharColocatedKey, data) {
		p.logger.Error(ctx, "key not delivered", "to", to, "error", common.ErrTransportUnavailable)
	}
}

func (p *Protocol) sendAttestation(ctx context.Context) {
	payload, err := p.attestor.Attest(ctx)
	if err != nil {
		_ = p.fail(ctx, fmt.Errorf("attest: %w", err))
		return
	}
	if !p.tr.Write(ctx, p.peer, transport.CharAttestation, attestation.Encode(payload)) {
		p.logger.Error(ctx, "attestation not delivered", "to", p.peer, "error", common.ErrTransportUnavailable)
	}
}

func (p *Protocol) onAttestation(ctx context.Context, pkt transport.Packet) {
	if p.role != roleNone && p.state() < models.StateExchanged {
		p.pendAtts = hold(p.pendAtts, pkt)
		p.logger.Debug(ctx, "attestation received before peer key, holding", "from", pkt.From)
		return
	}

	peer, ok := p.attestor.ValidatePeer(ctx, pkt.From, pkt.Data)
	if !ok {
		return
	}

	p.finish()
	var shared *models.SharedSessionData
	if session, err := p.store.Get(ctx); err == nil {
		shared = session.Shared()
	}
	p.update(ctx, func(s *Status) {
		s.State = models.StateValidated
		s.Session = shared
		s.Peer = peer
		s.Err = nil
	})
	p.logger.Info(ctx, "peer validated", "peer", peer.Endpoint(), "participant", peer.ParticipantID())
}

func (p *Protocol) onDiscovered(ctx context.Context, ep transport.Endpoint) {
	for _, known := range p.endpoints {
		if known == ep {
			return
		}
	}
	p.endpoints = append(p.endpoints, ep)

	if p.role == roleJoiner && p.outbound != nil && p.state() < models.StateExchanged {
		p.logger.Debug(ctx, "sending held key to discovered endpoint", "to", ep)
		p.writeKey(ctx, ep, p.outbound)
	}
}

func (p *Protocol) drainPendingKeys(ctx context.Context) {
	held := p.pendKeys
	p.pendKeys = nil
	for _, pkt := range held {
		p.onKey(ctx, pkt)
	}
}

func (p *Protocol) drainPendingAtts(ctx context.Context) {
	held := p.pendAtts
	p.pendAtts = nil
	for _, pkt := range held {
		p.onAttestation(ctx, pkt)
	}
}

func (p *Protocol) armTimer() {
	p.stopTimer()
	if p.cfg.Timeout <= 0 {
		return
	}
	gen := p.gen
	p.timer = time.AfterFunc(p.cfg.Timeout, func() {
		select {
		case p.events <- timeoutEvent{gen: gen}:
		case <-p.done:
		}
	})
}

func (p *Protocol) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func hold(buf []transport.Packet, pkt transport.Packet) []transport.Packet {
	if len(buf) >= maxPending {
		buf = buf[1:]
	}
	return append(buf, pkt)
}
