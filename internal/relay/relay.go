// Package relay exchanges the secondary channel token with a validated
// peer. Tokens are only written to, and only accepted from, the endpoint of
// the peer authorized through a successful attestation. With the secondary
// channel disabled every operation is a no-op.
//
// The sender endpoint of a packet is whatever the link reports, and links
// such as grpclink take it from the caller. Endpoint gating therefore only
// filters noise. A token is accepted because its EdDSA signature verifies
// against the validated peer's key and its jti has not been seen before.
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophpair/internal/attestation"
	"github.com/dmitrijs2005/gophpair/internal/common"
	"github.com/dmitrijs2005/gophpair/internal/logging"
	"github.com/dmitrijs2005/gophpair/internal/metrics"
	"github.com/dmitrijs2005/gophpair/internal/models"
	"github.com/dmitrijs2005/gophpair/internal/transport"
)

const (
	tokenBuffer = 8
	// Packets held while no peer is authorized yet.
	maxHeld = 4
	// Token ids remembered to reject replays.
	maxSeen = 64
)

type SessionReader interface {
	Get(ctx context.Context) (*models.MySessionData, error)
}

type Relay struct {
	tr      transport.Transport
	store   SessionReader
	enabled bool
	ttl     time.Duration
	logger  logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	packets <-chan transport.Packet
	tokens  chan models.SecondaryToken
	wake    chan struct{}
	held    []transport.Packet
	seen    map[string]struct{}
	order   []string

	mu   sync.RWMutex
	peer attestation.ValidatedPeer
}

// New subscribes to the token characteristic only when enabled, so a
// disabled device looks to its peer like one without secondary support.
func New(tr transport.Transport, store SessionReader, enabled bool, ttl time.Duration, logger logging.Logger, m *metrics.Metrics) *Relay {
	r := &Relay{
		tr:      tr,
		store:   store,
		enabled: enabled,
		ttl:     ttl,
		logger:  logger.With("module", "relay"),
		metrics: m,
		now:     time.Now,
		tokens:  make(chan models.SecondaryToken, tokenBuffer),
		wake:    make(chan struct{}, 1),
		seen:    make(map[string]struct{}),
	}
	if enabled {
		r.packets = tr.Subscribe(transport.CharSecondaryToken)
	}
	return r
}

func (r *Relay) Enabled() bool { return r.enabled }

// Tokens streams tokens received from the authorized peer.
func (r *Relay) Tokens() <-chan models.SecondaryToken { return r.tokens }

// Authorize makes peer the only endpoint tokens are exchanged with. Tokens
// the peer wrote before it was authorized are verified now.
func (r *Relay) Authorize(peer attestation.ValidatedPeer) {
	if peer.IsZero() {
		return
	}
	r.mu.Lock()
	r.peer = peer
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Reset revokes the authorized peer.
func (r *Relay) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peer = attestation.ValidatedPeer{}
}

func (r *Relay) authorized() attestation.ValidatedPeer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.peer
}

// SendToken packages token for peer and writes it to the peer endpoint.
// peer must be the currently authorized peer.
func (r *Relay) SendToken(ctx context.Context, peer attestation.ValidatedPeer, token models.SecondaryToken) error {
	if !r.enabled {
		r.logger.Debug(ctx, "secondary channel disabled, token not sent")
		r.metrics.Token(metrics.DirectionOut, metrics.ResultDisabled)
		return nil
	}

	current := r.authorized()
	if peer.IsZero() || current.IsZero() || peer.Endpoint() != current.Endpoint() || !peer.PublicKey().Equal(current.PublicKey()) {
		r.logger.Error(ctx, "token send refused", "to", peer.Endpoint(), "error", common.ErrPeerNotValidated)
		r.metrics.Token(metrics.DirectionOut, metrics.ResultInvalid)
		return common.ErrPeerNotValidated
	}

	session, err := r.store.Get(ctx)
	if err != nil {
		r.metrics.Token(metrics.DirectionOut, metrics.ResultError)
		return err
	}
	if session == nil {
		r.logger.Error(ctx, "token send with no current session", "error", common.ErrInvalidState)
		r.metrics.Token(metrics.DirectionOut, metrics.ResultNoSession)
		return common.ErrNoSession
	}

	packaged, err := Package(token, session.ParticipantID, peer.ParticipantID(), session.PrivateKey, r.now(), r.ttl)
	if err != nil {
		r.metrics.Token(metrics.DirectionOut, metrics.ResultError)
		return fmt.Errorf("package token: %w", err)
	}
	if !r.tr.Write(ctx, peer.Endpoint(), transport.CharSecondaryToken, []byte(packaged)) {
		r.logger.Error(ctx, "token not delivered", "to", peer.Endpoint(), "error", common.ErrTransportUnavailable)
		r.metrics.Token(metrics.DirectionOut, metrics.ResultError)
		return common.ErrTransportUnavailable
	}

	r.metrics.Token(metrics.DirectionOut, metrics.ResultOK)
	r.logger.Info(ctx, "token sent", "to", peer.Endpoint())
	return nil
}

// Run receives tokens until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	if !r.enabled {
		<-ctx.Done()
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case pkt := <-r.packets:
			r.receive(ctx, pkt)
		case <-r.wake:
			held := r.held
			r.held = nil
			for _, pkt := range held {
				r.receive(ctx, pkt)
			}
		}
	}
}

func (r *Relay) receive(ctx context.Context, pkt transport.Packet) {
	peer := r.authorized()
	if peer.IsZero() {
		if len(r.held) >= maxHeld {
			r.held = r.held[1:]
		}
		r.held = append(r.held, pkt)
		r.logger.Debug(ctx, "token held until a peer is validated", "from", pkt.From)
		return
	}
	if pkt.From != peer.Endpoint() {
		r.logger.Warn(ctx, "token from unvalidated endpoint dropped", "from", pkt.From, "error", common.ErrPeerNotValidated)
		r.metrics.Token(metrics.DirectionIn, metrics.ResultInvalid)
		return
	}

	session, err := r.store.Get(ctx)
	if err != nil || session == nil {
		r.logger.Error(ctx, "token received with no current session", "error", common.ErrInvalidState)
		r.metrics.Token(metrics.DirectionIn, metrics.ResultNoSession)
		return
	}

	token, id, err := Unpackage(string(pkt.Data), peer.ParticipantID(), session.ParticipantID, peer.PublicKey(), r.now)
	if err != nil {
		r.logger.Warn(ctx, "token rejected", "from", pkt.From, "error", err)
		r.metrics.Token(metrics.DirectionIn, metrics.ResultInvalid)
		return
	}
	if !r.remember(id) {
		r.logger.Warn(ctx, "replayed token dropped", "from", pkt.From, "error", common.ErrInvalidPeerData)
		r.metrics.Token(metrics.DirectionIn, metrics.ResultReplay)
		return
	}

	select {
	case r.tokens <- token:
		r.metrics.Token(metrics.DirectionIn, metrics.ResultOK)
		r.logger.Info(ctx, "token received", "from", pkt.From)
	default:
		r.logger.Error(ctx, "token consumer is lagging, token dropped", "from", pkt.From)
		r.metrics.Token(metrics.DirectionIn, metrics.ResultError)
	}
}

// remember records id and reports whether it was new. Only Run calls it.
func (r *Relay) remember(id string) bool {
	if _, ok := r.seen[id]; ok {
		return false
	}
	if len(r.order) >= maxSeen {
		delete(r.seen, r.order[0])
		r.order = r.order[1:]
	}
	r.seen[id] = struct{}{}
	r.order = append(r.order, id)
	return true
}
