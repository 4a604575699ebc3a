// Package pairing runs the colocated pairing handshake. A host shares a
// short random password out of band; the joiner encrypts its public key
// under that password and writes it to the host, which stores it and
// answers with its own encrypted key. Both sides then exchange attestations
// to confirm that each stored the other.
//
// All handshake state is owned by the goroutine running Protocol.Run. The
// public methods and the transport only post events to it.
package pairing

import (
	"context"
	"crypto/ed25519"
	"errors"
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
	// Bound on keys and attestations held back until their prerequisite
	// arrives. The oldest are dropped first.
	maxPending = 8

	statusBuffer = 16

	// Time allowed to delete an unpaired session when the actor stops.
	releaseTimeout = 5 * time.Second
)

// Store is the part of the session store the handshake mutates.
type Store interface {
	Save(ctx context.Context, session *models.MySessionData) error
	Get(ctx context.Context) (*models.MySessionData, error)
	SetPeer(ctx context.Context, p models.Participant) (*models.MySessionData, error)
	Delete(ctx context.Context) error
}

type Attestor interface {
	Attest(ctx context.Context) (models.SignedAttestationPayload, error)
	ValidatePeer(ctx context.Context, from transport.Endpoint, raw []byte) (attestation.ValidatedPeer, bool)
}

// Publisher receives the shared session view whenever it changes.
type Publisher interface {
	Publish(ctx context.Context, shared *models.SharedSessionData)
}

type Config struct {
	Scheme         string
	PasswordLength int
	Timeout        time.Duration
}

// Status is a snapshot of the handshake. Err holds the last retryable
// failure of the current attempt.
type Status struct {
	State   models.PairingState
	Session *models.SharedSessionData
	Peer    attestation.ValidatedPeer
	Err     error
}

// ErrStopped is returned by calls made after Run has returned.
var ErrStopped = errors.New("pairing protocol is not running")

type role int

const (
	roleNone role = iota
	roleHost
	roleJoiner
)

type Protocol struct {
	tr        transport.Transport
	store     Store
	attestor  Attestor
	publisher Publisher
	cfg       Config
	logger    logging.Logger
	metrics   *metrics.Metrics

	newPassword func(n int) (string, error)

	keys   <-chan transport.Packet
	atts   <-chan transport.Packet
	events chan event
	done   chan struct{}

	statusMu sync.RWMutex
	status   Status
	subs     []chan Status

	// Owned by Run.
	gen       uint64
	role      role
	password  string
	latch     bool
	outbound  []byte
	peer      transport.Endpoint
	endpoints []transport.Endpoint
	pendKeys  []transport.Packet
	pendAtts  []transport.Packet
	timer     *time.Timer
}

// New subscribes to the key and attestation characteristics of tr, so it
// must be called before tr starts delivering.
func New(tr transport.Transport, store Store, attestor Attestor, publisher Publisher, cfg Config, logger logging.Logger, m *metrics.Metrics) *Protocol {
	return &Protocol{
		tr:        tr,
		store:     store,
		attestor:  attestor,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With("module", "pairing", "endpoint", tr.Self()),
		metrics:   m,

		newPassword: common.MakeRandPassword,

		keys:   tr.Subscribe(transport.CharColocatedKey),
		atts:   tr.Subscribe(transport.CharAttestation),
		events: make(chan event),
		done:   make(chan struct{}),
		status: Status{State: models.StateIdle},
	}
}

// Run processes events until ctx is done. An attempt that is still in
// progress at that point is cancelled.
func (p *Protocol) Run(ctx context.Context) error {
	defer close(p.done)
	defer p.stopTimer()

	p.logger.Info(ctx, "pairing protocol started")
	for {
		select {
		case <-ctx.Done():
			p.release(ctx)
			p.logger.Info(ctx, "pairing protocol stopped")
			return nil
		case ev := <-p.events:
			ev.apply(ctx, p)
		case pkt := <-p.keys:
			p.onKey(ctx, pkt)
		case pkt := <-p.atts:
			p.onAttestation(ctx, pkt)
		case ep := <-p.tr.Discovered():
			p.onDiscovered(ctx, ep)
		}
	}
}

// Host starts a new attempt as the session creator and returns the
// password and the link to share with the joiner.
func (p *Protocol) Host(ctx context.Context) (models.PeeringPassword, models.PasswordLink, error) {
	reply := make(chan hostResult, 1)
	if err := p.post(ctx, hostEvent{reply: reply}); err != nil {
		return models.PeeringPassword{}, "", err
	}
	select {
	case r := <-reply:
		return r.password, r.link, r.err
	case <-ctx.Done():
		return models.PeeringPassword{}, "", ctx.Err()
	}
}

// Join supplies the out-of-band password. It continues an attempt started
// with AwaitPassword, or starts a new joiner attempt.
func (p *Protocol) Join(ctx context.Context, pw models.PeeringPassword) error {
	return p.call(ctx, func(reply chan error) event { return passwordEvent{password: pw, reply: reply} })
}

// JoinLink parses a pairing link and joins with its password.
func (p *Protocol) JoinLink(ctx context.Context, link string) error {
	pw, err := models.ParsePasswordLink(p.cfg.Scheme, link)
	if err != nil {
		return err
	}
	return p.Join(ctx, pw)
}

// AwaitPassword starts a joiner attempt whose password will arrive later.
// Keys received in the meantime are held until then.
func (p *Protocol) AwaitPassword(ctx context.Context) error {
	return p.call(ctx, func(reply chan error) event { return awaitEvent{reply: reply} })
}

// Cancel abandons the current attempt. A session without a participant is
// deleted.
func (p *Protocol) Cancel(ctx context.Context) error {
	return p.call(ctx, func(reply chan error) event { return cancelEvent{reply: reply} })
}

func (p *Protocol) Status() Status {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	return p.status
}

// Subscribe returns a channel of status changes. Updates are dropped for a
// subscriber that does not keep up.
func (p *Protocol) Subscribe() <-chan Status {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	c := make(chan Status, statusBuffer)
	p.subs = append(p.subs, c)
	return c
}

func (p *Protocol) post(ctx context.Context, ev event) error {
	select {
	case p.events <- ev:
		return nil
	case <-p.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Protocol) call(ctx context.Context, mk func(chan error) event) error {
	reply := make(chan error, 1)
	if err := p.post(ctx, mk(reply)); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Protocol) update(ctx context.Context, fn func(*Status)) {
	p.statusMu.Lock()
	fn(&p.status)
	st := p.status
	subs := p.subs
	p.statusMu.Unlock()

	for _, c := range subs {
		select {
		case c <- st:
		default:
			p.logger.Warn(ctx, "status subscriber is lagging, update dropped")
		}
	}
}

func (p *Protocol) state() models.PairingState {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	return p.status.State
}

func (p *Protocol) publish(ctx context.Context, shared *models.SharedSessionData) {
	if p.publisher != nil {
		p.publisher.Publish(ctx, shared)
	}
}

func isOwnKey(session *models.MySessionData, key ed25519.PublicKey) bool {
	return session != nil && session.PublicKey.Equal(key)
}
