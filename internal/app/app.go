// Package app wires the pairing components of one device together and runs
// them for the duration of a command.
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/gophpair/internal/attestation"
	"github.com/dmitrijs2005/gophpair/internal/config"
	"github.com/dmitrijs2005/gophpair/internal/filex"
	"github.com/dmitrijs2005/gophpair/internal/logging"
	"github.com/dmitrijs2005/gophpair/internal/metrics"
	"github.com/dmitrijs2005/gophpair/internal/models"
	"github.com/dmitrijs2005/gophpair/internal/pairing"
	"github.com/dmitrijs2005/gophpair/internal/relay"
	"github.com/dmitrijs2005/gophpair/internal/session"
	"github.com/dmitrijs2005/gophpair/internal/store"
	"github.com/dmitrijs2005/gophpair/internal/transport"
	"github.com/dmitrijs2005/gophpair/internal/transport/grpclink"
)

// Link is a transport that has to be running to deliver.
type Link interface {
	transport.Transport
	Run(ctx context.Context) error
}

type Option func(*App)

// WithLink replaces the gRPC link built from the config.
func WithLink(l Link) Option {
	return func(a *App) { a.link = l }
}

type App struct {
	config  *config.Config
	logger  logging.Logger
	store   *store.SQLiteSessionStore
	link    Link
	metrics *metrics.Metrics
	updates <-chan pairing.Status

	Sessions *session.Service
	Pairing  *pairing.Protocol
	Relay    *relay.Relay
}

// NewApp opens the session store with passphrase and builds the components.
// Close must be called when done.
func NewApp(ctx context.Context, c *config.Config, passphrase []byte, logger logging.Logger, opts ...Option) (*App, error) {
	if _, err := filex.EnsureParentDir(c.StorePath); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, c.StorePath, passphrase)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &App{config: c, logger: logger, store: st, metrics: metrics.New()}
	for _, o := range opts {
		o(a)
	}
	if a.link == nil {
		a.link = grpclink.New(c.ListenAddr, c.Peers, logger)
	}

	a.Sessions = session.NewService(st, c.DeeplinkScheme, logger)
	att := attestation.NewService(st, c.ChallengeBytes, logger, a.metrics)
	a.Relay = relay.New(a.link, st, c.SecondaryChannel, c.TokenTTL, logger, a.metrics)
	a.Pairing = pairing.New(a.link, st, att, a.Sessions, pairing.Config{
		Scheme:         c.DeeplinkScheme,
		PasswordLength: c.PasswordLength,
		Timeout:        c.PairingTimeout,
	}, logger, a.metrics)
	a.updates = a.Pairing.Subscribe()

	return a, nil
}

func (a *App) Close() error {
	return a.store.Close()
}

// Run starts the link, the pairing protocol, the relay and, when configured,
// the metrics server, then runs fn. Everything stops when fn returns or any
// part fails; the first error is returned.
func (a *App) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sessions, unsubscribe := a.Sessions.Subscribe()
	defer unsubscribe()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.link.Run(ctx) })
	g.Go(func() error { return a.Pairing.Run(ctx) })
	g.Go(func() error { return a.Relay.Run(ctx) })
	g.Go(func() error {
		a.authorize(ctx)
		return nil
	})
	g.Go(func() error {
		a.revokeOnDelete(ctx, sessions)
		return nil
	})
	if a.config.MetricsAddr != "" {
		g.Go(func() error { return a.metrics.Serve(ctx, a.config.MetricsAddr, a.logger) })
	}
	g.Go(func() error {
		defer cancel()
		return fn(ctx)
	})

	return g.Wait()
}

// authorize hands validated peers to the relay and revokes them when a new
// attempt starts.
func (a *App) authorize(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-a.updates:
			switch st.State {
			case models.StateValidated:
				// The session may have been deleted since the peer was validated.
				if current, err := a.store.Get(ctx); err == nil && current.HasParticipant() {
					a.Relay.Authorize(st.Peer)
				}
			case models.StateIdle, models.StateAwaitingPassword, models.StateAwaitingPeerKey:
				a.Relay.Reset()
			}
		}
	}
}

// revokeOnDelete resets the relay once the session is gone, so tokens stop
// flowing to a peer of a deleted session.
func (a *App) revokeOnDelete(ctx context.Context, sessions <-chan *models.SharedSessionData) {
	for {
		select {
		case <-ctx.Done():
			return
		case shared := <-sessions:
			if shared != nil {
				a.logger.Debug(ctx, "session updated", "session", shared.ID, "ready", shared.IsReady)
				continue
			}
			// A new attempt may already have saved its own session.
			current, err := a.store.Get(ctx)
			if err != nil {
				a.logger.Error(ctx, "load session", "error", err)
				continue
			}
			if current == nil {
				a.logger.Info(ctx, "session deleted, relay authorization revoked")
				a.Relay.Reset()
			}
		}
	}
}

// WaitValidated blocks until the peer is validated, the attempt fails for
// good, or ctx is done. A validated peer is authorized on the relay before
// WaitValidated returns.
func (a *App) WaitValidated(ctx context.Context) (pairing.Status, error) {
	updates := a.Pairing.Subscribe()
	for {
		st := a.Pairing.Status()
		switch {
		case st.State == models.StateValidated:
			a.Relay.Authorize(st.Peer)
			return st, nil
		case st.State == models.StateIdle && st.Err != nil:
			return st, st.Err
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-updates:
		}
	}
}
