package pairing

import (
	"context"

	"github.com/dmitrijs2005/gophpair/internal/models"
)

// event is a request processed on the Run goroutine.
type event interface {
	apply(ctx context.Context, p *Protocol)
}

type hostResult struct {
	password models.PeeringPassword
	link     models.PasswordLink
	err      error
}

type hostEvent struct {
	reply chan<- hostResult
}

func (e hostEvent) apply(ctx context.Context, p *Protocol) {
	pw, link, err := p.host(ctx)
	e.reply <- hostResult{password: pw, link: link, err: err}
}

type passwordEvent struct {
	password models.PeeringPassword
	reply    chan<- error
}

func (e passwordEvent) apply(ctx context.Context, p *Protocol) {
	e.reply <- p.join(ctx, e.password)
}

type awaitEvent struct {
	reply chan<- error
}

func (e awaitEvent) apply(ctx context.Context, p *Protocol) {
	e.reply <- p.await(ctx)
}

type cancelEvent struct {
	reply chan<- error
}

func (e cancelEvent) apply(ctx context.Context, p *Protocol) {
	e.reply <- p.cancel(ctx)
}

// timeoutEvent fires when attempt gen ran out of time. Timers of older
// attempts are ignored.
type timeoutEvent struct {
	gen uint64
}

func (e timeoutEvent) apply(ctx context.Context, p *Protocol) {
	p.onTimeout(ctx, e.gen)
}
