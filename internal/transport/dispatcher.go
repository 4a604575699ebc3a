package transport

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/gophpair/internal/logging"
)

const defaultBuffer = 64

// Dispatcher fans received packets and discovery events out to subscribers.
// Transports embed it; delivery never blocks the transport: when a
// subscriber's buffer is full the packet is dropped and logged, like a radio
// notification that nobody read in time.
type Dispatcher struct {
	mu         sync.Mutex
	subs       map[Characteristic]chan Packet
	discovered chan Endpoint
	seen       map[Endpoint]struct{}
	logger     logging.Logger
}

func NewDispatcher(logger logging.Logger) *Dispatcher {
	return &Dispatcher{
		subs:       make(map[Characteristic]chan Packet),
		discovered: make(chan Endpoint, defaultBuffer),
		seen:       make(map[Endpoint]struct{}),
		logger:     logger,
	}
}

func (d *Dispatcher) Discovered() <-chan Endpoint { return d.discovered }

// Subscribe returns the channel for ch, creating it on first use.
func (d *Dispatcher) Subscribe(ch Characteristic) <-chan Packet {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.subscription(ch)
}

func (d *Dispatcher) subscription(ch Characteristic) chan Packet {
	c, ok := d.subs[ch]
	if !ok {
		c = make(chan Packet, defaultBuffer)
		d.subs[ch] = c
	}
	return c
}

// Supports reports whether anyone subscribed to ch.
func (d *Dispatcher) Supports(ch Characteristic) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.subs[ch]
	return ok
}

// Deliver routes p to the characteristic's subscriber. Writes to
// characteristics nobody subscribed to are rejected with false.
func (d *Dispatcher) Deliver(ctx context.Context, p Packet) bool {
	d.mu.Lock()
	c, ok := d.subs[p.Characteristic]
	d.mu.Unlock()
	if !ok {
		d.logger.Warn(ctx, "write to unsupported characteristic", "characteristic", p.Characteristic, "from", p.From)
		return false
	}

	p.Data = append([]byte(nil), p.Data...)
	select {
	case c <- p:
		return true
	default:
		d.logger.Error(ctx, "subscriber buffer full, packet dropped", "characteristic", p.Characteristic, "from", p.From)
		return false
	}
}

// Discover reports ep once; repeated reports are ignored.
func (d *Dispatcher) Discover(ctx context.Context, ep Endpoint) {
	d.mu.Lock()
	if _, ok := d.seen[ep]; ok {
		d.mu.Unlock()
		return
	}
	d.seen[ep] = struct{}{}
	d.mu.Unlock()

	select {
	case d.discovered <- ep:
		d.logger.Debug(ctx, "endpoint discovered", "endpoint", ep)
	default:
		d.mu.Lock()
		delete(d.seen, ep)
		d.mu.Unlock()
		d.logger.Error(ctx, "discovery buffer full, endpoint dropped", "endpoint", ep)
	}
}
