// Package memlink is an in-process broadcast medium implementing
// transport.Transport. Every attached device discovers every other attached
// device, and writes are delivered synchronously to the target's dispatcher.
// It backs the protocol tests and local simulations.
package memlink

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/gophpair/internal/logging"
	"github.com/dmitrijs2005/gophpair/internal/transport"
)

// InterceptFunc may rewrite a write in flight. It returns the packets to
// deliver: none drops the write, two duplicates it.
type InterceptFunc func(to transport.Endpoint, p transport.Packet) []transport.Packet

// Medium is the shared "air" between devices.
type Medium struct {
	mu        sync.Mutex
	devices   map[transport.Endpoint]*Device
	intercept InterceptFunc
	logger    logging.Logger
}

func NewMedium(logger logging.Logger) *Medium {
	return &Medium{
		devices: make(map[transport.Endpoint]*Device),
		logger:  logger.With("module", "memlink"),
	}
}

// Intercept installs fn for all subsequent writes; nil removes it.
func (m *Medium) Intercept(fn InterceptFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intercept = fn
}

// Attach brings a device with endpoint ep into range. The new device and
// all present devices discover each other.
func (m *Medium) Attach(ctx context.Context, ep transport.Endpoint) *Device {
	d := &Device{
		Dispatcher: transport.NewDispatcher(m.logger.With("endpoint", ep)),
		self:       ep,
		medium:     m,
	}
	m.join(ctx, d)
	return d
}

// Reattach brings a detached device back into range.
func (m *Medium) Reattach(ctx context.Context, d *Device) {
	m.join(ctx, d)
}

func (m *Medium) join(ctx context.Context, d *Device) {
	m.mu.Lock()
	others := make([]*Device, 0, len(m.devices))
	for ep, o := range m.devices {
		if ep != d.self {
			others = append(others, o)
		}
	}
	m.devices[d.self] = d
	m.mu.Unlock()

	for _, o := range others {
		o.Discover(ctx, d.self)
		d.Discover(ctx, o.self)
	}
}

// Detach takes ep out of range; later writes to it fail.
func (m *Medium) Detach(ep transport.Endpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices, ep)
}

func (m *Medium) deliver(ctx context.Context, to transport.Endpoint, p transport.Packet) bool {
	m.mu.Lock()
	target, ok := m.devices[to]
	intercept := m.intercept
	m.mu.Unlock()

	if !ok {
		m.logger.Warn(ctx, "write to unknown endpoint", "to", to, "from", p.From)
		return false
	}

	packets := []transport.Packet{p}
	if intercept != nil {
		packets = intercept(to, p)
	}
	delivered := len(packets) == 0
	for _, pk := range packets {
		if target.Deliver(ctx, pk) {
			delivered = true
		}
	}
	return delivered
}

// Device is one attached endpoint.
type Device struct {
	*transport.Dispatcher
	self   transport.Endpoint
	medium *Medium
}

func (d *Device) Self() transport.Endpoint { return d.self }

func (d *Device) Write(ctx context.Context, to transport.Endpoint, ch transport.Characteristic, data []byte) bool {
	return d.medium.deliver(ctx, to, transport.Packet{Characteristic: ch, From: d.self, Data: data})
}

var _ transport.Transport = (*Device)(nil)
