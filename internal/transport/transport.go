// Package transport abstracts the short-range link used for pairing: a
// stream of discovered endpoints, per-characteristic delivery of written
// bytes, and a write primitive. Implementations live in subpackages.
package transport

import "context"

// Endpoint is an addressable link destination.
type Endpoint string

// Characteristic names a writable channel on an endpoint.
type Characteristic string

// ServiceID is advertised by every pairing device.
const ServiceID = "85f7d963-2581-4791-af25-8106929aa1a0"

const (
	// CharColocatedKey carries password-encrypted public keys.
	CharColocatedKey Characteristic = "0be778a3-2096-46c8-82c9-3a9d63376512"
	// CharSecondaryToken carries signed secondary-channel tokens.
	CharSecondaryToken Characteristic = "0be778a3-2096-46c8-82c9-3a9d63376513"
	// CharAttestation carries signed session-membership attestations.
	CharAttestation Characteristic = "0be778a3-2096-46c8-82c9-3a9d63376514"
)

// Packet is a write received on one of our characteristics.
type Packet struct {
	Characteristic Characteristic
	From           Endpoint
	Data           []byte
}

// Transport is the link consumed by the pairing components.
//
// Write reports whether the bytes were handed to the peer; false means the
// endpoint or characteristic is not reachable yet. Subscribe must be called
// before the transport starts delivering for the characteristic.
type Transport interface {
	Self() Endpoint
	Discovered() <-chan Endpoint
	Subscribe(ch Characteristic) <-chan Packet
	Write(ctx context.Context, to Endpoint, ch Characteristic, data []byte) bool
}
