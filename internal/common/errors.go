// Package common defines shared sentinel errors and small random helpers used
// across the pairing components. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Transport errors.
	ErrTransportUnavailable = errors.New("transport unavailable")

	// Cryptographic rejections: peer data is untrusted or malformed.
	ErrInvalidPeerData = errors.New("invalid peer data")

	// Store errors.
	ErrPersistence         = errors.New("persistence failure")
	ErrNoSession           = errors.New("no current session")
	ErrParticipantConflict = errors.New("session already has a different participant")
	ErrUnauthorized        = errors.New("unauthorized")

	// Likely upstream bug: an operation ran without its prerequisite data.
	ErrInvalidState = errors.New("invalid state")

	// Pairing lifecycle.
	ErrPairingTimeout   = errors.New("pairing timed out")
	ErrPairingCancelled = errors.New("pairing cancelled")

	// Relay.
	ErrPeerNotValidated = errors.New("peer not validated")
)
