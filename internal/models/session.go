// Package models defines the session, pairing and wire types exchanged
// between the pairing components.
package models

import (
	"crypto/ed25519"

	"github.com/google/uuid"
)

// KeyPair is an Ed25519 identity key pair. The private half never leaves
// the device.
type KeyPair struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

// SessionID is an opaque session identifier.
type SessionID string

// NewSessionID returns a random UUID-based session id.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

func (id SessionID) String() string { return string(id) }

// ParticipantID is derived from a public key; it is never stored on its own.
type ParticipantID string

// Participant is the peer's identity within a two-party session.
type Participant struct {
	PublicKey ed25519.PublicKey `json:"public_key"`
}

// MySessionData is this device's session state.
type MySessionData struct {
	SessionID     SessionID          `json:"session_id"`
	PrivateKey    ed25519.PrivateKey `json:"private_key"`
	PublicKey     ed25519.PublicKey  `json:"public_key"`
	ParticipantID ParticipantID      `json:"participant_id"`
	CreatedByMe   bool               `json:"created_by_me"`
	Participant   *Participant       `json:"participant,omitempty"`
}

// HasParticipant reports whether the peer's key has been attached.
func (s *MySessionData) HasParticipant() bool {
	return s != nil && s.Participant != nil && len(s.Participant.PublicKey) > 0
}

// ReadyState mirrors the yes/no readiness published to the presentation layer.
type ReadyState string

const (
	ReadyYes ReadyState = "yes"
	ReadyNo  ReadyState = "no"
)

// SharedSessionData is the cross-device view of the session status.
type SharedSessionData struct {
	ID          SessionID  `json:"id"`
	IsReady     ReadyState `json:"is_ready"`
	CreatedByMe bool       `json:"created_by_me"`
}

// Shared derives SharedSessionData. IsReady is yes exactly when the session
// has a participant attached. A nil session yields nil.
func (s *MySessionData) Shared() *SharedSessionData {
	if s == nil {
		return nil
	}
	ready := ReadyNo
	if s.HasParticipant() {
		ready = ReadyYes
	}
	return &SharedSessionData{ID: s.SessionID, IsReady: ready, CreatedByMe: s.CreatedByMe}
}
