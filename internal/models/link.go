package models

import (
	"errors"
	"strings"
)

// ErrNotAPairingLink is returned when a link does not carry a pairing password.
var ErrNotAPairingLink = errors.New("not a pairing link")

// PeeringPassword is the short out-of-band secret shared by the two devices
// for a single pairing attempt. It is never persisted.
type PeeringPassword struct {
	Value string
}

// PasswordLink is an out-of-band link of the form <scheme>/pw/<value>.
type PasswordLink string

func passwordLinkPrefix(scheme string) string {
	return scheme + "/pw/"
}

// NewPasswordLink builds the link a host shares with the joiner.
func NewPasswordLink(scheme string, pw PeeringPassword) PasswordLink {
	return PasswordLink(passwordLinkPrefix(scheme) + pw.Value)
}

// ParsePasswordLink extracts the password from link. Links with another
// prefix, an empty value or a value containing a path separator are rejected
// with ErrNotAPairingLink.
func ParsePasswordLink(scheme, link string) (PeeringPassword, error) {
	value, ok := strings.CutPrefix(strings.TrimSpace(link), passwordLinkPrefix(scheme))
	if !ok || value == "" || strings.ContainsAny(value, "/ ") {
		return PeeringPassword{}, ErrNotAPairingLink
	}
	return PeeringPassword{Value: value}, nil
}

// SessionLink is a shareable link naming a session: <scheme>/session/<id>.
// With the default scheme "ploc:/" links read ploc://session/<id>.
type SessionLink string

func NewSessionLink(scheme string, id SessionID) SessionLink {
	return SessionLink(scheme + "/session/" + string(id))
}
