package models

// EncryptedPublicKey is a public key sealed under the peering password.
// Value is the base64 text form produced by cryptox.Encrypt.
type EncryptedPublicKey struct {
	Value string
}

// Bytes is the UTF-8 wire form. Base64 text always round-trips, so there is
// no failure case.
func (k EncryptedPublicKey) Bytes() []byte { return []byte(k.Value) }

// EncryptedPublicKeyFromBytes reads the wire form.
func EncryptedPublicKeyFromBytes(b []byte) EncryptedPublicKey {
	return EncryptedPublicKey{Value: string(b)}
}

// SignedAttestationPayload proves possession of a session private key.
// Signature is the base64 Ed25519 signature over Challenge.
type SignedAttestationPayload struct {
	Challenge string `json:"challenge"`
	Signature string `json:"signature"`
}

// SecondaryToken is an opaque discovery token for the secondary channel.
// It is produced elsewhere and only relayed here.
type SecondaryToken []byte

// PairingState is the colocated pairing state machine value.
type PairingState int

const (
	StateIdle PairingState = iota
	StateAwaitingPassword
	StateAwaitingPeerKey
	StateExchanged
	StateValidated
)

func (s PairingState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPassword:
		return "awaiting_password"
	case StateAwaitingPeerKey:
		return "awaiting_peer_key"
	case StateExchanged:
		return "exchanged"
	case StateValidated:
		return "validated"
	default:
		return "unknown"
	}
}
