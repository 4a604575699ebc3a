// Package cryptox holds the cryptographic primitives of the pairing core:
// Ed25519 identity keys and signatures, password-based sealing of public keys
// for the colocated handshake, participant id derivation, and AES-GCM sealing
// of records kept in the session store.
//
// All functions are CPU-bound and free of side effects besides reading the
// system random source.
package cryptox
