// Package store is the durable, confidential session store of a pairing
// device.
//
// Data lives in a SQLite database (modernc.org/sqlite) whose schema is
// managed by goose migrations. The current MySessionData record is sealed
// with AES-GCM under a master key derived from the store passphrase with
// argon2id; the salt and a verifier for the passphrase are kept next to it,
// so opening the store with a wrong passphrase fails with
// common.ErrUnauthorized.
//
// Exactly one session is kept at a time.
package store
