package store

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophpair/internal/common"
	"github.com/dmitrijs2005/gophpair/internal/cryptox"
	"github.com/dmitrijs2005/gophpair/internal/dbx"
	"github.com/dmitrijs2005/gophpair/internal/models"
	"github.com/dmitrijs2005/gophpair/internal/store/records"
)

const (
	keyMySessionData = "my_session_data"
	keySalt          = "store_salt"
	keyVerifier      = "store_verifier"

	saltBytes = 32
)

// randBytes draws the store salt.
var randBytes = common.GenerateRandByteArray

// SessionStore keeps this device's single current session.
//
// Every error except the sentinels below wraps common.ErrPersistence.
// Get returns (nil, nil) when there is no session.
type SessionStore interface {
	Save(ctx context.Context, session *models.MySessionData) error
	Get(ctx context.Context) (*models.MySessionData, error)
	// SetPeer attaches p to the current session and returns the updated
	// session. It fails with common.ErrNoSession when there is no session and
	// with common.ErrParticipantConflict when a different peer is already
	// attached. Attaching the same peer again is a no-op.
	SetPeer(ctx context.Context, p models.Participant) (*models.MySessionData, error)
	// Participants returns the public keys of the current session's peers,
	// or common.ErrNoSession.
	Participants(ctx context.Context) ([]ed25519.PublicKey, error)
	Delete(ctx context.Context) error
}

// SQLiteSessionStore implements SessionStore over a SQLite database.
type SQLiteSessionStore struct {
	db  *sql.DB
	key []byte
}

// Open opens the store at dsn and unlocks it with passphrase. The first open
// of a fresh database sets the passphrase.
func Open(ctx context.Context, dsn string, passphrase []byte) (*SQLiteSessionStore, error) {
	db, err := OpenDB(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", common.ErrPersistence, dsn, err)
	}
	s, err := NewSQLiteSessionStore(ctx, db, passphrase)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteSessionStore unlocks an already migrated database.
func NewSQLiteSessionStore(ctx context.Context, db *sql.DB, passphrase []byte) (*SQLiteSessionStore, error) {
	key, err := unlock(ctx, db, passphrase)
	if err != nil {
		return nil, err
	}
	return &SQLiteSessionStore{db: db, key: key}, nil
}

// unlock derives the master key. On a fresh database it stores a new salt and
// verifier; otherwise it checks the passphrase against the stored verifier.
func unlock(ctx context.Context, db *sql.DB, passphrase []byte) ([]byte, error) {
	var key []byte
	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := records.New(tx)

		salt, err := repo.Load(ctx, keySalt)
		if err != nil {
			return err
		}
		verifier, err := repo.Load(ctx, keyVerifier)
		if err != nil {
			return err
		}

		if salt == nil || verifier == nil {
			if salt, err = randBytes(saltBytes); err != nil {
				return fmt.Errorf("make salt: %w", err)
			}
			key = cryptox.DeriveMasterKey(passphrase, salt)
			if err := repo.Put(ctx, keySalt, salt); err != nil {
				return err
			}
			return repo.Put(ctx, keyVerifier, cryptox.MakeVerifier(key))
		}

		candidate := cryptox.DeriveMasterKey(passphrase, salt)
		if subtle.ConstantTimeCompare(verifier, cryptox.MakeVerifier(candidate)) == 0 {
			return common.ErrUnauthorized
		}
		key = candidate
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: unlock store: %w", common.ErrPersistence, err)
	}
	return key, nil
}

func (s *SQLiteSessionStore) Save(ctx context.Context, session *models.MySessionData) error {
	if err := s.write(ctx, records.New(s.db), session); err != nil {
		return fmt.Errorf("%w: save session: %w", common.ErrPersistence, err)
	}
	return nil
}

func (s *SQLiteSessionStore) Get(ctx context.Context) (*models.MySessionData, error) {
	session, err := s.read(ctx, records.New(s.db))
	if err != nil {
		return nil, fmt.Errorf("%w: get session: %w", common.ErrPersistence, err)
	}
	return session, nil
}

func (s *SQLiteSessionStore) SetPeer(ctx context.Context, p models.Participant) (*models.MySessionData, error) {
	var updated *models.MySessionData

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := records.New(tx)

		session, err := s.read(ctx, repo)
		if err != nil {
			return err
		}
		if session == nil {
			return common.ErrNoSession
		}
		if session.HasParticipant() {
			if !bytes.Equal(session.Participant.PublicKey, p.PublicKey) {
				return common.ErrParticipantConflict
			}
			updated = session
			return nil
		}

		session.Participant = &models.Participant{PublicKey: append(ed25519.PublicKey(nil), p.PublicKey...)}
		if err := s.write(ctx, repo, session); err != nil {
			return err
		}
		updated = session
		return nil
	})
	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, common.ErrNoSession), errors.Is(err, common.ErrParticipantConflict):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: set peer: %w", common.ErrPersistence, err)
	}
}

func (s *SQLiteSessionStore) Participants(ctx context.Context) ([]ed25519.PublicKey, error) {
	session, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, common.ErrNoSession
	}
	if !session.HasParticipant() {
		return []ed25519.PublicKey{}, nil
	}
	return []ed25519.PublicKey{session.Participant.PublicKey}, nil
}

func (s *SQLiteSessionStore) Delete(ctx context.Context) error {
	if err := records.New(s.db).Remove(ctx, keyMySessionData); err != nil {
		return fmt.Errorf("%w: delete session: %w", common.ErrPersistence, err)
	}
	return nil
}

// Close wipes the master key and closes the database.
func (s *SQLiteSessionStore) Close() error {
	common.WipeByteArray(s.key)
	return s.db.Close()
}

func (s *SQLiteSessionStore) read(ctx context.Context, repo records.Repository) (*models.MySessionData, error) {
	sealed, err := repo.Load(ctx, keyMySessionData)
	if err != nil || sealed == nil {
		return nil, err
	}
	var session models.MySessionData
	if err := cryptox.OpenEntry(sealed, s.key, &session); err != nil {
		return nil, fmt.Errorf("open session record: %w", err)
	}
	return &session, nil
}

func (s *SQLiteSessionStore) write(ctx context.Context, repo records.Repository, session *models.MySessionData) error {
	sealed, err := cryptox.SealEntry(session, s.key)
	if err != nil {
		return fmt.Errorf("seal session record: %w", err)
	}
	return repo.Put(ctx, keyMySessionData, sealed)
}

var _ SessionStore = (*SQLiteSessionStore)(nil)
