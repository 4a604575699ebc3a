// Package records keeps named opaque blobs in the store's records table.
// The session store puts sealed session data and its unlock parameters here.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophpair/internal/dbx"
)

// Repository loads and puts blobs by name. Load returns (nil, nil) when the
// record does not exist and Remove of a missing record is not an error.
type Repository interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, blob []byte) error
	Remove(ctx context.Context, name string) error
}

// SQLRepository implements Repository on a *sql.DB or inside a transaction.
type SQLRepository struct {
	q dbx.DBTX
}

func New(q dbx.DBTX) *SQLRepository {
	return &SQLRepository{q: q}
}

func (r *SQLRepository) Load(ctx context.Context, name string) ([]byte, error) {
	var blob []byte
	err := r.q.QueryRowContext(ctx, `SELECT sealed FROM records WHERE name = ?`, name).Scan(&blob)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("load record %q: %w", name, err)
	}
	return blob, nil
}

func (r *SQLRepository) Put(ctx context.Context, name string, blob []byte) error {
	const q = `INSERT INTO records (name, sealed) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET sealed = excluded.sealed`
	if _, err := r.q.ExecContext(ctx, q, name, blob); err != nil {
		return fmt.Errorf("put record %q: %w", name, err)
	}
	return nil
}

func (r *SQLRepository) Remove(ctx context.Context, name string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM records WHERE name = ?`, name); err != nil {
		return fmt.Errorf("remove record %q: %w", name, err)
	}
	return nil
}

var _ Repository = (*SQLRepository)(nil)
