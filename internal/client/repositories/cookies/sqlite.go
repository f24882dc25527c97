package cookies

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/consentkeeper/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `SELECT name, value, domain, path, expires_at, secure, same_site FROM cookies`

// Get returns nil, nil when the cookie does not exist.
func (r *SQLiteRepository) Get(ctx context.Context, name, domain, path string) (*Cookie, error) {
	row := r.db.QueryRowContext(ctx,
		selectColumns+` WHERE name = ? AND domain = ? AND path = ?`, name, domain, path)

	c, err := scanCookie(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cookie[%s]: %w", name, err)
	}
	return c, nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, c Cookie) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cookies (name, value, domain, path, expires_at, secure, same_site)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, domain, path) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			secure = excluded.secure,
			same_site = excluded.same_site
	`, c.Name, c.Value, c.Domain, c.Path, dbx.NullMillis(c.ExpiresAt), c.Secure, c.SameSite)
	if err != nil {
		return fmt.Errorf("failed to set cookie[%s]: %w", c.Name, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, name, domain, path string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM cookies WHERE name = ? AND domain = ? AND path = ?`, name, domain, path)
	if err != nil {
		return fmt.Errorf("failed to delete cookie[%s]: %w", name, err)
	}
	return nil
}

func (r *SQLiteRepository) ListByName(ctx context.Context, name string) ([]Cookie, error) {
	return r.query(ctx, selectColumns+` WHERE name = ? ORDER BY length(domain) DESC, length(path) DESC`, name)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]Cookie, error) {
	return r.query(ctx, selectColumns+` ORDER BY name, length(path) DESC`)
}

func (r *SQLiteRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM cookies WHERE expires_at IS NOT NULL AND expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cookies: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) query(ctx context.Context, q string, args ...any) ([]Cookie, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cookies: %w", err)
	}
	defer rows.Close()

	var out []Cookie
	for rows.Next() {
		c, err := scanCookie(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cookie row: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cookie rows: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCookie(s scanner) (*Cookie, error) {
	var (
		c       Cookie
		expires sql.NullInt64
	)
	if err := s.Scan(&c.Name, &c.Value, &c.Domain, &c.Path, &expires, &c.Secure, &c.SameSite); err != nil {
		return nil, err
	}
	c.ExpiresAt = dbx.TimeFromMillis(expires)
	return &c, nil
}
