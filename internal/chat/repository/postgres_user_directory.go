package repository

import (
	"context"

	"chat_sync_service/internal/chat/domain"
	errprocess "chat_sync_service/pkg/err"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
)

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	uid            TEXT PRIMARY KEY,
	display_name   TEXT NOT NULL,
	photo_url      TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_active_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// pgQuerier the part of *pgxpool.Pool we use
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// PostgresUserDirectory UserDirectory on the users table
type PostgresUserDirectory struct {
	db pgQuerier
}

// NewPostgresUserDirectory create PostgresUserDirectory
func NewPostgresUserDirectory(db pgQuerier) *PostgresUserDirectory {
	return &PostgresUserDirectory{db: db}
}

// EnsureSchema create the users table
func (d *PostgresUserDirectory) EnsureSchema(ctx context.Context) error {
	_, err := d.db.Exec(ctx, createUsersTable)
	return classify("ensure_schema", err)
}

// GetUsers unknown uids are omitted
func (d *PostgresUserDirectory) GetUsers(ctx context.Context, uids []string) (map[string]domain.User, error) {
	out := make(map[string]domain.User, len(uids))
	if len(uids) == 0 {
		return out, nil
	}
	rows, err := d.db.Query(ctx,
		`SELECT uid, display_name, photo_url, created_at, last_active_at FROM users WHERE uid = ANY($1)`,
		uids,
	)
	if err != nil {
		return nil, classify("get_users", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.UID, &u.DisplayName, &u.PhotoURL, &u.CreatedAt, &u.LastActiveAt); err != nil {
			return nil, classify("get_users", err)
		}
		out[u.UID] = u
	}
	return out, classify("get_users", rows.Err())
}

// UpsertUser insert or update display name and photo
func (d *PostgresUserDirectory) UpsertUser(ctx context.Context, user domain.User) error {
	_, err := d.db.Exec(ctx, `
INSERT INTO users (uid, display_name, photo_url)
VALUES ($1, $2, $3)
ON CONFLICT (uid) DO UPDATE SET display_name = EXCLUDED.display_name, photo_url = EXCLUDED.photo_url`,
		user.UID, user.DisplayName, user.PhotoURL,
	)
	return classify("upsert_user", err)
}

// TouchLastActive last_active_at = now, never backwards
func (d *PostgresUserDirectory) TouchLastActive(ctx context.Context, uid string) error {
	tag, err := d.db.Exec(ctx,
		`UPDATE users SET last_active_at = GREATEST(last_active_at, now()) WHERE uid = $1`, uid)
	if err != nil {
		return classify("touch_last_active", err)
	}
	if tag.RowsAffected() == 0 {
		return errprocess.Newf(errprocess.NotFound, "touch_last_active", "user %s", uid)
	}
	return nil
}
