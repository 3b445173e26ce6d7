package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/sanandem/internal/database"
)

// PostgresStore keeps users in "user" and sessions in "session".
type PostgresStore struct {
	db database.DBTX
}

// NewPostgresStore creates a Store over a pool, conn or transaction.
func NewPostgresStore(db database.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	var age pgtype.Int4
	err := p.db.QueryRow(ctx,
		`SELECT id, username, age, password_hash FROM "user" WHERE username = $1`, username,
	).Scan(&u.ID, &u.Username, &age, &u.PasswordHash)
	if database.IsNoRows(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Age = int(age.Int32)
	return &u, nil
}

func (p *PostgresStore) InsertSession(ctx context.Context, s Session) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO "session" (id, user_id, expires_at) VALUES ($1, $2, $3)`,
		s.ID, s.UserID, s.ExpiresAt)
	if database.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: %s", ErrUserNotFound, s.UserID)
	}
	return err
}

func (p *PostgresStore) GetSessionWithUser(ctx context.Context, sessionID string) (*Session, *User, error) {
	var s Session
	var u User
	var age pgtype.Int4
	err := p.db.QueryRow(ctx, `SELECT s.id, s.user_id, s.expires_at, u.id, u.username, u.age, u.password_hash
		FROM "session" s
		INNER JOIN "user" u ON u.id = s.user_id
		WHERE s.id = $1`, sessionID,
	).Scan(&s.ID, &s.UserID, &s.ExpiresAt, &u.ID, &u.Username, &age, &u.PasswordHash)
	if database.IsNoRows(err) {
		return nil, nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	u.Age = int(age.Int32)
	return &s, &u, nil
}

func (p *PostgresStore) UpdateSessionExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error {
	_, err := p.db.Exec(ctx, `UPDATE "session" SET expires_at = $2 WHERE id = $1`, sessionID, expiresAt)
	return err
}

func (p *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := p.db.Exec(ctx, `DELETE FROM "session" WHERE id = $1`, sessionID)
	return err
}

func (p *PostgresStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM "session" WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
