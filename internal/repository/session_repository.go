package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/admin-auth/internal/model"
)

const sessionColumns = "id,user_id,token_hash,expires_at,is_active,ip_address,user_agent,created_at"

// SessionRepo persists login sessions keyed by the SHA-256 hash of the
// issued bearer token.  Rows are only ever deactivated, except for the
// expiry sweep in DeleteExpired.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// Create inserts a session row and returns its ID.
func (r *SessionRepo) Create(ctx context.Context, s model.Session) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO sessions (user_id, token_hash, expires_at, is_active, ip_address, user_agent, created_at) VALUES (?,?,?,1,?,?,?)",
		s.UserID, s.TokenHash, s.ExpiresAt.UTC(), s.IPAddress, s.UserAgent, s.CreatedAt.UTC())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// FindActive returns the active, unexpired session for tokenHash.
func (r *SessionRepo) FindActive(ctx context.Context, tokenHash string, now time.Time) (model.Session, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE token_hash=? AND is_active=1 AND expires_at>? LIMIT 1",
		tokenHash, now.UTC())
	s, err := scanSession(row)
	return s, notFound(err)
}

// Revoke marks one session inactive.  Revoking an inactive or unknown
// session is not an error.
func (r *SessionRepo) Revoke(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET is_active=0 WHERE id=? AND is_active=1", id)
	return err
}

// RevokeByToken marks the session(s) issued for tokenHash inactive and
// reports how many rows changed.
func (r *SessionRepo) RevokeByToken(ctx context.Context, tokenHash string) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET is_active=0 WHERE token_hash=? AND is_active=1", tokenHash)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RevokeForUser revokes sessionID only if it belongs to userID.  A session
// owned by someone else is reported as ErrNotFound.
func (r *SessionRepo) RevokeForUser(ctx context.Context, userID, sessionID uint64) error {
	var one int
	err := r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM sessions WHERE id=? AND user_id=? LIMIT 1", sessionID, userID).Scan(&one)
	if err != nil {
		return notFound(err)
	}
	return r.Revoke(ctx, sessionID)
}

// RevokeAllForUser revokes every active session of userID except keepID
// (pass 0 to revoke all) and returns the number of rows changed.
func (r *SessionRepo) RevokeAllForUser(ctx context.Context, userID, keepID uint64) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET is_active=0 WHERE user_id=? AND is_active=1 AND id<>?",
		userID, keepID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListActiveByUser returns the user's active, unexpired sessions, newest first.
func (r *SessionRepo) ListActiveByUser(ctx context.Context, userID uint64, now time.Time) ([]model.Session, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE user_id=? AND is_active=1 AND expires_at>? ORDER BY created_at DESC, id DESC",
		userID, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sessions := []model.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DeleteExpired garbage-collects sessions whose expiry is at or before cutoff.
func (r *SessionRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at<=?", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSession(row rowScanner) (model.Session, error) {
	var s model.Session
	err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.IsActive, &s.IPAddress, &s.UserAgent, &s.CreatedAt)
	if err != nil {
		return model.Session{}, err
	}
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}
