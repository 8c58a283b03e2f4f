package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/admin-auth/internal/model"
)

const userColumns = "id,username,email,password_hash,role,is_active,login_attempts,locked_until,created_at,last_login"

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// LockoutState is the post-update view of a user's failed-login counters.
// Applied is false when the row was already locked and nothing changed.
type LockoutState struct {
	Attempts    int
	LockedUntil *time.Time
	Applied     bool
}

// Create inserts u and returns its ID.  A unique violation on username or
// email yields ErrConflict.
func (r *UserRepo) Create(ctx context.Context, u model.User) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, role, is_active, login_attempts, created_at) VALUES (?,?,?,?,?,0,?)",
		u.Username, u.Email, u.PasswordHash, string(u.Role), u.IsActive, u.CreatedAt.UTC())
	if err != nil {
		if isDuplicateKey(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// ExistsByUsernameOrEmail reports whether any row already uses username or email.
func (r *UserRepo) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM users WHERE username=? OR email=? LIMIT 1",
		username, email).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FindByLogin fetches a user whose username (case-sensitive) or email
// matches login.  Emails are stored lower-cased, so the email side compares
// against the lower-cased input.
func (r *UserRepo) FindByLogin(ctx context.Context, login string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username=? OR email=? LIMIT 1",
		login, strings.ToLower(login))
	u, err := scanUser(row)
	return u, notFound(err)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	u, err := scanUser(row)
	return u, notFound(err)
}

// RecordFailedLogin increments login_attempts and, once the post-increment
// count reaches threshold, sets locked_until = now+lockFor.  Only the two
// lockout columns are written.  A lock that already expired is cleared first
// so the counter restarts; a lock still in force is left untouched and the
// returned state has Applied=false.
func (r *UserRepo) RecordFailedLogin(ctx context.Context, id uint64, now time.Time, threshold int, lockFor time.Duration) (LockoutState, error) {
	now = now.UTC()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return LockoutState{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET login_attempts=0, locked_until=NULL WHERE id=? AND locked_until IS NOT NULL AND locked_until<=?",
		id, now); err != nil {
		return LockoutState{}, err
	}

	// locked_until is assigned before login_attempts so both MySQL (left to
	// right) and SQLite (old values) evaluate the CASE against the old count.
	res, err := tx.ExecContext(ctx,
		`UPDATE users
		    SET locked_until = CASE WHEN login_attempts + 1 >= ? THEN ? ELSE locked_until END,
		        login_attempts = login_attempts + 1
		  WHERE id=? AND (locked_until IS NULL OR locked_until<=?)`,
		threshold, now.Add(lockFor), id, now)
	if err != nil {
		return LockoutState{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return LockoutState{}, err
	}

	var (
		st     LockoutState
		locked sql.NullTime
	)
	err = tx.QueryRowContext(ctx,
		"SELECT login_attempts, locked_until FROM users WHERE id=?", id).Scan(&st.Attempts, &locked)
	if err != nil {
		return LockoutState{}, notFound(err)
	}
	if err := tx.Commit(); err != nil {
		return LockoutState{}, err
	}
	st.LockedUntil = timePtr(locked)
	st.Applied = affected > 0
	return st, nil
}

// RecordSuccessfulLogin clears the lockout columns and stamps last_login.
func (r *UserRepo) RecordSuccessfulLogin(ctx context.Context, id uint64, now time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET login_attempts=0, locked_until=NULL, last_login=? WHERE id=?",
		now.UTC(), id)
	return err
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u      model.User
		role   string
		locked sql.NullTime
		last   sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.IsActive,
		&u.LoginAttempts, &locked, &u.CreatedAt, &last)
	if err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	u.LockedUntil = timePtr(locked)
	u.LastLogin = timePtr(last)
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}
