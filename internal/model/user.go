package model

import "time"

// Role is the authorization level of an admin-interface user.  Role checks
// happen outside the authentication core; this package only stores and
// transports the value.
type Role string

const (
    RoleAdmin     Role = "admin"
    RoleDeveloper Role = "developer"
    RoleViewer    Role = "viewer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
    switch r {
    case RoleAdmin, RoleDeveloper, RoleViewer:
        return true
    }
    return false
}

// User represents an account record as stored in the `users` table.
// Each field corresponds to a column in the database.  The struct is never
// serialized to clients; handlers use PublicProfile instead so the password
// hash cannot leak.
//
// Fields:
//  ID            – primary key identifier of the user.
//  Username      – unique, case-sensitive login name.
//  Email         – unique email address.
//  PasswordHash  – bcrypt hashed password.
//  Role          – admin, developer or viewer.
//  IsActive      – deactivated users fail login regardless of credentials.
//  LoginAttempts – consecutive failed logins since the last success.
//  LockedUntil   – login is refused while this lies in the future (nullable).
//  CreatedAt     – timestamp of creation.
//  LastLogin     – timestamp of the last successful login (nullable).
type User struct {
    ID            uint64     // users.id
    Username      string     // users.username
    Email         string     // users.email
    PasswordHash  string     // users.password_hash
    Role          Role       // users.role
    IsActive      bool       // users.is_active
    LoginAttempts int        // users.login_attempts
    LockedUntil   *time.Time // users.locked_until (nullable)
    CreatedAt     time.Time  // users.created_at
    LastLogin     *time.Time // users.last_login (nullable)
}

// LockedAt reports whether the account is locked at instant now.
func (u User) LockedAt(now time.Time) bool {
    return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// PublicProfile is the outward view of a User.
type PublicProfile struct {
    ID        uint64     `json:"id"`
    Username  string     `json:"username"`
    Email     string     `json:"email"`
    Role      Role       `json:"role"`
    IsActive  bool       `json:"is_active"`
    CreatedAt time.Time  `json:"created_at"`
    LastLogin *time.Time `json:"last_login,omitempty"`
}

// Public strips every credential-bearing field from u.
func (u User) Public() PublicProfile {
    return PublicProfile{
        ID:        u.ID,
        Username:  u.Username,
        Email:     u.Email,
        Role:      u.Role,
        IsActive:  u.IsActive,
        CreatedAt: u.CreatedAt,
        LastLogin: u.LastLogin,
    }
}
