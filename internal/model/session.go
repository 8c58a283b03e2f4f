package model

import "time"

// Session models an entry in the `sessions` table.  One row is written per
// successful login, so a user may hold several active sessions at once.  The
// bearer token itself is never stored; only its SHA-256 hash.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the session.
//  TokenHash – SHA-256 hex digest of the issued bearer token.
//  ExpiresAt – server-side expiry, checked independently of the token's exp.
//  IsActive  – false once the session is logged out or revoked.
//  IPAddress – client address at login.
//  UserAgent – client user agent at login.
//  CreatedAt – timestamp of creation.
type Session struct {
    ID        uint64    `json:"id"`
    UserID    uint64    `json:"user_id"`
    TokenHash string    `json:"-"`
    ExpiresAt time.Time `json:"expires_at"`
    IsActive  bool      `json:"is_active"`
    IPAddress string    `json:"ip_address"`
    UserAgent string    `json:"user_agent"`
    CreatedAt time.Time `json:"created_at"`
}
