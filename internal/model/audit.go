package model

import (
    "encoding/json"
    "time"
)

// AuditAction tags a security-relevant event.
type AuditAction string

const (
    ActionUserRegistered     AuditAction = "USER_REGISTERED"
    ActionUserLogin          AuditAction = "USER_LOGIN"
    ActionUserLoginFailed    AuditAction = "USER_LOGIN_FAILED"
    ActionAccountLocked      AuditAction = "ACCOUNT_LOCKED"
    ActionUserLogout         AuditAction = "USER_LOGOUT"
    ActionTokenRejected      AuditAction = "TOKEN_REJECTED"
    ActionSessionRevoked     AuditAction = "SESSION_REVOKED"
    ActionSessionsRevokedAll AuditAction = "SESSIONS_REVOKED_ALL"
)

// AuditLogEntry is one append-only row of the `audit_logs` table.  Rows are
// written once and never updated or deleted.
//
// Fields:
//  UserID       – acting user; nil for anonymous events (e.g. unknown login).
//  Action       – event tag.
//  ResourceType – kind of the affected resource, if any ("user", "session").
//  ResourceID   – id of the affected resource, if any.
//  OldValues    – serialized snapshot before the change (optional).
//  NewValues    – serialized snapshot after the change (optional).
type AuditLogEntry struct {
    ID           uint64          `json:"id"`
    UserID       *uint64         `json:"user_id,omitempty"`
    Action       AuditAction     `json:"action"`
    ResourceType *string         `json:"resource_type,omitempty"`
    ResourceID   *uint64         `json:"resource_id,omitempty"`
    OldValues    json.RawMessage `json:"old_values,omitempty"`
    NewValues    json.RawMessage `json:"new_values,omitempty"`
    IPAddress    string          `json:"ip_address"`
    UserAgent    string          `json:"user_agent"`
    CreatedAt    time.Time       `json:"created_at"`
}
