package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/admin-auth/internal/model"
	"github.com/iliyamo/admin-auth/internal/repository"
)

// SessionView is a session as shown to its owner.
type SessionView struct {
	model.Session
	Current bool `json:"current"`
}

// ListSessions returns the caller's active sessions, newest first.
func (s *AuthService) ListSessions(ctx context.Context, id Identity) ([]SessionView, error) {
	list, err := s.sessions.ListActiveByUser(ctx, id.UserID, s.now())
	if err != nil {
		return nil, internalError(err)
	}
	out := make([]SessionView, 0, len(list))
	for _, sess := range list {
		out = append(out, SessionView{Session: sess, Current: sess.ID == id.SessionID})
	}
	return out, nil
}

// RevokeSession deactivates one of the caller's own sessions.
func (s *AuthService) RevokeSession(ctx context.Context, id Identity, sessionID uint64, meta RequestMeta) error {
	err := s.sessions.RevokeForUser(ctx, id.UserID, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return newError(CodeSessionNotFound, msgSessionNotFound)
	}
	if err != nil {
		return internalError(err)
	}
	s.audit.Record(ctx, AuditEvent{
		UserID:       &id.UserID,
		Action:       model.ActionSessionRevoked,
		ResourceType: "session",
		ResourceID:   &sessionID,
		Meta:         meta,
	})
	return nil
}

// RevokeOtherSessions deactivates every session of the caller except the
// one making the request.
func (s *AuthService) RevokeOtherSessions(ctx context.Context, id Identity, meta RequestMeta) (int64, error) {
	n, err := s.sessions.RevokeAllForUser(ctx, id.UserID, id.SessionID)
	if err != nil {
		return 0, internalError(err)
	}
	s.audit.Record(ctx, AuditEvent{
		UserID:       &id.UserID,
		Action:       model.ActionSessionsRevokedAll,
		ResourceType: "user",
		ResourceID:   &id.UserID,
		NewValues:    map[string]any{"sessions_revoked": n, "kept_session_id": id.SessionID},
		Meta:         meta,
	})
	return n, nil
}

// RevokeAllSessions deactivates every session of targetID.  Only admins may
// call it.
func (s *AuthService) RevokeAllSessions(ctx context.Context, actor Identity, targetID uint64, meta RequestMeta) (int64, error) {
	if actor.Role != model.RoleAdmin {
		return 0, newError(CodeForbidden, msgForbidden)
	}
	if _, err := s.users.GetByID(ctx, targetID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, newError(CodeUserNotFound, msgUserNotFound)
		}
		return 0, internalError(err)
	}
	n, err := s.sessions.RevokeAllForUser(ctx, targetID, 0)
	if err != nil {
		return 0, internalError(err)
	}
	s.audit.Record(ctx, AuditEvent{
		UserID:       &actor.UserID,
		Action:       model.ActionSessionsRevokedAll,
		ResourceType: "user",
		ResourceID:   &targetID,
		NewValues:    map[string]any{"sessions_revoked": n},
		Meta:         meta,
	})
	s.log.InfoContext(ctx, "sessions revoked by admin", "actor_id", actor.UserID, "target_id", targetID, "count", n)
	return n, nil
}

// AuditLogs returns recent audit entries.  Only admins may call it.
func (s *AuthService) AuditLogs(ctx context.Context, actor Identity, f repository.AuditFilter) ([]model.AuditLogEntry, error) {
	if actor.Role != model.RoleAdmin {
		return nil, newError(CodeForbidden, msgForbidden)
	}
	return s.audit.List(ctx, f)
}

// SweepExpiredSessions deletes sessions that expired more than grace ago.
func (s *AuthService) SweepExpiredSessions(ctx context.Context, grace time.Duration) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.now().Add(-grace))
	if err != nil {
		return 0, internalError(err)
	}
	if n > 0 {
		s.log.InfoContext(ctx, "expired sessions swept", "count", n)
	}
	return n, nil
}
