package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/iliyamo/admin-auth/internal/model"
)

// AuditRepo appends to the audit_logs table.  It deliberately exposes no
// update or delete operation.
type AuditRepo struct{ DB *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{DB: db} }

// Insert appends e and returns the new row ID.
func (r *AuditRepo) Insert(ctx context.Context, e model.AuditLogEntry) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO audit_logs (user_id, action, resource_type, resource_id, old_values, new_values, ip_address, user_agent, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		e.UserID, string(e.Action), e.ResourceType, e.ResourceID,
		rawJSON(e.OldValues), rawJSON(e.NewValues),
		e.IPAddress, e.UserAgent, e.CreatedAt.UTC())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// AuditFilter narrows List.  Zero values mean "any".
type AuditFilter struct {
	UserID uint64
	Action model.AuditAction
	Limit  int
}

// List returns the newest entries matching f.
func (r *AuditRepo) List(ctx context.Context, f AuditFilter) ([]model.AuditLogEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != 0 {
		where = append(where, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.Action != "" {
		where = append(where, "action=?")
		args = append(args, string(f.Action))
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := "SELECT id,user_id,action,resource_type,resource_id,old_values,new_values,ip_address,user_agent,created_at FROM audit_logs"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []model.AuditLogEntry{}
	for rows.Next() {
		var (
			e            model.AuditLogEntry
			action       string
			userID       sql.NullInt64
			resourceType sql.NullString
			resourceID   sql.NullInt64
			oldValues    sql.NullString
			newValues    sql.NullString
		)
		if err := rows.Scan(&e.ID, &userID, &action, &resourceType, &resourceID,
			&oldValues, &newValues, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = model.AuditAction(action)
		if userID.Valid {
			v := uint64(userID.Int64)
			e.UserID = &v
		}
		if resourceType.Valid {
			v := resourceType.String
			e.ResourceType = &v
		}
		if resourceID.Valid {
			v := uint64(resourceID.Int64)
			e.ResourceID = &v
		}
		if oldValues.Valid {
			e.OldValues = json.RawMessage(oldValues.String)
		}
		if newValues.Valid {
			e.NewValues = json.RawMessage(newValues.String)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func rawJSON(m json.RawMessage) any {
	if len(m) == 0 {
		return nil
	}
	return string(m)
}
