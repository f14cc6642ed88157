package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tribegate/tribegate/pkg/types"
)

// AuditLogRepository appends to and queries the audit log. There are no
// update or delete methods.
type AuditLogRepository struct {
	store *Store
}

// NewAuditLogRepository creates a new AuditLogRepository
func NewAuditLogRepository(store *Store) *AuditLogRepository {
	return &AuditLogRepository{store: store}
}

// Append writes an entry outside any transaction. Only for read-path
// entries (roster views) that are not paired with a mutation.
func (r *AuditLogRepository) Append(ctx context.Context, entry *types.AuditLogEntry) error {
	return r.AppendTx(ctx, r.store.db, entry)
}

// AppendTx writes an entry using the provided transaction or connection.
func (r *AuditLogRepository) AppendTx(ctx context.Context, db DBTX, entry *types.AuditLogEntry) error {
	query := r.store.Rebind(`
		INSERT INTO audit_log (id, action, actor_id, target_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.store.Now()
	}
	_, err := db.ExecContext(ctx, query,
		entry.ID,
		string(entry.Action),
		entry.ActorID,
		nullInt64(entry.TargetID),
		entry.Details,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit log: %w", err)
	}
	return nil
}

// AuditFilter narrows an audit query. Zero values mean "any".
type AuditFilter struct {
	ActorID  *int64
	TargetID *int64
	Action   types.AuditAction
	Limit    int
	Offset   int
}

// MaxAuditPageSize caps a single audit query.
const MaxAuditPageSize = 100

func (f AuditFilter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.ActorID != nil {
		clauses = append(clauses, "actor_id = ?")
		args = append(args, *f.ActorID)
	}
	if f.TargetID != nil {
		clauses = append(clauses, "target_id = ?")
		args = append(args, *f.TargetID)
	}
	if f.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, string(f.Action))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Query retrieves entries newest first. Limit is clamped to 1..MaxAuditPageSize.
func (r *AuditLogRepository) Query(ctx context.Context, f AuditFilter) ([]*types.AuditLogEntry, error) {
	limit := f.Limit
	if limit <= 0 || limit > MaxAuditPageSize {
		limit = MaxAuditPageSize
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	where, args := f.where()
	query := r.store.Rebind(`
		SELECT id, action, actor_id, target_id, details, created_at
		FROM audit_log` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`)
	args = append(args, limit, offset)

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*types.AuditLogEntry
	for rows.Next() {
		var (
			e        types.AuditLogEntry
			action   string
			targetID sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &action, &e.ActorID, &targetID, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		e.Action = types.AuditAction(action)
		e.TargetID = int64Ptr(targetID)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Count returns the number of entries matching the filter, ignoring paging.
func (r *AuditLogRepository) Count(ctx context.Context, f AuditFilter) (int64, error) {
	where, args := f.where()
	query := r.store.Rebind(`SELECT COUNT(*) FROM audit_log` + where)

	var n int64
	if err := r.store.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count audit log: %w", err)
	}
	return n, nil
}

// CountByTarget returns how many entries target the account.
func (r *AuditLogRepository) CountByTarget(ctx context.Context, targetID int64) (int64, error) {
	return r.Count(ctx, AuditFilter{TargetID: &targetID})
}

// AuditEntryWithActor is an entry joined with the acting account's display name.
type AuditEntryWithActor struct {
	types.AuditLogEntry
	ActorUsername      string `json:"actorUsername"`
	ActorDiscriminator string `json:"actorDiscriminator"`
}

// memberHistory selects entries that target the account, plus the account's
// own untargeted actions (logins, wallet links).
const memberHistory = ` WHERE a.target_id = ? OR (a.actor_id = ? AND a.target_id IS NULL)`

// ListForMember returns a page of the account's history, newest first.
func (r *AuditLogRepository) ListForMember(ctx context.Context, accountID int64, limit, offset int) ([]*AuditEntryWithActor, error) {
	if limit <= 0 || limit > MaxAuditPageSize {
		limit = MaxAuditPageSize
	}
	if offset < 0 {
		offset = 0
	}

	query := r.store.Rebind(`
		SELECT a.id, a.action, a.actor_id, a.target_id, a.details, a.created_at, u.username, u.discriminator
		FROM audit_log a
		JOIN accounts u ON u.id = a.actor_id` + memberHistory + `
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT ? OFFSET ?
	`)

	rows, err := r.store.db.QueryContext(ctx, query, accountID, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query member audit log: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntryWithActor
	for rows.Next() {
		var (
			e        AuditEntryWithActor
			action   string
			targetID sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &action, &e.ActorID, &targetID, &e.Details, &e.CreatedAt, &e.ActorUsername, &e.ActorDiscriminator); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		e.Action = types.AuditAction(action)
		e.TargetID = int64Ptr(targetID)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// CountForMember counts the entries ListForMember pages over.
func (r *AuditLogRepository) CountForMember(ctx context.Context, accountID int64) (int64, error) {
	query := r.store.Rebind(`SELECT COUNT(*) FROM audit_log a` + memberHistory)

	var n int64
	if err := r.store.db.QueryRowContext(ctx, query, accountID, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count member audit log: %w", err)
	}
	return n, nil
}
