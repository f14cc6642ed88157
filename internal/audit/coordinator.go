// Package audit pairs every privileged write with exactly one audit log
// entry in the same transaction, and alerts operators about privileged
// actions once they are durable.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tribegate/tribegate/internal/logger"
	"github.com/tribegate/tribegate/internal/storage"
	apperrors "github.com/tribegate/tribegate/pkg/errors"
	"github.com/tribegate/tribegate/pkg/types"
)

// Entry is filled in by a mutation with what the audit row should say.
type Entry struct {
	// ActorID overrides the actor passed to RunAudited. Set by mutations
	// that create the acting account, such as a first login.
	ActorID  int64
	TargetID *int64
	Details  string
}

// Target sets the entry's target account.
func (e *Entry) Target(accountID int64) {
	e.TargetID = &accountID
}

// MutationFunc performs the domain writes through tx and describes them in
// entry. Returning an error rolls everything back.
type MutationFunc func(ctx context.Context, tx storage.DBTX, entry *Entry) error

// notifyTimeout bounds a single post-commit notification.
const notifyTimeout = 10 * time.Second

// Coordinator runs audited mutations.
type Coordinator struct {
	store     *storage.Store
	auditRepo *storage.AuditLogRepository
	notifier  Notifier
	pending   sync.WaitGroup
}

// NewCoordinator creates a coordinator. notifier may be nil.
func NewCoordinator(store *storage.Store, notifier Notifier) *Coordinator {
	return &Coordinator{
		store:     store,
		auditRepo: storage.NewAuditLogRepository(store),
		notifier:  notifier,
	}
}

// RunAudited runs fn and appends the audit entry in one transaction. Errors
// from fn are returned unchanged; a failed audit insert or commit is
// reported as an internal error. Nothing is written unless both succeed.
func (c *Coordinator) RunAudited(ctx context.Context, actorID int64, action types.AuditAction, fn MutationFunc) (*types.AuditLogEntry, error) {
	if !types.IsValidAuditAction(string(action)) {
		return nil, apperrors.Internal(fmt.Errorf("unknown audit action %q", action))
	}

	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		mutationsTotal.WithLabelValues(string(action), resultFailed).Inc()
		logger.Error(ctx, "failed to begin audited transaction", "action", action, "error", err)
		return nil, apperrors.Internal(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	var e Entry
	if err := fn(ctx, tx, &e); err != nil {
		mutationsTotal.WithLabelValues(string(action), resultRejected).Inc()
		return nil, err
	}

	if e.ActorID != 0 {
		actorID = e.ActorID
	}
	if actorID == 0 {
		mutationsTotal.WithLabelValues(string(action), resultFailed).Inc()
		return nil, apperrors.Internal(fmt.Errorf("audit entry for %s has no actor", action))
	}

	now := c.store.Now()
	entry := &types.AuditLogEntry{
		ID:        NewID(now),
		Action:    action,
		ActorID:   actorID,
		TargetID:  e.TargetID,
		Details:   e.Details,
		CreatedAt: now,
	}

	if err := c.auditRepo.AppendTx(ctx, tx, entry); err != nil {
		mutationsTotal.WithLabelValues(string(action), resultFailed).Inc()
		logger.Error(ctx, "audit insert failed, mutation rolled back", "action", action, "actor_id", actorID, "error", err)
		return nil, apperrors.Internal(err)
	}

	if err := tx.Commit(); err != nil {
		mutationsTotal.WithLabelValues(string(action), resultFailed).Inc()
		logger.Error(ctx, "audited commit failed", "action", action, "actor_id", actorID, "error", err)
		return nil, apperrors.Internal(fmt.Errorf("failed to commit transaction: %w", err))
	}

	mutationsTotal.WithLabelValues(string(action), resultCommitted).Inc()

	if action.Privileged() && c.notifier != nil {
		c.notify(ctx, entry)
	}

	return entry, nil
}

func (c *Coordinator) notify(ctx context.Context, entry *types.AuditLogEntry) {
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()

		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		if err := c.notifier.Notify(nctx, entry); err != nil {
			notifyFailuresTotal.Inc()
			logger.Warn(nctx, "privileged action notification failed", "audit_id", entry.ID, "action", entry.Action, "error", err)
		}
	}()
}

// Record appends a standalone entry for a read-path action such as a roster
// view. It is best effort: a failure is logged and swallowed.
func (c *Coordinator) Record(ctx context.Context, actorID int64, action types.AuditAction, targetID *int64, details string) {
	now := c.store.Now()
	entry := &types.AuditLogEntry{
		ID:        NewID(now),
		Action:    action,
		ActorID:   actorID,
		TargetID:  targetID,
		Details:   details,
		CreatedAt: now,
	}
	if err := c.auditRepo.Append(ctx, entry); err != nil {
		logger.Warn(ctx, "failed to record audit entry", "action", action, "actor_id", actorID, "error", err)
	}
}

// Wait blocks until in-flight notifications finish. Called on shutdown.
func (c *Coordinator) Wait() {
	c.pending.Wait()
}
