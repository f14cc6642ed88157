package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tribegate/tribegate/pkg/types"
)

// NoteRepository handles member note data operations
type NoteRepository struct {
	store *Store
}

// NewNoteRepository creates a new NoteRepository
func NewNoteRepository(store *Store) *NoteRepository {
	return &NoteRepository{store: store}
}

// CreateTx inserts a note.
func (r *NoteRepository) CreateTx(ctx context.Context, db DBTX, n *types.Note) error {
	query := r.store.Rebind(`
		INSERT INTO notes (id, target_account_id, author_id, tribe, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.store.Now()
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = n.CreatedAt
	}
	_, err := db.ExecContext(ctx, query, n.ID, n.TargetAccountID, n.AuthorID, n.Tribe, n.Content, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}
	return nil
}

// GetByID returns a note, or nil, nil when absent.
func (r *NoteRepository) GetByID(ctx context.Context, id string) (*types.Note, error) {
	query := r.store.Rebind(`
		SELECT id, target_account_id, author_id, tribe, content, created_at, updated_at
		FROM notes WHERE id = ?
	`)

	var n types.Note
	err := r.store.db.QueryRowContext(ctx, query, id).Scan(
		&n.ID, &n.TargetAccountID, &n.AuthorID, &n.Tribe, &n.Content, &n.CreatedAt, &n.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return &n, nil
}

// UpdateContentTx replaces a note's content. Returns false when it does not exist.
func (r *NoteRepository) UpdateContentTx(ctx context.Context, db DBTX, id, content string, at time.Time) (bool, error) {
	query := r.store.Rebind(`UPDATE notes SET content = ?, updated_at = ? WHERE id = ?`)

	res, err := db.ExecContext(ctx, query, content, at, id)
	if err != nil {
		return false, fmt.Errorf("failed to update note: %w", err)
	}
	return affected(res)
}

// ListForMember returns the notes about a member within one tribe, newest first.
func (r *NoteRepository) ListForMember(ctx context.Context, targetAccountID int64, tribe string) ([]*types.NoteWithAuthor, error) {
	query := r.store.Rebind(`
		SELECT n.id, n.target_account_id, n.author_id, n.tribe, n.content, n.created_at, n.updated_at,
		       a.username, a.discriminator
		FROM notes n
		JOIN accounts a ON a.id = n.author_id
		WHERE n.target_account_id = ? AND n.tribe = ?
		ORDER BY n.created_at DESC
	`)

	rows, err := r.store.db.QueryContext(ctx, query, targetAccountID, tribe)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []*types.NoteWithAuthor
	for rows.Next() {
		var n types.NoteWithAuthor
		if err := rows.Scan(
			&n.ID, &n.TargetAccountID, &n.AuthorID, &n.Tribe, &n.Content, &n.CreatedAt, &n.UpdatedAt,
			&n.AuthorUsername, &n.AuthorDiscriminator,
		); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, &n)
	}
	return notes, rows.Err()
}

// RenameTribeTx moves notes from one tribe name to another.
func (r *NoteRepository) RenameTribeTx(ctx context.Context, db DBTX, from, to string) (int64, error) {
	query := r.store.Rebind(`UPDATE notes SET tribe = ? WHERE tribe = ?`)

	res, err := db.ExecContext(ctx, query, to, from)
	if err != nil {
		return 0, fmt.Errorf("failed to rename tribe notes: %w", err)
	}
	return res.RowsAffected()
}

// DeleteByAccountTx removes notes written about the account and notes the
// account authored.
func (r *NoteRepository) DeleteByAccountTx(ctx context.Context, db DBTX, accountID int64) (int64, error) {
	query := r.store.Rebind(`DELETE FROM notes WHERE target_account_id = ? OR author_id = ?`)

	res, err := db.ExecContext(ctx, query, accountID, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notes: %w", err)
	}
	return res.RowsAffected()
}
