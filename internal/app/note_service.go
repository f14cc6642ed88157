package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tribegate/tribegate/internal/audit"
	"github.com/tribegate/tribegate/internal/storage"
	"github.com/tribegate/tribegate/internal/validation"
	apperrors "github.com/tribegate/tribegate/pkg/errors"
	"github.com/tribegate/tribegate/pkg/types"
)

// notePreviewLength bounds how much note text is copied into audit details.
const notePreviewLength = 50

// NoteService manages admin notes about members, scoped per tribe.
type NoteService struct {
	accountRepo *storage.AccountRepository
	noteRepo    *storage.NoteRepository
	coord       *audit.Coordinator
	authz       *TribeAuthorizer
	store       *storage.Store
}

// NewNoteService creates a new note service
func NewNoteService(store *storage.Store, coord *audit.Coordinator, authz *TribeAuthorizer) *NoteService {
	return &NoteService{
		accountRepo: storage.NewAccountRepository(store),
		noteRepo:    storage.NewNoteRepository(store),
		coord:       coord,
		authz:       authz,
		store:       store,
	}
}

// List returns the notes about a member in the caller's resolved tribe.
func (s *NoteService) List(ctx context.Context, actorID int64, tribe, externalID string) ([]*types.NoteWithAuthor, error) {
	ac, err := s.authz.ResolveAdminContext(ctx, actorID, tribe)
	if err != nil {
		return nil, err
	}

	target, err := s.lookupTarget(ctx, externalID)
	if err != nil {
		return nil, err
	}

	notes, err := s.noteRepo.ListForMember(ctx, target.ID, ac.Tribe)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if notes == nil {
		notes = []*types.NoteWithAuthor{}
	}
	return notes, nil
}

// Create writes a note about a member in the caller's resolved tribe.
func (s *NoteService) Create(ctx context.Context, actorID int64, tribe, externalID, content string) (*types.Note, error) {
	if err := validation.ValidateNoteContent(content); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	ac, err := s.authz.ResolveAdminContext(ctx, actorID, tribe)
	if err != nil {
		return nil, err
	}

	target, err := s.lookupTarget(ctx, externalID)
	if err != nil {
		return nil, err
	}

	var note *types.Note
	_, err = s.coord.RunAudited(ctx, actorID, types.AuditNoteCreate, func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
		now := s.store.Now()
		note = &types.Note{
			ID:              uuid.NewString(),
			TargetAccountID: target.ID,
			AuthorID:        actorID,
			Tribe:           ac.Tribe,
			Content:         content,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.noteRepo.CreateTx(ctx, tx, note); err != nil {
			return apperrors.Internal(err)
		}
		e.Target(target.ID)
		e.Details = fmt.Sprintf("Created note for %s in tribe %s: %s", target.Username, ac.Tribe, Preview(content))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

// Edit replaces a note's content. Only the author may edit.
func (s *NoteService) Edit(ctx context.Context, actorID int64, noteID, content string) (*types.Note, error) {
	if err := validation.ValidateNoteContent(content); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	note, err := s.noteRepo.GetByID(ctx, noteID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if note == nil {
		return nil, apperrors.NotFound("Note")
	}
	if note.AuthorID != actorID {
		return nil, apperrors.Forbidden("You can only edit your own notes")
	}

	_, err = s.coord.RunAudited(ctx, actorID, types.AuditNoteEdit, func(ctx context.Context, tx storage.DBTX, e *audit.Entry) error {
		now := s.store.Now()
		ok, err := s.noteRepo.UpdateContentTx(ctx, tx, note.ID, content, now)
		if err != nil {
			return apperrors.Internal(err)
		}
		if !ok {
			return apperrors.NotFound("Note")
		}
		note.Content = content
		note.UpdatedAt = now

		e.Target(note.TargetAccountID)
		e.Details = fmt.Sprintf("Edited note in tribe %s: %s", note.Tribe, Preview(content))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

func (s *NoteService) lookupTarget(ctx context.Context, externalID string) (*types.Account, error) {
	target, err := s.accountRepo.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if target == nil {
		return nil, apperrors.NotFound("User")
	}
	return target, nil
}

// Preview returns the first 50 characters of content, with "..." appended
// when it was cut.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= notePreviewLength {
		return content
	}
	return string(runes[:notePreviewLength]) + "..."
}
