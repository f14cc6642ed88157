package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tribegate/tribegate/internal/testutil"
	apperrors "github.com/tribegate/tribegate/pkg/errors"
	"github.com/tribegate/tribegate/pkg/types"
)

func TestPreview(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"short", "hello", "hello"},
		{"exactly_fifty", strings.Repeat("a", 50), strings.Repeat("a", 50)},
		{"cut", strings.Repeat("b", 51), strings.Repeat("b", 50) + "..."},
		{"multibyte_is_cut_on_runes", strings.Repeat("é", 60), strings.Repeat("é", 50) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Preview(tt.content))
		})
	}
}

func TestNotes_CreateListEdit(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.NewTestContext(t)

	author := testutil.CreateAccount(t, f.store, "author", false)
	coAdmin := testutil.CreateAccount(t, f.store, "coadmin", false)
	member := testutil.CreateAccount(t, f.store, "member", false)
	testutil.AddMember(t, f.store, author.ID, "Earth", true)
	testutil.AddMember(t, f.store, coAdmin.ID, "Earth", true)
	testutil.AddMember(t, f.store, member.ID, "Earth", false)

	long := strings.Repeat("x", 80)
	note, err := f.notes.Create(ctx, author.ID, "", member.ExternalID, long)
	require.NoError(t, err)
	assert.Equal(t, "Earth", note.Tribe)
	assert.Equal(t, member.ID, note.TargetAccountID)
	assert.Equal(t, author.ID, note.AuthorID)

	creates := testutil.AuditEntries(t, f.store, types.AuditNoteCreate)
	require.Len(t, creates, 1)
	require.NotNil(t, creates[0].TargetID)
	assert.Equal(t, member.ID, *creates[0].TargetID)
	assert.Equal(t, "Created note for member in tribe Earth: "+strings.Repeat("x", 50)+"...", creates[0].Details)

	notes, err := f.notes.List(ctx, coAdmin.ID, "", member.ExternalID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "author", notes[0].AuthorUsername)

	t.Run("only_author_edits", func(t *testing.T) {
		_, err := f.notes.Edit(ctx, coAdmin.ID, note.ID, "hijack")
		requireForbidden(t, err, "You can only edit your own notes")
	})

	t.Run("author_edits", func(t *testing.T) {
		edited, err := f.notes.Edit(ctx, author.ID, note.ID, "revised")
		require.NoError(t, err)
		assert.Equal(t, "revised", edited.Content)
		assert.False(t, edited.UpdatedAt.Before(edited.CreatedAt))

		edits := testutil.AuditEntries(t, f.store, types.AuditNoteEdit)
		require.Len(t, edits, 1)
		assert.Equal(t, "Edited note in tribe Earth: revised", edits[0].Details)
		require.NotNil(t, edits[0].TargetID)
		assert.Equal(t, member.ID, *edits[0].TargetID)
	})

	t.Run("missing_note", func(t *testing.T) {
		_, err := f.notes.Edit(ctx, author.ID, "00000000-0000-0000-0000-000000000000", "x")
		requireCode(t, err, apperrors.ErrCodeNotFound)
	})

	t.Run("empty_content", func(t *testing.T) {
		_, err := f.notes.Create(ctx, author.ID, "", member.ExternalID, "   ")
		requireCode(t, err, apperrors.ErrCodeValidation)
	})

	t.Run("unknown_target", func(t *testing.T) {
		_, err := f.notes.Create(ctx, author.ID, "", "ghost", "hi")
		requireCode(t, err, apperrors.ErrCodeNotFound)
	})
}

func TestNotes_ScopedToResolvedTribe(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.NewTestContext(t)

	earthAdmin := testutil.CreateAccount(t, f.store, "earth", false)
	waterAdmin := testutil.CreateAccount(t, f.store, "water", false)
	member := testutil.CreateAccount(t, f.store, "member", false)
	testutil.AddMember(t, f.store, earthAdmin.ID, "Earth", true)
	testutil.AddMember(t, f.store, waterAdmin.ID, "Water", true)
	testutil.AddMember(t, f.store, member.ID, "Earth", false)
	testutil.AddMember(t, f.store, member.ID, "Water", false)

	_, err := f.notes.Create(ctx, earthAdmin.ID, "", member.ExternalID, "earth only")
	require.NoError(t, err)

	notes, err := f.notes.List(ctx, waterAdmin.ID, "", member.ExternalID)
	require.NoError(t, err)
	assert.Empty(t, notes)
}
