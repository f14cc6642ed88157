package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tribegate/tribegate/pkg/types"
)

// RosterSort is the closed set of roster sort keys.
type RosterSort string

const (
	RosterSortUsername    RosterSort = "username"
	RosterSortLastLogin   RosterSort = "last_login"
	RosterSortWalletCount RosterSort = "wallet_count"
)

// ParseRosterSort maps a client value onto a sort key. Empty means username.
func ParseRosterSort(s string) (RosterSort, bool) {
	switch RosterSort(s) {
	case "":
		return RosterSortUsername, true
	case RosterSortUsername, RosterSortLastLogin, RosterSortWalletCount:
		return RosterSort(s), true
	default:
		return "", false
	}
}

// SortOrder is ascending or descending.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortOrder maps a client value onto an order. Empty means ascending.
func ParseSortOrder(s string) (SortOrder, bool) {
	switch SortOrder(strings.ToLower(s)) {
	case "", SortAsc:
		return SortAsc, true
	case SortDesc:
		return SortDesc, true
	default:
		return "", false
	}
}

// orderBy returns a fixed ORDER BY clause. Client input never reaches query text.
func orderBy(sort RosterSort, order SortOrder) string {
	switch {
	case sort == RosterSortLastLogin && order == SortDesc:
		return "ORDER BY a.last_login_at IS NULL, a.last_login_at DESC, a.id ASC"
	case sort == RosterSortLastLogin:
		return "ORDER BY a.last_login_at IS NULL, a.last_login_at ASC, a.id ASC"
	case sort == RosterSortWalletCount && order == SortDesc:
		return "ORDER BY wallet_count DESC, a.username ASC, a.id ASC"
	case sort == RosterSortWalletCount:
		return "ORDER BY wallet_count ASC, a.username ASC, a.id ASC"
	case order == SortDesc:
		return "ORDER BY LOWER(a.username) DESC, a.id ASC"
	default:
		return "ORDER BY LOWER(a.username) ASC, a.id ASC"
	}
}

// RosterQuery selects members of one tribe.
type RosterQuery struct {
	Tribe  string
	Sort   RosterSort
	Order  SortOrder
	Search string
}

// RosterMember is one roster row.
type RosterMember struct {
	Account      *types.Account `json:"account"`
	IsTribeAdmin bool           `json:"isTribeAdmin"`
	WalletCount  int            `json:"walletCount"`
	JoinedAt     time.Time      `json:"joinedAt"`
}

// RosterRepository lists tribe rosters.
type RosterRepository struct {
	store *Store
}

// NewRosterRepository creates a new RosterRepository
func NewRosterRepository(store *Store) *RosterRepository {
	return &RosterRepository{store: store}
}

// escapeLike escapes LIKE wildcards so search input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// List returns the members of q.Tribe. Search matches username or external
// id, case-insensitively.
func (r *RosterRepository) List(ctx context.Context, q RosterQuery) ([]*RosterMember, error) {
	query := `
		SELECT a.id, a.external_id, a.username, a.discriminator, a.is_admin, a.last_login_at, a.created_at,
		       m.is_admin, m.created_at,
		       (SELECT COUNT(*) FROM wallet_bindings w WHERE w.account_id = a.id AND w.deleted_at IS NULL) AS wallet_count
		FROM tribe_memberships m
		JOIN accounts a ON a.id = m.account_id
		WHERE m.tribe = ?`
	args := []any{q.Tribe}

	if search := strings.TrimSpace(q.Search); search != "" {
		query += ` AND (LOWER(a.username) LIKE ? ESCAPE '\' OR a.external_id LIKE ? ESCAPE '\')`
		pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
		args = append(args, pattern, pattern)
	}

	query += " " + orderBy(q.Sort, q.Order)

	rows, err := r.store.db.QueryContext(ctx, r.store.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list roster: %w", err)
	}
	defer rows.Close()

	var members []*RosterMember
	for rows.Next() {
		var (
			a         types.Account
			lastLogin sql.NullTime
			m         RosterMember
		)
		if err := rows.Scan(
			&a.ID, &a.ExternalID, &a.Username, &a.Discriminator, &a.IsAdmin, &lastLogin, &a.CreatedAt,
			&m.IsTribeAdmin, &m.JoinedAt, &m.WalletCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan roster member: %w", err)
		}
		a.LastLoginAt = timePtr(lastLogin)
		m.Account = &a
		members = append(members, &m)
	}
	return members, rows.Err()
}
