package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tribegate/tribegate/internal/auth"
	"github.com/tribegate/tribegate/internal/sigverify/sigtest"
	"github.com/tribegate/tribegate/internal/testutil"
	"github.com/tribegate/tribegate/pkg/types"
)

// =============================================================================
// Session forging
// =============================================================================

// tamper rewrites the payload segment of a signed token without re-signing.
func tamper(t *testing.T, token string, edit func(claims map[string]any)) string {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	claims := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &claims))
	edit(claims)
	raw, err = json.Marshal(claims)
	require.NoError(t, err)

	parts[1] = base64.RawURLEncoding.EncodeToString(raw)
	return strings.Join(parts, ".")
}

func TestAttack_SessionForging(t *testing.T) {
	ts := newTestServer(t)
	mallory := testutil.CreateAccount(t, ts.store, "mallory", false)
	token := ts.token(t, mallory)

	t.Run("claims_swapped_to_super_admin", func(t *testing.T) {
		forged := tamper(t, token, func(c map[string]any) {
			c["id"] = ts.superAdmin.ID
			c["is_super_admin"] = true
		})
		w := ts.do(t, http.MethodGet, "/api/admin/users", forged, nil)
		requireErrorCode(t, w, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("signed_with_guessed_secret", func(t *testing.T) {
		claims := auth.SessionClaims{
			ID: "1",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "tribegate",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.Repeat("x", 32)))
		require.NoError(t, err)

		w := ts.do(t, http.MethodGet, "/api/me", forged, nil)
		requireErrorCode(t, w, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("super_admin_claim_is_not_authority", func(t *testing.T) {
		// A genuine token carrying the flag still needs the configured id.
		escalated, err := ts.sessions.Issue(mallory, true)
		require.NoError(t, err)

		w := ts.do(t, http.MethodGet, "/api/admin/audit", escalated, nil)
		requireErrorCode(t, w, http.StatusForbidden, "forbidden")
	})
}

// =============================================================================
// Wallet proof attacks
// =============================================================================

func TestAttack_WalletProof(t *testing.T) {
	ts := newTestServer(t)
	attacker := testutil.CreateAccount(t, ts.store, "attacker", false)
	token := ts.token(t, attacker)
	victim := sigtest.NewSuiEd25519(t)

	proof := func(t *testing.T, signature func(t *testing.T, nonce string) string) int {
		t.Helper()
		w := ts.do(t, http.MethodPost, "/api/wallets/link-nonce", token, map[string]string{"address": victim.Address()})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		nonce := decodeBody[linkNonceResponse](t, w).Nonce

		w = ts.do(t, http.MethodPost, "/api/wallets/link-verify", token, map[string]string{
			"address":   victim.Address(),
			"signature": signature(t, nonce),
		})
		return w.Code
	}

	tests := []struct {
		name string
		sign func(t *testing.T, nonce string) string
	}{
		{"signature_over_other_message", func(t *testing.T, _ string) string { return victim.Sign(t, "some other message") }},
		{"modified_signature_bytes", func(t *testing.T, nonce string) string {
			raw, err := base64.StdEncoding.DecodeString(victim.Sign(t, nonce))
			require.NoError(t, err)
			raw[5] ^= 0xFF
			return base64.StdEncoding.EncodeToString(raw)
		}},
		{"truncated_signature", func(t *testing.T, nonce string) string {
			raw, err := base64.StdEncoding.DecodeString(victim.Sign(t, nonce))
			require.NoError(t, err)
			return base64.StdEncoding.EncodeToString(raw[:len(raw)/2])
		}},
		{"empty_signature", func(*testing.T, string) string { return "" }},
		{"invalid_base64", func(*testing.T, string) string { return "not-valid-base64!!!" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, proof(t, tt.sign))
		})
	}

	assert.Empty(t, testutil.AuditEntries(t, ts.store, types.AuditLinkWallet))
}

// =============================================================================
// Cross-account and cross-tribe access
// =============================================================================

func TestAttack_IDOR(t *testing.T) {
	ts := newTestServer(t)
	alice := testutil.CreateAccount(t, ts.store, "alice", false)
	bob := testutil.CreateAccount(t, ts.store, "bob", false)
	aliceWallet := testutil.CreateWallet(t, ts.store, alice.ID, "0x"+strings.Repeat("a1", 20))

	t.Run("unlink_other_users_wallet", func(t *testing.T) {
		w := ts.do(t, http.MethodDelete, "/api/wallets/"+aliceWallet.ID, ts.token(t, bob), nil)
		requireErrorCode(t, w, http.StatusNotFound, "not_found")

		w = ts.do(t, http.MethodGet, "/api/me", ts.token(t, alice), nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), aliceWallet.Address)
	})

	t.Run("edit_other_admins_note", func(t *testing.T) {
		testutil.AddMember(t, ts.store, alice.ID, "Earth", true)
		testutil.AddMember(t, ts.store, bob.ID, "Earth", true)
		member := testutil.CreateAccount(t, ts.store, "member", false)
		testutil.AddMember(t, ts.store, member.ID, "Earth", false)

		w := ts.do(t, http.MethodPost, "/api/roster/"+member.ExternalID+"/notes", ts.token(t, alice), map[string]string{"content": "mine"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		note := decodeBody[types.Note](t, w)

		w = ts.do(t, http.MethodPut, "/api/notes/"+note.ID, ts.token(t, bob), map[string]string{"content": "hijacked"})
		requireErrorCode(t, w, http.StatusForbidden, "forbidden")
	})
}

func TestAttack_CrossTribeAccess(t *testing.T) {
	ts := newTestServer(t)
	earthAdmin := testutil.CreateAccount(t, ts.store, "earth", false)
	waterMember := testutil.CreateAccount(t, ts.store, "water", false)
	testutil.AddMember(t, ts.store, earthAdmin.ID, "Earth", true)
	testutil.AddMember(t, ts.store, waterMember.ID, "Water", false)
	token := ts.token(t, earthAdmin)

	t.Run("tribe_parameter_spoofing", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/api/roster?tribe=Water", token, nil)
		requireErrorCode(t, w, http.StatusForbidden, "forbidden")
	})

	t.Run("member_of_other_tribe", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/api/roster/"+waterMember.ExternalID, token, nil)
		requireErrorCode(t, w, http.StatusForbidden, "forbidden")

		w = ts.do(t, http.MethodGet, "/api/roster/"+waterMember.ExternalID+"/notes?tribe=Water", token, nil)
		requireErrorCode(t, w, http.StatusForbidden, "forbidden")
	})

	t.Run("add_member_to_other_tribe", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/admin/tribes/Water/users", token, map[string]any{"userId": earthAdmin.ID, "isAdmin": true})
		requireErrorCode(t, w, http.StatusForbidden, "forbidden")
	})

	assert.Empty(t, testutil.AuditEntries(t, ts.store, types.AuditTribeJoin))
}

// =============================================================================
// Injection
// =============================================================================

func TestAttack_Injection(t *testing.T) {
	ts := newTestServer(t)
	chief := testutil.CreateAccount(t, ts.store, "chief", false)
	testutil.AddMember(t, ts.store, chief.ID, "Earth", true)
	token := ts.token(t, chief)

	t.Run("sort_column", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/api/roster?sort=username%3B+DROP+TABLE+accounts", token, nil)
		requireErrorCode(t, w, http.StatusBadRequest, "validation_failed")
	})

	t.Run("search_term", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/api/roster?search=%27+OR+1%3D1+--", token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Empty(t, decodeBody[rosterBody](t, w).Members)
	})

	t.Run("tribe_name", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/admin/tribes", ts.token(t, ts.superAdmin),
			map[string]string{"name": "Earth'); DELETE FROM tribes; --"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		w = ts.do(t, http.MethodGet, "/api/admin/tribes", ts.token(t, ts.superAdmin), nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decodeBody[tribesResponse](t, w).Tribes, 2)
	})
}

type rosterBody struct {
	Members []json.RawMessage `json:"members"`
}
