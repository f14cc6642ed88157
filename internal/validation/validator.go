package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tribegate/tribegate/internal/sigverify"
	"github.com/tribegate/tribegate/pkg/types"
)

// MaxUsernameLength bounds display names set by super admins.
const MaxUsernameLength = 64

// ValidateWalletAddress validates a Sui or Ethereum address and returns it
// in its stored (lower-case) form.
func ValidateWalletAddress(address string) (string, error) {
	if strings.TrimSpace(address) == "" {
		return "", fmt.Errorf("address cannot be empty")
	}

	normalized, scheme, err := sigverify.NormalizeAddress(address)
	if err != nil {
		return "", fmt.Errorf("invalid wallet address: must be 0x followed by 40 or 64 hex characters")
	}

	// Belt and braces for the 20-byte form.
	if scheme == sigverify.SchemeEthereum && !common.IsHexAddress(normalized) {
		return "", fmt.Errorf("invalid Ethereum address")
	}

	return normalized, nil
}

// ValidateTribeName trims the name and checks its length in characters.
func ValidateTribeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("tribe name cannot be empty")
	}

	if n := utf8.RuneCountInString(trimmed); n > types.MaxTribeNameLength {
		return "", fmt.Errorf("tribe name too long: %d characters > %d max", n, types.MaxTribeNameLength)
	}

	return trimmed, nil
}

// ValidateNoteContent checks a note body. Content is stored as given.
func ValidateNoteContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("note content cannot be empty")
	}

	if n := utf8.RuneCountInString(content); n > types.MaxNoteLength {
		return fmt.Errorf("note too long: %d characters > %d max", n, types.MaxNoteLength)
	}

	return nil
}

// ValidateUsername trims a display name and checks its length.
func ValidateUsername(username string) (string, error) {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return "", fmt.Errorf("username cannot be empty")
	}

	if n := utf8.RuneCountInString(trimmed); n > MaxUsernameLength {
		return "", fmt.Errorf("username too long: %d characters > %d max", n, MaxUsernameLength)
	}

	return trimmed, nil
}

// Page is a validated page request.
type Page struct {
	Limit  int
	Offset int
}

// ValidatePage converts a 1-based page number and page size into a limit and
// offset. A zero page or size falls back to the first page of defaultSize;
// sizes above maxSize are clamped.
func ValidatePage(page, perPage, defaultSize, maxSize int) (Page, error) {
	if page < 0 {
		return Page{}, fmt.Errorf("page cannot be negative")
	}
	if perPage < 0 {
		return Page{}, fmt.Errorf("page size cannot be negative")
	}

	if page == 0 {
		page = 1
	}
	if perPage == 0 {
		perPage = defaultSize
	}
	if perPage > maxSize {
		perPage = maxSize
	}

	return Page{Limit: perPage, Offset: (page - 1) * perPage}, nil
}
