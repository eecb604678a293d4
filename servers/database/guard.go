package database

import (
	"fmt"
	"regexp"
	"strings"
)

// Guard enforces the read-only query policy and the row-count ceiling. It
// inspects SQL text only; it never touches the database, so rejection happens
// before any connection is leased.
type Guard struct {
	// MaxQueryLength rejects statements longer than this many bytes.
	MaxQueryLength int

	// DefaultRowLimit is applied when the caller requests no limit.
	DefaultRowLimit int

	// MaxRowLimit caps the rows any single call may return. Requests above
	// it are clamped, not rejected.
	MaxRowLimit int
}

// NewGuard returns a Guard with the standard policy limits.
func NewGuard() Guard {
	return Guard{
		MaxQueryLength:  10000,
		DefaultRowLimit: 100,
		MaxRowLimit:     1000,
	}
}

var leadingKeyword = regexp.MustCompile(`^[A-Za-z]+`)

// forbiddenKeyword matches mutating or schema-touching keywords on word
// boundaries, so identifiers like updated_at pass.
var forbiddenKeyword = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|TRUNCATE|REPLACE|ATTACH|DETACH|PRAGMA|VACUUM|REINDEX|GRANT|REVOKE)\b`)

// Validate accepts raw SQL only when it is a single read statement: it must
// start with SELECT or WITH and contain no forbidden keyword anywhere.
// Rejection reasons name the policy violated, never the engine's opinion.
func (g Guard) Validate(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return rejectedQuery("empty statement")
	}
	if g.MaxQueryLength > 0 && len(trimmed) > g.MaxQueryLength {
		return rejectedQuery(fmt.Sprintf("statement exceeds %d bytes", g.MaxQueryLength))
	}

	keyword := strings.ToUpper(leadingKeyword.FindString(trimmed))
	if keyword != "SELECT" && keyword != "WITH" {
		return rejectedQuery("only SELECT statements are allowed")
	}

	if match := forbiddenKeyword.FindString(trimmed); match != "" {
		return rejectedQuery(fmt.Sprintf("forbidden keyword: %s", strings.ToUpper(match)))
	}

	if body := strings.TrimRight(trimmed, "; \t\r\n"); strings.Contains(body, ";") {
		return rejectedQuery("multiple statements are not allowed")
	}

	return nil
}

// ClampLimit resolves a requested row limit against the policy. A request of
// zero or less takes the default; a request above the ceiling is clamped.
// The second result reports whether clamping occurred.
func (g Guard) ClampLimit(requested int) (int, bool) {
	if requested <= 0 {
		return g.DefaultRowLimit, false
	}
	if requested > g.MaxRowLimit {
		return g.MaxRowLimit, true
	}
	return requested, false
}
