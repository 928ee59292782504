// Package validate implements the tool façade's input contract (C13):
// control-character stripping, tag alphanumerization, and the range/shape
// checks every RPC tool and resource endpoint applies before touching the
// memory engine. Violations are reported as apperr.InvalidParams so the
// façade can surface a human-readable "<path>: <message>" list without the
// engine itself knowing about transport codes.
package validate

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/memsvc/memory/internal/apperr"
)

// Limits mirrors the config-declared bounds that requests are checked
// against. Zero values fall back to the package defaults below.
type Limits struct {
	MaxContentBytes   int
	MaxTags           int
	MaxTagLength      int
	MaxUserContextLen int
}

// DefaultLimits matches the ambient Config defaults (§6.4).
func DefaultLimits() Limits {
	return Limits{
		MaxContentBytes:   1 << 20, // 1 MB
		MaxTags:           20,
		MaxTagLength:      50,
		MaxUserContextLen: 100,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxContentBytes <= 0 {
		l.MaxContentBytes = d.MaxContentBytes
	}
	if l.MaxTags <= 0 {
		l.MaxTags = d.MaxTags
	}
	if l.MaxTagLength <= 0 {
		l.MaxTagLength = d.MaxTagLength
	}
	if l.MaxUserContextLen <= 0 {
		l.MaxUserContextLen = d.MaxUserContextLen
	}
	return l
}

// tagCharRegex keeps only [A-Za-z0-9 _-]; everything else is dropped rather
// than rejected, matching the façade's "alphanumerize" wording.
var tagCharRegex = regexp.MustCompile(`[^A-Za-z0-9 _-]`)

// StripControlChars removes ASCII control characters 0x00-0x1F and 0x7F,
// preserving \n and \t.
func StripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r < 0x20 && r != '\n' && r != '\t') || r == 0x7F {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeTag alphanumerizes a single tag and truncates it to maxLen.
func SanitizeTag(tag string, maxLen int) string {
	tag = tagCharRegex.ReplaceAllString(strings.TrimSpace(tag), "")
	if maxLen > 0 && len(tag) > maxLen {
		tag = tag[:maxLen]
	}
	return tag
}

// Tags sanitizes every tag and enforces the count cap. Sanitization never
// rejects a tag (it rewrites disallowed characters away); the count is a
// hard boundary — one over the limit is rejected outright.
func Tags(tags []string, l Limits) ([]string, error) {
	l = l.withDefaults()
	if len(tags) > l.MaxTags {
		return nil, apperr.InvalidParamsf("tags: at most %d allowed, got %d", l.MaxTags, len(tags))
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = SanitizeTag(t, l.MaxTagLength)
		if t == "" {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Content canonicalizes content to JSON bytes and enforces the size cap.
func Content(content any, l Limits) ([]byte, error) {
	l = l.withDefaults()
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, apperr.InvalidParamsf("content: not serializable: %s", err)
	}
	if len(raw) > l.MaxContentBytes {
		return nil, apperr.InvalidParamsf("content: exceeds %d bytes, got %d", l.MaxContentBytes, len(raw))
	}
	return raw, nil
}

// UserContext strips control characters and enforces the length cap,
// defaulting to "default" when empty (the caller applies the default
// sentinel; this function only sanitizes and bounds what's given).
func UserContext(uc string, l Limits) (string, error) {
	l = l.withDefaults()
	uc = StripControlChars(strings.TrimSpace(uc))
	if len(uc) > l.MaxUserContextLen {
		return "", apperr.InvalidParamsf("user_context: exceeds %d characters", l.MaxUserContextLen)
	}
	return uc, nil
}

// Query enforces the ≤1000 character bound on free-text search queries.
func Query(q string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = 1000
	}
	q = StripControlChars(q)
	if q == "" {
		return "", apperr.InvalidParamsf("query: required")
	}
	if len(q) > maxLen {
		return "", apperr.InvalidParamsf("query: exceeds %d characters", maxLen)
	}
	return q, nil
}

// IntRange defaults n to def when zero, then rejects values outside [min, max].
func IntRange(path string, n, def, min, max int) (int, error) {
	if n == 0 {
		n = def
	}
	if n < min || n > max {
		return 0, apperr.InvalidParamsf("%s: must be between %d and %d, got %d", path, min, max, n)
	}
	return n, nil
}

// Offset rejects negative offsets; zero is the natural default.
func Offset(n int) (int, error) {
	if n < 0 {
		return 0, apperr.InvalidParamsf("offset: must be >= 0, got %d", n)
	}
	return n, nil
}

// Float01 defaults v to def when it is exactly zero, then rejects values
// outside [0, 1]. Used for confidence and strength, which both treat 0 as
// "not provided" per the tool catalog's stated defaults.
func Float01(path string, v, def float64) (float64, error) {
	if v == 0 {
		v = def
	}
	if v < 0 || v > 1 {
		return 0, apperr.InvalidParamsf("%s: must be between 0 and 1, got %v", path, v)
	}
	return v, nil
}

// Range01 rejects a value already known to be present (no default
// substitution) that falls outside [0, 1].
func Range01(path string, v float64) error {
	if v < 0 || v > 1 {
		return apperr.InvalidParamsf("%s: must be between 0 and 1, got %v", path, v)
	}
	return nil
}

// FloatRange defaults v to def when zero, then rejects values outside [min, max].
func FloatRange(path string, v, def, min, max float64) (float64, error) {
	if v == 0 {
		v = def
	}
	if v < min || v > max {
		return 0, apperr.InvalidParamsf("%s: must be between %v and %v, got %v", path, min, max, v)
	}
	return v, nil
}

// UUID rejects strings that aren't valid UUIDs.
func UUID(path, s string) error {
	if _, err := uuid.Parse(s); err != nil {
		return apperr.InvalidParamsf("%s: not a valid uuid", path)
	}
	return nil
}

// Required rejects an empty string.
func Required(path, s string) error {
	if strings.TrimSpace(s) == "" {
		return apperr.InvalidParamsf("%s: required", path)
	}
	return nil
}

const maxSanitizedErrorLen = 500

// SanitizeErrorMessage prepares an error string for storage in a memory's
// metadata.*Error field: control characters are stripped, single quotes are
// doubled (defense in depth for any code path that interpolates this value
// into SQL rather than binding it as a parameter), and the result is capped
// at 500 characters so a runaway error message can't bloat a metadata row.
func SanitizeErrorMessage(msg string) string {
	msg = StripControlChars(msg)
	msg = strings.ReplaceAll(msg, "'", "''")
	if len(msg) > maxSanitizedErrorLen {
		msg = msg[:maxSanitizedErrorLen]
	}
	return msg
}
