package enrich

import (
	"regexp"
	"strings"
)

// emailPattern matches a standard email grammar. Obfuscation variants
// (" at " for "@") are deliberately not handled.
var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// artifactSuffixes flags addresses that are really asset filenames misparsed
// as emails (e.g. "hero@2x.png" style srcset artifacts).
var artifactSuffixes = []string{
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".ico",
	".css", ".js", ".woff", ".woff2", ".ttf", ".eot",
}

// ExtractEmails returns the deduplicated, order-stable email addresses found
// in text. Deduplication is case-insensitive on the domain portion; the local
// part of the first occurrence is preserved. Deterministic for identical
// input.
func ExtractEmails(text string) []string {
	matches := emailPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		email := NormalizeEmail(m)
		if isArtifact(email) {
			continue
		}
		key := dedupeKey(email)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, email)
	}
	return out
}

// NormalizeEmail lowercases the domain portion, leaving the local part as
// found. Mail routing is domain-case-insensitive; local parts are not.
func NormalizeEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return email
	}
	return email[:at+1] + strings.ToLower(email[at+1:])
}

func dedupeKey(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return strings.ToLower(email)
	}
	return email[:at+1] + strings.ToLower(email[at+1:])
}

func isArtifact(email string) bool {
	lower := strings.ToLower(email)
	for _, suffix := range artifactSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// EmailSet accumulates candidates for one record up to a cap. Once full,
// further adds are rejected and the truncation flag is set so extraction can
// stop early.
type EmailSet struct {
	max       int
	seen      map[string]struct{}
	emails    []EmailCandidate
	truncated bool
}

// NewEmailSet builds a set capped at max candidates.
func NewEmailSet(max int) *EmailSet {
	return &EmailSet{
		max:  max,
		seen: make(map[string]struct{}),
	}
}

// Add records a candidate unless it duplicates a prior address or the cap is
// reached. It reports whether the candidate was kept.
func (s *EmailSet) Add(c EmailCandidate) bool {
	c.Email = NormalizeEmail(c.Email)
	key := dedupeKey(c.Email)
	if _, dup := s.seen[key]; dup {
		return false
	}
	if len(s.emails) >= s.max {
		s.truncated = true
		return false
	}
	s.seen[key] = struct{}{}
	s.emails = append(s.emails, c)
	return true
}

// Full reports whether the cap has been reached.
func (s *EmailSet) Full() bool { return len(s.emails) >= s.max }

// Truncated reports whether any candidate was dropped for the cap.
func (s *EmailSet) Truncated() bool { return s.truncated }

// Emails returns the accumulated candidates in insertion order.
func (s *EmailSet) Emails() []EmailCandidate { return s.emails }
