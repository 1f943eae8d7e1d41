package enrich

import (
	"regexp"
	"strings"
)

// ownerSeparators splits compound owner cells like "J SMITH & M SMITH".
var ownerSeparators = regexp.MustCompile(`[&/;,]+`)

// PlanQueries derives the ordered search queries for one record. It is pure:
// no I/O, no state, and an empty plan is a normal "nothing to search" result,
// never an error.
//
// Corporate records yield no person-name queries; trust entities are skipped
// because searching a trust name never surfaces a personal contact.
func PlanQueries(rec OwnerRecord) []string {
	if rec.Corporate {
		return nil
	}
	seen := make(map[string]struct{})
	var queries []string
	for _, field := range rec.Owners {
		for _, part := range ownerSeparators.Split(field, -1) {
			name := strings.TrimSpace(part)
			if name == "" {
				continue
			}
			if strings.Contains(strings.ToLower(name), "trust") {
				continue
			}
			key := strings.ToLower(name)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			queries = append(queries, name)
		}
	}
	return queries
}
