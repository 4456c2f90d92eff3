package roles

import (
	"encoding/json"
	"strings"
)

// User is the slice of a CMS user document this package cares about. The
// Roles field is kept raw because deployments disagree on its shape: some
// send a comma-separated string, some an array of strings, some an array of
// membership objects carrying a "name" field, and some omit it entirely.
type User struct {
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Email string          `json:"email,omitempty"`
	Roles json.RawMessage `json:"roles,omitempty"`
}

// roleEntry is the tagged result of parsing one element of a roles payload.
type roleEntry struct {
	name string
	ok   bool
}

var skipEntry = roleEntry{}

// parseEntry classifies one array element: a non-empty string, an object
// with a usable non-empty "name" field, or anything else (skipped).
func parseEntry(raw json.RawMessage) roleEntry {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return skipEntry
		}
		return roleEntry{name: s, ok: true}
	}

	var named struct {
		Name *string `json:"name"`
	}
	if err := json.Unmarshal(raw, &named); err == nil && named.Name != nil && *named.Name != "" {
		return roleEntry{name: *named.Name, ok: true}
	}

	return skipEntry
}

// ExtractFromUser returns the normalized role names carried by a user
// document. The input is never mutated and the result is recomputed fresh on
// every call.
//
// A missing or null roles field yields an empty slice. A comma-separated
// string is split, trimmed and normalized with order preserved and no
// deduplication. An array is filtered down to its usable entries (plain
// strings and objects with a non-empty name), normalized, and deduplicated
// in first-occurrence order.
func ExtractFromUser(user *User) []string {
	if user == nil || len(user.Roles) == 0 {
		return []string{}
	}

	raw := user.Roles
	if string(raw) == "null" {
		return []string{}
	}

	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		return splitRoleString(joined)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return []string{}
	}

	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		parsed := parseEntry(entry)
		if !parsed.ok {
			continue
		}
		normalized := Normalize(parsed.name)
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

func splitRoleString(joined string) []string {
	segments := strings.Split(joined, ",")
	out := make([]string, 0, len(segments))
	for _, segment := range segments {
		trimmed := strings.TrimSpace(segment)
		if trimmed == "" {
			continue
		}
		out = append(out, Normalize(trimmed))
	}
	return out
}
