package roles

import "strings"

// Role is a canonical editorial role identifier.
type Role string

const (
	Administrator Role = "administrator"
	Developer     Role = "developer"
	Editor        Role = "editor"
	Contributor   Role = "contributor"
	Viewer        Role = "viewer"
)

// priorityOrder ranks canonical roles from most to least privileged.
var priorityOrder = []Role{Administrator, Developer, Editor, Contributor, Viewer}

// aliases maps every recognized spelling (lowercased) to its canonical role.
var aliases = map[string]Role{
	"admin":         Administrator,
	"administrator": Administrator,
	"superadmin":    Administrator,
	"dev":           Developer,
	"developer":     Developer,
	"edit":          Editor,
	"editor":        Editor,
	"contrib":       Contributor,
	"contributor":   Contributor,
	"view":          Viewer,
	"viewer":        Viewer,
	"reader":        Viewer,
}

// Normalize maps a role spelling to its canonical identifier. Unknown
// spellings pass through lowercased, so the result is total and deterministic
// for any input, including empty and whitespace-only strings.
func Normalize(role string) string {
	lower := strings.ToLower(role)
	if canonical, ok := aliases[lower]; ok {
		return string(canonical)
	}
	return lower
}

// IsCanonical reports whether name (already normalized or not) is one of the
// fixed canonical roles.
func IsCanonical(name string) bool {
	_, ok := aliases[Normalize(name)]
	return ok
}

// Rank returns the privilege rank of a role, 0 being the most privileged.
// Unknown roles rank below every canonical role and equal to each other.
func Rank(name string) int {
	normalized := Normalize(name)
	for i, canonical := range priorityOrder {
		if normalized == string(canonical) {
			return i
		}
	}
	return len(priorityOrder)
}

// HighestPriority normalizes the given role names and returns the most
// privileged canonical role present. When no canonical role is present the
// first normalized entry is returned, preserving compatibility with callers
// that treat all-unknown role lists as "use whatever came first". The second
// return value is false only for an empty input.
func HighestPriority(roleNames []string) (string, bool) {
	if len(roleNames) == 0 {
		return "", false
	}

	normalized := make([]string, len(roleNames))
	for i, name := range roleNames {
		normalized[i] = Normalize(name)
	}

	for _, canonical := range priorityOrder {
		for _, name := range normalized {
			if name == string(canonical) {
				return name, true
			}
		}
	}

	return normalized[0], true
}
