package observability

import "fmt"

// RedactToken describes a session token for logs without revealing it.
func RedactToken(token string) string {
	return fmt.Sprintf("token(len=%d)", len(token))
}

// RedactRoles describes a role list for logs. In production only the count
// is emitted; elsewhere the role names are allowed through for debugging.
func RedactRoles(roleNames []string, production bool) string {
	if production {
		return fmt.Sprintf("roles(count=%d)", len(roleNames))
	}
	return fmt.Sprintf("%v", roleNames)
}

// RedactEmail masks the local part of an email address, keeping the domain
// so log lines stay attributable to a tenant without carrying PII.
func RedactEmail(email string) string {
	for i, r := range email {
		if r == '@' {
			return "***" + email[i:]
		}
	}
	if email == "" {
		return ""
	}
	return "***"
}
