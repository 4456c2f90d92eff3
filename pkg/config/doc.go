// Package config resolves the auth bridge configuration from four tiers in
// ascending precedence: compiled defaults, an optional local overrides file,
// environment variables, and an optional remote feature store. The merged
// result is an immutable snapshot; a failed remote fetch degrades to the
// lower tiers and never surfaces to callers.
package config
