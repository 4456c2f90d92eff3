// Package roles maps the role spellings found in CMS user documents onto a
// fixed set of canonical editorial roles and ranks them by privilege.
package roles
