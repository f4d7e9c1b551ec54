// Package storecommon provides the shared tenant identity types and the
// request-scoped resolution context for the store service.
package storecommon

import (
	"regexp"
	"strings"
)

const (
	ServerVersion = "0.1.0"
	ApiVersion    = "v1"
)

// TenantKey is the human-assigned, immutable identity of a store.
type TenantKey string

func (k TenantKey) String() string {
	return string(k)
}

// TenantStatus is the lifecycle status of a store. Transitions are forward
// only; FAILED and SUSPENDED are reachable from any non-terminal state.
type TenantStatus string

const (
	StatusPending      TenantStatus = "PENDING"
	StatusCreating     TenantStatus = "CREATING"
	StatusProvisioning TenantStatus = "PROVISIONING"
	StatusActive       TenantStatus = "ACTIVE"
	StatusSuspended    TenantStatus = "SUSPENDED"
	StatusFailed       TenantStatus = "FAILED"
)

// statusRank orders the forward path. Terminal states have no rank.
var statusRank = map[TenantStatus]int{
	StatusPending:      0,
	StatusCreating:     1,
	StatusProvisioning: 2,
	StatusActive:       3,
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s TenantStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusSuspended
}

// Valid reports whether s is a known status.
func (s TenantStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCreating, StatusProvisioning, StatusActive, StatusSuspended, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the transition s -> next is allowed:
// strictly forward along the provisioning path, or into a terminal state
// from any non-terminal state.
func (s TenantStatus) CanTransitionTo(next TenantStatus) bool {
	if !s.Valid() || !next.Valid() || s.IsTerminal() {
		return false
	}
	if next.IsTerminal() {
		return true
	}
	return statusRank[next] > statusRank[s]
}

// SchemaNamePrefix namespaces tenant schemas so they cannot collide with
// non-tenant schemas in the same database.
const SchemaNamePrefix = "store_"

// validSchemaName is the safe character set for schema identifiers. Schema
// names are interpolated into DDL and cannot be parameterized, so anything
// outside this pattern is rejected outright.
var validSchemaName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

var nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)

// DeriveSchemaName maps a tenant key to its schema name: lower-cased,
// non-alphanumeric runs collapsed to a single underscore, prefixed with
// SchemaNamePrefix. Deterministic, so the same key always yields the same
// name. The result is persisted at provisioning time and never recomputed
// against a possibly-changed key afterwards.
func DeriveSchemaName(key TenantKey) string {
	s := strings.ToLower(string(key))
	s = nonAlnumRun.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	return SchemaNamePrefix + s
}

// ValidSchemaName reports whether name is a safe schema identifier bearing
// the tenant prefix.
func ValidSchemaName(name string) bool {
	return strings.HasPrefix(name, SchemaNamePrefix) && validSchemaName.MatchString(name)
}
