package vector

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// TenantKey identifies one isolated vector collection. It is derived from
// the owning user and an optional scope (a notebook id, or empty for the
// user's global knowledge base).
//
// TenantKey is a value object: construct it through NewTenantKey so the
// invariants hold, and derive storage identifiers only through
// CollectionName. Ad-hoc string concatenation of owner and scope is
// exactly the collision/injection bug this type exists to prevent.
type TenantKey struct {
	ownerID string
	scopeID string
}

// NewTenantKey validates and builds a TenantKey. ownerID is required;
// scopeID may be empty for the owner's global collection.
func NewTenantKey(ownerID, scopeID string) (TenantKey, error) {
	ownerID = strings.TrimSpace(ownerID)
	scopeID = strings.TrimSpace(scopeID)
	if ownerID == "" {
		return TenantKey{}, fmt.Errorf("owner ID is required")
	}
	if strings.ContainsRune(ownerID, 0) || strings.ContainsRune(scopeID, 0) {
		return TenantKey{}, fmt.Errorf("tenant key components must not contain NUL bytes")
	}
	return TenantKey{ownerID: ownerID, scopeID: scopeID}, nil
}

// OwnerID returns the owning user id.
func (k TenantKey) OwnerID() string { return k.ownerID }

// ScopeID returns the scope id, or "" for the owner's global collection.
func (k TenantKey) ScopeID() string { return k.scopeID }

// IsZero reports whether the key was not built via NewTenantKey.
func (k TenantKey) IsZero() bool { return k.ownerID == "" }

// Canonical returns the single canonical string form of the key. Two keys
// are the same tenant iff their canonical forms are equal.
func (k TenantKey) Canonical() string {
	if k.scopeID == "" {
		return k.ownerID
	}
	// The separator cannot appear in a raw id ambiguously because the
	// canonical form is only ever hashed, never parsed back.
	return k.ownerID + "\x1f" + k.scopeID
}

// CollectionName returns the Postgres identifier for the tenant's
// collection table. Hashing keeps arbitrary owner/scope ids out of SQL
// identifiers and makes distinct tenants collision-free.
func (k TenantKey) CollectionName() string {
	sum := sha256.Sum256([]byte(k.Canonical()))
	return "vectors_" + hex.EncodeToString(sum[:8])
}

// String implements fmt.Stringer for logging.
func (k TenantKey) String() string {
	if k.scopeID == "" {
		return k.ownerID
	}
	return k.ownerID + "/" + k.scopeID
}
