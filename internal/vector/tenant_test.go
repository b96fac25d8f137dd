package vector

import (
	"strings"
	"testing"
)

func TestNewTenantKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		owner   string
		scope   string
		wantErr bool
	}{
		{name: "owner only", owner: "user-1"},
		{name: "owner and scope", owner: "user-1", scope: "notebook-7"},
		{name: "empty owner", owner: "", wantErr: true},
		{name: "whitespace owner", owner: "   ", wantErr: true},
		{name: "NUL in owner", owner: "user\x00", wantErr: true},
		{name: "NUL in scope", owner: "user-1", scope: "nb\x00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewTenantKey(tt.owner, tt.scope)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewTenantKey(%q, %q) error = %v, wantErr %v", tt.owner, tt.scope, err, tt.wantErr)
			}
		})
	}
}

func TestTenantKey_Canonical(t *testing.T) {
	t.Parallel()

	// Distinct (owner, scope) pairs must never collide, even when naive
	// concatenation would.
	a, _ := NewTenantKey("user", "1x")
	b, _ := NewTenantKey("user1", "x")
	if a.Canonical() == b.Canonical() {
		t.Error("distinct tenants share a canonical form")
	}

	// Same inputs produce the same canonical form.
	c, _ := NewTenantKey("user", "1x")
	if a.Canonical() != c.Canonical() {
		t.Error("canonical form is not deterministic")
	}

	global, _ := NewTenantKey("user", "")
	scoped, _ := NewTenantKey("user", "nb")
	if global.Canonical() == scoped.Canonical() {
		t.Error("global and scoped collections collide")
	}
}

func TestTenantKey_CollectionName(t *testing.T) {
	t.Parallel()

	// Hostile ids must not leak into the SQL identifier.
	k, err := NewTenantKey("user; DROP TABLE students--", "nb")
	if err != nil {
		t.Fatalf("NewTenantKey() error: %v", err)
	}
	name := k.CollectionName()
	if !strings.HasPrefix(name, "vectors_") {
		t.Errorf("CollectionName() = %q, want vectors_ prefix", name)
	}
	for _, r := range strings.TrimPrefix(name, "vectors_") {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			t.Errorf("CollectionName() = %q contains non-hex character %q", name, r)
		}
	}

	k2, _ := NewTenantKey("other-user", "nb")
	if k.CollectionName() == k2.CollectionName() {
		t.Error("distinct tenants map to the same collection")
	}
}

func TestTenantKey_IsZero(t *testing.T) {
	t.Parallel()

	var zero TenantKey
	if !zero.IsZero() {
		t.Error("zero value should report IsZero")
	}
	k, _ := NewTenantKey("user", "")
	if k.IsZero() {
		t.Error("constructed key should not report IsZero")
	}
}
