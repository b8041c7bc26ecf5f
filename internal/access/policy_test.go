package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPurpose: Validates the visibility predicate: shared datasets (nil
// owner) are visible to everyone, owned datasets only to their owner.
// Scope: Unit Test
// Security: Multi-tenant boundary enforcement
// Expected: Visible(owner, tenant) holds iff owner is nil or equals tenant.
// Test Case ID: ACC-01
func TestAccess_Visible(t *testing.T) {
	ownerA := "tenant-a"

	assert.True(t, Visible(nil, "tenant-a"), "shared dataset visible to any tenant")
	assert.True(t, Visible(nil, "tenant-b"))
	assert.True(t, Visible(&ownerA, "tenant-a"), "owner sees own dataset")
	assert.False(t, Visible(&ownerA, "tenant-b"), "other tenants must not see it")
	assert.False(t, Visible(&ownerA, ""), "anonymous context sees nothing owned")
}

// TestPurpose: Validates the ownership predicate used for mutation gating.
// Scope: Unit Test
// Security: Write-path isolation
// Expected: Owns is false for shared datasets and non-owners.
// Test Case ID: ACC-02
func TestAccess_Owns(t *testing.T) {
	ownerA := "tenant-a"

	assert.True(t, Owns(&ownerA, "tenant-a"))
	assert.False(t, Owns(&ownerA, "tenant-b"))
	assert.False(t, Owns(nil, "tenant-a"), "nobody owns a shared dataset")
}
