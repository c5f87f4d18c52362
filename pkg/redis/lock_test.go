package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairKey(t *testing.T) {
	key := PairKey("tenant-1", "actor-b", "actor-a")
	assert.Equal(t, "merge:tenant-1:actor-a:actor-b", key)

	// Both orderings contend on the same lock
	assert.Equal(t, key, PairKey("tenant-1", "actor-a", "actor-b"))

	// Different tenants never contend
	assert.NotEqual(t, key, PairKey("tenant-2", "actor-a", "actor-b"))
}
