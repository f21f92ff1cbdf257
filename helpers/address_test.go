package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "user@foobar.com", NormalizeAddress("User@Foobar.COM"))
	assert.Equal(t, "user@foobar.com", NormalizeAddress("  user@foobar.com\t"))
	assert.Equal(t, "", NormalizeAddress("   "))
}

func TestSplitAddress(t *testing.T) {
	local, domain := SplitAddress("college@example.com")
	assert.Equal(t, "college", local)
	assert.Equal(t, "example.com", domain)

	local, domain = SplitAddress("no-at-sign")
	assert.Equal(t, "no-at-sign", local)
	assert.Equal(t, "", domain)

	// Quoted local parts may themselves contain '@'; the split happens
	// on the last one.
	local, domain = SplitAddress(`"odd@local"@example.com`)
	assert.Equal(t, `"odd@local"`, local)
	assert.Equal(t, "example.com", domain)
}
