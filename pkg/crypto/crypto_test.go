package crypto

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("parola123")
	require.NoError(t, err)
	assert.NotEqual(t, "parola123", hash)
	assert.True(t, VerifyPassword("parola123", hash))
	assert.False(t, VerifyPassword("parola124", hash))
	assert.False(t, VerifyPassword("parola123", "not-a-hash"))

	_, err = HashPassword("abc")
	assert.Error(t, err)
}

func TestRandomHex(t *testing.T) {
	s, err := RandomHex(4)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]{8}$`), s)

	other, err := RandomHex(4)
	require.NoError(t, err)
	assert.NotEqual(t, s, other)
}
