package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheck(t *testing.T) {
	t.Parallel()

	h, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", h)

	assert.True(t, CheckPassword(h, "correct horse"))
	assert.False(t, CheckPassword(h, "battery staple"))
	assert.False(t, CheckPassword("not-a-hash", "correct horse"))
}
