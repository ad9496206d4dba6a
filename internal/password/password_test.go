package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)

	ok, err := Verify(hash, "s3cret-pass")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify(hash, "wrong-pass")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyMalformedHash(t *testing.T) {
	ok, err := Verify("not-a-bcrypt-hash", "whatever")
	assert.Error(t, err)
	assert.False(t, ok)
}
