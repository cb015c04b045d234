package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsers_SetAndCheckPassword(t *testing.T) {
	ctx := context.Background()
	u, err := NewUsers(ctx, newTestDB(t))
	require.NoError(t, err)

	require.NoError(t, u.SetPassword(ctx, 1, "admin", "s3cret"))

	ok, err := u.CheckPassword(ctx, 1, "s3cret")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = u.CheckPassword(ctx, 1, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = u.CheckPassword(ctx, 999, "s3cret")
	require.NoError(t, err)
	assert.False(t, ok, "unknown user")

	// password reset replaces the hash
	require.NoError(t, u.SetPassword(ctx, 1, "admin", "newpass"))
	ok, err = u.CheckPassword(ctx, 1, "s3cret")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = u.CheckPassword(ctx, 1, "newpass")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHashPassword_SaltedFormat(t *testing.T) {
	h1, err := hashPassword("pass")
	require.NoError(t, err)
	h2, err := hashPassword("pass")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2, "random salt")
	assert.True(t, strings.Contains(h1, ":"))
	assert.True(t, verifyPassword(h1, "pass"))
	assert.False(t, verifyPassword(h1, "other"))
	assert.False(t, verifyPassword("garbage", "pass"))
}

func TestCollected_AddAndCount(t *testing.T) {
	ctx := context.Background()
	c, err := NewCollected(ctx, newTestDB(t))
	require.NoError(t, err)

	count, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, c.Add(ctx, 1, "u1", "first"))
	require.NoError(t, c.Add(ctx, 2, "u2", "second"))

	count, err = c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
