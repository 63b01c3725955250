package memory

import (
	"context"
	"testing"
	"time"

	"github.com/geocoder89/devicewatch/internal/domain/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsersRepo_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	r := NewUsersRepo()

	u, err := r.Create(ctx, user.NewUser{Email: "a@example.com", PasswordHash: "h", Name: "A", Role: user.RoleUser})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)

	_, err = r.Create(ctx, user.NewUser{Email: "a@example.com"})
	assert.ErrorIs(t, err, user.ErrEmailTaken)

	got, err := r.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	// exact match only
	_, err = r.GetByEmail(ctx, "A@example.com")
	assert.ErrorIs(t, err, user.ErrNotFound)

	_, err = r.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestUsersRepo_ResetTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	r := NewUsersRepo()

	u, err := r.Create(ctx, user.NewUser{Email: "b@example.com", PasswordHash: "old", Role: user.RoleUser})
	require.NoError(t, err)

	exp := time.Now().Add(time.Hour)
	require.NoError(t, r.SetResetToken(ctx, u.ID, "digest", exp))

	got, err := r.GetByResetToken(ctx, "digest")
	require.NoError(t, err)
	require.NotNil(t, got.ResetToken)
	require.NotNil(t, got.ResetTokenExpiry)

	require.NoError(t, r.CompletePasswordReset(ctx, u.ID, "digest", "new"))

	got, err = r.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.PasswordHash)
	assert.Nil(t, got.ResetToken)
	assert.Nil(t, got.ResetTokenExpiry)

	// second use loses
	assert.ErrorIs(t, r.CompletePasswordReset(ctx, u.ID, "digest", "again"), user.ErrNotFound)
	_, err = r.GetByResetToken(ctx, "digest")
	assert.ErrorIs(t, err, user.ErrNotFound)
}
