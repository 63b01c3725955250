package db

import (
	"context"
	"errors"

	"github.com/geocoder89/devicewatch/internal/domain/user"
	"github.com/geocoder89/devicewatch/internal/security"
)

type AdminStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, nu user.NewUser) (user.User, error)
}

type AdminSeed struct {
	Email    string
	Password string
	Name     string
}

// EnsureAdminUser creates the ADMIN account once. It is a no-op when the
// seed is empty or the email already exists.
func EnsureAdminUser(ctx context.Context, store AdminStore, seed AdminSeed) (bool, error) {
	if seed.Email == "" || seed.Password == "" {
		return false, nil
	}

	// check if the user exists

	_, err := store.GetByEmail(ctx, seed.Email)

	if err == nil {
		return false, nil
	}

	if !errors.Is(err, user.ErrNotFound) {
		return false, err
	}

	hash, err := security.HashPassword(seed.Password)

	if err != nil {
		return false, err
	}

	_, err = store.Create(ctx, user.NewUser{
		Email:        seed.Email,
		PasswordHash: hash,
		Name:         seed.Name,
		Role:         user.RoleAdmin,
	})

	if errors.Is(err, user.ErrEmailTaken) {
		return false, nil
	}

	return err == nil, err
}
