package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/devicewatch/internal/domain/user"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBObserver records latency and error class per logical operation.
type DBObserver interface {
	ObserveDB(op string, fn func() error) error
}

type UsersRepo struct {
	pool *pgxpool.Pool
	obs  DBObserver
}

func NewUsersRepo(pool *pgxpool.Pool, obs DBObserver) *UsersRepo {
	return &UsersRepo{pool: pool, obs: obs}
}

const userColumns = `id, email, password_hash, name, role, reset_token, reset_token_expiry, created_at, updated_at`

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.obs == nil {
		return fn()
	}
	return r.obs.ObserveDB(op, fn)
}

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Name,
		&u.Role,
		&u.ResetToken,
		&u.ResetTokenExpiry,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}

		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_email", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+`
			FROM users
			WHERE email = $1`,
			email,
		))
		return err
	})

	return u, err
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_id", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+`
			FROM users
			WHERE id = $1`,
			id,
		))
		return err
	})

	return u, err
}

func (r *UsersRepo) GetByResetToken(ctx context.Context, tokenHash string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_reset_token", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+`
			FROM users
			WHERE reset_token = $1`,
			tokenHash,
		))
		return err
	})

	return u, err
}

func (r *UsersRepo) Create(ctx context.Context, nu user.NewUser) (user.User, error) {
	var u user.User

	err := r.observe("users.create", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx,
			`INSERT INTO users (email, password_hash, name, role)
			VALUES ($1, $2, $3, $4)
			RETURNING `+userColumns,
			nu.Email, nu.PasswordHash, nu.Name, nu.Role,
		))
		return err
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	return r.observe("users.set_reset_token", func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE users
			SET reset_token = $2, reset_token_expiry = $3, updated_at = NOW()
			WHERE id = $1
		`, userID, tokenHash, expiresAt)

		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return user.ErrNotFound
		}
		return nil
	})
}

func (r *UsersRepo) ClearResetToken(ctx context.Context, userID string) error {
	return r.observe("users.clear_reset_token", func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE users
			SET reset_token = NULL, reset_token_expiry = NULL, updated_at = NOW()
			WHERE id = $1
		`, userID)

		return err
	})
}

// CompletePasswordReset is conditional on the token so only one of two
// concurrent resets with the same token can win.
func (r *UsersRepo) CompletePasswordReset(ctx context.Context, userID, tokenHash, passwordHash string) error {
	return r.observe("users.complete_password_reset", func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE users
			SET password_hash = $3, reset_token = NULL, reset_token_expiry = NULL, updated_at = NOW()
			WHERE id = $1 AND reset_token = $2
		`, userID, tokenHash, passwordHash)

		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return user.ErrNotFound
		}
		return nil
	})
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
