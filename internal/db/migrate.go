package db

import (
	"context"
	"fmt"

	"github.com/geocoder89/devicewatch/internal/db/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrate applies the embedded goose migrations through the pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)

	err := goose.SetDialect("postgres")

	if err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}

	err = goose.UpContext(ctx, sqlDB, ".")

	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}
