package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"stock-alerts/internal/model"
)

const (
	// the no-op update makes RETURNING yield the existing row on conflict
	ensureUserSQL = `INSERT INTO users (phone_number)
    VALUES ($1)
    ON CONFLICT (phone_number) DO UPDATE
    SET phone_number = EXCLUDED.phone_number
    RETURNING id, phone_number, is_active, created_at;`

	findUserByPhoneSQL = `SELECT id, phone_number, is_active, created_at
    FROM users
    WHERE phone_number = $1;`
)

// EnsureUser returns the user for phone, creating it on first contact.
func (s *Store) EnsureUser(ctx context.Context, phone string) (model.User, error) {
	pool, err := s.getPool()
	if err != nil {
		return model.User{}, err
	}
	var user model.User
	if err := pool.QueryRow(ctx, ensureUserSQL, phone).Scan(&user.ID, &user.PhoneNumber, &user.Active, &user.CreatedAt); err != nil {
		return model.User{}, fmt.Errorf("ensure user: %w", err)
	}
	return user, nil
}

// FindUserByPhone returns ErrNotFound for unknown numbers.
func (s *Store) FindUserByPhone(ctx context.Context, phone string) (model.User, error) {
	pool, err := s.getPool()
	if err != nil {
		return model.User{}, err
	}
	var user model.User
	err = pool.QueryRow(ctx, findUserByPhoneSQL, phone).Scan(&user.ID, &user.PhoneNumber, &user.Active, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}
