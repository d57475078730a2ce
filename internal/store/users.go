package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"grocery-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetUserByID retrieves a user profile
func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUsersByIDs retrieves multiple user profiles
func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM users WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}

	var users []models.User
	err = s.db.SelectContext(ctx, &users, s.db.Rebind(query), args...)
	return users, err
}

// CreateUser inserts a user profile
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	err := s.db.GetContext(ctx, &user.CreatedAt, `
		INSERT INTO users (id, name, email, phone, address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		user.ID, user.Name, user.Email, user.Phone, user.Address)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: user %s already exists", models.ErrConflict, user.Email)
	}
	return err
}

// DeleteAllUsers removes every user profile
func (s *Store) DeleteAllUsers(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM users")
	return err
}
