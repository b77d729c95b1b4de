package repository

import (
	"context"
	"errors"

	"github.com/NdodaEnde/Telehealth-sub000/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query, user.ID, user.Email, user.PasswordHash, user.Role).
		Scan(&user.CreatedAt, &user.UpdatedAt)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, role, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	var user models.User
	err := r.db.QueryRow(ctx, query, email).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var user models.User
	err := r.db.QueryRow(ctx, query, id).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO profiles (user_id, first_name, last_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name
	`, profile.UserID, profile.FirstName, profile.LastName)
	return err
}

func (r *UserRepository) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	query := `
		SELECT user_id, first_name, last_name
		FROM profiles
		WHERE user_id = $1
	`
	var profile models.Profile
	err := r.db.QueryRow(ctx, query, userID).
		Scan(&profile.UserID, &profile.FirstName, &profile.LastName)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// DisplayName resolves a user's display name from their profile, falling back
// to a generic label when no profile row exists yet.
func (r *UserRepository) DisplayName(ctx context.Context, userID string) (string, error) {
	profile, err := r.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "Unknown User", nil
		}
		return "", err
	}
	return profile.DisplayName(), nil
}
