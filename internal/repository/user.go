package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cradoe/kudi/internal/models"
	"github.com/jmoiron/sqlx"
)

type UserRepository interface {
	Insert(user *models.User, tx *sqlx.Tx) (int64, error)
	GetOne(id int64) (*models.User, bool, error)
	GetByEmail(email string) (*models.User, bool, error)
	CheckIfUsernameExist(username string) (bool, error)
	UpdateProfile(id int64, patch *ProfilePatch) error
	UpdatePassword(id int64, password string) error
	Delete(id int64, tx *sqlx.Tx) error
}

// ProfilePatch enumerates the optional profile fields. Each nil field
// is left untouched; set fields are applied individually so we never
// assemble SQL fragments from request input.
type ProfilePatch struct {
	Username       *string
	Email          *string
	HashedPassword *string
}

func (p *ProfilePatch) IsEmpty() bool {
	return p.Username == nil && p.Email == nil && p.HashedPassword == nil
}

type UserRepositoryImpl struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &UserRepositoryImpl{db: db}
}

func (repo *UserRepositoryImpl) Insert(user *models.User, tx *sqlx.Tx) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var id int64
	query := `
		INSERT INTO users (username, email, hashed_password)
		VALUES ($1, $2, $3)
		RETURNING id`

	if tx != nil {
		err := tx.QueryRowContext(ctx, query,
			user.Username,
			user.Email,
			user.HashedPassword,
		).Scan(&id)
		if err != nil {
			return 0, err
		}
	} else {
		err := repo.db.GetContext(ctx, &id, query,
			user.Username,
			user.Email,
			user.HashedPassword,
		)
		if err != nil {
			return 0, err
		}
	}

	return id, nil
}

func (repo *UserRepositoryImpl) GetOne(id int64) (*models.User, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var user models.User

	query := `SELECT * FROM users WHERE id = $1`

	err := repo.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	return &user, true, err
}

// GetByEmail matches the email exactly, same as the unique
// constraint on the users table.
func (repo *UserRepositoryImpl) GetByEmail(email string) (*models.User, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var user models.User

	query := `SELECT * FROM users WHERE email = $1`

	err := repo.db.GetContext(ctx, &user, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	return &user, true, err
}

func (repo *UserRepositoryImpl) CheckIfUsernameExist(username string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var exists bool

	query := `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`

	err := repo.db.GetContext(ctx, &exists, query, username)
	if err != nil {
		return false, err
	}

	return exists, nil
}

func (repo *UserRepositoryImpl) UpdateProfile(id int64, patch *ProfilePatch) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		UPDATE users SET
			username = COALESCE($1, username),
			email = COALESCE($2, email),
			hashed_password = COALESCE($3, hashed_password)
		WHERE id = $4`

	_, err := repo.db.ExecContext(ctx, query,
		patch.Username,
		patch.Email,
		patch.HashedPassword,
		id,
	)
	return err
}

func (repo *UserRepositoryImpl) UpdatePassword(id int64, password string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `UPDATE users SET hashed_password = $1 WHERE id = $2`

	_, err := repo.db.ExecContext(ctx, query, password, id)
	if err != nil {
		return err
	}

	return nil
}

func (repo *UserRepositoryImpl) Delete(id int64, tx *sqlx.Tx) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `DELETE FROM users WHERE id = $1`

	if tx != nil {
		_, err := tx.ExecContext(ctx, query, id)
		return err
	}

	_, err := repo.db.ExecContext(ctx, query, id)
	return err
}
