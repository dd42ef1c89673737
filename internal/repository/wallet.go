package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cradoe/kudi/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrWalletInUse is returned when a wallet cannot be deleted because
// transaction history still references it.
var ErrWalletInUse = errors.New("wallet is referenced by transaction history")

type WalletRepository interface {
	Insert(wallet *models.Wallet, tx *sqlx.Tx) (int64, error)
	GetOwned(id, ownerID int64) (*models.Wallet, bool, error)
	GetOne(id int64) (*models.Wallet, bool, error)
	GetAllByUserID(userID int64) ([]models.Wallet, error)
	OldestForUser(userID int64) (*models.Wallet, bool, error)
	LockForUpdate(tx *sqlx.Tx, id int64) (*models.Wallet, bool, error)
	AdjustBalance(tx *sqlx.Tx, id int64, delta int64) (bool, error)
	UpdateName(id, ownerID int64, name string) (bool, error)
	Delete(id int64) error
	DeleteAllForUser(userID int64, tx *sqlx.Tx) error
}

type WalletRepositoryImpl struct {
	db *sqlx.DB
}

func NewWalletRepository(db *sqlx.DB) WalletRepository {
	return &WalletRepositoryImpl{db: db}
}

func (repo *WalletRepositoryImpl) Insert(wallet *models.Wallet, tx *sqlx.Tx) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var id int64

	query := `
		INSERT INTO wallets (user_id, name)
		VALUES ($1, $2)
		RETURNING id`
	if tx != nil {
		err := tx.QueryRowContext(ctx, query,
			wallet.UserID,
			wallet.Name,
		).Scan(&id)
		if err != nil {
			return 0, err
		}
	} else {
		err := repo.db.GetContext(ctx, &id, query,
			wallet.UserID,
			wallet.Name,
		)
		if err != nil {
			return 0, err
		}
	}

	return id, nil
}

// GetOwned returns the wallet only when it belongs to ownerID.
// A wallet that exists but is owned by someone else is reported as
// not found, so callers can't probe for other users' wallet ids.
func (repo *WalletRepositoryImpl) GetOwned(id, ownerID int64) (*models.Wallet, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var wallet models.Wallet

	query := `
        SELECT id, user_id, name, balance, currency, created_at FROM wallets WHERE id=$1 AND user_id=$2`

	err := repo.db.GetContext(ctx, &wallet, query, id, ownerID)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &wallet, true, nil
}

func (repo *WalletRepositoryImpl) GetOne(id int64) (*models.Wallet, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var wallet models.Wallet

	query := `
        SELECT id, user_id, name, balance, currency, created_at FROM wallets WHERE id=$1`

	err := repo.db.GetContext(ctx, &wallet, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &wallet, true, nil
}

func (repo *WalletRepositoryImpl) GetAllByUserID(userID int64) ([]models.Wallet, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var wallets []models.Wallet

	query := `
        SELECT id, user_id, name, balance, currency, created_at FROM wallets WHERE user_id=$1 ORDER BY created_at, id`

	err := repo.db.SelectContext(ctx, &wallets, query, userID)
	if err != nil {
		return nil, err
	}

	return wallets, nil
}

// OldestForUser returns the user's earliest-created wallet, ordered by
// creation time with id as tie-break.
func (repo *WalletRepositoryImpl) OldestForUser(userID int64) (*models.Wallet, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var wallet models.Wallet

	query := `
        SELECT id, user_id, name, balance, currency, created_at FROM wallets WHERE user_id=$1 ORDER BY created_at, id LIMIT 1`

	err := repo.db.GetContext(ctx, &wallet, query, userID)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &wallet, true, nil
}

// LockForUpdate reads the wallet row under a pessimistic row lock.
// The lock is held until the caller's transaction commits or rolls
// back, so concurrent adjustments to the same wallet serialize.
func (repo *WalletRepositoryImpl) LockForUpdate(tx *sqlx.Tx, id int64) (*models.Wallet, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var wallet models.Wallet

	query := `
        SELECT id, user_id, name, balance, currency, created_at FROM wallets WHERE id=$1 FOR UPDATE`

	err := tx.GetContext(ctx, &wallet, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &wallet, true, nil
}

// AdjustBalance applies balance += delta inside the caller's
// transaction. The WHERE clause is the authoritative overdraft guard:
// a debit that would push the balance negative matches no row, writes
// nothing and returns ok=false.
func (repo *WalletRepositoryImpl) AdjustBalance(tx *sqlx.Tx, id int64, delta int64) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		UPDATE wallets SET balance = balance + $1 WHERE id=$2 AND balance + $1 >= 0`

	result, err := tx.ExecContext(ctx, query, delta, id)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func (repo *WalletRepositoryImpl) UpdateName(id, ownerID int64, name string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `UPDATE wallets SET name = $1 WHERE id = $2 AND user_id = $3`

	result, err := repo.db.ExecContext(ctx, query, name, id, ownerID)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func (repo *WalletRepositoryImpl) Delete(id int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `DELETE FROM wallets WHERE id = $1`

	_, err := repo.db.ExecContext(ctx, query, id)
	if err != nil {
		var pqErr *pq.Error
		// foreign_key_violation: the wallet still appears in the
		// transactions table and history must stay intact
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrWalletInUse
		}
		return err
	}

	return nil
}

func (repo *WalletRepositoryImpl) DeleteAllForUser(userID int64, tx *sqlx.Tx) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `DELETE FROM wallets WHERE user_id = $1`

	if tx != nil {
		_, err := tx.ExecContext(ctx, query, userID)
		return err
	}

	_, err := repo.db.ExecContext(ctx, query, userID)
	return err
}
