package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cradoe/kudi/internal/models"
	"github.com/jmoiron/sqlx"
)

type TransactionRepository interface {
	Insert(transaction *models.Transaction, tx *sqlx.Tx) (*models.Transaction, error)
	FindByReference(referenceNumber string) (*models.Transaction, bool, error)
	GetAllForUser(userID int64, filter *HistoryFilter) ([]models.Transaction, error)
	DeleteAllForUser(userID int64, tx *sqlx.Tx) error
}

// HistoryFilter narrows a transaction history listing.
type HistoryFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

type TransactionRepositoryImpl struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) TransactionRepository {
	return &TransactionRepositoryImpl{db: db}
}

// Insert writes the transaction record and returns the committed row.
// Rows are append-only; there is no update path.
func (repo *TransactionRepositoryImpl) Insert(transaction *models.Transaction, tx *sqlx.Tx) (*models.Transaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var trans models.Transaction

	query := `
		INSERT INTO transactions (from_wallet_id, to_wallet_id, amount, description, reference_number)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, from_wallet_id, to_wallet_id, amount, description, reference_number, created_at`
	if tx != nil {
		err := tx.QueryRowxContext(ctx, query,
			transaction.FromWalletID,
			transaction.ToWalletID,
			transaction.Amount,
			transaction.Description,
			transaction.ReferenceNumber,
		).StructScan(&trans)
		if err != nil {
			return nil, err
		}
	} else {
		err := repo.db.GetContext(ctx, &trans, query,
			transaction.FromWalletID,
			transaction.ToWalletID,
			transaction.Amount,
			transaction.Description,
			transaction.ReferenceNumber,
		)
		if err != nil {
			return nil, err
		}
	}

	return &trans, nil
}

func (repo *TransactionRepositoryImpl) FindByReference(referenceNumber string) (*models.Transaction, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var trans models.Transaction

	query := `
        SELECT id, from_wallet_id, to_wallet_id, amount, description, reference_number, created_at
        FROM transactions WHERE reference_number=$1`

	err := repo.db.GetContext(ctx, &trans, query, referenceNumber)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &trans, true, nil
}

// GetAllForUser lists every transaction that touches one of the
// user's wallets, newest first.
func (repo *TransactionRepositoryImpl) GetAllForUser(userID int64, filter *HistoryFilter) ([]models.Transaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if filter == nil {
		filter = &HistoryFilter{Limit: 10}
	}

	var transactions []models.Transaction

	query := `
        SELECT t.id, t.from_wallet_id, t.to_wallet_id, t.amount, t.description, t.reference_number, t.created_at
        FROM transactions t
        WHERE (t.from_wallet_id IN (SELECT id FROM wallets WHERE user_id = $1)
           OR t.to_wallet_id IN (SELECT id FROM wallets WHERE user_id = $1))
          AND ($2::timestamptz IS NULL OR t.created_at >= $2)
          AND ($3::timestamptz IS NULL OR t.created_at <= $3)
        ORDER BY t.created_at DESC, t.id DESC
        LIMIT $4 OFFSET $5`

	err := repo.db.SelectContext(ctx, &transactions, query,
		userID,
		filter.StartDate,
		filter.EndDate,
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, err
	}

	return transactions, nil
}

func (repo *TransactionRepositoryImpl) DeleteAllForUser(userID int64, tx *sqlx.Tx) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		DELETE FROM transactions
		WHERE from_wallet_id IN (SELECT id FROM wallets WHERE user_id = $1)
		   OR to_wallet_id IN (SELECT id FROM wallets WHERE user_id = $1)`

	if tx != nil {
		_, err := tx.ExecContext(ctx, query, userID)
		return err
	}

	_, err := repo.db.ExecContext(ctx, query, userID)
	return err
}
