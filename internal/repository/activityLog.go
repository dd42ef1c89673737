// Every noteworthy account action (synchronous or asynchronous) gets a
// row in activity_logs. The table is polymorphic over entity and
// entity_id so the same audit trail covers users, wallets and
// transactions.
package repository

import (
	"context"

	"github.com/cradoe/kudi/internal/models"
	"github.com/jmoiron/sqlx"
)

type ActivityRepository interface {
	Insert(log *models.ActivityLog) (*models.ActivityLog, error)
}

const (
	// ActivityLogTransactionEntity is used in actions that has to do with transactions and the transactions table
	ActivityLogTransactionEntity = "transaction"

	// ActivityLogWalletEntity is used in activites that has to do with wallets and the wallets table
	ActivityLogWalletEntity = "wallet"

	// ActivityLogUserEntity is used in activites that has to do with user account and the users table
	ActivityLogUserEntity = "user"
)

type ActivityRepositoryImpl struct {
	db *sqlx.DB
}

func NewActivityRepository(db *sqlx.DB) ActivityRepository {
	return &ActivityRepositoryImpl{db: db}
}

func (repo *ActivityRepositoryImpl) Insert(log *models.ActivityLog) (*models.ActivityLog, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var entry models.ActivityLog

	query := `
		INSERT INTO activity_logs (user_id, entity, entity_id, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, entity, entity_id, description, created_at`

	err := repo.db.GetContext(ctx, &entry, query,
		log.UserID,
		log.Entity,
		log.EntityID,
		log.Description,
	)

	if err != nil {
		return nil, err
	}

	return &entry, nil
}
