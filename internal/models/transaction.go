package models

import (
	"database/sql"
	"time"
)

// Transaction is an append-only record of a single fund movement.
// A wallet-to-wallet transfer populates both wallet ids; an external
// credit leaves FromWalletID null.
type Transaction struct {
	ID              int64          `db:"id"`
	FromWalletID    sql.NullInt64  `db:"from_wallet_id"`
	ToWalletID      sql.NullInt64  `db:"to_wallet_id"`
	Amount          int64          `db:"amount"`
	Description     sql.NullString `db:"description"`
	ReferenceNumber sql.NullString `db:"reference_number"`
	CreatedAt       time.Time      `db:"created_at"`
}
