// Package ledger implements the balance-transfer protocol: it
// validates, debits, credits and records every fund movement inside a
// single store transaction so that money is conserved and no wallet
// ever goes negative, regardless of how many transfers run
// concurrently.
package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cradoe/kudi/internal/models"
	"github.com/cradoe/kudi/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Store is the transaction primitive the engine runs its atomic body
// in. The implementation guarantees rollback on every non-commit exit
// path, including panics.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// Engine holds no state of its own between calls; all shared mutable
// state lives behind the Store. One Engine serves all request handlers.
type Engine struct {
	Store        Store
	Wallets      repository.WalletRepository
	Users        repository.UserRepository
	Transactions repository.TransactionRepository
}

func New(engine *Engine) *Engine {
	return &Engine{
		Store:        engine.Store,
		Wallets:      engine.Wallets,
		Users:        engine.Users,
		Transactions: engine.Transactions,
	}
}

// TransferBetweenWallets moves amount from one of the requester's
// wallets into any existing wallet, identified directly by id.
func (e *Engine) TransferBetweenWallets(ctx context.Context, requesterID, fromWalletID, toWalletID, amount int64, description, reference string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	if err := e.checkReference(reference); err != nil {
		return nil, err
	}

	// Advisory precondition checks. They give the caller an early,
	// cheap answer; the atomic body below re-validates everything
	// under row locks and is the authoritative guard.
	sourceWallet, found, err := e.Wallets.GetOwned(fromWalletID, requesterID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrSourceNotFound
	}

	_, found, err = e.Wallets.GetOne(toWalletID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrDestinationNotFound
	}

	if fromWalletID == toWalletID {
		return nil, ErrSameWallet
	}

	if sourceWallet.Balance < amount {
		return nil, ErrInsufficientFunds
	}

	return e.executeTransfer(ctx, requesterID, fromWalletID, toWalletID, amount, description, reference)
}

// TransferToUserByEmail resolves the recipient by email and credits
// their earliest-created wallet. If no description is given, one
// referencing the recipient's email is synthesized.
func (e *Engine) TransferToUserByEmail(ctx context.Context, requesterID, fromWalletID int64, recipientEmail string, amount int64, description, reference string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	if err := e.checkReference(reference); err != nil {
		return nil, err
	}

	sourceWallet, found, err := e.Wallets.GetOwned(fromWalletID, requesterID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrSourceNotFound
	}

	toWalletID, err := e.resolveRecipientWallet(recipientEmail, requesterID)
	if err != nil {
		return nil, err
	}

	if sourceWallet.Balance < amount {
		return nil, ErrInsufficientFunds
	}

	if description == "" {
		description = "Transfer to " + recipientEmail
	}

	return e.executeTransfer(ctx, requesterID, fromWalletID, toWalletID, amount, description, reference)
}

// Credit applies a one-sided external deposit to one of the
// requester's wallets. The recorded transaction has no source wallet.
func (e *Engine) Credit(ctx context.Context, requesterID, walletID, amount int64, description string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	_, found, err := e.Wallets.GetOwned(walletID, requesterID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrWalletNotFound
	}

	if description == "" {
		description = "Wallet credit"
	}

	var record *models.Transaction

	err = e.Store.RunInTx(ctx, func(tx *sqlx.Tx) error {
		wallet, found, err := e.Wallets.LockForUpdate(tx, walletID)
		if err != nil {
			return err
		}
		if !found || wallet.UserID != requesterID {
			return ErrWalletNotFound
		}

		record, err = e.Transactions.Insert(&models.Transaction{
			ToWalletID:      sql.NullInt64{Int64: walletID, Valid: true},
			Amount:          amount,
			Description:     sql.NullString{String: description, Valid: true},
			ReferenceNumber: sql.NullString{String: uuid.NewString(), Valid: true},
		}, tx)
		if err != nil {
			return err
		}

		ok, err := e.Wallets.AdjustBalance(tx, walletID, amount)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("credit of wallet %d applied to no row", walletID)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// resolveRecipientWallet maps a recipient email to the wallet a
// user-to-user transfer should credit. The email must match exactly,
// same as the store's uniqueness constraint.
func (e *Engine) resolveRecipientWallet(email string, requesterID int64) (int64, error) {
	recipient, found, err := e.Users.GetByEmail(email)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrRecipientNotFound
	}

	// Without this check the email path would launder a transfer
	// between the requester's own wallets past the distinct-wallets
	// rule of the direct path.
	if recipient.ID == requesterID {
		return 0, ErrSelfTransfer
	}

	wallet, found, err := e.Wallets.OldestForUser(recipient.ID)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrRecipientHasNoWallet
	}

	return wallet.ID, nil
}

// executeTransfer is the atomic body shared by both transfer entry
// points. It locks the two wallet rows in ascending id order, records
// the transaction and applies the debit/credit pair; either all of it
// commits or none of it is visible.
func (e *Engine) executeTransfer(ctx context.Context, requesterID, fromWalletID, toWalletID, amount int64, description, reference string) (*models.Transaction, error) {
	var record *models.Transaction

	err := e.Store.RunInTx(ctx, func(tx *sqlx.Tx) error {
		// Ascending id order prevents two opposite-direction
		// transfers between the same pair from deadlocking.
		first, second := fromWalletID, toWalletID
		if second < first {
			first, second = second, first
		}

		locked := make(map[int64]*models.Wallet, 2)
		for _, id := range []int64{first, second} {
			wallet, found, err := e.Wallets.LockForUpdate(tx, id)
			if err != nil {
				return err
			}
			if !found {
				if id == fromWalletID {
					return ErrSourceNotFound
				}
				return ErrDestinationNotFound
			}
			locked[id] = wallet
		}

		// Ownership and sufficiency may have changed since the
		// advisory checks; the locked rows decide.
		if locked[fromWalletID].UserID != requesterID {
			return ErrSourceNotFound
		}
		if locked[fromWalletID].Balance < amount {
			return ErrInsufficientFunds
		}

		var err error
		record, err = e.Transactions.Insert(&models.Transaction{
			FromWalletID:    sql.NullInt64{Int64: fromWalletID, Valid: true},
			ToWalletID:      sql.NullInt64{Int64: toWalletID, Valid: true},
			Amount:          amount,
			Description:     sql.NullString{String: description, Valid: description != ""},
			ReferenceNumber: sql.NullString{String: reference, Valid: reference != ""},
		}, tx)
		if err != nil {
			return err
		}

		ok, err := e.Wallets.AdjustBalance(tx, fromWalletID, -amount)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientFunds
		}

		ok, err = e.Wallets.AdjustBalance(tx, toWalletID, amount)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("credit of wallet %d applied to no row", toWalletID)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (e *Engine) checkReference(reference string) error {
	if reference == "" {
		return nil
	}

	_, found, err := e.Transactions.FindByReference(reference)
	if err != nil {
		return err
	}
	if found {
		return ErrDuplicateReference
	}

	return nil
}
