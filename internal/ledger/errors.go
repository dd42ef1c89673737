package ledger

import "errors"

// Every expected business-rule outcome is a sentinel error so the API
// boundary can map each one to a response with errors.Is. Anything
// else coming out of the engine means the store could not complete the
// unit of work; the whole transaction was rolled back.
var (
	ErrInvalidAmount        = errors.New("amount must be a positive integer")
	ErrSourceNotFound       = errors.New("source wallet not found")
	ErrDestinationNotFound  = errors.New("destination wallet not found")
	ErrSameWallet           = errors.New("source and destination wallets must be different")
	ErrRecipientNotFound    = errors.New("recipient not found")
	ErrRecipientHasNoWallet = errors.New("recipient has no wallet")
	ErrSelfTransfer         = errors.New("you can't transfer to your own account")
	ErrInsufficientFunds    = errors.New("insufficient balance")
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrDuplicateReference   = errors.New("this appears to be a duplicate transaction")
)
