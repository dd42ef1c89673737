package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/cradoe/kudi/internal/cache"
	appcontext "github.com/cradoe/kudi/internal/context"
	"github.com/cradoe/kudi/internal/errHandler"
	"github.com/cradoe/kudi/internal/helper"
	"github.com/cradoe/kudi/internal/ledger"
	"github.com/cradoe/kudi/internal/models"
	"github.com/cradoe/kudi/internal/repository"
	"github.com/cradoe/kudi/internal/request"
	"github.com/cradoe/kudi/internal/response"
	"github.com/cradoe/kudi/internal/stream"
	"github.com/cradoe/kudi/internal/validator"
)

const (
	// TransferCompletedTopic carries committed transfers so the
	// notification worker can alert both parties. Production of the
	// event happens strictly after commit; the transfer result never
	// depends on it.
	TransferCompletedTopic = "transaction.completed"
)

// TransferService is the slice of the ledger engine the API boundary
// consumes.
type TransferService interface {
	TransferBetweenWallets(ctx context.Context, requesterID, fromWalletID, toWalletID, amount int64, description, reference string) (*models.Transaction, error)
	TransferToUserByEmail(ctx context.Context, requesterID, fromWalletID int64, recipientEmail string, amount int64, description, reference string) (*models.Transaction, error)
	Credit(ctx context.Context, requesterID, walletID, amount int64, description string) (*models.Transaction, error)
}

type TransactionHandler struct {
	Engine          TransferService
	TransactionRepo repository.TransactionRepository
	WalletRepo      repository.WalletRepository
	ActivityRepo    repository.ActivityRepository
	Kafka           *stream.KafkaStream
	Cache           *cache.Cache
	Helper          *helper.HelperRepository
	ErrHandler      *errHandler.ErrorRepository
}

func NewTransactionHandler(handler *TransactionHandler) *TransactionHandler {
	return &TransactionHandler{
		Engine:          handler.Engine,
		TransactionRepo: handler.TransactionRepo,
		WalletRepo:      handler.WalletRepo,
		ActivityRepo:    handler.ActivityRepo,
		Kafka:           handler.Kafka,
		Cache:           handler.Cache,
		Helper:          handler.Helper,
		ErrHandler:      handler.ErrHandler,
	}
}

type TransactionResponseData struct {
	ID              int64  `json:"id"`
	FromWalletID    *int64 `json:"from_wallet_id"`
	ToWalletID      *int64 `json:"to_wallet_id"`
	Amount          int64  `json:"amount"`
	Description     string `json:"description,omitempty"`
	ReferenceNumber string `json:"reference_number,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func transactionResponse(record *models.Transaction) *TransactionResponseData {
	data := &TransactionResponseData{
		ID:        record.ID,
		Amount:    record.Amount,
		CreatedAt: record.CreatedAt.Format(time.RFC3339),
	}

	if record.FromWalletID.Valid {
		data.FromWalletID = &record.FromWalletID.Int64
	}
	if record.ToWalletID.Valid {
		data.ToWalletID = &record.ToWalletID.Int64
	}
	if record.Description.Valid {
		data.Description = record.Description.String
	}
	if record.ReferenceNumber.Valid {
		data.ReferenceNumber = record.ReferenceNumber.String
	}

	return data
}

// CompletedTransferEvent is the message produced on
// TransferCompletedTopic after a transfer commits.
type CompletedTransferEvent struct {
	TransactionID   int64  `json:"transaction_id"`
	SenderID        int64  `json:"sender_id"`
	FromWalletID    int64  `json:"from_wallet_id"`
	ToWalletID      int64  `json:"to_wallet_id"`
	Amount          int64  `json:"amount"`
	ReferenceNumber string `json:"reference_number"`
	CreatedAt       string `json:"created_at"`
}

func (h *TransactionHandler) HandleTransferMoney(w http.ResponseWriter, r *http.Request) {
	var input struct {
		FromWalletID    int64               `json:"from_wallet_id"`
		ToWalletID      int64               `json:"to_wallet_id"`
		Amount          int64               `json:"amount"`
		Description     string              `json:"description"`
		ReferenceNumber string              `json:"reference_number"`
		Validator       validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	sender := appcontext.ContextGetAuthenticatedUser(r)

	input.Validator.Check(input.FromWalletID > 0, "Source wallet is required")
	input.Validator.Check(input.ToWalletID > 0, "Destination wallet is required")
	input.Validator.Check(input.Amount > 0, "Amount must be a positive integer")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	record, err := h.Engine.TransferBetweenWallets(
		r.Context(),
		sender.ID,
		input.FromWalletID,
		input.ToWalletID,
		input.Amount,
		input.Description,
		input.ReferenceNumber,
	)
	if err != nil {
		h.respondTransferError(w, r, err)
		return
	}

	h.finalizeTransfer(r, sender.ID, record)

	message := "Transfer completed successfully"
	err = response.JSONOkResponse(w, transactionResponse(record), message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *TransactionHandler) HandleTransferToUser(w http.ResponseWriter, r *http.Request) {
	var input struct {
		FromWalletID    int64               `json:"from_wallet_id"`
		RecipientEmail  string              `json:"recipient_email"`
		Amount          int64               `json:"amount"`
		Description     string              `json:"description"`
		ReferenceNumber string              `json:"reference_number"`
		Validator       validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	sender := appcontext.ContextGetAuthenticatedUser(r)

	input.Validator.Check(input.FromWalletID > 0, "Source wallet is required")
	input.Validator.Check(validator.NotBlank(input.RecipientEmail), "Recipient email is required")
	input.Validator.Check(validator.IsEmail(input.RecipientEmail), "Must be a valid email address")
	input.Validator.Check(input.Amount > 0, "Amount must be a positive integer")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	record, err := h.Engine.TransferToUserByEmail(
		r.Context(),
		sender.ID,
		input.FromWalletID,
		input.RecipientEmail,
		input.Amount,
		input.Description,
		input.ReferenceNumber,
	)
	if err != nil {
		h.respondTransferError(w, r, err)
		return
	}

	h.finalizeTransfer(r, sender.ID, record)

	message := "Transfer completed successfully"
	err = response.JSONOkResponse(w, transactionResponse(record), message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *TransactionHandler) HandleUserTransactions(w http.ResponseWriter, r *http.Request) {
	user := appcontext.ContextGetAuthenticatedUser(r)

	queryValues := retrieveUrlQueryValues(r)

	transactions, err := h.TransactionRepo.GetAllForUser(user.ID, queryValues.historyFilter())
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	data := make([]*TransactionResponseData, len(transactions))
	for i := range transactions {
		data[i] = transactionResponse(&transactions[i])
	}

	message := "Transactions retrieved successfully"
	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// respondTransferError maps the engine's typed failures onto
// responses. Business-rule failures are never retried here; the store
// rolled everything back already.
func (h *TransactionHandler) respondTransferError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrSourceNotFound),
		errors.Is(err, ledger.ErrDestinationNotFound),
		errors.Is(err, ledger.ErrRecipientNotFound):
		response.JSONErrorResponse(w, nil, err.Error(), http.StatusNotFound, nil)

	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrSameWallet),
		errors.Is(err, ledger.ErrSelfTransfer),
		errors.Is(err, ledger.ErrRecipientHasNoWallet),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrDuplicateReference):
		response.JSONErrorResponse(w, nil, err.Error(), http.StatusUnprocessableEntity, nil)

	default:
		h.ErrHandler.ServerError(w, r, err)
	}
}

// finalizeTransfer runs the post-commit side effects: cache
// invalidation for both parties, the audit row and the notification
// event. None of these can fail the already-committed transfer.
func (h *TransactionHandler) finalizeTransfer(r *http.Request, senderID int64, record *models.Transaction) {
	h.Helper.BackgroundTask(r, func() error {
		h.invalidateWalletCaches(senderID, record)
		return nil
	})

	h.Helper.BackgroundTask(r, func() error {
		_, err := h.ActivityRepo.Insert(&models.ActivityLog{
			UserID:      senderID,
			Entity:      repository.ActivityLogTransactionEntity,
			EntityID:    record.ID,
			Description: TransactionActivityLogTransferDescription,
		})

		if err != nil {
			log.Printf("Error logging transfer action: %v", err)
			return err
		}

		return nil
	})

	event := &CompletedTransferEvent{
		TransactionID: record.ID,
		SenderID:      senderID,
		FromWalletID:  record.FromWalletID.Int64,
		ToWalletID:    record.ToWalletID.Int64,
		Amount:        record.Amount,
		CreatedAt:     record.CreatedAt.Format(time.RFC3339),
	}
	if record.ReferenceNumber.Valid {
		event.ReferenceNumber = record.ReferenceNumber.String
	}

	jsonMessage, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error encoding transfer event: %v", err)
		return
	}

	h.Helper.BackgroundTask(r, func() error {
		return h.Kafka.ProduceMessage(TransferCompletedTopic, string(jsonMessage))
	})
}

func (h *TransactionHandler) invalidateWalletCaches(senderID int64, record *models.Transaction) {
	if h.Cache == nil {
		return
	}

	if err := h.Cache.Delete(cache.UserWalletsKey(senderID)); err != nil {
		log.Printf("Error invalidating sender wallets cache: %v", err)
	}

	if !record.ToWalletID.Valid {
		return
	}

	recipientWallet, found, err := h.WalletRepo.GetOne(record.ToWalletID.Int64)
	if err != nil || !found {
		return
	}

	if recipientWallet.UserID != senderID {
		if err := h.Cache.Delete(cache.UserWalletsKey(recipientWallet.UserID)); err != nil {
			log.Printf("Error invalidating recipient wallets cache: %v", err)
		}
	}
}
