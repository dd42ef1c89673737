package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/cradoe/kudi/internal/cache"
	"github.com/cradoe/kudi/internal/context"
	"github.com/cradoe/kudi/internal/errHandler"
	"github.com/cradoe/kudi/internal/helper"
	"github.com/cradoe/kudi/internal/ledger"
	"github.com/cradoe/kudi/internal/models"
	"github.com/cradoe/kudi/internal/repository"
	"github.com/cradoe/kudi/internal/request"
	"github.com/cradoe/kudi/internal/response"
	"github.com/cradoe/kudi/internal/validator"
)

var ErrWalletNotFound = errors.New("wallet not found")

const walletCacheTTL = time.Minute

type WalletHandler struct {
	WalletRepo   repository.WalletRepository
	ActivityRepo repository.ActivityRepository
	Engine       TransferService
	Cache        *cache.Cache
	Helper       *helper.HelperRepository
	ErrHandler   *errHandler.ErrorRepository
}

func NewWalletHandler(handler *WalletHandler) *WalletHandler {
	return &WalletHandler{
		WalletRepo:   handler.WalletRepo,
		ActivityRepo: handler.ActivityRepo,
		Engine:       handler.Engine,
		Cache:        handler.Cache,
		Helper:       handler.Helper,
		ErrHandler:   handler.ErrHandler,
	}
}

type WalletResponseData struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Balance   int64     `json:"balance"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

func walletResponse(wallet *models.Wallet) *WalletResponseData {
	return &WalletResponseData{
		ID:        wallet.ID,
		Name:      wallet.Name,
		Balance:   wallet.Balance,
		Currency:  wallet.Currency,
		CreatedAt: wallet.CreatedAt,
	}
}

func (h *WalletHandler) HandleUserWallets(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)

	message := "Wallets retrieved successfully"

	// listing is cache-first; every balance mutation invalidates the key
	var cached []WalletResponseData
	if h.Cache != nil {
		found, err := h.Cache.GetJSON(cache.UserWalletsKey(user.ID), &cached)
		if err != nil {
			log.Printf("Error reading wallets cache: %v", err)
		} else if found {
			if err := response.JSONOkResponse(w, cached, message, nil); err != nil {
				h.ErrHandler.ServerError(w, r, err)
			}
			return
		}
	}

	wallets, err := h.WalletRepo.GetAllByUserID(user.ID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	data := make([]WalletResponseData, len(wallets))
	for i, wallet := range wallets {
		data[i] = *walletResponse(&wallet)
	}

	if h.Cache != nil {
		if err := h.Cache.SetJSON(cache.UserWalletsKey(user.ID), data, walletCacheTTL); err != nil {
			log.Printf("Error writing wallets cache: %v", err)
		}
	}

	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *WalletHandler) HandleCreateWallet(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)

	var input struct {
		Name      string              `json:"name"`
		Validator validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(validator.NotBlank(input.Name), "Wallet name is required")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	newWallet := &models.Wallet{
		UserID: user.ID,
		Name:   input.Name,
	}

	walletID, err := h.WalletRepo.Insert(newWallet, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	h.invalidateWalletCache(user.ID)

	h.Helper.BackgroundTask(r, func() error {
		_, err := h.ActivityRepo.Insert(&models.ActivityLog{
			UserID:      user.ID,
			Entity:      repository.ActivityLogWalletEntity,
			EntityID:    walletID,
			Description: WalletActivityLogCreatedDescription,
		})

		if err != nil {
			log.Printf("Error logging wallet creation action: %v", err)
			return err
		}

		return nil
	})

	wallet, found, err := h.WalletRepo.GetOwned(walletID, user.ID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found {
		h.ErrHandler.ServerError(w, r, fmt.Errorf("wallet %d missing after insert", walletID))
		return
	}

	message := "Wallet created successfully"
	err = response.JSONCreatedResponse(w, walletResponse(wallet), message)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *WalletHandler) HandleWalletDetails(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)

	walletID, ok := pathValueID(r, "id")
	if !ok {
		h.ErrHandler.NotFound(w, r)
		return
	}

	// not-found and not-owned are deliberately indistinguishable
	wallet, found, err := h.WalletRepo.GetOwned(walletID, user.ID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	if !found {
		response.JSONErrorResponse(w, nil, ErrWalletNotFound.Error(), http.StatusNotFound, nil)
		return
	}

	message := "Wallet details fetched successfully"
	err = response.JSONOkResponse(w, walletResponse(wallet), message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *WalletHandler) HandleUpdateWallet(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)

	walletID, ok := pathValueID(r, "id")
	if !ok {
		h.ErrHandler.NotFound(w, r)
		return
	}

	var input struct {
		Name      string              `json:"name"`
		Validator validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(validator.NotBlank(input.Name), "Wallet name is required")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	updated, err := h.WalletRepo.UpdateName(walletID, user.ID, input.Name)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	if !updated {
		response.JSONErrorResponse(w, nil, ErrWalletNotFound.Error(), http.StatusNotFound, nil)
		return
	}

	h.invalidateWalletCache(user.ID)

	message := "Wallet updated successfully"
	err = response.JSONOkResponse(w, nil, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *WalletHandler) HandleDeleteWallet(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)

	walletID, ok := pathValueID(r, "id")
	if !ok {
		h.ErrHandler.NotFound(w, r)
		return
	}

	_, found, err := h.WalletRepo.GetOwned(walletID, user.ID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	if !found {
		response.JSONErrorResponse(w, nil, ErrWalletNotFound.Error(), http.StatusNotFound, nil)
		return
	}

	err = h.WalletRepo.Delete(walletID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletInUse) {
			message := "Wallet has transaction history and can't be deleted"
			response.JSONErrorResponse(w, nil, message, http.StatusConflict, nil)
			return
		}
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	h.invalidateWalletCache(user.ID)

	h.Helper.BackgroundTask(r, func() error {
		_, err := h.ActivityRepo.Insert(&models.ActivityLog{
			UserID:      user.ID,
			Entity:      repository.ActivityLogWalletEntity,
			EntityID:    walletID,
			Description: WalletActivityLogDeletedDescription,
		})

		if err != nil {
			log.Printf("Error logging wallet deletion action: %v", err)
			return err
		}

		return nil
	})

	message := "Wallet deleted successfully"
	err = response.JSONOkResponse(w, nil, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// HandleCreditWallet applies an external deposit to one of the
// requester's wallets through the ledger engine.
func (h *WalletHandler) HandleCreditWallet(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)

	walletID, ok := pathValueID(r, "id")
	if !ok {
		h.ErrHandler.NotFound(w, r)
		return
	}

	var input struct {
		Amount      int64               `json:"amount"`
		Description string              `json:"description"`
		Validator   validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(input.Amount > 0, "Amount must be a positive integer")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	record, err := h.Engine.Credit(r.Context(), user.ID, walletID, input.Amount, input.Description)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrWalletNotFound):
			response.JSONErrorResponse(w, nil, err.Error(), http.StatusNotFound, nil)
		case errors.Is(err, ledger.ErrInvalidAmount):
			h.ErrHandler.FailedValidation(w, r, []string{err.Error()})
		default:
			h.ErrHandler.ServerError(w, r, err)
		}
		return
	}

	h.invalidateWalletCache(user.ID)

	h.Helper.BackgroundTask(r, func() error {
		_, err := h.ActivityRepo.Insert(&models.ActivityLog{
			UserID:      user.ID,
			Entity:      repository.ActivityLogTransactionEntity,
			EntityID:    record.ID,
			Description: WalletActivityLogCreditedDescription,
		})

		if err != nil {
			log.Printf("Error logging wallet credit action: %v", err)
			return err
		}

		return nil
	})

	message := "Wallet credited successfully"
	err = response.JSONOkResponse(w, transactionResponse(record), message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *WalletHandler) invalidateWalletCache(userID int64) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Delete(cache.UserWalletsKey(userID)); err != nil {
		log.Printf("Error invalidating wallets cache: %v", err)
	}
}
