package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/cradoe/kudi/internal/context"
	"github.com/cradoe/kudi/internal/errHandler"
	"github.com/cradoe/kudi/internal/helper"
	"github.com/cradoe/kudi/internal/models"
	"github.com/cradoe/kudi/internal/repository"
	"github.com/cradoe/kudi/internal/request"
	"github.com/cradoe/kudi/internal/response"
	"github.com/cradoe/kudi/internal/validator"

	"github.com/cradoe/gopass"
	"github.com/jmoiron/sqlx"
)

type UserHandler struct {
	DB              repository.Database
	UserRepo        repository.UserRepository
	WalletRepo      repository.WalletRepository
	TransactionRepo repository.TransactionRepository
	ActivityRepo    repository.ActivityRepository
	Helper          *helper.HelperRepository
	ErrHandler      *errHandler.ErrorRepository
}

func NewUserHandler(handler *UserHandler) *UserHandler {
	return &UserHandler{
		DB:              handler.DB,
		UserRepo:        handler.UserRepo,
		WalletRepo:      handler.WalletRepo,
		TransactionRepo: handler.TransactionRepo,
		ActivityRepo:    handler.ActivityRepo,
		Helper:          handler.Helper,
		ErrHandler:      handler.ErrHandler,
	}
}

type UserResponseData struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *UserHandler) HandleUserProfile(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)

	data := &UserResponseData{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}

	message := "Profile fetched successfully"
	err := response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// Profile updates are partial: each field is optional and applied
// individually through a ProfilePatch, never by assembling SQL from
// the request.
func (h *UserHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)

	var input struct {
		Username  *string             `json:"username"`
		Email     *string             `json:"email"`
		Password  *string             `json:"password"`
		Validator validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	patch := &repository.ProfilePatch{}

	if input.Username != nil {
		input.Validator.Check(validator.NotBlank(*input.Username), "Username cannot be blank")
		input.Validator.Check(validator.MinRunes(*input.Username, 3), "Username is too short")
		patch.Username = input.Username
	}

	if input.Email != nil {
		input.Validator.Check(validator.IsEmail(*input.Email), "Must be a valid email address")

		_, found, err := h.UserRepo.GetByEmail(*input.Email)
		if err != nil {
			h.ErrHandler.ServerError(w, r, err)
			return
		}
		input.Validator.Check(!found || *input.Email == user.Email, "Email is already in use")
		patch.Email = input.Email
	}

	if input.Password != nil {
		_, errs := gopass.Validate(*input.Password)
		if errs != nil {
			h.ErrHandler.FailedValidation(w, r, errs)
			return
		}

		hashedPassword, err := gopass.Hash(*input.Password)
		if err != nil {
			h.ErrHandler.ServerError(w, r, err)
			return
		}
		patch.HashedPassword = &hashedPassword
	}

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	if patch.IsEmpty() {
		h.ErrHandler.FailedValidation(w, r, []string{"No fields to update"})
		return
	}

	err = h.UserRepo.UpdateProfile(user.ID, patch)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	message := "Profile updated successfully"
	err = response.JSONOkResponse(w, nil, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *UserHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)

	var input struct {
		CurrentPassword string              `json:"current_password"`
		NewPassword     string              `json:"new_password"`
		Validator       validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(validator.NotBlank(input.CurrentPassword), "Current password is required")

	_, errs := gopass.Validate(input.NewPassword)
	if errs != nil {
		h.ErrHandler.FailedValidation(w, r, errs)
		return
	}

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	passwordMatches, err := gopass.ComparePasswordAndHash(input.CurrentPassword, user.HashedPassword)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	if !passwordMatches {
		response.JSONErrorResponse(w, nil, "Current password is incorrect", http.StatusUnauthorized, nil)
		return
	}

	hashedPassword, err := gopass.Hash(input.NewPassword)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	err = h.UserRepo.UpdatePassword(user.ID, hashedPassword)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	message := "Password updated successfully"
	err = response.JSONOkResponse(w, nil, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// Account deletion removes the transaction history touching the
// user's wallets, then the wallets, then the user row, all inside one
// store transaction so a failure leaves everything in place.
func (h *UserHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)

	err := h.DB.RunInTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.TransactionRepo.DeleteAllForUser(user.ID, tx); err != nil {
			return err
		}

		if err := h.WalletRepo.DeleteAllForUser(user.ID, tx); err != nil {
			return err
		}

		return h.UserRepo.Delete(user.ID, tx)
	})
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	h.Helper.BackgroundTask(r, func() error {
		_, err := h.ActivityRepo.Insert(&models.ActivityLog{
			UserID:      user.ID,
			Entity:      repository.ActivityLogUserEntity,
			EntityID:    user.ID,
			Description: UserActivityLogDeletedDescription,
		})

		if err != nil {
			log.Printf("Error logging account deletion action: %v", err)
			return err
		}

		return nil
	})

	message := "Account deleted successfully"
	err = response.JSONOkResponse(w, nil, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
