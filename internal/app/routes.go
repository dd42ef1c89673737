package app

import (
	"net/http"

	"github.com/cradoe/kudi/internal/handler"
	"github.com/cradoe/kudi/internal/middleware"
)

func (app *Application) routes() http.Handler {
	mux := http.NewServeMux()

	middlewareRepo := middleware.New(app.ErrorHandler, app.Logger, app.DB.User(), &app.Config)

	healthHandler := handler.NewHealthCheckHandler(app.ErrorHandler)

	authHandler := handler.NewAuthHandler(&handler.AuthHandler{
		UserRepo:     app.DB.User(),
		ActivityRepo: app.DB.Activity(),
		Helper:       app.Helper,
		Mailer:       app.Mailer,
		ErrHandler:   app.ErrorHandler,
		Config:       &app.Config,
	})

	userHandler := handler.NewUserHandler(&handler.UserHandler{
		DB:              app.DB,
		UserRepo:        app.DB.User(),
		WalletRepo:      app.DB.Wallet(),
		TransactionRepo: app.DB.Transaction(),
		ActivityRepo:    app.DB.Activity(),
		Helper:          app.Helper,
		ErrHandler:      app.ErrorHandler,
	})

	walletHandler := handler.NewWalletHandler(&handler.WalletHandler{
		WalletRepo:   app.DB.Wallet(),
		ActivityRepo: app.DB.Activity(),
		Engine:       app.Engine,
		Cache:        app.Cache,
		Helper:       app.Helper,
		ErrHandler:   app.ErrorHandler,
	})

	transactionHandler := handler.NewTransactionHandler(&handler.TransactionHandler{
		Engine:          app.Engine,
		TransactionRepo: app.DB.Transaction(),
		WalletRepo:      app.DB.Wallet(),
		ActivityRepo:    app.DB.Activity(),
		Kafka:           app.Kafka,
		Cache:           app.Cache,
		Helper:          app.Helper,
		ErrHandler:      app.ErrorHandler,
	})

	mux.HandleFunc("GET /status", healthHandler.HandleHealthCheck)

	mux.HandleFunc("POST /auth/register", authHandler.HandleAuthRegister)
	mux.HandleFunc("POST /auth/login", authHandler.HandleAuthLogin)

	requireAuth := middlewareRepo.RequireAuthenticatedUser

	mux.Handle("GET /users/profile", requireAuth(http.HandlerFunc(userHandler.HandleUserProfile)))
	mux.Handle("PUT /users/profile", requireAuth(http.HandlerFunc(userHandler.HandleUpdateProfile)))
	mux.Handle("PUT /users/password", requireAuth(http.HandlerFunc(userHandler.HandleChangePassword)))
	mux.Handle("DELETE /users/account", requireAuth(http.HandlerFunc(userHandler.HandleDeleteAccount)))

	mux.Handle("GET /wallets", requireAuth(http.HandlerFunc(walletHandler.HandleUserWallets)))
	mux.Handle("POST /wallets", requireAuth(http.HandlerFunc(walletHandler.HandleCreateWallet)))
	mux.Handle("GET /wallets/{id}", requireAuth(http.HandlerFunc(walletHandler.HandleWalletDetails)))
	mux.Handle("PUT /wallets/{id}", requireAuth(http.HandlerFunc(walletHandler.HandleUpdateWallet)))
	mux.Handle("DELETE /wallets/{id}", requireAuth(http.HandlerFunc(walletHandler.HandleDeleteWallet)))
	mux.Handle("POST /wallets/{id}/credit", requireAuth(http.HandlerFunc(walletHandler.HandleCreditWallet)))

	mux.Handle("GET /transactions", requireAuth(http.HandlerFunc(transactionHandler.HandleUserTransactions)))
	mux.Handle("POST /transactions/transfer", requireAuth(http.HandlerFunc(transactionHandler.HandleTransferMoney)))
	mux.Handle("POST /transactions/transfer-to-user", requireAuth(http.HandlerFunc(transactionHandler.HandleTransferToUser)))

	return middlewareRepo.LogAccess(middlewareRepo.RecoverPanic(middlewareRepo.Authenticate(mux)))
}
