package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appcontext "github.com/cradoe/kudi/internal/context"
	"github.com/cradoe/kudi/internal/errHandler"
	"github.com/cradoe/kudi/internal/helper"
	"github.com/cradoe/kudi/internal/ledger"
	"github.com/cradoe/kudi/internal/models"
	"github.com/cradoe/kudi/internal/stream"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"database/sql"
)

type MockTransferService struct {
	mock.Mock
}

func (m *MockTransferService) TransferBetweenWallets(ctx context.Context, requesterID, fromWalletID, toWalletID, amount int64, description, reference string) (*models.Transaction, error) {
	args := m.Called(ctx, requesterID, fromWalletID, toWalletID, amount, description, reference)
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransferService) TransferToUserByEmail(ctx context.Context, requesterID, fromWalletID int64, recipientEmail string, amount int64, description, reference string) (*models.Transaction, error) {
	args := m.Called(ctx, requesterID, fromWalletID, recipientEmail, amount, description, reference)
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransferService) Credit(ctx context.Context, requesterID, walletID, amount int64, description string) (*models.Transaction, error) {
	args := m.Called(ctx, requesterID, walletID, amount, description)
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func newTestErrorHandler(help *helper.HelperRepository) *errHandler.ErrorRepository {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return errHandler.New("", nil, logger, help)
}

func authenticatedRequest(t *testing.T, method, target string, body any, user *models.User) *http.Request {
	t.Helper()

	requestBody, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(method, target, bytes.NewBuffer(requestBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	return appcontext.ContextSetAuthenticatedUser(req, user)
}

func TestHandleTransferMoney_Success(t *testing.T) {
	mockEngine := new(MockTransferService)
	mockActivityRepo := new(MockActivityRepo)

	mockHelper, wg := newTestHelper()

	sender := &models.User{ID: 10, Username: "tester", Email: "test@example.com"}

	record := &models.Transaction{
		ID:              77,
		FromWalletID:    sql.NullInt64{Int64: 1, Valid: true},
		ToWalletID:      sql.NullInt64{Int64: 2, Valid: true},
		Amount:          200,
		Description:     sql.NullString{String: "lunch", Valid: true},
		ReferenceNumber: sql.NullString{String: "ref-1", Valid: true},
		CreatedAt:       time.Now(),
	}

	mockEngine.On("TransferBetweenWallets", mock.Anything, int64(10), int64(1), int64(2), int64(200), "lunch", "ref-1").
		Return(record, nil)
	mockActivityRepo.On("Insert", mock.Anything).Return(&models.ActivityLog{}, nil)

	transactionHandler := &TransactionHandler{
		Engine:       mockEngine,
		ActivityRepo: mockActivityRepo,
		Kafka:        stream.New("localhost:9092"),
		Helper:       mockHelper,
		ErrHandler:   newTestErrorHandler(mockHelper),
	}

	req := authenticatedRequest(t, "POST", "/transactions/transfer", map[string]any{
		"from_wallet_id":   1,
		"to_wallet_id":     2,
		"amount":           200,
		"description":      "lunch",
		"reference_number": "ref-1",
	}, sender)

	rr := httptest.NewRecorder()

	transactionHandler.HandleTransferMoney(rr, req)
	wg.Wait()

	require.Equal(t, http.StatusOK, rr.Code)

	var response map[string]interface{}
	err := json.Unmarshal(rr.Body.Bytes(), &response)
	require.NoError(t, err)

	data, ok := response["data"].(map[string]interface{})
	require.True(t, ok, "Expected response['data'] to be a map")

	require.Equal(t, float64(77), data["id"])
	require.Equal(t, float64(200), data["amount"])
	require.Equal(t, "ref-1", data["reference_number"])

	mockEngine.AssertExpectations(t)
	mockActivityRepo.AssertExpectations(t)
}

func TestHandleTransferMoney_InsufficientFunds(t *testing.T) {
	mockEngine := new(MockTransferService)

	mockHelper, wg := newTestHelper()

	sender := &models.User{ID: 10, Username: "tester", Email: "test@example.com"}

	mockEngine.On("TransferBetweenWallets", mock.Anything, int64(10), int64(1), int64(2), int64(200), "", "").
		Return((*models.Transaction)(nil), ledger.ErrInsufficientFunds)

	transactionHandler := &TransactionHandler{
		Engine:     mockEngine,
		Helper:     mockHelper,
		ErrHandler: newTestErrorHandler(mockHelper),
	}

	req := authenticatedRequest(t, "POST", "/transactions/transfer", map[string]any{
		"from_wallet_id": 1,
		"to_wallet_id":   2,
		"amount":         200,
	}, sender)

	rr := httptest.NewRecorder()

	transactionHandler.HandleTransferMoney(rr, req)
	wg.Wait()

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	mockEngine.AssertExpectations(t)
}

func TestHandleTransferMoney_SourceNotFound(t *testing.T) {
	mockEngine := new(MockTransferService)

	mockHelper, wg := newTestHelper()

	sender := &models.User{ID: 10, Username: "tester", Email: "test@example.com"}

	mockEngine.On("TransferBetweenWallets", mock.Anything, int64(10), int64(1), int64(2), int64(200), "", "").
		Return((*models.Transaction)(nil), ledger.ErrSourceNotFound)

	transactionHandler := &TransactionHandler{
		Engine:     mockEngine,
		Helper:     mockHelper,
		ErrHandler: newTestErrorHandler(mockHelper),
	}

	req := authenticatedRequest(t, "POST", "/transactions/transfer", map[string]any{
		"from_wallet_id": 1,
		"to_wallet_id":   2,
		"amount":         200,
	}, sender)

	rr := httptest.NewRecorder()

	transactionHandler.HandleTransferMoney(rr, req)
	wg.Wait()

	require.Equal(t, http.StatusNotFound, rr.Code)

	mockEngine.AssertExpectations(t)
}

func TestHandleTransferMoney_RejectsInvalidInput(t *testing.T) {
	mockEngine := new(MockTransferService)

	mockHelper, wg := newTestHelper()

	sender := &models.User{ID: 10, Username: "tester", Email: "test@example.com"}

	transactionHandler := &TransactionHandler{
		Engine:     mockEngine,
		Helper:     mockHelper,
		ErrHandler: newTestErrorHandler(mockHelper),
	}

	req := authenticatedRequest(t, "POST", "/transactions/transfer", map[string]any{
		"from_wallet_id": 1,
		"to_wallet_id":   2,
		"amount":         -50,
	}, sender)

	rr := httptest.NewRecorder()

	transactionHandler.HandleTransferMoney(rr, req)
	wg.Wait()

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	// the engine is never consulted for malformed input
	mockEngine.AssertNotCalled(t, "TransferBetweenWallets",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleTransferToUser_SelfTransfer(t *testing.T) {
	mockEngine := new(MockTransferService)

	mockHelper, wg := newTestHelper()

	sender := &models.User{ID: 10, Username: "tester", Email: "test@example.com"}

	mockEngine.On("TransferToUserByEmail", mock.Anything, int64(10), int64(1), "test@example.com", int64(200), "", "").
		Return((*models.Transaction)(nil), ledger.ErrSelfTransfer)

	transactionHandler := &TransactionHandler{
		Engine:     mockEngine,
		Helper:     mockHelper,
		ErrHandler: newTestErrorHandler(mockHelper),
	}

	req := authenticatedRequest(t, "POST", "/transactions/transfer-to-user", map[string]any{
		"from_wallet_id":  1,
		"recipient_email": "test@example.com",
		"amount":          200,
	}, sender)

	rr := httptest.NewRecorder()

	transactionHandler.HandleTransferToUser(rr, req)
	wg.Wait()

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	mockEngine.AssertExpectations(t)
}
