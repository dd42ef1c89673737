package ledger

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/cradoe/kudi/internal/models"
	"github.com/cradoe/kudi/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// stubStore runs the atomic body directly. The nil tx is never touched
// by the mocks below, so commit/rollback behaviour stays out of scope
// here; db.RunInTx owns that.
type stubStore struct {
	calls int
}

func (s *stubStore) RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	s.calls++
	return fn(nil)
}

// MockWalletRepo implements WalletRepository but only mocks the needed methods.
type MockWalletRepo struct {
	mock.Mock
}

func (m *MockWalletRepo) Insert(wallet *models.Wallet, tx *sqlx.Tx) (int64, error) {
	return 0, nil
}

func (m *MockWalletRepo) GetOwned(id, ownerID int64) (*models.Wallet, bool, error) {
	args := m.Called(id, ownerID)
	return args.Get(0).(*models.Wallet), args.Bool(1), args.Error(2)
}

func (m *MockWalletRepo) GetOne(id int64) (*models.Wallet, bool, error) {
	args := m.Called(id)
	return args.Get(0).(*models.Wallet), args.Bool(1), args.Error(2)
}

func (m *MockWalletRepo) GetAllByUserID(userID int64) ([]models.Wallet, error) {
	return nil, nil
}

func (m *MockWalletRepo) OldestForUser(userID int64) (*models.Wallet, bool, error) {
	args := m.Called(userID)
	return args.Get(0).(*models.Wallet), args.Bool(1), args.Error(2)
}

func (m *MockWalletRepo) LockForUpdate(tx *sqlx.Tx, id int64) (*models.Wallet, bool, error) {
	args := m.Called(tx, id)
	return args.Get(0).(*models.Wallet), args.Bool(1), args.Error(2)
}

func (m *MockWalletRepo) AdjustBalance(tx *sqlx.Tx, id int64, delta int64) (bool, error) {
	args := m.Called(tx, id, delta)
	return args.Bool(0), args.Error(1)
}

func (m *MockWalletRepo) UpdateName(id, ownerID int64, name string) (bool, error) {
	return false, nil
}

func (m *MockWalletRepo) Delete(id int64) error {
	return nil
}

func (m *MockWalletRepo) DeleteAllForUser(userID int64, tx *sqlx.Tx) error {
	return nil
}

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Insert(user *models.User, tx *sqlx.Tx) (int64, error) {
	return 0, nil
}

func (m *MockUserRepo) GetOne(id int64) (*models.User, bool, error) {
	return nil, false, nil
}

func (m *MockUserRepo) GetByEmail(email string) (*models.User, bool, error) {
	args := m.Called(email)
	return args.Get(0).(*models.User), args.Bool(1), args.Error(2)
}

func (m *MockUserRepo) CheckIfUsernameExist(username string) (bool, error) {
	return false, nil
}

func (m *MockUserRepo) UpdateProfile(id int64, patch *repository.ProfilePatch) error {
	return nil
}

func (m *MockUserRepo) UpdatePassword(id int64, password string) error {
	return nil
}

func (m *MockUserRepo) Delete(id int64, tx *sqlx.Tx) error {
	return nil
}

type MockTransactionRepo struct {
	mock.Mock
}

func (m *MockTransactionRepo) Insert(transaction *models.Transaction, tx *sqlx.Tx) (*models.Transaction, error) {
	args := m.Called(transaction, tx)
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) FindByReference(referenceNumber string) (*models.Transaction, bool, error) {
	args := m.Called(referenceNumber)
	return args.Get(0).(*models.Transaction), args.Bool(1), args.Error(2)
}

func (m *MockTransactionRepo) GetAllForUser(userID int64, filter *repository.HistoryFilter) ([]models.Transaction, error) {
	return nil, nil
}

func (m *MockTransactionRepo) DeleteAllForUser(userID int64, tx *sqlx.Tx) error {
	return nil
}

func newTestEngine() (*Engine, *stubStore, *MockWalletRepo, *MockUserRepo, *MockTransactionRepo) {
	store := new(stubStore)
	wallets := new(MockWalletRepo)
	users := new(MockUserRepo)
	transactions := new(MockTransactionRepo)

	engine := New(&Engine{
		Store:        store,
		Wallets:      wallets,
		Users:        users,
		Transactions: transactions,
	})

	return engine, store, wallets, users, transactions
}

func TestTransferBetweenWallets_MovesFundsAtomically(t *testing.T) {
	engine, store, wallets, _, transactions := newTestEngine()

	sourceWallet := &models.Wallet{ID: 1, UserID: 10, Balance: 500}
	destWallet := &models.Wallet{ID: 2, UserID: 20, Balance: 100}

	wallets.On("GetOwned", int64(1), int64(10)).Return(sourceWallet, true, nil)
	wallets.On("GetOne", int64(2)).Return(destWallet, true, nil)
	transactions.On("FindByReference", "ref-1").Return((*models.Transaction)(nil), false, nil)

	wallets.On("LockForUpdate", mock.Anything, int64(1)).Return(sourceWallet, true, nil)
	wallets.On("LockForUpdate", mock.Anything, int64(2)).Return(destWallet, true, nil)

	transactions.On("Insert", mock.Anything, mock.Anything).Return(&models.Transaction{
		ID:              77,
		FromWalletID:    sql.NullInt64{Int64: 1, Valid: true},
		ToWalletID:      sql.NullInt64{Int64: 2, Valid: true},
		Amount:          200,
		ReferenceNumber: sql.NullString{String: "ref-1", Valid: true},
	}, nil)

	var deltaSum int64
	wallets.On("AdjustBalance", mock.Anything, int64(1), int64(-200)).Run(func(args mock.Arguments) {
		deltaSum += args.Get(2).(int64)
	}).Return(true, nil)
	wallets.On("AdjustBalance", mock.Anything, int64(2), int64(200)).Run(func(args mock.Arguments) {
		deltaSum += args.Get(2).(int64)
	}).Return(true, nil)

	record, err := engine.TransferBetweenWallets(context.Background(), 10, 1, 2, 200, "lunch", "ref-1")

	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, int64(77), record.ID)
	require.Equal(t, 1, store.calls)

	// every debit is matched by an equal credit
	require.Equal(t, int64(0), deltaSum)

	wallets.AssertExpectations(t)
	transactions.AssertExpectations(t)
}

func TestTransferBetweenWallets_RejectsNonPositiveAmounts(t *testing.T) {
	engine, store, _, _, _ := newTestEngine()

	for _, amount := range []int64{0, -50} {
		record, err := engine.TransferBetweenWallets(context.Background(), 10, 1, 2, amount, "", "")
		require.ErrorIs(t, err, ErrInvalidAmount)
		require.Nil(t, record)
	}

	require.Equal(t, 0, store.calls)
}

func TestTransferBetweenWallets_RejectsInsufficientFunds(t *testing.T) {
	engine, store, wallets, _, _ := newTestEngine()

	sourceWallet := &models.Wallet{ID: 1, UserID: 10, Balance: 100}
	destWallet := &models.Wallet{ID: 2, UserID: 20, Balance: 0}

	wallets.On("GetOwned", int64(1), int64(10)).Return(sourceWallet, true, nil)
	wallets.On("GetOne", int64(2)).Return(destWallet, true, nil)

	record, err := engine.TransferBetweenWallets(context.Background(), 10, 1, 2, 200, "", "")

	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.Nil(t, record)

	// nothing was written; the failed attempt leaves no trace
	require.Equal(t, 0, store.calls)
	wallets.AssertNotCalled(t, "AdjustBalance", mock.Anything, mock.Anything, mock.Anything)
}

func TestTransferBetweenWallets_RejectsSameWallet(t *testing.T) {
	engine, store, wallets, _, _ := newTestEngine()

	wallet := &models.Wallet{ID: 1, UserID: 10, Balance: 500}

	wallets.On("GetOwned", int64(1), int64(10)).Return(wallet, true, nil)
	wallets.On("GetOne", int64(1)).Return(wallet, true, nil)

	record, err := engine.TransferBetweenWallets(context.Background(), 10, 1, 1, 200, "", "")

	require.ErrorIs(t, err, ErrSameWallet)
	require.Nil(t, record)
	require.Equal(t, 0, store.calls)
}

func TestTransferBetweenWallets_RejectsDuplicateReference(t *testing.T) {
	engine, store, _, _, transactions := newTestEngine()

	transactions.On("FindByReference", "ref-1").Return(&models.Transaction{ID: 5}, true, nil)

	record, err := engine.TransferBetweenWallets(context.Background(), 10, 1, 2, 200, "", "ref-1")

	require.ErrorIs(t, err, ErrDuplicateReference)
	require.Nil(t, record)
	require.Equal(t, 0, store.calls)
}

func TestTransferBetweenWallets_SourceNotFound(t *testing.T) {
	engine, _, wallets, _, _ := newTestEngine()

	wallets.On("GetOwned", int64(1), int64(10)).Return((*models.Wallet)(nil), false, nil)

	record, err := engine.TransferBetweenWallets(context.Background(), 10, 1, 2, 200, "", "")

	require.ErrorIs(t, err, ErrSourceNotFound)
	require.Nil(t, record)
}

func TestTransferBetweenWallets_DestinationNotFound(t *testing.T) {
	engine, _, wallets, _, _ := newTestEngine()

	wallets.On("GetOwned", int64(1), int64(10)).Return(&models.Wallet{ID: 1, UserID: 10, Balance: 500}, true, nil)
	wallets.On("GetOne", int64(2)).Return((*models.Wallet)(nil), false, nil)

	record, err := engine.TransferBetweenWallets(context.Background(), 10, 1, 2, 200, "", "")

	require.ErrorIs(t, err, ErrDestinationNotFound)
	require.Nil(t, record)
}

// The advisory balance check can pass on a stale read. The locked
// re-check inside the transaction is the one that decides.
func TestTransferBetweenWallets_LockedRecheckStopsOverdraft(t *testing.T) {
	engine, store, wallets, _, _ := newTestEngine()

	staleSource := &models.Wallet{ID: 1, UserID: 10, Balance: 500}
	drainedSource := &models.Wallet{ID: 1, UserID: 10, Balance: 100}
	destWallet := &models.Wallet{ID: 2, UserID: 20, Balance: 0}

	wallets.On("GetOwned", int64(1), int64(10)).Return(staleSource, true, nil)
	wallets.On("GetOne", int64(2)).Return(destWallet, true, nil)
	wallets.On("LockForUpdate", mock.Anything, int64(1)).Return(drainedSource, true, nil)
	wallets.On("LockForUpdate", mock.Anything, int64(2)).Return(destWallet, true, nil)

	record, err := engine.TransferBetweenWallets(context.Background(), 10, 1, 2, 200, "", "")

	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.Nil(t, record)
	require.Equal(t, 1, store.calls)
	wallets.AssertNotCalled(t, "AdjustBalance", mock.Anything, mock.Anything, mock.Anything)
}

func TestTransferToUserByEmail_CreditsOldestWallet(t *testing.T) {
	engine, store, wallets, users, transactions := newTestEngine()

	sourceWallet := &models.Wallet{ID: 1, UserID: 10, Balance: 500}
	recipientWallet := &models.Wallet{ID: 2, UserID: 20, Balance: 0}

	wallets.On("GetOwned", int64(1), int64(10)).Return(sourceWallet, true, nil)
	users.On("GetByEmail", "ada@example.com").Return(&models.User{ID: 20, Email: "ada@example.com"}, true, nil)
	wallets.On("OldestForUser", int64(20)).Return(recipientWallet, true, nil)

	wallets.On("LockForUpdate", mock.Anything, int64(1)).Return(sourceWallet, true, nil)
	wallets.On("LockForUpdate", mock.Anything, int64(2)).Return(recipientWallet, true, nil)

	var inserted *models.Transaction
	transactions.On("Insert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		inserted = args.Get(0).(*models.Transaction)
	}).Return(&models.Transaction{ID: 88, Amount: 200}, nil)

	wallets.On("AdjustBalance", mock.Anything, int64(1), int64(-200)).Return(true, nil)
	wallets.On("AdjustBalance", mock.Anything, int64(2), int64(200)).Return(true, nil)

	record, err := engine.TransferToUserByEmail(context.Background(), 10, 1, "ada@example.com", 200, "", "")

	require.NoError(t, err)
	require.Equal(t, int64(88), record.ID)
	require.Equal(t, 1, store.calls)

	// with no caller description the recipient's email is referenced
	require.NotNil(t, inserted)
	require.Equal(t, "Transfer to ada@example.com", inserted.Description.String)

	wallets.AssertExpectations(t)
	users.AssertExpectations(t)
	transactions.AssertExpectations(t)
}

func TestTransferToUserByEmail_RejectsSelfTransfer(t *testing.T) {
	engine, store, wallets, users, _ := newTestEngine()

	wallets.On("GetOwned", int64(1), int64(10)).Return(&models.Wallet{ID: 1, UserID: 10, Balance: 500}, true, nil)
	users.On("GetByEmail", "me@example.com").Return(&models.User{ID: 10, Email: "me@example.com"}, true, nil)

	record, err := engine.TransferToUserByEmail(context.Background(), 10, 1, "me@example.com", 200, "", "")

	require.ErrorIs(t, err, ErrSelfTransfer)
	require.Nil(t, record)
	require.Equal(t, 0, store.calls)
}

func TestTransferToUserByEmail_RecipientNotFound(t *testing.T) {
	engine, _, wallets, users, _ := newTestEngine()

	wallets.On("GetOwned", int64(1), int64(10)).Return(&models.Wallet{ID: 1, UserID: 10, Balance: 500}, true, nil)
	users.On("GetByEmail", "ghost@example.com").Return((*models.User)(nil), false, nil)

	record, err := engine.TransferToUserByEmail(context.Background(), 10, 1, "ghost@example.com", 200, "", "")

	require.ErrorIs(t, err, ErrRecipientNotFound)
	require.Nil(t, record)
}

func TestTransferToUserByEmail_RecipientHasNoWallet(t *testing.T) {
	engine, _, wallets, users, _ := newTestEngine()

	wallets.On("GetOwned", int64(1), int64(10)).Return(&models.Wallet{ID: 1, UserID: 10, Balance: 500}, true, nil)
	users.On("GetByEmail", "ada@example.com").Return(&models.User{ID: 20, Email: "ada@example.com"}, true, nil)
	wallets.On("OldestForUser", int64(20)).Return((*models.Wallet)(nil), false, nil)

	record, err := engine.TransferToUserByEmail(context.Background(), 10, 1, "ada@example.com", 200, "", "")

	require.ErrorIs(t, err, ErrRecipientHasNoWallet)
	require.Nil(t, record)
}

func TestCredit_RecordsExternalDeposit(t *testing.T) {
	engine, store, wallets, _, transactions := newTestEngine()

	wallet := &models.Wallet{ID: 1, UserID: 10, Balance: 100}

	wallets.On("GetOwned", int64(1), int64(10)).Return(wallet, true, nil)
	wallets.On("LockForUpdate", mock.Anything, int64(1)).Return(wallet, true, nil)

	var inserted *models.Transaction
	transactions.On("Insert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		inserted = args.Get(0).(*models.Transaction)
	}).Return(&models.Transaction{ID: 99, Amount: 500}, nil)

	wallets.On("AdjustBalance", mock.Anything, int64(1), int64(500)).Return(true, nil)

	record, err := engine.Credit(context.Background(), 10, 1, 500, "")

	require.NoError(t, err)
	require.Equal(t, int64(99), record.ID)
	require.Equal(t, 1, store.calls)

	// external deposits have no source wallet and always carry a
	// generated reference
	require.NotNil(t, inserted)
	require.False(t, inserted.FromWalletID.Valid)
	require.True(t, inserted.ToWalletID.Valid)
	require.True(t, inserted.ReferenceNumber.Valid)
	require.NotEmpty(t, inserted.ReferenceNumber.String)
	require.Equal(t, "Wallet credit", inserted.Description.String)

	wallets.AssertExpectations(t)
	transactions.AssertExpectations(t)
}

func TestCredit_WalletNotFound(t *testing.T) {
	engine, store, wallets, _, _ := newTestEngine()

	wallets.On("GetOwned", int64(1), int64(10)).Return((*models.Wallet)(nil), false, nil)

	record, err := engine.Credit(context.Background(), 10, 1, 500, "")

	require.ErrorIs(t, err, ErrWalletNotFound)
	require.Nil(t, record)
	require.Equal(t, 0, store.calls)
}

func TestCredit_RejectsNonPositiveAmount(t *testing.T) {
	engine, _, _, _, _ := newTestEngine()

	record, err := engine.Credit(context.Background(), 10, 1, 0, "")

	require.ErrorIs(t, err, ErrInvalidAmount)
	require.Nil(t, record)
}

func TestTransferBetweenWallets_StoreFailureSurfaces(t *testing.T) {
	engine, _, wallets, _, _ := newTestEngine()

	storeErr := errors.New("connection reset")

	wallets.On("GetOwned", int64(1), int64(10)).Return(&models.Wallet{ID: 1, UserID: 10, Balance: 500}, true, nil)
	wallets.On("GetOne", int64(2)).Return(&models.Wallet{ID: 2, UserID: 20}, true, nil)
	wallets.On("LockForUpdate", mock.Anything, int64(1)).Return((*models.Wallet)(nil), false, storeErr)

	record, err := engine.TransferBetweenWallets(context.Background(), 10, 1, 2, 200, "", "")

	require.ErrorIs(t, err, storeErr)
	require.Nil(t, record)
}
