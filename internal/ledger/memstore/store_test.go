package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bankadmin/ledger/internal/ledger"
	"github.com/bankadmin/ledger/internal/ledger/memstore"
)

func seedAccount(t *testing.T, st *memstore.Store) int64 {
	t.Helper()

	ctx := context.Background()

	uow, err := st.Begin(ctx)
	require.NoError(t, err)

	acc := &ledger.Account{Number: "1001", CustomerID: 1, Type: ledger.AccountTypeSavings, Balance: decimal.Zero}
	require.NoError(t, uow.CreateAccount(ctx, acc))
	require.NoError(t, uow.Commit())

	return acc.ID
}

func TestStore_UncommittedWorkIsInvisible(t *testing.T) {
	st := memstore.New()
	st.AddCustomer(1, 10)
	id := seedAccount(t, st)

	ctx := context.Background()

	uow, err := st.Begin(ctx)
	require.NoError(t, err)

	_, err = uow.LockAccount(ctx, id)
	require.NoError(t, err)
	require.NoError(t, uow.UpdateBalance(ctx, id, decimal.NewFromInt(5)))
	require.NoError(t, uow.AppendTransaction(ctx, &ledger.Transaction{
		AccountID: id,
		Kind:      ledger.KindDeposit,
		Direction: ledger.DirectionCredit,
		Amount:    decimal.NewFromInt(5),
	}))

	acc, err := st.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.True(t, acc.Balance.IsZero())

	require.NoError(t, uow.Rollback())
	require.NoError(t, uow.Rollback())

	txs, err := st.ListTransactions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestStore_LockWaitHonoursContext(t *testing.T) {
	st := memstore.New()
	st.AddCustomer(1, 10)
	id := seedAccount(t, st)

	holder, err := st.Begin(context.Background())
	require.NoError(t, err)

	_, err = holder.LockAccount(context.Background(), id)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	waiter, err := st.Begin(ctx)
	require.NoError(t, err)

	_, err = waiter.LockAccount(ctx, id)
	assert.ErrorIs(t, err, ledger.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, holder.Rollback())

	next, err := st.Begin(context.Background())
	require.NoError(t, err)

	_, err = next.LockAccount(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, next.Rollback())
}

func TestStore_FinishedUnitRejectsWrites(t *testing.T) {
	st := memstore.New()
	st.AddCustomer(1, 10)
	id := seedAccount(t, st)

	ctx := context.Background()

	uow, err := st.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Commit())

	_, err = uow.LockAccount(ctx, id)
	assert.ErrorIs(t, err, ledger.ErrStoreUnavailable)
}

func TestStore_UnknownCustomer(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()

	uow, err := st.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()

	err = uow.CreateAccount(ctx, &ledger.Account{Number: "1", CustomerID: 7, Type: ledger.AccountTypeCurrent})
	assert.ErrorIs(t, err, ledger.ErrNoCustomerProfile)

	_, err = st.CustomerForUser(ctx, 70)
	assert.ErrorIs(t, err, ledger.ErrNoCustomerProfile)
}
