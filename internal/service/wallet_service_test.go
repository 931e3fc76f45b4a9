package service

import (
	"context"
	"sync"
	"testing"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedSum(txs []*model.WalletTransaction) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range txs {
		if t.IsCompleted() {
			sum = sum.Add(t.Signed())
		}
	}
	return sum
}

func TestBalanceEqualsCompletedLedger(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	wallets := e.engine.Wallets
	userID := e.student.ID

	_, err := wallets.Credit(ctx, userID, ngn(5000), "top-up")
	require.NoError(t, err)
	_, err = wallets.Debit(ctx, userID, ngn(1200), "lesson")
	require.NoError(t, err)
	_, err = wallets.Credit(ctx, userID, ngn(300), model.RefundPrefix+" lesson cancelled")
	require.NoError(t, err)
	_, err = wallets.RecordPending(ctx, LedgerEntry{
		UserID:    userID,
		Direction: model.DirectionCredit,
		Amount:    ngn(9999),
		Reference: "pending-ref",
	})
	require.NoError(t, err)

	w, err := wallets.Balance(ctx, userID)
	require.NoError(t, err)

	assert.True(t, w.Balance.Equal(ngn(4100)), "balance %s", w.Balance)
	assert.True(t, w.Balance.Equal(completedSum(e.walletTxs(userID))))
	assert.True(t, w.TotalSpent.Equal(ngn(1200)))
	assert.True(t, w.TotalRefunded.Equal(ngn(300)))
}

func TestDebitNeverOverdraws(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.fund(e.student.ID, 100)

	_, err := e.engine.Wallets.Debit(ctx, e.student.ID, ngn(101), "too much")
	require.ErrorIs(t, err, ErrInsufficientFunds)

	assert.True(t, e.balance(e.student.ID).Equal(ngn(100)))
	assert.Len(t, e.walletTxs(e.student.ID), 1)
}

func TestPostRejectsNonPositiveAmount(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.engine.Wallets.Credit(ctx, e.student.ID, decimal.Zero, "nothing")
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))

	_, err = e.engine.Wallets.Debit(ctx, e.student.ID, ngn(-5), "negative")
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))
}

func TestConcurrentDebitsDoNotOverdraw(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.fund(e.student.ID, 1500)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.engine.Wallets.Debit(ctx, e.student.ID, ngn(1000), "lesson")
		}(i)
	}
	wg.Wait()

	succeeded, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case CodeOf(err) == CodeInsufficientFunds:
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)
	assert.True(t, e.balance(e.student.ID).Equal(ngn(500)))

	debits := 0
	for _, tx := range e.walletTxs(e.student.ID) {
		if tx.Direction == model.DirectionDebit {
			debits++
		}
	}
	assert.Equal(t, 1, debits)
}

func TestSettleAppliesPendingEntries(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	wallets := e.engine.Wallets

	for _, dir := range []model.TransactionDirection{model.DirectionCredit, model.DirectionDebit} {
		_, err := wallets.RecordPending(ctx, LedgerEntry{
			UserID:    e.student.ID,
			Direction: dir,
			Amount:    ngn(700),
			Reference: "ref-settle",
		})
		require.NoError(t, err)
	}
	assert.True(t, e.balance(e.student.ID).IsZero())

	settled, err := wallets.Settle(ctx, e.student.ID, "ref-settle")
	require.NoError(t, err)
	require.Len(t, settled, 2)

	entries, err := wallets.PaymentEntries(ctx, "ref-settle")
	require.NoError(t, err)
	for _, tx := range entries {
		assert.Equal(t, model.TransactionStatusCompleted, tx.Status)
	}
	assert.True(t, e.balance(e.student.ID).IsZero())

	// повторное подтверждение ничего не меняет
	again, err := wallets.Settle(ctx, e.student.ID, "ref-settle")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestFailKeepsBalance(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	wallets := e.engine.Wallets
	e.fund(e.student.ID, 250)

	_, err := wallets.RecordPending(ctx, LedgerEntry{
		UserID:    e.student.ID,
		Direction: model.DirectionCredit,
		Amount:    ngn(1000),
		Reference: "ref-fail",
	})
	require.NoError(t, err)

	failed, err := wallets.Fail(ctx, e.student.ID, "ref-fail")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, model.TransactionStatusFailed, failed[0].Status)
	assert.True(t, e.balance(e.student.ID).Equal(ngn(250)))

	_, err = wallets.Settle(ctx, e.student.ID, "")
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))
}

func TestBalanceOfMissingWalletIsZero(t *testing.T) {
	e := newTestEnv(t)

	w, err := e.engine.Wallets.Balance(context.Background(), e.other.ID)
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())
	assert.Equal(t, model.CurrencyNGN, w.Currency)
	assert.Empty(t, e.walletTxs(e.other.ID))
}

func TestConverter(t *testing.T) {
	c := NewConverter(ngn(1500))

	got, err := c.Convert(decimal.RequireFromString("12.50"), model.CurrencyUSD, model.CurrencyNGN)
	require.NoError(t, err)
	assert.True(t, got.Equal(ngn(18750)))

	got, err = c.Convert(ngn(1000), model.CurrencyNGN, model.CurrencyUSD)
	require.NoError(t, err)
	assert.Equal(t, "0.67", got.StringFixed(2))

	got, err = c.Convert(ngn(42), model.CurrencyNGN, model.CurrencyNGN)
	require.NoError(t, err)
	assert.True(t, got.Equal(ngn(42)))

	_, err = c.Convert(ngn(1), model.CurrencyNGN, "EUR")
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))

	_, err = NewConverter(decimal.Zero).Convert(ngn(1), model.CurrencyUSD, model.CurrencyNGN)
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))
}
