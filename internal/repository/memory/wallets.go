package memory

import (
	"context"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository"
	"github.com/shopspring/decimal"
)

// WalletStore кошельки и леджер
type WalletStore struct{ st *Store }

func (s *Store) Wallets() *WalletStore { return &WalletStore{st: s} }

func (r *WalletStore) GetOrCreateForUpdate(ctx context.Context, userID int64, currency string) (*model.Wallet, error) {
	defer r.st.enter(ctx)()

	w, ok := r.st.state.wallets[userID]
	if !ok {
		now := time.Now()
		w = model.Wallet{
			ID:            r.st.state.next("wallets"),
			UserID:        userID,
			Currency:      currency,
			Balance:       decimal.Zero,
			TotalSpent:    decimal.Zero,
			TotalRefunded: decimal.Zero,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		r.st.state.wallets[userID] = w
	}
	return &w, nil
}

func (r *WalletStore) GetByUserID(ctx context.Context, userID int64) (*model.Wallet, error) {
	defer r.st.enter(ctx)()

	w, ok := r.st.state.wallets[userID]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (r *WalletStore) Update(ctx context.Context, wallet *model.Wallet) error {
	defer r.st.enter(ctx)()

	if wallet.Balance.IsNegative() {
		return ErrNegativeBalance
	}
	current, ok := r.st.state.wallets[wallet.UserID]
	if !ok || current.ID != wallet.ID {
		return repository.ErrStaleState
	}

	wallet.UpdatedAt = time.Now()
	r.st.state.wallets[wallet.UserID] = *wallet
	return nil
}

func (r *WalletStore) CreateTransaction(ctx context.Context, t *model.WalletTransaction) error {
	defer r.st.enter(ctx)()

	now := time.Now()
	t.ID = r.st.state.next("wallet_transactions")
	t.CreatedAt = now
	t.UpdatedAt = now
	r.st.state.walletTxs = append(r.st.state.walletTxs, *t)
	return nil
}

// UpdateTransactionStatus меняет статус записи, только если он всё ещё равен from
func (r *WalletStore) UpdateTransactionStatus(ctx context.Context, t *model.WalletTransaction, from model.TransactionStatus) error {
	defer r.st.enter(ctx)()

	for i := range r.st.state.walletTxs {
		stored := &r.st.state.walletTxs[i]
		if stored.ID != t.ID {
			continue
		}
		if stored.Status != from {
			return repository.ErrStaleState
		}
		t.UpdatedAt = time.Now()
		stored.Status = t.Status
		stored.BalanceAfter = t.BalanceAfter
		stored.UpdatedAt = t.UpdatedAt
		return nil
	}
	return repository.ErrStaleState
}

func (r *WalletStore) ListTransactions(ctx context.Context, walletID int64) ([]*model.WalletTransaction, error) {
	defer r.st.enter(ctx)()

	return r.filter(func(t model.WalletTransaction) bool { return t.WalletID == walletID }), nil
}

func (r *WalletStore) ListTransactionsByReference(ctx context.Context, reference string) ([]*model.WalletTransaction, error) {
	defer r.st.enter(ctx)()

	return r.filter(func(t model.WalletTransaction) bool { return t.Reference == reference }), nil
}

// filter возвращает копии записей в порядке создания
func (r *WalletStore) filter(match func(model.WalletTransaction) bool) []*model.WalletTransaction {
	txs := []*model.WalletTransaction{}
	for _, t := range r.st.state.walletTxs {
		if match(t) {
			t := t
			txs = append(txs, &t)
		}
	}
	return txs
}
