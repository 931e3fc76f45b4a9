package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WalletRepository struct {
	*base.Repository
}

func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{Repository: base.NewRepository(pool)}
}

const walletColumns = `id, user_id, currency, balance, total_spent, total_refunded, created_at, updated_at`

func scanWallet(row pgx.Row) (*model.Wallet, error) {
	var w model.Wallet
	err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.Currency,
		&w.Balance,
		&w.TotalSpent,
		&w.TotalRefunded,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetOrCreateForUpdate создаёт кошелёк при первом обращении и блокирует его строку.
// Должен вызываться внутри транзакции
func (r *WalletRepository) GetOrCreateForUpdate(ctx context.Context, userID int64, currency string) (*model.Wallet, error) {
	_, err := r.ExecAffected(ctx, `
		INSERT INTO wallets (user_id, currency)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, currency)
	if err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}

	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 FOR UPDATE`

	wallet, err := scanWallet(r.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}

	return wallet, nil
}

// GetByUserID получает кошелёк пользователя без блокировки
func (r *WalletRepository) GetByUserID(ctx context.Context, userID int64) (*model.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`

	wallet, err := scanWallet(r.QueryRow(ctx, query, userID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by user id: %w", err)
	}

	return wallet, nil
}

// Update сохраняет баланс и счётчики кошелька
func (r *WalletRepository) Update(ctx context.Context, wallet *model.Wallet) error {
	query := `
		UPDATE wallets
		SET balance = $1, total_spent = $2, total_refunded = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at
	`

	err := r.QueryRow(ctx, query,
		wallet.Balance,
		wallet.TotalSpent,
		wallet.TotalRefunded,
		wallet.ID,
	).Scan(&wallet.UpdatedAt)

	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}

	return nil
}

const walletTxColumns = `id, wallet_id, direction, amount, status, description, reference, balance_after, created_at, updated_at`

func scanWalletTx(row pgx.Row) (*model.WalletTransaction, error) {
	var t model.WalletTransaction
	err := row.Scan(
		&t.ID,
		&t.WalletID,
		&t.Direction,
		&t.Amount,
		&t.Status,
		&t.Description,
		&t.Reference,
		&t.BalanceAfter,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTransaction добавляет запись в леджер
func (r *WalletRepository) CreateTransaction(ctx context.Context, t *model.WalletTransaction) error {
	query := `
		INSERT INTO wallet_transactions (wallet_id, direction, amount, status, description, reference, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.QueryRow(ctx, query,
		t.WalletID,
		t.Direction,
		t.Amount,
		t.Status,
		t.Description,
		t.Reference,
		t.BalanceAfter,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create wallet transaction: %w", err)
	}

	return nil
}

// UpdateTransactionStatus переводит запись из статуса from (единственное разрешённое изменение)
func (r *WalletRepository) UpdateTransactionStatus(ctx context.Context, t *model.WalletTransaction, from model.TransactionStatus) error {
	affected, err := r.ExecAffected(ctx, `
		UPDATE wallet_transactions
		SET status = $1, balance_after = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, t.Status, t.BalanceAfter, t.ID, from)
	if err != nil {
		return fmt.Errorf("update wallet transaction status: %w", err)
	}

	if affected == 0 {
		return ErrStaleState
	}

	return nil
}

func (r *WalletRepository) listTransactions(ctx context.Context, query string, arg any) ([]*model.WalletTransaction, error) {
	rows, err := r.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	defer rows.Close()

	var txs []*model.WalletTransaction
	for rows.Next() {
		t, err := scanWalletTx(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet transaction: %w", err)
		}
		txs = append(txs, t)
	}

	return txs, rows.Err()
}

// ListTransactions возвращает леджер кошелька в порядке записи
func (r *WalletRepository) ListTransactions(ctx context.Context, walletID int64) ([]*model.WalletTransaction, error) {
	query := `SELECT ` + walletTxColumns + ` FROM wallet_transactions WHERE wallet_id = $1 ORDER BY id`
	return r.listTransactions(ctx, query, walletID)
}

// ListTransactionsByReference возвращает записи по ссылке платежа
func (r *WalletRepository) ListTransactionsByReference(ctx context.Context, reference string) ([]*model.WalletTransaction, error) {
	query := `SELECT ` + walletTxColumns + ` FROM wallet_transactions WHERE reference = $1 ORDER BY id`
	return r.listTransactions(ctx, query, reference)
}
