package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerEntry одно движение средств по кошельку пользователя
type LedgerEntry struct {
	UserID      int64
	Direction   model.TransactionDirection
	Amount      decimal.Decimal
	Description string
	Reference   string
}

// WalletService леджер кошельков. Каждая операция выполняется под блокировкой
// строки кошелька и присоединяется к транзакции вызывающего, если она есть
type WalletService struct {
	txManager TxManager
	wallets   WalletStore
	currency  string
	logger    *zap.Logger
}

func NewWalletService(txManager TxManager, wallets WalletStore, currency string, logger *zap.Logger) *WalletService {
	return &WalletService{
		txManager: txManager,
		wallets:   wallets,
		currency:  currency,
		logger:    logger,
	}
}

// Currency валюта кошельков
func (s *WalletService) Currency() string {
	return s.currency
}

// Debit списывает amount с кошелька пользователя
func (s *WalletService) Debit(ctx context.Context, userID int64, amount decimal.Decimal, description string) (*model.WalletTransaction, error) {
	return s.Post(ctx, LedgerEntry{
		UserID:      userID,
		Direction:   model.DirectionDebit,
		Amount:      amount,
		Description: description,
	})
}

// Credit зачисляет amount на кошелёк пользователя
func (s *WalletService) Credit(ctx context.Context, userID int64, amount decimal.Decimal, description string) (*model.WalletTransaction, error) {
	return s.Post(ctx, LedgerEntry{
		UserID:      userID,
		Direction:   model.DirectionCredit,
		Amount:      amount,
		Description: description,
	})
}

// Post применяет движение к балансу и записывает завершённую транзакцию
func (s *WalletService) Post(ctx context.Context, entry LedgerEntry) (*model.WalletTransaction, error) {
	amount, err := ledgerAmount(entry.Amount)
	if err != nil {
		return nil, err
	}

	var t *model.WalletTransaction
	err = s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		wallet, err := s.wallets.GetOrCreateForUpdate(ctx, entry.UserID, s.currency)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}

		if err := applyEntry(wallet, entry.Direction, amount, entry.Description); err != nil {
			return err
		}

		if err := s.wallets.Update(ctx, wallet); err != nil {
			return err
		}

		t = &model.WalletTransaction{
			WalletID:     wallet.ID,
			Direction:    entry.Direction,
			Amount:       amount,
			Status:       model.TransactionStatusCompleted,
			Description:  entry.Description,
			Reference:    entry.Reference,
			BalanceAfter: wallet.Balance,
		}
		return s.wallets.CreateTransaction(ctx, t)
	})
	if err != nil {
		return nil, persistenceError(err)
	}

	s.logger.Info("Wallet transaction posted",
		zap.Int64("user_id", entry.UserID),
		zap.Int64("transaction_id", t.ID),
		zap.String("direction", string(t.Direction)),
		zap.String("amount", t.Amount.StringFixed(2)),
		zap.String("balance_after", t.BalanceAfter.StringFixed(2)),
	)

	return t, nil
}

// RecordPending записывает движение, которое не меняет баланс до Settle
func (s *WalletService) RecordPending(ctx context.Context, entry LedgerEntry) (*model.WalletTransaction, error) {
	amount, err := ledgerAmount(entry.Amount)
	if err != nil {
		return nil, err
	}

	var t *model.WalletTransaction
	err = s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		wallet, err := s.wallets.GetOrCreateForUpdate(ctx, entry.UserID, s.currency)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}

		t = &model.WalletTransaction{
			WalletID:     wallet.ID,
			Direction:    entry.Direction,
			Amount:       amount,
			Status:       model.TransactionStatusPending,
			Description:  entry.Description,
			Reference:    entry.Reference,
			BalanceAfter: wallet.Balance,
		}
		return s.wallets.CreateTransaction(ctx, t)
	})
	if err != nil {
		return nil, persistenceError(err)
	}

	s.logger.Info("Pending wallet transaction recorded",
		zap.Int64("user_id", entry.UserID),
		zap.Int64("transaction_id", t.ID),
		zap.String("reference", entry.Reference))

	return t, nil
}

// Settle применяет pending записи по ссылке платежа в порядке записи
func (s *WalletService) Settle(ctx context.Context, userID int64, reference string) ([]*model.WalletTransaction, error) {
	return s.resolvePending(ctx, userID, reference, model.TransactionStatusCompleted)
}

// Fail помечает pending записи по ссылке платежа как failed, баланс не меняется
func (s *WalletService) Fail(ctx context.Context, userID int64, reference string) ([]*model.WalletTransaction, error) {
	return s.resolvePending(ctx, userID, reference, model.TransactionStatusFailed)
}

func (s *WalletService) resolvePending(ctx context.Context, userID int64, reference string, to model.TransactionStatus) ([]*model.WalletTransaction, error) {
	if reference == "" {
		return nil, newError(ErrInvalidRequest, "payment reference is required", nil)
	}

	var resolved []*model.WalletTransaction
	err := s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		wallet, err := s.wallets.GetOrCreateForUpdate(ctx, userID, s.currency)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}

		txs, err := s.wallets.ListTransactionsByReference(ctx, reference)
		if err != nil {
			return err
		}

		for _, t := range txs {
			if t.WalletID != wallet.ID || !t.IsPending() {
				continue
			}

			if to == model.TransactionStatusCompleted {
				if err := applyEntry(wallet, t.Direction, t.Amount, t.Description); err != nil {
					return err
				}
			}

			t.Status = to
			t.BalanceAfter = wallet.Balance
			if err := s.wallets.UpdateTransactionStatus(ctx, t, model.TransactionStatusPending); err != nil {
				if errors.Is(err, repository.ErrStaleState) {
					return newError(ErrInvalidStateTransition, "wallet transaction is no longer pending", err)
				}
				return err
			}
			resolved = append(resolved, t)
		}

		if len(resolved) == 0 || to != model.TransactionStatusCompleted {
			return nil
		}
		return s.wallets.Update(ctx, wallet)
	})
	if err != nil {
		return nil, persistenceError(err)
	}

	s.logger.Info("Pending wallet transactions resolved",
		zap.Int64("user_id", userID),
		zap.String("reference", reference),
		zap.String("status", string(to)),
		zap.Int("count", len(resolved)))

	return resolved, nil
}

// Balance возвращает кошелёк пользователя. Кошелёк, которого ещё нет, имеет нулевой баланс
func (s *WalletService) Balance(ctx context.Context, userID int64) (*model.Wallet, error) {
	wallet, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return nil, persistenceError(err)
	}

	if wallet == nil {
		return &model.Wallet{
			UserID:        userID,
			Currency:      s.currency,
			Balance:       decimal.Zero,
			TotalSpent:    decimal.Zero,
			TotalRefunded: decimal.Zero,
		}, nil
	}

	return wallet, nil
}

// Transactions возвращает леджер кошелька пользователя
func (s *WalletService) Transactions(ctx context.Context, userID int64) ([]*model.WalletTransaction, error) {
	wallet, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return nil, persistenceError(err)
	}

	if wallet == nil {
		return []*model.WalletTransaction{}, nil
	}

	txs, err := s.wallets.ListTransactions(ctx, wallet.ID)
	if err != nil {
		return nil, persistenceError(err)
	}
	return txs, nil
}

// PaymentEntries возвращает записи леджера по ссылке платежа
func (s *WalletService) PaymentEntries(ctx context.Context, reference string) ([]*model.WalletTransaction, error) {
	if reference == "" {
		return nil, nil
	}
	txs, err := s.wallets.ListTransactionsByReference(ctx, reference)
	if err != nil {
		return nil, persistenceError(err)
	}
	return txs, nil
}

// paymentStatus сводный статус платежа по его записям. Пустая строка: записей нет
func paymentStatus(entries []*model.WalletTransaction) model.TransactionStatus {
	var status model.TransactionStatus
	for _, t := range entries {
		switch t.Status {
		case model.TransactionStatusPending:
			return model.TransactionStatusPending
		case model.TransactionStatusCompleted:
			status = model.TransactionStatusCompleted
		case model.TransactionStatusFailed:
			if status == "" {
				status = model.TransactionStatusFailed
			}
		}
	}
	return status
}

func ledgerAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, newError(ErrInvalidRequest, "amount must be greater than zero", nil)
	}
	return amount, nil
}

func applyEntry(wallet *model.Wallet, direction model.TransactionDirection, amount decimal.Decimal, description string) error {
	switch direction {
	case model.DirectionDebit:
		if amount.GreaterThan(wallet.Balance) {
			return newError(ErrInsufficientFunds, fmt.Sprintf(
				"wallet balance %s %s is less than %s, fund your wallet and retry",
				wallet.Balance.StringFixed(2), wallet.Currency, amount.StringFixed(2),
			), nil)
		}
		wallet.Balance = wallet.Balance.Sub(amount)
		wallet.TotalSpent = wallet.TotalSpent.Add(amount)
	case model.DirectionCredit:
		wallet.Balance = wallet.Balance.Add(amount)
		if strings.HasPrefix(description, model.RefundPrefix) {
			wallet.TotalRefunded = wallet.TotalRefunded.Add(amount)
		}
	default:
		return newError(ErrInvalidRequest, fmt.Sprintf("unknown transaction direction %q", direction), nil)
	}
	return nil
}

// persistenceError оставляет ошибки движка как есть, остальные считает сбоем хранилища
func persistenceError(err error) error {
	if err == nil || CodeOf(err) != "" {
		return err
	}
	return newError(ErrPersistenceFailure, "", err)
}
