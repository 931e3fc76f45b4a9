package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionDirection string

const (
	DirectionCredit TransactionDirection = "credit"
	DirectionDebit  TransactionDirection = "debit"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// RefundPrefix начало описания компенсирующих начислений
const RefundPrefix = "refund:"

// Wallet кошелёк пользователя. Меняется только через операции леджера
type Wallet struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	Currency      string          `json:"currency"`
	Balance       decimal.Decimal `json:"balance"`
	TotalSpent    decimal.Decimal `json:"total_spent"`
	TotalRefunded decimal.Decimal `json:"total_refunded"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// WalletTransaction неизменяемая запись об одном движении средств
type WalletTransaction struct {
	ID           int64                `json:"id"`
	WalletID     int64                `json:"wallet_id"`
	Direction    TransactionDirection `json:"direction"`
	Amount       decimal.Decimal      `json:"amount"`
	Status       TransactionStatus    `json:"status"`
	Description  string               `json:"description"`
	Reference    string               `json:"reference"`
	BalanceAfter decimal.Decimal      `json:"balance_after"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

func (t *WalletTransaction) IsCompleted() bool {
	return t.Status == TransactionStatusCompleted
}

func (t *WalletTransaction) IsPending() bool {
	return t.Status == TransactionStatusPending
}

// Signed возвращает сумму со знаком: кредит положительный, дебет отрицательный
func (t *WalletTransaction) Signed() decimal.Decimal {
	if t.Direction == DirectionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}
