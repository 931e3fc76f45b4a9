package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BankTransferGateway ручной банковский перевод. Оператор отмечает поступление
// денег через RecordReceipt, до этого Capture возвращает pending.
// Выставленные суммы хранятся в памяти процесса: после рестарта Capture
// сверяется только с тем, что записал оператор. Возвраты выполняются вручную
type BankTransferGateway struct {
	mu       sync.Mutex
	expected map[string]decimal.Decimal
	received map[string]decimal.Decimal
	logger   *zap.Logger
}

func NewBankTransferGateway(logger *zap.Logger) *BankTransferGateway {
	return &BankTransferGateway{
		expected: make(map[string]decimal.Decimal),
		received: make(map[string]decimal.Decimal),
		logger:   logger,
	}
}

func (g *BankTransferGateway) Charge(ctx context.Context, charge model.GatewayCharge) (*model.GatewayResult, error) {
	id := "bt_" + charge.Reference

	g.mu.Lock()
	g.expected[id] = charge.Amount
	g.mu.Unlock()

	g.logger.Info("Bank transfer awaiting funds",
		zap.String("transaction_id", id),
		zap.String("amount", charge.Amount.StringFixed(2)),
		zap.String("currency", charge.Currency))

	return &model.GatewayResult{
		Success:       true,
		Pending:       true,
		TransactionID: id,
		Message:       "transfer the amount quoting reference " + id,
	}, nil
}

// RecordReceipt фиксирует сумму, поступившую на счёт по переводу.
// Повторные поступления суммируются
func (g *BankTransferGateway) RecordReceipt(ctx context.Context, transactionID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.New("received amount must be positive")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.received[transactionID] = g.received[transactionID].Add(amount)

	g.logger.Info("Bank transfer receipt recorded",
		zap.String("transaction_id", transactionID),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("total_received", g.received[transactionID].StringFixed(2)))
	return nil
}

// Capture успешен только когда поступила вся выставленная сумма
func (g *BankTransferGateway) Capture(ctx context.Context, transactionID string) (*model.GatewayResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	received := g.received[transactionID]
	expected, known := g.expected[transactionID]

	if !received.IsPositive() || (known && received.LessThan(expected)) {
		return &model.GatewayResult{
			Success:       true,
			Pending:       true,
			TransactionID: transactionID,
			Message:       "transfer has not been received in full yet",
		}, nil
	}

	return &model.GatewayResult{
		Success:       true,
		TransactionID: transactionID,
		Message:       "transfer received",
	}, nil
}

func (g *BankTransferGateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) error {
	g.logger.Warn("Bank transfer refund requires manual payout",
		zap.String("transaction_id", transactionID),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("currency", currency))
	return nil
}
