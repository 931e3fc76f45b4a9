package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Converter пересчитывает суммы между NGN и USD по фиксированному курсу
type Converter struct {
	ngnPerUSD decimal.Decimal
}

func NewConverter(ngnPerUSD decimal.Decimal) *Converter {
	return &Converter{ngnPerUSD: ngnPerUSD}
}

// Convert пересчитывает amount из валюты from в валюту to
func (c *Converter) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	if !c.ngnPerUSD.IsPositive() {
		return decimal.Zero, newError(ErrInvalidRequest, "currency conversion rate is not configured", nil)
	}

	switch {
	case from == model.CurrencyUSD && to == model.CurrencyNGN:
		return amount.Mul(c.ngnPerUSD).Round(2), nil
	case from == model.CurrencyNGN && to == model.CurrencyUSD:
		return amount.Div(c.ngnPerUSD).Round(2), nil
	default:
		return decimal.Zero, newError(ErrInvalidRequest, fmt.Sprintf("unsupported currency pair %s/%s", from, to), nil)
	}
}

// ChargeRequest запрос оплаты. Amount указан в валюте кошелька,
// Currency валюта, в которой платёж проводит внешний провайдер
type ChargeRequest struct {
	StudentID   int64
	Amount      decimal.Decimal
	Currency    string
	Method      model.PaymentMethod
	Description string
}

// Charger проводит оплату одним способом
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest, reference string) (*model.PaymentResult, error)
}

// PaymentService выбирает Charger по способу оплаты и ведёт аудит платежей в леджере
type PaymentService struct {
	wallets   *WalletService
	gateways  map[model.MethodKind]Gateway
	chargers  map[model.MethodKind]Charger
	converter *Converter
	timeout   time.Duration
	logger    *zap.Logger
}

func NewPaymentService(
	wallets *WalletService,
	gateways map[model.MethodKind]Gateway,
	converter *Converter,
	timeout time.Duration,
	logger *zap.Logger,
) *PaymentService {
	s := &PaymentService{
		wallets:   wallets,
		gateways:  gateways,
		chargers:  make(map[model.MethodKind]Charger, len(gateways)+1),
		converter: converter,
		timeout:   timeout,
		logger:    logger,
	}

	s.chargers[model.MethodWallet] = &walletCharger{wallets: wallets}
	for kind, gw := range gateways {
		s.chargers[kind] = &gatewayCharger{
			gateway:   gw,
			converter: converter,
			currency:  wallets.Currency(),
			timeout:   timeout,
		}
	}

	return s
}

// Convert пересчитывает сумму по настроенному курсу
func (s *PaymentService) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	return s.converter.Convert(amount, from, to)
}

// IsExternal проверяет, проводится ли оплата внешним провайдером
func IsExternal(kind model.MethodKind) bool {
	return kind != model.MethodWallet
}

// Charge проводит оплату. Оплата кошельком присоединяется к транзакции из ctx,
// внешнюю оплату нужно вызывать вне транзакции
func (s *PaymentService) Charge(ctx context.Context, req ChargeRequest) (*model.PaymentResult, error) {
	if req.Method == nil {
		return nil, newError(ErrInvalidRequest, "payment method is required", nil)
	}

	charger, ok := s.chargers[req.Method.Kind()]
	if !ok {
		return nil, newError(ErrInvalidRequest, fmt.Sprintf("payment method %s is not available", req.Method.Kind()), nil)
	}

	if req.Currency == "" {
		req.Currency = s.wallets.Currency()
	}

	result, err := charger.Charge(ctx, req, uuid.NewString())
	if err != nil {
		s.logger.Warn("Payment failed",
			zap.Int64("student_id", req.StudentID),
			zap.String("method", string(req.Method.Kind())),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Payment charged",
		zap.Int64("student_id", req.StudentID),
		zap.String("method", string(result.Method)),
		zap.String("reference", result.Reference),
		zap.String("amount", result.Amount.StringFixed(2)),
		zap.String("currency", result.Currency),
		zap.Bool("pending", result.Pending))

	return result, nil
}

// Record записывает внешний платёж в леджер: пополнение и списание на ту же сумму.
// Для отложенных платежей записи остаются pending до Settle
func (s *PaymentService) Record(ctx context.Context, studentID int64, result *model.PaymentResult, description string) error {
	if result.Method == model.MethodWallet {
		return nil
	}

	entries := []LedgerEntry{
		{
			UserID:      studentID,
			Direction:   model.DirectionCredit,
			Amount:      result.WalletAmount,
			Description: fmt.Sprintf("top-up via %s", result.Method),
			Reference:   result.Reference,
		},
		{
			UserID:      studentID,
			Direction:   model.DirectionDebit,
			Amount:      result.WalletAmount,
			Description: description,
			Reference:   result.Reference,
		},
	}

	for _, entry := range entries {
		var err error
		if result.Pending {
			_, err = s.wallets.RecordPending(ctx, entry)
		} else {
			_, err = s.wallets.Post(ctx, entry)
		}
		if err != nil {
			return fmt.Errorf("record %s payment: %w", result.Method, err)
		}
	}

	return nil
}

// Capture получает деньги по отложенному платежу. Результат возвращается вместе
// с ошибкой только при отказе провайдера
func (s *PaymentService) Capture(ctx context.Context, kind model.MethodKind, reference string) (*model.GatewayResult, error) {
	gw, ok := s.gateways[kind]
	if !ok {
		return nil, newError(ErrInvalidRequest, fmt.Sprintf("payment method %s is not available", kind), nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := gw.Capture(ctx, reference)
	if err != nil {
		return nil, newError(ErrGatewayFailure, "payment provider is unavailable", err)
	}
	if !res.Success {
		return res, newError(ErrGatewayFailure, res.Message, nil)
	}
	if res.Pending {
		return nil, newError(ErrInvalidStateTransition, "payment is still being processed by the provider", nil)
	}

	return res, nil
}

// Reverse компенсирует проведённый платёж: кошелёк получает refund-начисление,
// внешний платёж возвращается у провайдера
func (s *PaymentService) Reverse(ctx context.Context, studentID int64, result *model.PaymentResult, cause error) error {
	if result == nil || !result.Success {
		return nil
	}

	reason := "request failed"
	if cause != nil {
		reason = cause.Error()
	}

	if result.Method == model.MethodWallet {
		_, err := s.wallets.Post(ctx, LedgerEntry{
			UserID:      studentID,
			Direction:   model.DirectionCredit,
			Amount:      result.WalletAmount,
			Description: model.RefundPrefix + " " + reason,
			Reference:   result.Reference,
		})
		if err != nil {
			return fmt.Errorf("reverse wallet payment: %w", err)
		}
	} else {
		gw, ok := s.gateways[result.Method]
		if !ok {
			return fmt.Errorf("reverse payment: no gateway for %s", result.Method)
		}

		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		if err := gw.Refund(ctx, result.GatewayTransactionID, result.Amount, result.Currency); err != nil {
			return fmt.Errorf("reverse %s payment: %w", result.Method, err)
		}
	}

	s.logger.Warn("Payment reversed",
		zap.Int64("student_id", studentID),
		zap.String("method", string(result.Method)),
		zap.String("reference", result.Reference),
		zap.String("reason", reason))

	return nil
}

type walletCharger struct {
	wallets *WalletService
}

func (c *walletCharger) Charge(ctx context.Context, req ChargeRequest, reference string) (*model.PaymentResult, error) {
	t, err := c.wallets.Post(ctx, LedgerEntry{
		UserID:      req.StudentID,
		Direction:   model.DirectionDebit,
		Amount:      req.Amount,
		Description: req.Description,
		Reference:   reference,
	})
	if err != nil {
		return nil, err
	}

	return &model.PaymentResult{
		Success:      true,
		Reference:    reference,
		Message:      "paid from wallet",
		Method:       model.MethodWallet,
		Amount:       t.Amount,
		Currency:     c.wallets.Currency(),
		WalletAmount: t.Amount,
	}, nil
}

type gatewayCharger struct {
	gateway   Gateway
	converter *Converter
	currency  string
	timeout   time.Duration
}

func (c *gatewayCharger) Charge(ctx context.Context, req ChargeRequest, reference string) (*model.PaymentResult, error) {
	amount, err := c.converter.Convert(req.Amount, c.currency, req.Currency)
	if err != nil {
		return nil, err
	}

	charge := model.GatewayCharge{
		Reference:   reference,
		Method:      req.Method.Kind(),
		Amount:      amount,
		Currency:    req.Currency,
		Description: req.Description,
	}
	if card, ok := req.Method.(model.CardMethod); ok {
		charge.Token = card.Token
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.gateway.Charge(ctx, charge)
	if err != nil {
		return nil, newError(ErrGatewayFailure, "payment provider is unavailable", err)
	}
	if !res.Success {
		return nil, newError(ErrGatewayFailure, res.Message, nil)
	}

	ref := res.TransactionID
	if ref == "" {
		ref = reference
	}

	return &model.PaymentResult{
		Success:              true,
		Reference:            ref,
		Message:              res.Message,
		Pending:              res.Pending,
		Method:               req.Method.Kind(),
		Amount:               amount,
		Currency:             req.Currency,
		ActionURL:            res.ActionURL,
		WalletAmount:         req.Amount,
		GatewayTransactionID: res.TransactionID,
	}, nil
}
