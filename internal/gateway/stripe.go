// Package gateway внешние платёжные провайдеры: Stripe (карты), PayPal и
// ручной банковский перевод
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// StripeGateway списание с карты через PaymentIntent
type StripeGateway struct {
	api    *client.API
	logger *zap.Logger
}

func NewStripeGateway(secretKey string, logger *zap.Logger) *StripeGateway {
	return NewStripeGatewayWithBackends(secretKey, nil, logger)
}

// NewStripeGatewayWithBackends позволяет подменить адрес API (тесты, прокси)
func NewStripeGatewayWithBackends(secretKey string, backends *stripe.Backends, logger *zap.Logger) *StripeGateway {
	return &StripeGateway{
		api:    client.New(secretKey, backends),
		logger: logger,
	}
}

// Charge создаёт и сразу подтверждает PaymentIntent
func (g *StripeGateway) Charge(ctx context.Context, charge model.GatewayCharge) (*model.GatewayResult, error) {
	if charge.Token == "" {
		return nil, fmt.Errorf("stripe charge: payment method token is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(minorUnits(charge.Amount)),
		Currency:           stripe.String(strings.ToLower(charge.Currency)),
		PaymentMethod:      stripe.String(charge.Token),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
		Description:        stripe.String(charge.Description),
	}
	params.Context = ctx
	params.AddMetadata("reference", charge.Reference)
	params.SetIdempotencyKey(charge.Reference)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return declined(err)
	}

	result := intentResult(pi)

	g.logger.Info("Stripe payment intent created",
		zap.String("reference", charge.Reference),
		zap.String("payment_intent", pi.ID),
		zap.String("status", string(pi.Status)))

	return result, nil
}

// Capture завершает платёж: списывает авторизованную сумму или проверяет статус
func (g *StripeGateway) Capture(ctx context.Context, transactionID string) (*model.GatewayResult, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(transactionID, params)
	if err != nil {
		return nil, fmt.Errorf("get payment intent: %w", err)
	}

	if pi.Status == stripe.PaymentIntentStatusRequiresCapture {
		captureParams := &stripe.PaymentIntentCaptureParams{}
		captureParams.Context = ctx
		captureParams.SetIdempotencyKey("capture-" + transactionID)

		pi, err = g.api.PaymentIntents.Capture(transactionID, captureParams)
		if err != nil {
			return declined(err)
		}
	}

	g.logger.Info("Stripe payment intent captured",
		zap.String("payment_intent", pi.ID),
		zap.String("status", string(pi.Status)))

	return intentResult(pi), nil
}

// Refund возвращает платёж. Нулевая сумма означает полный возврат
func (g *StripeGateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(transactionID),
	}
	if amount.IsPositive() {
		params.Amount = stripe.Int64(minorUnits(amount))
	}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + transactionID + "-" + amount.StringFixed(2))

	refund, err := g.api.Refunds.New(params)
	if err != nil {
		return fmt.Errorf("create stripe refund: %w", err)
	}

	g.logger.Info("Stripe refund created",
		zap.String("payment_intent", transactionID),
		zap.String("refund_id", refund.ID),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("currency", currency))

	return nil
}

func intentResult(pi *stripe.PaymentIntent) *model.GatewayResult {
	result := &model.GatewayResult{
		TransactionID: pi.ID,
		Message:       string(pi.Status),
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.Success = true
	case stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresCapture:
		result.Success = true
		result.Pending = true
		if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
			result.ActionURL = pi.NextAction.RedirectToURL.URL
		}
	default:
		if pi.LastPaymentError != nil {
			result.Message = pi.LastPaymentError.Msg
		}
	}

	return result
}

// declined превращает отказ по карте в неуспешный результат, остальные ошибки возвращает как есть
func declined(err error) (*model.GatewayResult, error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
		return &model.GatewayResult{Success: false, Message: stripeErr.Msg}, nil
	}
	return nil, fmt.Errorf("stripe request: %w", err)
}

func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
