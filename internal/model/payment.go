package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type MethodKind string

const (
	MethodWallet       MethodKind = "wallet"
	MethodCard         MethodKind = "card"
	MethodBankTransfer MethodKind = "bank_transfer"
	MethodPayPal       MethodKind = "paypal"
)

const (
	CurrencyNGN = "NGN"
	CurrencyUSD = "USD"
)

// PaymentMethod способ оплаты. Реализации: WalletMethod, CardMethod,
// BankTransferMethod, PayPalMethod
type PaymentMethod interface {
	Kind() MethodKind
	paymentMethod()
}

// WalletMethod оплата с внутреннего кошелька
type WalletMethod struct{}

// CardMethod оплата картой по токену платёжного метода
type CardMethod struct {
	Token string `json:"token"`
}

// BankTransferMethod оплата банковским переводом, подтверждается позже
type BankTransferMethod struct{}

// PayPalMethod оплата через PayPal заказ, требует capture
type PayPalMethod struct{}

func (WalletMethod) Kind() MethodKind       { return MethodWallet }
func (CardMethod) Kind() MethodKind         { return MethodCard }
func (BankTransferMethod) Kind() MethodKind { return MethodBankTransfer }
func (PayPalMethod) Kind() MethodKind       { return MethodPayPal }

func (WalletMethod) paymentMethod()       {}
func (CardMethod) paymentMethod()         {}
func (BankTransferMethod) paymentMethod() {}
func (PayPalMethod) paymentMethod()       {}

// ParsePaymentMethod собирает способ оплаты из строкового вида запроса
func ParsePaymentMethod(kind, token string) (PaymentMethod, error) {
	switch MethodKind(kind) {
	case MethodWallet:
		return WalletMethod{}, nil
	case MethodCard:
		if token == "" {
			return nil, fmt.Errorf("card payment requires a payment method token")
		}
		return CardMethod{Token: token}, nil
	case MethodBankTransfer:
		return BankTransferMethod{}, nil
	case MethodPayPal:
		return PayPalMethod{}, nil
	default:
		return nil, fmt.Errorf("unsupported payment method: %s", kind)
	}
}

// PaymentResult результат списания
type PaymentResult struct {
	Success   bool            `json:"success"`
	Reference string          `json:"reference"`
	Message   string          `json:"message"`
	Pending   bool            `json:"pending"`
	Method    MethodKind      `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	ActionURL string          `json:"action_url,omitempty"`

	// Сумма в валюте кошелька
	WalletAmount decimal.Decimal `json:"-"`
	// Идентификатор транзакции у внешнего провайдера
	GatewayTransactionID string `json:"-"`
}

// GatewayCharge запрос списания у внешнего провайдера
type GatewayCharge struct {
	Reference   string
	Method      MethodKind
	Amount      decimal.Decimal
	Currency    string
	Token       string
	Description string
}

// GatewayResult ответ внешнего провайдера
type GatewayResult struct {
	Success       bool
	TransactionID string
	Message       string
	// Pending платёж создан, но деньги будут получены позже (Capture)
	Pending   bool
	ActionURL string
}
