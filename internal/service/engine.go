package service

import (
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EngineConfig настройки движка
type EngineConfig struct {
	WalletCurrency string
	NGNPerUSD      decimal.Decimal
	GatewayTimeout time.Duration
	Options        Options
}

// Engine собранные сервисы движка над одним набором хранилищ
type Engine struct {
	Wallets       *WalletService
	Payments      *PaymentService
	Bookings      *BookingService
	Modifications *ModificationService
	Dispatcher    *Dispatcher
}

func NewEngine(
	stores Stores,
	gateways map[model.MethodKind]Gateway,
	guard RequestGuard,
	notifier Notifier,
	cfg EngineConfig,
	logger *zap.Logger,
) *Engine {
	wallets := NewWalletService(stores.Tx, stores.Wallets, cfg.WalletCurrency, logger)
	payments := NewPaymentService(wallets, gateways, NewConverter(cfg.NGNPerUSD), cfg.GatewayTimeout, logger)
	resolver := NewAvailabilityResolver(stores.Availability, cfg.Options.Now)
	dispatcher := NewDispatcher(notifier, logger)

	return &Engine{
		Wallets:       wallets,
		Payments:      payments,
		Bookings:      NewBookingService(stores, resolver, wallets, payments, guard, dispatcher, cfg.Options, logger),
		Modifications: NewModificationService(stores, resolver, wallets, payments, dispatcher, cfg.Options, logger),
		Dispatcher:    dispatcher,
	}
}
