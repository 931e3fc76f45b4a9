package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/app"
	"github.com/Freeeeeet/tutor_booking/internal/config"
	"github.com/Freeeeeet/tutor_booking/internal/controller/api"
	"github.com/Freeeeeet/tutor_booking/internal/gateway"
	"github.com/Freeeeeet/tutor_booking/internal/infrastructure/lock"
	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/notification"
	"github.com/Freeeeeet/tutor_booking/internal/repository"
	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
	"github.com/Freeeeeet/tutor_booking/internal/repository/memory"
	"github.com/Freeeeeet/tutor_booking/internal/service"
	"github.com/go-redis/redis/v8"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Engine stopped with error", zap.Error(err))
	}
	logger.Info("Engine stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting booking engine",
		zap.String("environment", cfg.Environment),
		zap.String("storage", cfg.Storage),
		zap.String("wallet_currency", cfg.WalletCurrency))

	stores, cleanup, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	notifier, closeNotifier, err := buildNotifier(cfg, stores.Users, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	guard, closeGuard := buildGuard(cfg, logger)
	defer closeGuard()

	bankTransfers := gateway.NewBankTransferGateway(logger)

	engine := service.NewEngine(stores, buildGateways(cfg, bankTransfers, logger), guard, notifier, service.EngineConfig{
		WalletCurrency: cfg.WalletCurrency,
		NGNPerUSD:      cfg.NGNPerUSD,
		GatewayTimeout: cfg.GatewayTimeout,
		Options: service.Options{
			CancellationLeadTime: cfg.CancellationLeadTime,
			RequestTimeout:       cfg.RequestTimeout,
		},
	}, logger)
	defer engine.Dispatcher.Wait()

	scheduler := app.NewScheduler(engine.Modifications, time.Minute, logger)
	if err := scheduler.Start(ctx, cfg.ModificationExpirySpec); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Stop()

	if cfg.OperatorToken == "" {
		logger.Warn("OPERATOR_TOKEN is not set, operator endpoints are disabled")
	}

	handler := api.NewHandler(engine.Bookings, engine.Modifications, engine.Wallets, bankTransfers, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		Production:         cfg.IsProduction(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		OperatorToken:      cfg.OperatorToken,
	}, logger)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (service.Stores, func(), error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("Using in-memory storage, data is lost on restart")
		st := memory.NewStore()
		return service.Stores{
			Tx:            st,
			Wallets:       st.Wallets(),
			Availability:  st.Availability(),
			Subjects:      st.Subjects(),
			Bookings:      st.Bookings(),
			Sessions:      st.Sessions(),
			Modifications: st.Modifications(),
			History:       st.History(),
			Users:         st.Users(),
		}, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.GetDBDSN())
	if err != nil {
		return service.Stores{}, nil, fmt.Errorf("create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return service.Stores{}, nil, fmt.Errorf("connect to database: %w", err)
	}

	migrator, err := app.NewMigrator(pool, logger)
	if err != nil {
		pool.Close()
		return service.Stores{}, nil, err
	}
	defer migrator.Close()

	if err := migrator.Run(ctx); err != nil {
		pool.Close()
		return service.Stores{}, nil, err
	}

	stores := service.Stores{
		Tx:            base.NewTxManager(pool),
		Wallets:       repository.NewWalletRepository(pool),
		Availability:  repository.NewAvailabilityRepository(pool, logger),
		Subjects:      repository.NewSubjectRepository(pool, logger),
		Bookings:      repository.NewBookingRepository(pool),
		Sessions:      repository.NewSessionRepository(pool),
		Modifications: repository.NewModificationRepository(pool, logger),
		History:       repository.NewHistoryRepository(pool),
		Users:         repository.NewUserRepository(pool),
	}

	return stores, pool.Close, nil
}

func buildGateways(cfg *config.Config, bankTransfers *gateway.BankTransferGateway, logger *zap.Logger) map[model.MethodKind]service.Gateway {
	gateways := map[model.MethodKind]service.Gateway{
		model.MethodBankTransfer: bankTransfers,
	}

	if cfg.StripeSecretKey != "" {
		gateways[model.MethodCard] = gateway.NewStripeGateway(cfg.StripeSecretKey, logger)
	} else {
		logger.Warn("STRIPE_SECRET_KEY is not set, card payments are disabled")
	}

	if cfg.PayPalClientID != "" {
		gateways[model.MethodPayPal] = gateway.NewPayPalGateway(cfg.PayPalAPIBaseURL, cfg.PayPalClientID, cfg.PayPalClientSecret, logger)
	} else {
		logger.Warn("PAYPAL_CLIENT_ID is not set, PayPal payments are disabled")
	}

	return gateways
}

func buildNotifier(cfg *config.Config, users service.UserStore, logger *zap.Logger) (service.Notifier, func(), error) {
	notifiers := notification.Multi{notification.NewLogNotifier(logger)}
	closers := []func(){}

	if cfg.TelegramToken != "" {
		b, err := bot.New(cfg.TelegramToken)
		if err != nil {
			return nil, nil, fmt.Errorf("create telegram bot: %w", err)
		}
		notifiers = append(notifiers, notification.NewTelegramNotifier(b, users, logger))
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := notification.NewKafkaProducer(cfg.KafkaBrokers)
		if err != nil {
			return nil, nil, fmt.Errorf("create kafka producer: %w", err)
		}
		notifiers = append(notifiers, notification.NewKafkaNotifier(producer, cfg.KafkaTopic, logger))
		closers = append(closers, func() {
			if err := producer.Close(); err != nil {
				logger.Warn("Failed to close Kafka producer", zap.Error(err))
			}
		})
	}

	return notifiers, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

func buildGuard(cfg *config.Config, logger *zap.Logger) (service.RequestGuard, func()) {
	if cfg.RedisAddr == "" {
		return lock.NewLocalGuard(cfg.IdempotencyTTL), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return lock.NewRedisGuard(client, cfg.RequestTimeout, cfg.IdempotencyTTL, logger), func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
}
