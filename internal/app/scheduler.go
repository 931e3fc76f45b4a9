package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ModificationExpirer закрывает запросы на перенос, время которых уже прошло
type ModificationExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	cron    *cron.Cron
	expirer ModificationExpirer
	timeout time.Duration
	logger  *zap.Logger
}

func NewScheduler(expirer ModificationExpirer, timeout time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		expirer: expirer,
		timeout: timeout,
		logger:  logger,
	}
}

// Start регистрирует задачи по расписанию spec и запускает планировщик
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	_, err := s.cron.AddFunc(spec, func() { s.expireModifications(ctx) })
	if err != nil {
		return fmt.Errorf("schedule modification expiry: %w", err)
	}

	s.logger.Info("Starting background scheduler", zap.String("modification_expiry", spec))

	// первый проход сразу при старте
	go s.expireModifications(ctx)
	s.cron.Start()
	return nil
}

// Stop останавливает планировщик и ждёт завершения запущенных задач
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) expireModifications(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	expired, err := s.expirer.ExpireStale(ctx, time.Now())
	if err != nil {
		s.logger.Error("Failed to expire stale modifications", zap.Error(err))
		return
	}

	if expired > 0 {
		s.logger.Info("Stale modifications expired", zap.Int("count", expired))
	}
}
