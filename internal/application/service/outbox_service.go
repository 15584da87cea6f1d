package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/YoshitsuguKoike/guardbroker/internal/app"
	"github.com/YoshitsuguKoike/guardbroker/internal/application/port/output"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/notification"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/repository"
)

// OutboxConfig holds tuning for the delivery worker
type OutboxConfig struct {
	PollInterval time.Duration // How often the worker looks for due rows
	BaseDelay    time.Duration // First retry backoff; doubles per retry
	MaxRetries   int           // Attempts before a row is parked as failed
	BatchSize    int           // Due rows claimed per poll
}

// DefaultOutboxConfig returns default configuration
func DefaultOutboxConfig() OutboxConfig {
	return OutboxConfig{
		PollInterval: 5 * time.Second,
		BaseDelay:    10 * time.Second,
		MaxRetries:   5,
		BatchSize:    20,
	}
}

// OutboxService owns the durable notification queue and its background
// delivery worker. Enqueue never waits on network I/O; the worker
// delivers with bounded retry and exponential backoff, and is restarted
// by a supervisor if it ever dies.
type OutboxService struct {
	repo     repository.OutboxRepository
	notifier output.Notifier
	config   OutboxConfig
	logger   app.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce *sync.Once
}

// NewOutboxService creates an outbox service
func NewOutboxService(
	repo repository.OutboxRepository,
	notifier output.Notifier,
	config OutboxConfig,
	logger app.Logger,
) *OutboxService {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultOutboxConfig().PollInterval
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultOutboxConfig().BaseDelay
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultOutboxConfig().MaxRetries
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultOutboxConfig().BatchSize
	}
	if logger == nil {
		logger = app.NopLogger()
	}
	return &OutboxService{
		repo:     repo,
		notifier: notifier,
		config:   config,
		logger:   logger,
		stopOnce: &sync.Once{},
	}
}

// Enqueue inserts a pending message and returns immediately. Durable
// from this point on: delivery happens in the background and survives
// process restarts.
func (s *OutboxService) Enqueue(ctx context.Context, operationID, actor, message string) error {
	record := notification.NewRecord(operationID, actor, message)
	if err := s.repo.Enqueue(ctx, record); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// Start launches the supervised delivery worker
func (s *OutboxService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("outbox service already started")
	}

	workerCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopOnce = &sync.Once{}

	s.wg.Add(1)
	go s.supervise(workerCtx)
	return nil
}

// Stop shuts the worker down and waits for it to exit
func (s *OutboxService) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	once := s.stopOnce
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	once.Do(cancel)
	s.wg.Wait()

	s.mu.Lock()
	s.cancel = nil
	s.mu.Unlock()
	return nil
}

// supervise restarts the worker loop whenever it terminates while the
// service is still supposed to be running
func (s *OutboxService) supervise(ctx context.Context) {
	defer s.wg.Done()
	for {
		s.runWorker(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("outbox worker exited unexpectedly; restarting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// runWorker polls for due rows until the context is cancelled. Panics
// are contained so the supervisor can restart the loop.
func (s *OutboxService) runWorker(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("outbox worker panic: %v", r)
		}
	}()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ProcessDue(ctx)
		}
	}
}

// ProcessDue delivers every currently due pending message once.
// One failed message never halts the loop.
func (s *OutboxService) ProcessDue(ctx context.Context) {
	now := time.Now().UTC()
	due, err := s.repo.FindDue(ctx, now, s.config.BatchSize)
	if err != nil {
		s.logger.Error("query due notifications: %v", err)
		return
	}

	for _, record := range due {
		if ctx.Err() != nil {
			return
		}
		s.attempt(ctx, record)
	}
}

// attempt delivers a single message, containing any panic from the
// transport as a failed attempt
func (s *OutboxService) attempt(ctx context.Context, record *notification.Record) {
	var deliveryErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				deliveryErr = fmt.Errorf("transport panic: %v", r)
			}
		}()
		deliveryErr = s.notifier.Notify(ctx, record.OperationID(), record.Actor(), record.Message())
	}()

	now := time.Now().UTC()
	if deliveryErr == nil {
		if err := s.repo.MarkSent(ctx, record.ID(), now); err != nil {
			s.logger.Error("mark notification %d sent: %v", record.ID(), err)
		}
		return
	}

	attempts := record.RetryCount() + 1
	if attempts >= s.config.MaxRetries {
		s.logger.Warn("notification %d failed permanently after %d attempts: %v",
			record.ID(), attempts, deliveryErr)
		if err := s.repo.MarkFailed(ctx, record.ID(), now, deliveryErr.Error()); err != nil {
			s.logger.Error("mark notification %d failed: %v", record.ID(), err)
		}
		return
	}

	next := now.Add(s.backoff(record.RetryCount()))
	s.logger.Debug("notification %d delivery failed (attempt %d), retrying at %s: %v",
		record.ID(), attempts, next.Format(time.RFC3339), deliveryErr)
	if err := s.repo.MarkRetry(ctx, record.ID(), now, next, deliveryErr.Error()); err != nil {
		s.logger.Error("mark notification %d retry: %v", record.ID(), err)
	}
}

// backoff returns the delay before the next attempt: BaseDelay doubled
// per completed retry, so delays strictly increase
func (s *OutboxService) backoff(retries int) time.Duration {
	delay := s.config.BaseDelay
	for i := 0; i < retries; i++ {
		delay *= 2
	}
	return delay
}
