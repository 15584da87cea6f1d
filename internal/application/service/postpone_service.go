package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/YoshitsuguKoike/guardbroker/internal/app"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/operation"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/postpone"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/repository"
)

// PostponeConfig holds the clarification timing windows
type PostponeConfig struct {
	ClarifyWindow    time.Duration // Short wait for the first reply
	RetryNotifyDelay time.Duration // Long wait before the reminder
	RetryWindow      time.Duration // Wait after the reminder before cancel
	TickInterval     time.Duration // Timer resolution
}

// DefaultPostponeConfig returns default configuration
func DefaultPostponeConfig() PostponeConfig {
	return PostponeConfig{
		ClarifyWindow:    45 * time.Second,
		RetryNotifyDelay: 20 * time.Minute,
		RetryWindow:      10 * time.Minute,
		TickInterval:     time.Second,
	}
}

// PostponeService tracks ambiguous requests awaiting human
// clarification. Every entry ends in exactly one of resumed or
// cancelled: a parked request can never silently vanish nor silently
// execute. Deadlines are absolute and persisted, so a restart during
// the long wait recomputes timers instead of losing them.
type PostponeService struct {
	repo   repository.PostponeRepository
	audit  repository.AuditRepository
	outbox *OutboxService
	config PostponeConfig
	logger app.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce *sync.Once
}

// NewPostponeService creates a postponement manager
func NewPostponeService(
	repo repository.PostponeRepository,
	audit repository.AuditRepository,
	outbox *OutboxService,
	config PostponeConfig,
	logger app.Logger,
) *PostponeService {
	defaults := DefaultPostponeConfig()
	if config.ClarifyWindow <= 0 {
		config.ClarifyWindow = defaults.ClarifyWindow
	}
	if config.RetryNotifyDelay <= 0 {
		config.RetryNotifyDelay = defaults.RetryNotifyDelay
	}
	if config.RetryWindow <= 0 {
		config.RetryWindow = defaults.RetryWindow
	}
	if config.TickInterval <= 0 {
		config.TickInterval = defaults.TickInterval
	}
	if logger == nil {
		logger = app.NopLogger()
	}
	return &PostponeService{
		repo:     repo,
		audit:    audit,
		outbox:   outbox,
		config:   config,
		logger:   logger,
		stopOnce: &sync.Once{},
	}
}

// Postpone parks an ambiguous request and asks the actor to clarify.
// The audit ledger records the operation as postponed (a terminal,
// non-executing state); a later resumption is routed as a fresh
// operation. The entry is persisted immediately so it survives restarts.
func (s *PostponeService) Postpone(
	ctx context.Context,
	capability, action, actor, payload string,
	options []string,
) (*postpone.Record, error) {
	id := operation.GenerateTrackingID()
	now := time.Now().UTC()

	record := postpone.NewRecord(
		id, actor, payload, options,
		now.Add(s.config.ClarifyWindow).Add(s.config.RetryNotifyDelay),
		now.Add(s.config.ClarifyWindow).Add(s.config.RetryNotifyDelay).Add(s.config.RetryWindow),
	)
	if err := s.repo.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("persist postponement: %w", err)
	}

	auditRecord := operation.NewRecord(id, capability, action, actor, operation.TierMultiUnit, nil)
	if err := s.audit.Start(ctx, auditRecord); err != nil {
		return nil, fmt.Errorf("audit postponement: %w", err)
	}
	if err := s.audit.End(ctx, id, operation.Outcome{
		Status: operation.StatusPostponed,
		Err:    operation.NewError(operation.CodePostponed, "awaiting clarification"),
	}); err != nil {
		return nil, fmt.Errorf("finalize postponement audit: %w", err)
	}

	s.notify(ctx, id, actor, clarificationMessage(id, capability, action, options, false))
	s.logger.Info("postponed operation %s (%s/%s) awaiting clarification", id, capability, action)
	return record, nil
}

// Resolve applies a clarifying reply, moving the entry to resumed and
// returning it so the caller can re-route the disambiguated request.
func (s *PostponeService) Resolve(ctx context.Context, id, choice string) (*postpone.Record, error) {
	record, err := s.repo.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := record.Resolve(choice); err != nil {
		return nil, fmt.Errorf("resolve postponement %s: %w", id, err)
	}
	if err := s.repo.Update(ctx, record); err != nil {
		return nil, err
	}
	s.logger.Info("postponement %s resumed with %q", id, choice)
	return record, nil
}

// Cancel explicitly abandons a pending entry; the original request is
// discarded and never executed
func (s *PostponeService) Cancel(ctx context.Context, id string) error {
	record, err := s.repo.Find(ctx, id)
	if err != nil {
		return err
	}
	if err := record.Cancel(); err != nil {
		return fmt.Errorf("cancel postponement %s: %w", id, err)
	}
	if err := s.repo.Update(ctx, record); err != nil {
		return err
	}
	s.notify(ctx, id, record.Actor(),
		fmt.Sprintf("Operation %s was cancelled; the original request has been discarded.", id))
	return nil
}

// Start reloads persisted pending entries and launches the supervised
// timer loop. Timers are recomputed from the stored absolute deadlines.
func (s *PostponeService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("postpone service already started")
	}

	pending, err := s.repo.FindPending(ctx)
	if err != nil {
		return fmt.Errorf("reload pending postponements: %w", err)
	}
	if len(pending) > 0 {
		s.logger.Info("reloaded %d pending postponement(s)", len(pending))
	}

	timerCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopOnce = &sync.Once{}

	s.wg.Add(1)
	go s.supervise(timerCtx)
	return nil
}

// Stop shuts the timer loop down and waits for it to exit
func (s *PostponeService) Stop() error {
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

func (s *PostponeService) supervise(ctx context.Context) {
	defer s.wg.Done()
	for {
		s.runTimers(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("postponement timer loop exited unexpectedly; restarting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (s *PostponeService) runTimers(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("postponement timer panic: %v", r)
		}
	}()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx, time.Now().UTC())
		}
	}
}

// Tick advances every pending entry against the clock: due reminders
// are sent, expired entries are cancelled
func (s *PostponeService) Tick(ctx context.Context, now time.Time) {
	pending, err := s.repo.FindPending(ctx)
	if err != nil {
		s.logger.Error("query pending postponements: %v", err)
		return
	}

	for _, record := range pending {
		switch {
		case record.Expired(now):
			if err := record.Cancel(); err != nil {
				continue
			}
			if err := s.repo.Update(ctx, record); err != nil {
				s.logger.Error("cancel expired postponement %s: %v", record.ID(), err)
				continue
			}
			s.logger.Info("postponement %s expired without clarification; cancelled", record.ID())
			s.notify(ctx, record.ID(), record.Actor(),
				fmt.Sprintf("No clarification received for operation %s; it has been cancelled and will not run.", record.ID()))

		case record.RetryDue(now):
			if err := record.MarkRetrySent(); err != nil {
				continue
			}
			if err := s.repo.Update(ctx, record); err != nil {
				s.logger.Error("mark retry sent for postponement %s: %v", record.ID(), err)
				continue
			}
			s.notify(ctx, record.ID(), record.Actor(),
				clarificationMessage(record.ID(), "", "", record.Options(), true))
		}
	}
}

// notify enqueues best-effort; a failure never alters postponement state
func (s *PostponeService) notify(ctx context.Context, id, actor, message string) {
	if s.outbox == nil {
		return
	}
	if err := s.outbox.Enqueue(ctx, id, actor, message); err != nil {
		s.logger.Warn("enqueue postponement notification for %s: %v", id, err)
	}
}

func clarificationMessage(id, capability, action string, options []string, reminder bool) string {
	var b strings.Builder
	if reminder {
		fmt.Fprintf(&b, "Reminder: operation %s is still waiting for clarification.", id)
	} else if capability != "" {
		fmt.Fprintf(&b, "Operation %s (%s/%s) needs clarification before it can run.", id, capability, action)
	} else {
		fmt.Fprintf(&b, "Operation %s needs clarification before it can run.", id)
	}
	if len(options) > 0 {
		fmt.Fprintf(&b, " Options: %s.", strings.Join(options, "; "))
	}
	b.WriteString(" Without a reply it will be cancelled.")
	return b.String()
}
