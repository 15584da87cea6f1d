package di

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"

	"github.com/YoshitsuguKoike/guardbroker/internal/adapter/gateway/executor"
	"github.com/YoshitsuguKoike/guardbroker/internal/adapter/gateway/notify"
	"github.com/YoshitsuguKoike/guardbroker/internal/app"
	appconfig "github.com/YoshitsuguKoike/guardbroker/internal/app/config"
	"github.com/YoshitsuguKoike/guardbroker/internal/application/port/output"
	"github.com/YoshitsuguKoike/guardbroker/internal/application/registry"
	"github.com/YoshitsuguKoike/guardbroker/internal/application/service"
	"github.com/YoshitsuguKoike/guardbroker/internal/application/usecase/route"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/repository"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/service/classify"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/service/scope"
	infraconfig "github.com/YoshitsuguKoike/guardbroker/internal/infra/config"
	"github.com/YoshitsuguKoike/guardbroker/internal/infrastructure/gitcli"
	sqliterepo "github.com/YoshitsuguKoike/guardbroker/internal/infrastructure/persistence/sqlite"
	_ "github.com/mattn/go-sqlite3"
)

// Config holds construction options for the container
type Config struct {
	BaseDir      string // Broker home; setting.json lives here
	DBPath       string // Overrides the configured database path
	OutputWriter io.Writer
	Notifier     output.Notifier // Overrides the file transport (tests)
}

// Container is the manual dependency-injection root. It owns the
// lifecycle of the store, repositories, gateways, services and the
// router; the process entry point constructs exactly one.
type Container struct {
	config Config
	loader *infraconfig.Loader
	logger app.Logger

	// Infrastructure
	db           *sql.DB
	auditRepo    repository.AuditRepository
	outboxRepo   repository.OutboxRepository
	postponeRepo repository.PostponeRepository
	gitRunner    *gitcli.Runner
	notifier     output.Notifier

	// Domain services
	scopeValidator *scope.Validator
	classifier     *classify.Classifier

	// Application
	executorRegistry *registry.Registry
	outboxService    *service.OutboxService
	postponeService  *service.PostponeService
	routeUseCase     *route.UseCase
}

// NewContainer creates and initializes the container
func NewContainer(config Config) (*Container, error) {
	c := &Container{config: config}
	if c.config.BaseDir == "" {
		c.config.BaseDir = ".guardbroker"
	}
	if c.config.OutputWriter == nil {
		c.config.OutputWriter = os.Stdout
	}

	if err := c.initializeConfig(); err != nil {
		return nil, fmt.Errorf("initialize configuration: %w", err)
	}
	if err := c.initializeInfrastructure(); err != nil {
		return nil, fmt.Errorf("initialize infrastructure: %w", err)
	}
	if err := c.initializeDomain(); err != nil {
		return nil, fmt.Errorf("initialize domain: %w", err)
	}
	if err := c.initializeApplication(); err != nil {
		return nil, fmt.Errorf("initialize application: %w", err)
	}
	return c, nil
}

func (c *Container) initializeConfig() error {
	if err := os.MkdirAll(c.config.BaseDir, 0o755); err != nil {
		return fmt.Errorf("create broker home: %w", err)
	}
	loader, err := infraconfig.NewLoader(c.config.BaseDir)
	if err != nil {
		return err
	}
	c.loader = loader
	c.logger = app.NewLogger(os.Stderr, loader.Config().StderrLevel())
	return nil
}

func (c *Container) initializeInfrastructure() error {
	cfg := c.loader.Config()

	dbPath := c.config.DBPath
	if dbPath == "" {
		dbPath = cfg.DBPath()
	}
	db, err := sqliterepo.Open(dbPath)
	if err != nil {
		return err
	}
	c.db = db

	migrator := sqliterepo.NewMigrator(db)
	if err := migrator.Migrate(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	c.auditRepo = sqliterepo.NewAuditRepository(db)
	c.outboxRepo = sqliterepo.NewOutboxRepository(db)
	c.postponeRepo = sqliterepo.NewPostponeRepository(db)

	c.gitRunner = gitcli.NewRunner(cfg.GitBin(), cfg.SnapshotTimeout(), c.logger)

	c.notifier = c.config.Notifier
	if c.notifier == nil {
		c.notifier = notify.NewFileNotifier(afero.NewOsFs(), cfg.NotifyInbox())
	}
	return nil
}

func (c *Container) initializeDomain() error {
	cfg := c.loader.Config()

	validator, err := scope.NewValidator(cfg.AllowedRoots())
	if err != nil {
		return fmt.Errorf("build scope validator: %w", err)
	}
	c.scopeValidator = validator

	classifier, err := classify.NewClassifier()
	if err != nil {
		return fmt.Errorf("build classifier: %w", err)
	}
	c.classifier = classifier
	return nil
}

func (c *Container) initializeApplication() error {
	cfg := c.loader.Config()

	c.outboxService = service.NewOutboxService(c.outboxRepo, c.notifier, service.OutboxConfig{
		PollInterval: cfg.NotifyPollInterval(),
		BaseDelay:    cfg.NotifyBaseDelay(),
		MaxRetries:   cfg.NotifyMaxRetries(),
	}, c.logger)

	c.postponeService = service.NewPostponeService(c.postponeRepo, c.auditRepo, c.outboxService,
		service.PostponeConfig{
			ClarifyWindow:    cfg.ClarifyWindow(),
			RetryNotifyDelay: cfg.RetryNotifyDelay(),
			RetryWindow:      cfg.RetryWindow(),
		}, c.logger)

	c.executorRegistry = registry.New()
	gitRead := executor.NewGitReadExecutor(c.gitRunner)
	for _, action := range []string{"status", "diff", "log"} {
		if err := c.executorRegistry.Register("git", action, gitRead); err != nil {
			return err
		}
	}
	// Executors registered without an explicit risk rule refuse startup
	if err := c.executorRegistry.Validate(c.classifier.Known); err != nil {
		return err
	}

	c.routeUseCase = route.NewUseCase(
		c.scopeValidator,
		c.classifier,
		c.executorRegistry,
		c.auditRepo,
		c.outboxService,
		c.gitRunner,
		c.loader,
		c.logger,
	)
	return nil
}

// Start launches the background services (outbox worker, postponement
// timers)
func (c *Container) Start(ctx context.Context) error {
	if err := c.outboxService.Start(ctx); err != nil {
		return fmt.Errorf("start outbox service: %w", err)
	}
	if err := c.postponeService.Start(ctx); err != nil {
		return fmt.Errorf("start postpone service: %w", err)
	}
	return nil
}

// Close stops background services and releases the store
func (c *Container) Close() error {
	if c.postponeService != nil {
		if err := c.postponeService.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to stop postpone service: %v\n", err)
		}
	}
	if c.outboxService != nil {
		if err := c.outboxService.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to stop outbox service: %v\n", err)
		}
	}
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Getters
func (c *Container) Logger() app.Logger                          { return c.logger }
func (c *Container) Config() appconfig.Config                    { return c.loader.Config() }
func (c *Container) RouteUseCase() *route.UseCase                { return c.routeUseCase }
func (c *Container) OutboxService() *service.OutboxService       { return c.outboxService }
func (c *Container) PostponeService() *service.PostponeService   { return c.postponeService }
func (c *Container) AuditRepository() repository.AuditRepository { return c.auditRepo }
func (c *Container) OutboxRepository() repository.OutboxRepository {
	return c.outboxRepo
}
func (c *Container) PostponeRepository() repository.PostponeRepository {
	return c.postponeRepo
}
func (c *Container) Snapshotter() output.Snapshotter { return c.gitRunner }
func (c *Container) Registry() *registry.Registry    { return c.executorRegistry }
