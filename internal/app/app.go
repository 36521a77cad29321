// Package app wires configuration, storage, messaging, and the sweeps into
// a runnable scheduling engine. Both the daemon and the CLI build on it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/carelane/medassign/internal/assignment/application/commands"
	"github.com/carelane/medassign/internal/assignment/application/sweeps"
	"github.com/carelane/medassign/internal/assignment/domain"
	"github.com/carelane/medassign/internal/assignment/infrastructure/persistence"
	"github.com/carelane/medassign/internal/cases"
	"github.com/carelane/medassign/internal/notify"
	"github.com/carelane/medassign/internal/reassign"
	"github.com/carelane/medassign/internal/scheduler"
	sharedApplication "github.com/carelane/medassign/internal/shared/application"
	"github.com/carelane/medassign/internal/shared/infrastructure/eventbus"
	"github.com/carelane/medassign/internal/shared/infrastructure/migrations"
	sharedPersistence "github.com/carelane/medassign/internal/shared/infrastructure/persistence"
	"github.com/carelane/medassign/internal/workload"
	"github.com/carelane/medassign/pkg/config"
)

// App holds the assembled engine.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Assignments domain.AssignmentRepository
	Reminders   domain.ReminderRepository
	CaseStore   cases.Store
	Tracker     *workload.Tracker
	Emitter     notify.Emitter
	Requester   reassign.Requester
	Events      eventbus.Publisher

	Scheduler  *scheduler.Scheduler
	Expiration *sweeps.ExpirationSweep
	Reminder   *sweeps.ReminderSweep
	Cleanup    *sweeps.ReminderCleanup

	ExpireAssignment *commands.ExpireAssignmentHandler

	pool        *pgxpool.Pool
	sqliteDB    *sql.DB
	redisClient *redis.Client
}

// New assembles the engine from configuration. Messaging falls back to noop
// implementations in development when the broker is unreachable; in
// production a missing broker is a startup failure.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	var (
		uow       sharedApplication.UnitOfWork
		directory workload.Directory
	)

	switch cfg.DatabaseDriver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		a.pool = pool
		a.Assignments = persistence.NewPostgresAssignmentRepository(pool)
		a.Reminders = persistence.NewPostgresReminderRepository(pool)
		a.CaseStore = cases.NewPostgresStore(pool)
		uow = sharedPersistence.NewPostgresUnitOfWork(pool)
		directory = workload.NewPostgresDirectory(pool)

	case "sqlite":
		db, err := openSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := migrations.RunSQLiteMigrations(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		a.sqliteDB = db
		a.Assignments = persistence.NewSQLiteAssignmentRepository(db)
		a.Reminders = persistence.NewSQLiteReminderRepository(db)
		a.CaseStore = cases.NewSQLiteStore(db)
		uow = sharedPersistence.NewSQLiteUnitOfWork(db)
		directory = workload.NewSQLiteDirectory(db)

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	var cache workload.SnapshotCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			if cfg.IsDevelopment() {
				logger.Warn("redis not available, snapshot caching disabled", "error", err)
				_ = client.Close()
			} else {
				a.Close()
				return nil, fmt.Errorf("failed to ping redis: %w", err)
			}
		} else {
			a.redisClient = client
			cache = workload.NewRedisSnapshotCache(client, cfg.SnapshotCacheTTL, logger)
		}
	}
	a.Tracker = workload.NewTracker(directory, cache, logger)

	emitter, err := notify.NewAMQPEmitter(cfg.RabbitMQURL, logger)
	if err != nil {
		if !cfg.IsDevelopment() {
			a.Close()
			return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		logger.Warn("rabbitmq not available, notifications disabled", "error", err)
		a.Emitter = notify.NopEmitter{}
	} else {
		a.Emitter = notify.NewBreakerEmitter(emitter, notify.DefaultBreakerConfig(), logger)
	}

	requester, err := reassign.NewAMQPRequester(cfg.RabbitMQURL, 5*time.Second, logger)
	if err != nil {
		if !cfg.IsDevelopment() {
			a.Close()
			return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		logger.Warn("rabbitmq not available, reassignment requests disabled", "error", err)
		a.Requester = reassign.NopRequester{}
	} else {
		a.Requester = requester
	}

	publisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
	if err != nil {
		if !cfg.IsDevelopment() {
			a.Close()
			return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		logger.Warn("rabbitmq not available, domain events disabled", "error", err)
		a.Events = eventbus.NewNoopPublisher(logger)
	} else {
		a.Events = publisher
	}

	policy := domain.ExclusionPolicy{
		CanReassignToSameDoctor: cfg.CanReassignToSameDoctor,
		Cooldown:                cfg.ReassignmentCooldown(),
	}
	timeouts := domain.Timeouts{
		Standard: cfg.AssignmentTimeout(),
		Critical: cfg.CriticalAssignmentTimeout(),
	}

	a.Expiration = sweeps.NewExpirationSweep(
		a.Assignments, a.CaseStore, a.Tracker, a.Emitter, a.Requester, a.Events, uow, policy,
		sweeps.ExpirationSweepConfig{
			GracePeriod:             cfg.ExpirationGracePeriod,
			MaxReassignmentAttempts: cfg.MaxReassignmentAttempts,
		},
		logger,
	)
	a.Reminder = sweeps.NewReminderSweep(
		a.Assignments, a.Reminders, a.CaseStore, a.Emitter, a.Events,
		sweeps.ReminderSweepConfig{
			Interval:            cfg.CheckInterval,
			StandardCheckpoints: cfg.StandardReminderHours,
			CriticalCheckpoints: cfg.CriticalReminderHours,
			Timeouts:            timeouts,
		},
		logger,
	)
	a.Cleanup = sweeps.NewReminderCleanup(
		a.Reminders,
		time.Duration(cfg.ReminderRetentionDays)*24*time.Hour,
		logger,
	)

	a.ExpireAssignment = commands.NewExpireAssignmentHandler(a.Assignments, a.CaseStore, uow, logger)

	a.Scheduler = scheduler.New(logger)
	if cfg.SchedulerEnabled {
		a.Scheduler.Add(a.Expiration, cfg.CheckInterval)
	}
	if cfg.ReminderEnabled {
		a.Scheduler.Add(a.Reminder, cfg.CheckInterval)
	}
	a.Scheduler.Add(a.Cleanup, cfg.ReminderCleanupInterval)

	return a, nil
}

// Ping verifies the storage connection.
func (a *App) Ping(ctx context.Context) error {
	if a.pool != nil {
		return a.pool.Ping(ctx)
	}
	if a.sqliteDB != nil {
		return a.sqliteDB.PingContext(ctx)
	}
	return nil
}

// Close releases all held connections.
func (a *App) Close() {
	if a.Events != nil {
		_ = a.Events.Close()
	}
	if a.Requester != nil {
		_ = a.Requester.Close()
	}
	if a.Emitter != nil {
		_ = a.Emitter.Close()
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.sqliteDB != nil {
		_ = a.sqliteDB.Close()
	}
}

// openSQLite opens the database with WAL and a single writer, which is all
// the sweeps need.
func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&"
	} else {
		dsn += "?"
	}
	dsn += "_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	return db, nil
}
