package floorbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	dbTypeSQLite   = "sqlite"
	dbTypePostgres = "postgres"
)

var (
	sqliteMaxOpenConns    = 1
	sqliteMaxIdleConns    = 1
	sqliteMaxConnLifetime = 5 * time.Minute
	sqliteExecPragma      = []string{
		"pragma journal_mode=WAL;",
		"pragma synchronous = normal;",
		"pragma temp_store = memory;",
		"pragma foreign_keys = ON;",
	}
)

// TrackedPolicy is the only persisted row type: a policy id one guild
// has registered for the tracked-list report. The composite unique
// index backs the caller-side Exists pre-check, so two concurrent track
// commands for the same pair can't both insert.
type TrackedPolicy struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	CreatedAt int64  `gorm:"autoCreateTime:milli" json:"created_at,omitempty"`
	GuildID   int64  `gorm:"not null;uniqueIndex:idx_tracked_guild_policy" json:"guild_id"`
	PolicyID  string `gorm:"size:64;not null;uniqueIndex:idx_tracked_guild_policy" json:"policy_id"`
}

// CreateDB opens (and, for sqlite, creates) the database and runs the
// idempotent schema migration.
func CreateDB(
	ctx context.Context,
	databaseType string,
	database string,
) (*gorm.DB, error) {
	handler := newLogHandler(slog.LevelWarn)

	gormLogger := newGORMLogger(handler, 500*time.Millisecond)
	dbLogger := slog.New(handler)

	dbLogger.InfoContext(
		ctx,
		"Initializing database",
		"database_type", databaseType,
		"database", database,
	)
	db, err := getDB(databaseType, database, gormLogger)
	if err != nil {
		return db, err
	}

	txn := db.WithContext(ctx).Begin()

	if err = txn.Migrator().AutoMigrate(&TrackedPolicy{}); err != nil {
		return db, err
	}

	if commitErr := txn.Commit().Error; commitErr != nil {
		return db, commitErr
	}

	return db, nil
}

// getDB initializes a GORM connection for the given database type.
//
// Parameters:
//   - databaseType: Must be 'sqlite' or 'postgres'
//   - database: Database connection string, or SQLite file path.
func getDB(
	databaseType string,
	database string,
	gormLogger *gormStructuredLogger,
) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
	switch databaseType {
	case dbTypeSQLite:
		parentDir := filepath.Dir(database)
		if parentDir != "" {
			if err := os.MkdirAll(parentDir, 0755); err != nil {
				if !errors.Is(err, os.ErrExist) {
					return nil, err
				}
			}
		}
		db, err := gorm.Open(sqlite.Open(database), gormConfig)
		if err != nil {
			return nil, err
		}
		for _, pragma := range sqliteExecPragma {
			if err = db.Exec(pragma).Error; err != nil {
				return nil, err
			}
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(sqliteMaxOpenConns)
		sqlDB.SetMaxIdleConns(sqliteMaxIdleConns)
		sqlDB.SetConnMaxLifetime(sqliteMaxConnLifetime)
		return db, nil
	case dbTypePostgres:
		return gorm.Open(postgres.Open(database), gormConfig)
	default:
		return nil, fmt.Errorf(
			"unsupported database type: %s (must be %q or %q)",
			databaseType, dbTypeSQLite, dbTypePostgres,
		)
	}
}

// trackedStore provides the tracked-collection operations, all scoped
// by guild id. Writes are serialized with a mutex when using sqlite.
type trackedStore struct {
	db              *gorm.DB
	mu              sync.Mutex
	serializeWrites bool
	logger          *slog.Logger
}

func newTrackedStore(
	db *gorm.DB,
	databaseType string,
	logger *slog.Logger,
) *trackedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &trackedStore{
		db:              db,
		serializeWrites: databaseType == dbTypeSQLite,
		logger:          logger.With(loggerNameKey, "tracked_store"),
	}
}

func (s *trackedStore) lock() {
	if s.serializeWrites {
		s.mu.Lock()
	}
}

func (s *trackedStore) unlock() {
	if s.serializeWrites {
		s.mu.Unlock()
	}
}

// Exists reports whether the guild already tracks the policy id.
func (s *trackedStore) Exists(
	ctx context.Context,
	guildID int64,
	policyID string,
) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&TrackedPolicy{}).
		Where("guild_id = ? AND policy_id = ?", guildID, policyID).
		Count(&count).Error
	return count > 0, err
}

// List returns the guild's tracked policy ids in insertion order.
func (s *trackedStore) List(
	ctx context.Context,
	guildID int64,
) ([]string, error) {
	var policyIDs []string
	err := s.db.WithContext(ctx).
		Model(&TrackedPolicy{}).
		Where("guild_id = ?", guildID).
		Order("id").
		Pluck("policy_id", &policyIDs).Error
	return policyIDs, err
}

// Add inserts a tracked pair. Returns [ErrAlreadyTracked] if the unique
// constraint rejects it - callers pre-check Exists for messaging, but
// the constraint is what actually closes the check-then-act race.
func (s *trackedStore) Add(
	ctx context.Context,
	guildID int64,
	policyID string,
) error {
	s.lock()
	defer s.unlock()

	err := s.db.WithContext(ctx).Create(
		&TrackedPolicy{GuildID: guildID, PolicyID: policyID},
	).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyTracked
	}
	return err
}

// Remove deletes a tracked pair. Deleting a pair that isn't tracked is
// a no-op, not an error.
func (s *trackedStore) Remove(
	ctx context.Context,
	guildID int64,
	policyID string,
) error {
	s.lock()
	defer s.unlock()

	return s.db.WithContext(ctx).
		Where("guild_id = ? AND policy_id = ?", guildID, policyID).
		Delete(&TrackedPolicy{}).Error
}
