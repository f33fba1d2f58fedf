// Package store persists calendar object records and their derived
// time-range index inside one SQLite database, mirroring the legacy
// CALENDAR_OBJECT / TIME_RANGE / TRANSPARENCY / ATTACHMENT schema.
package store

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cyp0633/calstore/index"
)

// Store is the calendar object storage engine.
type Store struct {
	db       *gorm.DB
	cfg      Config
	horizon  index.HorizonConfig
	indexer  *index.Indexer
	logger   *slog.Logger
	notifier Notifier
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithNotifier sets the change notifier invoked after successful mutations.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// Open opens (creating if needed) the SQLite database named by cfg and
// migrates the schema.
func Open(cfg Config, opts ...Option) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(
		&CalendarObjectRow{},
		&TimeRangeRow{},
		&TransparencyRow{},
		&AttachmentRow{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// Single-writer model; concurrency across objects belongs to callers.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return New(db, cfg, opts...), nil
}

// New wraps an already-opened database.
func New(db *gorm.DB, cfg Config, opts ...Option) *Store {
	s := &Store{
		db:       db,
		cfg:      cfg,
		horizon:  cfg.HorizonConfig(),
		logger:   slog.Default(),
		notifier: NopNotifier{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.indexer = index.NewIndexer(s.logger)
	return s
}

// Config returns the store configuration.
func (s *Store) Config() Config {
	return s.cfg
}
