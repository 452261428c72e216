// Package tracestore persists a trace of the callbacks a camera device
// emits, for offline inspection of capture sessions.
package tracestore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/camhal/internal/errors"
	"github.com/tphakala/camhal/internal/logger"
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

const slowQueryThreshold = 200 * time.Millisecond

// Store is a SQLite trace database
type Store struct {
	db   *gorm.DB
	path string
}

// Open opens or creates the trace database at path and migrates its schema
func Open(path string) (*Store, error) {
	dsn := path
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, storeError(err, "create trace directory").Context("path", path).Build()
			}
		}
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", path)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(getLogger(), slowQueryThreshold),
	})
	if err != nil {
		return nil, storeError(err, "open trace database").Context("path", path).Build()
	}

	if path == MemoryPath {
		// One connection keeps every query on the same in-memory database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, storeError(err, "access connection pool").Build()
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&Run{}, &Event{}); err != nil {
		return nil, storeError(err, "migrate trace schema").Context("path", path).Build()
	}

	getLogger().Info("trace database opened", logger.String("path", path))
	return &Store{db: db, path: path}, nil
}

// Path returns the database location
func (s *Store) Path() string { return s.path }

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storeError(err, "access connection pool").Build()
	}
	return sqlDB.Close()
}

// BeginRun inserts a new run record
func (s *Store) BeginRun(id, scenario, cameraID string) (*Run, error) {
	run := &Run{ID: id, Scenario: scenario, CameraID: cameraID, StartedAt: time.Now()}
	if err := s.db.Create(run).Error; err != nil {
		return nil, storeError(err, "create run").Context("run_id", id).Build()
	}
	return run, nil
}

// FinishRun stores the final counters of run and marks it finished
func (s *Store) FinishRun(run *Run) error {
	now := time.Now()
	run.FinishedAt = &now
	err := s.db.Model(&Run{ID: run.ID}).Updates(map[string]any{
		"finished_at":    run.FinishedAt,
		"submitted":      run.Submitted,
		"shutters":       run.Shutters,
		"results":        run.Results,
		"buffer_errors":  run.BufferErrors,
		"request_errors": run.RequestErrors,
		"dropped":        run.Dropped,
	}).Error
	if err != nil {
		return storeError(err, "finish run").Context("run_id", run.ID).Build()
	}
	return nil
}

// Run loads a run without its events
func (s *Store) Run(id string) (*Run, error) {
	var run Run
	if err := s.db.First(&run, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(fmt.Errorf("trace run %s: %w", id, err)).
				Component("tracestore").
				Category(errors.CategoryNotFound).
				Context("run_id", id).
				Build()
		}
		return nil, storeError(err, "load run").Context("run_id", id).Build()
	}
	return &run, nil
}

// Runs lists runs, newest first
func (s *Store) Runs(limit int) ([]Run, error) {
	var runs []Run
	q := s.db.Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, storeError(err, "list runs").Build()
	}
	return runs, nil
}

// Events returns the events of a run in emission order
func (s *Store) Events(runID string) ([]Event, error) {
	var events []Event
	if err := s.db.Where("run_id = ?", runID).Order("seq ASC").Find(&events).Error; err != nil {
		return nil, storeError(err, "load events").Context("run_id", runID).Build()
	}
	return events, nil
}

// CountEvents returns the number of events of kind in a run
func (s *Store) CountEvents(runID, kind string) (int64, error) {
	var n int64
	err := s.db.Model(&Event{}).Where("run_id = ? AND kind = ?", runID, kind).Count(&n).Error
	if err != nil {
		return 0, storeError(err, "count events").Context("run_id", runID).Build()
	}
	return n, nil
}

func (s *Store) insert(events []Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := s.db.CreateInBatches(events, 200).Error; err != nil {
		return storeError(err, "insert events").Context("count", len(events)).Build()
	}
	return nil
}

func storeError(err error, op string) *errors.ErrorBuilder {
	return errors.New(fmt.Errorf("%s: %w", op, err)).
		Component("tracestore").
		Category(errors.CategoryTraceStore)
}
