// Package database persists run records and segment summaries to
// PostgreSQL.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotConnected is returned by Client methods called before Connect.
var ErrNotConnected = errors.New("database: not connected")

const summaryBatchSize = 500

// Client holds the connection to the results database
type Client struct {
	connectionString string
	DB               *gorm.DB // Exported so it can be accessed from other packages
	logger           *zap.SugaredLogger
}

// NewClient creates a new database client
func NewClient(connectionString string, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		connectionString: connectionString,
		logger:           logger,
	}
}

// Connect connects to the database and creates any missing tables.
func (c *Client) Connect() error {
	// Create a logger for gorm
	dbLogger := logger.New(
		zap.NewStdLog(c.logger.Desugar()),
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn, // Log level
			IgnoreRecordNotFoundError: true,        // Ignore ErrRecordNotFound error for logger
			Colorful:                  false,
		},
	)

	c.logger.Info("connecting to results database...")
	db, err := gorm.Open(postgres.Open(c.connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		c.logger.Warnw("unable to connect to results database", "error", err)
		return err
	}
	c.DB = db

	if err := c.DB.AutoMigrate(&Run{}, &SegmentSummary{}, &RunCell{}); err != nil {
		return fmt.Errorf("error creating or migrating results tables: %w", err)
	}
	c.logger.Info("results database connection successful")
	return nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	if c.DB == nil {
		return nil
	}
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRun stores a run and its segment summaries in one transaction.
func (c *Client) SaveRun(ctx context.Context, run *Run, summaries []SegmentSummary) error {
	if c.DB == nil {
		return ErrNotConnected
	}
	err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("error inserting run: %w", err)
		}
		if len(summaries) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(summaries, summaryBatchSize).Error; err != nil {
			return fmt.Errorf("error inserting segment summaries: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.logger.Infow("run saved", "run", run.ID, "summaries", len(summaries))
	return nil
}

// Runs returns stored runs, most recent first.
func (c *Client) Runs(ctx context.Context, limit int) ([]Run, error) {
	if c.DB == nil {
		return nil, ErrNotConnected
	}
	var runs []Run
	q := c.DB.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("error querying runs: %w", err)
	}
	return runs, nil
}

// Summaries returns the summaries of one kind stored for a run.
func (c *Client) Summaries(ctx context.Context, runID uuid.UUID, kind string) ([]SegmentSummary, error) {
	if c.DB == nil {
		return nil, ErrNotConnected
	}
	var rows []SegmentSummary
	err := c.DB.WithContext(ctx).
		Where("run_id = ? AND kind = ?", runID, kind).
		Order("level_path, seq").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error querying segment summaries: %w", err)
	}
	return rows, nil
}
