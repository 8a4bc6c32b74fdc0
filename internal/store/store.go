// Package store provides persistence of analysis runs.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fno-ledger/internal/models"
)

// RunStore defines the interface for run persistence.
type RunStore interface {
	// Runs
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*RunInfo, error)
	ListRuns(ctx context.Context, limit int) ([]RunInfo, error)
	LatestRunID(ctx context.Context) (string, error)

	// Records of one run
	GetTrades(ctx context.Context, runID string) ([]models.Trade, error)
	GetLots(ctx context.Context, runID string) ([]models.Lot, error)
	GetSnapshots(ctx context.Context, filter SnapshotFilter) ([]models.PositionSnapshot, error)
	GetStrategies(ctx context.Context, filter StrategyFilter) ([]models.StrategyRecord, error)
	GetPnLRecords(ctx context.Context, runID string) ([]models.PnLRecord, error)
	GetStrategyPnL(ctx context.Context, filter StrategyFilter) ([]models.StrategyPnL, error)

	// Lifecycle
	Close() error
}

// RunInfo is the header row of a saved run.
type RunInfo struct {
	ID            string
	CreatedAt     time.Time
	Source        string
	StartDate     time.Time
	EndDate       time.Time
	Rows          int
	Accepted      int
	Strategies    int
	TotalRealized decimal.Decimal
}

// Run is everything written for one run.
type Run struct {
	Info        RunInfo
	Trades      []models.Trade
	Lots        []models.Lot
	Snapshots   []models.PositionSnapshot
	Strategies  []models.StrategyRecord
	PnL         []models.PnLRecord
	StrategyPnL []models.StrategyPnL
}

// SnapshotFilter selects snapshots of one run.
type SnapshotFilter struct {
	RunID      string
	Date       time.Time // zero for every day
	Underlying string
}

// StrategyFilter selects strategies or their pnl within one run.
type StrategyFilter struct {
	RunID      string
	StartDate  time.Time
	EndDate    time.Time
	Type       models.StrategyType
	Underlying string
}
