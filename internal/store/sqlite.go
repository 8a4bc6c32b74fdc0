package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "fno-ledger/internal/errors"
	"fno-ledger/internal/models"
)

// SQLiteStore implements RunStore using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex
	runs map[string]RunInfo // saved runs never change
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:   db,
		runs: make(map[string]RunInfo),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes. Civil dates are
// stored as YYYY-MM-DD text and money as decimal text.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- One row per analysis run
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		source TEXT,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		row_count INTEGER NOT NULL,
		accepted INTEGER NOT NULL,
		strategies INTEGER NOT NULL,
		total_realized TEXT NOT NULL
	);

	-- Normalized trades
	CREATE TABLE IF NOT EXISTS trades (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		underlying TEXT NOT NULL,
		expiry TEXT NOT NULL,
		strike INTEGER,
		option_type TEXT NOT NULL,
		direction TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price TEXT NOT NULL,
		execution_time DATETIME NOT NULL,
		trade_date TEXT NOT NULL,
		exchange TEXT,
		broker_trade_id TEXT,
		order_id TEXT,
		PRIMARY KEY (run_id, id),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	-- Lot ledger after full replay
	CREATE TABLE IF NOT EXISTS lots (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		underlying TEXT NOT NULL,
		expiry TEXT NOT NULL,
		strike INTEGER,
		option_type TEXT NOT NULL,
		lot_seq INTEGER NOT NULL,
		direction TEXT NOT NULL,
		open_qty INTEGER NOT NULL,
		close_qty INTEGER NOT NULL,
		open_date TEXT NOT NULL,
		open_price TEXT NOT NULL,
		close_date TEXT,
		close_price TEXT,
		close_value TEXT NOT NULL,
		open_trade_id TEXT NOT NULL,
		close_trade_ids TEXT,
		flipped INTEGER DEFAULT 0,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	-- Daily position book
	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		date TEXT NOT NULL,
		underlying TEXT NOT NULL,
		expiry TEXT NOT NULL,
		strike INTEGER,
		option_type TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		side TEXT NOT NULL,
		avg_entry_price TEXT NOT NULL,
		status TEXT NOT NULL,
		lot_seq INTEGER NOT NULL,
		closed_qty INTEGER NOT NULL,
		open_date TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	-- Classified strategies
	CREATE TABLE IF NOT EXISTS strategies (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		id TEXT NOT NULL,
		date TEXT NOT NULL,
		underlying TEXT NOT NULL,
		type TEXT NOT NULL,
		expiries TEXT NOT NULL,
		legs TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	-- Realized pnl events
	CREATE TABLE IF NOT EXISTS pnl_records (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		date TEXT NOT NULL,
		underlying TEXT NOT NULL,
		expiry TEXT NOT NULL,
		strike INTEGER,
		option_type TEXT NOT NULL,
		kind TEXT NOT NULL,
		entry_trade_id TEXT NOT NULL,
		exit_trade_id TEXT,
		quantity INTEGER NOT NULL,
		entry_price TEXT NOT NULL,
		exit_price TEXT NOT NULL,
		realized TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	-- Booked pnl per strategy
	CREATE TABLE IF NOT EXISTS strategy_pnl (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		date TEXT NOT NULL,
		strategy_id TEXT NOT NULL,
		type TEXT NOT NULL,
		underlying TEXT NOT NULL,
		legs TEXT NOT NULL,
		pnl_booked TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	-- Create indexes for performance
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_lots_run ON lots(run_id, seq);
	CREATE INDEX IF NOT EXISTS idx_snapshots_run_date ON snapshots(run_id, date);
	CREATE INDEX IF NOT EXISTS idx_strategies_run_date ON strategies(run_id, date);
	CREATE INDEX IF NOT EXISTS idx_pnl_run ON pnl_records(run_id, seq);
	CREATE INDEX IF NOT EXISTS idx_strategy_pnl_run_date ON strategy_pnl(run_id, date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Runs Methods
// ============================================================================

// SaveRun writes a run and all of its records in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	if run == nil || run.Info.ID == "" {
		return apperrors.NewValidationError("run_id", "", "a run id is required")
	}
	info := run.Info
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, source, start_date, end_date, row_count, accepted, strategies, total_realized)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, info.ID, info.CreatedAt, info.Source, models.FormatDate(info.StartDate), models.FormatDate(info.EndDate),
		info.Rows, info.Accepted, info.Strategies, info.TotalRealized)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w: %v", apperrors.ErrDatabaseError, err)
	}

	steps := []func(context.Context, *sql.Tx, string, *Run) error{
		insertTrades,
		insertLots,
		insertSnapshots,
		insertStrategies,
		insertPnL,
		insertStrategyPnL,
	}
	for _, step := range steps {
		if err := step(ctx, tx, info.ID, run); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.mu.Lock()
	s.runs[info.ID] = info
	s.mu.Unlock()

	return nil
}

// GetRun returns the header of one run.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunInfo, error) {
	s.mu.RLock()
	if info, ok := s.runs[id]; ok {
		s.mu.RUnlock()
		return &info, nil
	}
	s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, source, start_date, end_date, row_count, accepted, strategies, total_realized
		FROM runs WHERE id = ?
	`, id)
	info, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewDataError("run", id, "not found", apperrors.ErrDataNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	s.mu.Lock()
	s.runs[id] = info
	s.mu.Unlock()

	return &info, nil
}

// ListRuns returns the most recent runs first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunInfo, error) {
	query := `SELECT id, created_at, source, start_date, end_date, row_count, accepted, strategies, total_realized
		FROM runs ORDER BY created_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		info, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// LatestRunID returns the id of the most recently saved run.
func (s *SQLiteStore) LatestRunID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY created_at DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", apperrors.NewDataError("run", "latest", "no saved runs", apperrors.ErrDataNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest run: %w", err)
	}
	return id, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (RunInfo, error) {
	var info RunInfo
	var source sql.NullString
	var start, end string
	if err := row.Scan(&info.ID, &info.CreatedAt, &source, &start, &end,
		&info.Rows, &info.Accepted, &info.Strategies, &info.TotalRealized); err != nil {
		return RunInfo{}, err
	}
	info.Source = source.String
	var err error
	if info.StartDate, err = parseDate(start); err != nil {
		return RunInfo{}, err
	}
	if info.EndDate, err = parseDate(end); err != nil {
		return RunInfo{}, err
	}
	return info, nil
}

// ============================================================================
// Insert helpers
// ============================================================================

// insertAll prepares query once inside tx and executes it for each of n rows.
func insertAll(ctx context.Context, tx *sql.Tx, what, query string, n int, args func(i int) []interface{}) error {
	if n == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return fmt.Errorf("failed to insert %s: %w", what, err)
		}
	}
	return nil
}

func insertTrades(ctx context.Context, tx *sql.Tx, runID string, run *Run) error {
	return insertAll(ctx, tx, "trade", `
		INSERT INTO trades (run_id, seq, id, symbol, underlying, expiry, strike, option_type, direction, quantity, price, execution_time, trade_date, exchange, broker_trade_id, order_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, len(run.Trades), func(i int) []interface{} {
		t := run.Trades[i]
		return []interface{}{runID, i, t.ID, t.Symbol, t.Underlying, models.FormatDate(t.Expiry), strikeArg(t.Strike),
			string(t.OptionType), string(t.Direction), t.Quantity, t.Price, t.ExecutionTime.UTC(),
			models.FormatDate(t.TradeDate), string(t.Exchange), t.BrokerTradeID, t.OrderID}
	})
}

func insertLots(ctx context.Context, tx *sql.Tx, runID string, run *Run) error {
	return insertAll(ctx, tx, "lot", `
		INSERT INTO lots (run_id, seq, underlying, expiry, strike, option_type, lot_seq, direction, open_qty, close_qty, open_date, open_price, close_date, close_price, close_value, open_trade_id, close_trade_ids, flipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, len(run.Lots), func(i int) []interface{} {
		l := run.Lots[i]
		var closeDate interface{}
		if l.CloseDate != nil {
			closeDate = models.FormatDate(*l.CloseDate)
		}
		closeIDs, _ := json.Marshal(l.CloseTradeIDs)
		flipped := 0
		if l.Flipped {
			flipped = 1
		}
		return []interface{}{runID, i, l.Key.Underlying, models.FormatDate(l.Key.Expiry), strikeArg(l.Key.Strike),
			string(l.Key.OptionType), l.Seq, string(l.Direction), l.OpenQty, l.CloseQty,
			models.FormatDate(l.OpenDate), l.OpenPrice, closeDate, l.ClosePrice, l.CloseValue,
			l.OpenTradeID, string(closeIDs), flipped}
	})
}

func insertSnapshots(ctx context.Context, tx *sql.Tx, runID string, run *Run) error {
	return insertAll(ctx, tx, "snapshot", `
		INSERT INTO snapshots (run_id, seq, date, underlying, expiry, strike, option_type, quantity, side, avg_entry_price, status, lot_seq, closed_qty, open_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, len(run.Snapshots), func(i int) []interface{} {
		p := run.Snapshots[i]
		return []interface{}{runID, i, models.FormatDate(p.Date), p.Key.Underlying, models.FormatDate(p.Key.Expiry),
			strikeArg(p.Key.Strike), string(p.Key.OptionType), p.Quantity, string(p.Side), p.AvgEntryPrice,
			string(p.Status), p.LotSeq, p.ClosedQty, models.FormatDate(p.OpenDate)}
	})
}

func insertStrategies(ctx context.Context, tx *sql.Tx, runID string, run *Run) error {
	var encodeErr error
	err := insertAll(ctx, tx, "strategy", `
		INSERT INTO strategies (run_id, seq, id, date, underlying, type, expiries, legs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, len(run.Strategies), func(i int) []interface{} {
		r := run.Strategies[i]
		legs, err := encodeLegs(r.Legs)
		if err != nil && encodeErr == nil {
			encodeErr = err
		}
		return []interface{}{runID, i, r.ID, models.FormatDate(r.Date), r.Underlying, string(r.Type), r.ExpiryLabel(), legs}
	})
	if encodeErr != nil {
		return fmt.Errorf("failed to encode legs: %w", encodeErr)
	}
	return err
}

func insertPnL(ctx context.Context, tx *sql.Tx, runID string, run *Run) error {
	return insertAll(ctx, tx, "pnl record", `
		INSERT INTO pnl_records (run_id, seq, date, underlying, expiry, strike, option_type, kind, entry_trade_id, exit_trade_id, quantity, entry_price, exit_price, realized)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, len(run.PnL), func(i int) []interface{} {
		r := run.PnL[i]
		return []interface{}{runID, i, models.FormatDate(r.Date), r.Key.Underlying, models.FormatDate(r.Key.Expiry),
			strikeArg(r.Key.Strike), string(r.Key.OptionType), string(r.Kind), r.EntryTradeID, r.ExitTradeID,
			r.Quantity, r.EntryPrice, r.ExitPrice, r.Realized}
	})
}

func insertStrategyPnL(ctx context.Context, tx *sql.Tx, runID string, run *Run) error {
	var encodeErr error
	err := insertAll(ctx, tx, "strategy pnl", `
		INSERT INTO strategy_pnl (run_id, seq, date, strategy_id, type, underlying, legs, pnl_booked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, len(run.StrategyPnL), func(i int) []interface{} {
		sp := run.StrategyPnL[i]
		legs, err := encodeLegs(sp.Legs)
		if err != nil && encodeErr == nil {
			encodeErr = err
		}
		return []interface{}{runID, i, models.FormatDate(sp.Date), sp.StrategyID, string(sp.Type), sp.Underlying, legs, sp.PnLBooked}
	})
	if encodeErr != nil {
		return fmt.Errorf("failed to encode legs: %w", encodeErr)
	}
	return err
}

// ============================================================================
// Record Methods
// ============================================================================

// GetTrades returns the normalized trades of a run in execution order.
func (s *SQLiteStore) GetTrades(ctx context.Context, runID string) ([]models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, symbol, underlying, expiry, strike, option_type, direction, quantity, price, execution_time, trade_date, exchange, broker_trade_id, order_id
		FROM trades WHERE run_id = ? ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var expiry, tradeDate, optType, dir, exchange string
		var strike sql.NullString
		if err := rows.Scan(&t.Seq, &t.ID, &t.Symbol, &t.Underlying, &expiry, &strike, &optType, &dir,
			&t.Quantity, &t.Price, &t.ExecutionTime, &tradeDate, &exchange, &t.BrokerTradeID, &t.OrderID); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		if t.Expiry, err = parseDate(expiry); err != nil {
			return nil, err
		}
		if t.TradeDate, err = parseDate(tradeDate); err != nil {
			return nil, err
		}
		t.Strike = strikeOf(strike)
		t.OptionType = models.OptionType(optType)
		t.Direction = models.Direction(dir)
		t.Exchange = models.Exchange(exchange)
		t.ExecutionTime = t.ExecutionTime.UTC()
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

// GetLots returns the ledger lots of a run in key order.
func (s *SQLiteStore) GetLots(ctx context.Context, runID string) ([]models.Lot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT underlying, expiry, strike, option_type, lot_seq, direction, open_qty, close_qty, open_date, open_price, close_date, close_price, close_value, open_trade_id, close_trade_ids, flipped
		FROM lots WHERE run_id = ? ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots: %w", err)
	}
	defer rows.Close()

	var lots []models.Lot
	for rows.Next() {
		var l models.Lot
		var expiry, optType, dir, openDate string
		var strike sql.NullString
		var closeDate, closeIDs sql.NullString
		var flipped int
		if err := rows.Scan(&l.Key.Underlying, &expiry, &strike, &optType, &l.Seq, &dir, &l.OpenQty, &l.CloseQty,
			&openDate, &l.OpenPrice, &closeDate, &l.ClosePrice, &l.CloseValue, &l.OpenTradeID, &closeIDs, &flipped); err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}
		if l.Key.Expiry, err = parseDate(expiry); err != nil {
			return nil, err
		}
		if l.OpenDate, err = parseDate(openDate); err != nil {
			return nil, err
		}
		if closeDate.Valid && closeDate.String != "" {
			d, err := parseDate(closeDate.String)
			if err != nil {
				return nil, err
			}
			l.CloseDate = &d
		}
		if closeIDs.Valid && closeIDs.String != "" && closeIDs.String != "null" {
			if err := json.Unmarshal([]byte(closeIDs.String), &l.CloseTradeIDs); err != nil {
				return nil, fmt.Errorf("failed to decode close trade ids: %w", err)
			}
		}
		l.Key.Strike = strikeOf(strike)
		l.Key.OptionType = models.OptionType(optType)
		l.Direction = models.PositionSide(dir)
		l.Flipped = flipped == 1
		lots = append(lots, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lots: %w", err)
	}
	return lots, nil
}

// GetSnapshots returns the position book of a run, optionally for one day.
func (s *SQLiteStore) GetSnapshots(ctx context.Context, filter SnapshotFilter) ([]models.PositionSnapshot, error) {
	query := `SELECT date, underlying, expiry, strike, option_type, quantity, side, avg_entry_price, status, lot_seq, closed_qty, open_date
		FROM snapshots WHERE run_id = ?`
	args := []interface{}{filter.RunID}

	if !filter.Date.IsZero() {
		query += " AND date = ?"
		args = append(args, models.FormatDate(filter.Date))
	}
	if filter.Underlying != "" {
		query += " AND underlying = ?"
		args = append(args, strings.ToUpper(filter.Underlying))
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []models.PositionSnapshot
	for rows.Next() {
		var p models.PositionSnapshot
		var date, expiry, optType, side, status, openDate string
		var strike sql.NullString
		if err := rows.Scan(&date, &p.Key.Underlying, &expiry, &strike, &optType, &p.Quantity, &side,
			&p.AvgEntryPrice, &status, &p.LotSeq, &p.ClosedQty, &openDate); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if p.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		if p.Key.Expiry, err = parseDate(expiry); err != nil {
			return nil, err
		}
		if p.OpenDate, err = parseDate(openDate); err != nil {
			return nil, err
		}
		p.Key.Strike = strikeOf(strike)
		p.Key.OptionType = models.OptionType(optType)
		p.Side = models.PositionSide(side)
		p.Status = models.PositionStatus(status)
		snaps = append(snaps, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return snaps, nil
}

// GetStrategies returns the classified strategies of a run.
func (s *SQLiteStore) GetStrategies(ctx context.Context, filter StrategyFilter) ([]models.StrategyRecord, error) {
	query, args := strategyQuery(`SELECT id, date, underlying, type, expiries, legs FROM strategies WHERE run_id = ?`, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies: %w", err)
	}
	defer rows.Close()

	var records []models.StrategyRecord
	for rows.Next() {
		var r models.StrategyRecord
		var date, typ, expiries, legs string
		if err := rows.Scan(&r.ID, &date, &r.Underlying, &typ, &expiries, &legs); err != nil {
			return nil, fmt.Errorf("failed to scan strategy: %w", err)
		}
		if r.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		for _, e := range strings.Split(expiries, "|") {
			d, err := parseDate(e)
			if err != nil {
				return nil, err
			}
			r.Expiries = append(r.Expiries, d)
		}
		if r.Legs, err = decodeLegs(legs); err != nil {
			return nil, err
		}
		r.Type = models.StrategyType(typ)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating strategies: %w", err)
	}
	return records, nil
}

// GetPnLRecords returns the realized pnl events of a run.
func (s *SQLiteStore) GetPnLRecords(ctx context.Context, runID string) ([]models.PnLRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, underlying, expiry, strike, option_type, kind, entry_trade_id, exit_trade_id, quantity, entry_price, exit_price, realized
		FROM pnl_records WHERE run_id = ? ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pnl records: %w", err)
	}
	defer rows.Close()

	var records []models.PnLRecord
	for rows.Next() {
		var r models.PnLRecord
		var date, expiry, optType, kind string
		var strike sql.NullString
		var exitID sql.NullString
		if err := rows.Scan(&date, &r.Key.Underlying, &expiry, &strike, &optType, &kind, &r.EntryTradeID, &exitID,
			&r.Quantity, &r.EntryPrice, &r.ExitPrice, &r.Realized); err != nil {
			return nil, fmt.Errorf("failed to scan pnl record: %w", err)
		}
		if r.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		if r.Key.Expiry, err = parseDate(expiry); err != nil {
			return nil, err
		}
		r.Key.Strike = strikeOf(strike)
		r.Key.OptionType = models.OptionType(optType)
		r.Kind = models.PnLKind(kind)
		r.ExitTradeID = exitID.String
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pnl records: %w", err)
	}
	return records, nil
}

// GetStrategyPnL returns the booked pnl per strategy of a run.
func (s *SQLiteStore) GetStrategyPnL(ctx context.Context, filter StrategyFilter) ([]models.StrategyPnL, error) {
	query, args := strategyQuery(`SELECT date, strategy_id, type, underlying, legs, pnl_booked FROM strategy_pnl WHERE run_id = ?`, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy pnl: %w", err)
	}
	defer rows.Close()

	var out []models.StrategyPnL
	for rows.Next() {
		var sp models.StrategyPnL
		var date, typ, legs string
		if err := rows.Scan(&date, &sp.StrategyID, &typ, &sp.Underlying, &legs, &sp.PnLBooked); err != nil {
			return nil, fmt.Errorf("failed to scan strategy pnl: %w", err)
		}
		if sp.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		if sp.Legs, err = decodeLegs(legs); err != nil {
			return nil, err
		}
		sp.Type = models.StrategyType(typ)
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating strategy pnl: %w", err)
	}
	return out, nil
}

func strategyQuery(base string, filter StrategyFilter) (string, []interface{}) {
	query := base
	args := []interface{}{filter.RunID}

	if !filter.StartDate.IsZero() {
		query += " AND date >= ?"
		args = append(args, models.FormatDate(filter.StartDate))
	}
	if !filter.EndDate.IsZero() {
		query += " AND date <= ?"
		args = append(args, models.FormatDate(filter.EndDate))
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.Underlying != "" {
		query += " AND underlying = ?"
		args = append(args, strings.ToUpper(filter.Underlying))
	}
	query += " ORDER BY seq ASC"
	return query, args
}

// ============================================================================
// Column codecs
// ============================================================================

// storedLeg is the JSON shape of a leg in the legs column.
type storedLeg struct {
	Strike     int    `json:"strike"`
	OptionType string `json:"option_type"`
	Quantity   int    `json:"quantity"`
	Expiry     string `json:"expiry,omitempty"`
}

func encodeLegs(legs []models.Leg) (string, error) {
	stored := make([]storedLeg, len(legs))
	for i, l := range legs {
		stored[i] = storedLeg{
			Strike:     l.Strike,
			OptionType: string(l.OptionType),
			Quantity:   l.Quantity,
			Expiry:     models.FormatDate(l.Expiry),
		}
	}
	b, err := json.Marshal(stored)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeLegs(s string) ([]models.Leg, error) {
	var stored []storedLeg
	if err := json.Unmarshal([]byte(s), &stored); err != nil {
		return nil, fmt.Errorf("failed to decode legs: %w", err)
	}
	legs := make([]models.Leg, len(stored))
	for i, l := range stored {
		expiry, err := parseDate(l.Expiry)
		if err != nil {
			return nil, err
		}
		legs[i] = models.Leg{
			Strike:     l.Strike,
			OptionType: models.OptionType(l.OptionType),
			Quantity:   l.Quantity,
			Expiry:     expiry,
		}
	}
	return legs, nil
}

func strikeArg(s models.Strike) interface{} {
	if !s.Valid {
		return nil
	}
	return s.Value
}

// strikeOf reads the strike column as text so rows written by older
// versions or edited by hand ("22300.0") still coerce; anything else is a
// null strike.
func strikeOf(v sql.NullString) models.Strike {
	if !v.Valid {
		return models.Strike{}
	}
	return models.ParseStrike(v.String)
}

// parseDate reads a stored civil date; "" is the zero time.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored date %q: %w", s, err)
	}
	return t, nil
}

var _ RunStore = (*SQLiteStore)(nil)
