// Package journal persists finished arbitrage attempts to sqlite.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/candyarb/orchestrator"
	"github.com/michaelpento.lv/candyarb/types"
)

// StateQuoted marks rows written by the quote loop rather than by an attempt
const StateQuoted = "quoted"

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	attempt       INTEGER NOT NULL,
	state         TEXT    NOT NULL,
	reason        TEXT    NOT NULL DEFAULT '',
	shape         TEXT    NOT NULL DEFAULT '',
	direction     TEXT    NOT NULL DEFAULT '',
	input_wei     TEXT    NOT NULL DEFAULT '0',
	expected_wei  TEXT    NOT NULL DEFAULT '0',
	realized_wei  TEXT    NOT NULL DEFAULT '0',
	transitions   TEXT    NOT NULL DEFAULT '',
	recorded_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_state ON attempts(state);
`

// Entry is one journaled attempt
type Entry struct {
	ID          int64
	Attempt     uint64
	State       string
	Reason      string
	Shape       string
	Direction   string
	InputWei    *big.Int
	ExpectedWei *big.Int
	RealizedWei *big.Int
	Transitions []string
	RecordedAt  time.Time
}

// Store is a sqlite-backed orchestrator.Recorder
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

var _ orchestrator.Recorder = (*Store)(nil)

// Open opens (or creates) the journal at path. ":memory:" keeps it in memory.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	inMemory := path == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if inMemory {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise schema: %w", err)
	}

	return &Store{db: db, logger: logger, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record implements orchestrator.Recorder
func (s *Store) Record(ctx context.Context, res *orchestrator.Result) error {
	if res == nil {
		return fmt.Errorf("nil result")
	}

	var shape, direction string
	input, expected, realized := "0", "0", "0"
	if res.Plan != nil {
		shape = res.Plan.Shape.String()
	}
	if opp := res.Opportunity; opp != nil {
		direction = opp.Direction.String()
		if opp.InputAmount != nil {
			input = opp.InputAmount.Dec()
		}
		if opp.ExpectedProfit != nil {
			expected = opp.ExpectedProfit.String()
		}
	}
	if res.RealizedProfit != nil {
		realized = res.RealizedProfit.String()
	}

	transitions := make([]string, len(res.Transitions))
	for i, st := range res.Transitions {
		transitions[i] = st.String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (attempt, state, reason, shape, direction, input_wei, expected_wei, realized_wei, transitions, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.Attempt, res.State.String(), string(res.Reason), shape, direction,
		input, expected, realized, strings.Join(transitions, ","), s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record attempt %d: %w", res.Attempt, err)
	}

	s.logger.Debug("Attempt journaled",
		zap.Uint64("attempt", res.Attempt),
		zap.Stringer("state", res.State),
	)
	return nil
}

// RecordQuote journals an opportunity that was priced but not executed
func (s *Store) RecordQuote(ctx context.Context, opp *types.ArbitrageOpportunity, shape types.ExecutionShape) error {
	if opp == nil || opp.InputAmount == nil || opp.ExpectedProfit == nil {
		return fmt.Errorf("incomplete opportunity")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (attempt, state, shape, direction, input_wei, expected_wei, recorded_at)
		 VALUES (0, ?, ?, ?, ?, ?, ?)`,
		StateQuoted, shape.String(), opp.Direction.String(),
		opp.InputAmount.Dec(), opp.ExpectedProfit.String(), s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record quote: %w", err)
	}

	s.logger.Debug("Quote journaled",
		zap.Stringer("direction", opp.Direction),
		zap.String("expected_profit", opp.ExpectedProfit.String()),
	)
	return nil
}

// List returns the most recent entries first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, attempt, state, reason, shape, direction, input_wei, expected_wei, realized_wei, transitions, recorded_at
		FROM attempts ORDER BY id DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                         Entry
			input, expected, realized string
			transitions               string
			recordedAt                int64
		)
		if err := rows.Scan(&e.ID, &e.Attempt, &e.State, &e.Reason, &e.Shape, &e.Direction,
			&input, &expected, &realized, &transitions, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		e.InputWei = parseWei(input)
		e.ExpectedWei = parseWei(expected)
		e.RealizedWei = parseWei(realized)
		if transitions != "" {
			e.Transitions = strings.Split(transitions, ",")
		}
		e.RecordedAt = time.Unix(recordedAt, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Summary aggregates the journal
type Summary struct {
	ByState     map[string]int
	RealizedWei *big.Int
}

// Summarize counts attempts per final state and totals realized profit
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	entries, err := s.List(ctx, 0)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{ByState: make(map[string]int), RealizedWei: new(big.Int)}
	for _, e := range entries {
		sum.ByState[e.State]++
		sum.RealizedWei.Add(sum.RealizedWei, e.RealizedWei)
	}
	return sum, nil
}

func parseWei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}
