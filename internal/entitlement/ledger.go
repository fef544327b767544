package entitlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"entitlement-service/internal/common/logger"
	"entitlement-service/internal/models"
	"entitlement-service/pkg/plans"

	"github.com/google/uuid"
)

var (
	ErrLedgerNotFound     = errors.New("USAGE_LEDGER_NOT_FOUND")
	ErrLedgerLookupFailed = errors.New("USAGE_LEDGER_LOOKUP_FAILED")
	ErrLedgerCreateFailed = errors.New("USAGE_LEDGER_CREATE_FAILED")
	ErrIncrementFailed    = errors.New("USAGE_INCREMENT_FAILED")
)

// MonthKey is the ledger's natural key component for now.
func MonthKey(now time.Time) string {
	return now.UTC().Format("2006-01")
}

// UsageDelta is one post-success increment. DurationSeconds only counts
// for recordings.
type UsageDelta struct {
	Resource        models.Resource
	Amount          int64
	DurationSeconds float64
	BandwidthMB     float64
}

// LedgerStore owns the usage_ledgers table.
type LedgerStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewLedgerStore(db *sql.DB, log logger.Logger) *LedgerStore {
	return &LedgerStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "ledger-store"}),
	}
}

const ledgerColumns = `id, user_id, month, recordings_count, recordings_total_duration, recordings_limit, ` +
	`scripts_count, scripts_limit, exports_count, exports_limit, ai_minutes_used, ai_minutes_limit, ` +
	`bandwidth_used, created_at, updated_at`

const selectLedgerQuery = `SELECT ` + ledgerColumns + ` FROM usage_ledgers WHERE user_id = $1 AND month = $2`

const insertLedgerQuery = `INSERT INTO usage_ledgers (id, user_id, month, recordings_limit, scripts_limit, exports_limit, ai_minutes_limit, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (user_id, month) DO NOTHING
RETURNING ` + ledgerColumns

// One statement per resource; the column is never built from input.
var incrementQueries = map[models.Resource]string{
	models.ResourceRecordings: `UPDATE usage_ledgers SET recordings_count = recordings_count + $2, ` +
		`recordings_total_duration = recordings_total_duration + $3, bandwidth_used = bandwidth_used + $4, updated_at = $5 WHERE id = $1`,
	models.ResourceScripts: `UPDATE usage_ledgers SET scripts_count = scripts_count + $2, ` +
		`bandwidth_used = bandwidth_used + $3, updated_at = $4 WHERE id = $1`,
	models.ResourceExports: `UPDATE usage_ledgers SET exports_count = exports_count + $2, ` +
		`bandwidth_used = bandwidth_used + $3, updated_at = $4 WHERE id = $1`,
	models.ResourceAIAnalysisMinutes: `UPDATE usage_ledgers SET ai_minutes_used = ai_minutes_used + $2, ` +
		`bandwidth_used = bandwidth_used + $3, updated_at = $4 WHERE id = $1`,
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLedger(row rowScanner) (*models.UsageLedger, error) {
	var l models.UsageLedger
	err := row.Scan(
		&l.ID, &l.UserID, &l.Month,
		&l.Recordings.Count, &l.Recordings.TotalDuration, &l.Recordings.Limit,
		&l.Scripts.Count, &l.Scripts.Limit,
		&l.Exports.Count, &l.Exports.Limit,
		&l.AIAnalysisMinutes.Used, &l.AIAnalysisMinutes.Limit,
		&l.Bandwidth.Used, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Find returns the ledger for userID and month, or ErrLedgerNotFound.
func (s *LedgerStore) Find(ctx context.Context, userID, month string) (*models.UsageLedger, error) {
	ledger, err := scanLedger(s.db.QueryRowContext(ctx, selectLedgerQuery, userID, month))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLedgerNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrLedgerLookupFailed, err)
	}
	return ledger, nil
}

// GetOrCreate returns this month's ledger, creating it with zero counters and
// limits copied from plan. A concurrent creator that wins the unique
// (user_id, month) constraint makes the insert return nothing; the row is
// then read back.
func (s *LedgerStore) GetOrCreate(ctx context.Context, userID string, plan plans.Plan, now time.Time) (*models.UsageLedger, error) {
	month := MonthKey(now)

	ledger, err := s.Find(ctx, userID, month)
	if err == nil {
		return ledger, nil
	}
	if !errors.Is(err, ErrLedgerNotFound) {
		return nil, err
	}

	ledger, err = scanLedger(s.db.QueryRowContext(ctx, insertLedgerQuery,
		uuid.New().String(), userID, month,
		plan.Limits.Recordings, plan.Limits.Scripts, plan.Limits.Exports, plan.Limits.AIAnalysisMinutes,
		now.UTC(),
	))
	switch {
	case err == nil:
		s.logger.Info("usage ledger created", map[string]interface{}{
			"userId": userID,
			"month":  month,
			"plan":   plan.Name,
		})
		return ledger, nil
	case errors.Is(err, sql.ErrNoRows):
		s.logger.Debug("ledger created concurrently, reading back", map[string]interface{}{
			"userId": userID,
			"month":  month,
		})
		return s.Find(ctx, userID, month)
	default:
		return nil, fmt.Errorf("%w: %v", ErrLedgerCreateFailed, err)
	}
}

// Increment adds delta to the ledger in a single statement.
func (s *LedgerStore) Increment(ctx context.Context, ledgerID string, delta UsageDelta, now time.Time) error {
	query, ok := incrementQueries[delta.Resource]
	if !ok {
		return fmt.Errorf("%w: unknown resource %q", ErrIncrementFailed, delta.Resource)
	}

	args := []interface{}{ledgerID, delta.Amount}
	if delta.Resource == models.ResourceRecordings {
		args = append(args, delta.DurationSeconds)
	}
	args = append(args, delta.BandwidthMB, now.UTC())

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIncrementFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIncrementFailed, err)
	}
	if n == 0 {
		return ErrLedgerNotFound
	}
	return nil
}
