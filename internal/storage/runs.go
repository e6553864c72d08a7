package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/hoanghai1803/distill/internal/models"
)

// DefaultListLimit caps ListRuns when no positive limit is given.
const DefaultListLimit = 50

// itemBatchSize bounds the rows per item INSERT, keeping the bound
// parameters under SQLite's variable limit.
const itemBatchSize = 100

// timestampLayout keeps stored timestamps fixed-width so they sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// StoredRun is a run as recorded in the history database.
type StoredRun struct {
	Report     *models.RunReport
	DigestPath string
	Digest     string
}

// Open opens the history database at path and applies migrations.
func Open(path string) (*Store, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history database: %w", err)
	}
	return NewStore(db), nil
}

// SaveRun records a finished run and its items. Saving a run id that
// already exists replaces the earlier record.
func (s *Store) SaveRun(ctx context.Context, report *models.RunReport, digestPath, digest string) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, report.RunID); err != nil {
		return fmt.Errorf("replacing run: %w", err)
	}

	query, args, err := sq.Insert("runs").
		Columns("run_id", "timestamp", "base_url", "model", "api_used", "prompt_version",
			"success_count", "failure_count", "skip_count", "digest_path", "digest", "report").
		Values(report.RunID, report.Timestamp.UTC().Format(timestampLayout),
			report.LLM.BaseURL, report.LLM.Model, string(report.LLM.APIUsed), report.LLM.PromptVersion,
			report.SuccessCount, report.FailureCount, report.SkipCount,
			digestPath, digest, string(data)).
		ToSql()
	if err != nil {
		return fmt.Errorf("building run insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	if err := insertItems(ctx, tx, report); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

// insertItems writes the run's items in batches of itemBatchSize rows.
func insertItems(ctx context.Context, tx *sql.Tx, report *models.RunReport) error {
	for start := 0; start < len(report.Items); start += itemBatchSize {
		end := min(start+itemBatchSize, len(report.Items))

		insert := sq.Insert("run_items").
			Columns("run_id", "position", "status", "url", "title", "error", "skip_reason", "data")
		for i := start; i < end; i++ {
			item := report.Items[i]
			itemData, err := json.Marshal(item)
			if err != nil {
				return fmt.Errorf("encoding item %d: %w", i, err)
			}
			insert = insert.Values(report.RunID, i, string(item.Status), item.URL,
				item.Title, item.Error, item.SkipReason, string(itemData))
		}

		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("building item insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting run items: %w", err)
		}
	}
	return nil
}

// GetRun returns the stored run with the given id, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, runID string) (*StoredRun, error) {
	var (
		run    StoredRun
		report string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT report, digest_path, digest FROM runs WHERE run_id = ?`, runID,
	).Scan(&report, &run.DigestPath, &run.Digest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting run: %w", err)
	}

	if err := json.Unmarshal([]byte(report), &run.Report); err != nil {
		return nil, fmt.Errorf("decoding report for run %s: %w", runID, err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query, args, err := sq.Select("run_id", "timestamp", "model", "api_used",
		"success_count", "failure_count", "skip_count", "digest_path").
		From("runs").
		OrderBy("timestamp DESC", "run_id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building run listing: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := []models.RunSummary{}
	for rows.Next() {
		var (
			run       models.RunSummary
			timestamp string
		)
		if err := rows.Scan(&run.RunID, &timestamp, &run.Model, &run.APIUsed,
			&run.SuccessCount, &run.FailureCount, &run.SkipCount, &run.DigestPath); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.Timestamp = parseTime(timestamp)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// ListItems returns the items of a run in report order. A non-empty status
// keeps only items with that status. It returns ErrNotFound when the run
// does not exist.
func (s *Store) ListItems(ctx context.Context, runID string, status models.ItemStatus) ([]models.ItemResult, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM runs WHERE run_id = ?)`, runID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking run existence: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	builder := sq.Select("data").
		From("run_items").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("position")
	if status != "" {
		builder = builder.Where(sq.Eq{"status": string(status)})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building item listing: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing run items: %w", err)
	}
	defer rows.Close()

	items := []models.ItemResult{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning run item: %w", err)
		}
		var item models.ItemResult
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			return nil, fmt.Errorf("decoding run item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run items: %w", err)
	}
	return items, nil
}
