package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/franz/vinyl-shelf/internal/util"
)

// NewRunID returns a fresh build identifier
func NewRunID() string {
	return uuid.NewString()
}

// SaveRun writes a build with its rows and exclusions in one transaction.
// An empty run.ID is filled with a new id.
func (s *Store) SaveRun(run *Run, rows []RunRow, exclusions []Exclusion) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}

	return s.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO runs (id, username, media, policy, sort_by, currency,
			                  started_at, finished_at, state, message,
			                  scanned, accepted, excluded, malformed,
			                  prices_fetched, prices_cached, prices_skipped,
			                  price_error, event_log)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, run.ID, run.Username, run.Media, run.Policy, run.SortBy, run.Currency,
			run.StartedAt.UTC(), run.FinishedAt.UTC(), run.State, run.Message,
			run.Scanned, run.Accepted, run.Excluded, run.Malformed,
			run.PricesFetched, run.PricesCached, run.PricesSkipped,
			run.PriceError, run.EventLogPath)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		rowStmt, err := tx.Prepare(`
			INSERT INTO run_rows (run_id, position, release_id, artist, title, year,
			                      label, catno, country, format, url, notes,
			                      sort_artist, sort_title, lowest_price, num_for_sale, currency)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare row insert: %w", err)
		}
		defer rowStmt.Close()

		for i, r := range rows {
			_, err := rowStmt.Exec(run.ID, i, nullInt(r.ReleaseID), r.Artist, r.Title, nullInt(r.Year),
				r.Label, r.CatalogNumber, r.Country, r.Format, r.URL, r.Notes,
				r.SortArtist, r.SortTitle, nullFloat(r.LowestPrice), nullInt(r.NumForSale), r.Currency)
			if err != nil {
				return fmt.Errorf("failed to insert row %d: %w", i, err)
			}
		}

		exStmt, err := tx.Prepare(`
			INSERT INTO exclusions (run_id, position, release_id, artist, title, year, format, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare exclusion insert: %w", err)
		}
		defer exStmt.Close()

		for i, e := range exclusions {
			_, err := exStmt.Exec(run.ID, i, nullInt(e.ReleaseID), e.Artist, e.Title, nullInt(e.Year), e.Format, e.Reason)
			if err != nil {
				return fmt.Errorf("failed to insert exclusion %d: %w", i, err)
			}
		}

		return nil
	})
}

const runColumns = `
	id, username, media, policy, sort_by, COALESCE(currency, ''),
	started_at, finished_at, state, COALESCE(message, ''),
	scanned, accepted, excluded, malformed,
	prices_fetched, prices_cached, prices_skipped,
	COALESCE(price_error, ''), COALESCE(event_log, '')`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	err := sc.Scan(
		&r.ID, &r.Username, &r.Media, &r.Policy, &r.SortBy, &r.Currency,
		&r.StartedAt, &r.FinishedAt, &r.State, &r.Message,
		&r.Scanned, &r.Accepted, &r.Excluded, &r.Malformed,
		&r.PricesFetched, &r.PricesCached, &r.PricesSkipped,
		&r.PriceError, &r.EventLogPath,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRun returns a build by id, or util.ErrNotFound
func (s *Store) GetRun(id string) (*Run, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, util.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// LatestRun returns the most recent build, optionally restricted to successful
// ones. It returns util.ErrNotFound when nothing matches.
func (s *Store) LatestRun(successfulOnly bool) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	if successfulOnly {
		query += ` WHERE state = 'done'`
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT 1`

	run, err := scanRun(s.db.QueryRow(query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no stored builds: %w", util.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit builds, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunRows returns the shelf rows of a build in display order
func (s *Store) RunRows(runID string) ([]RunRow, error) {
	rows, err := s.db.Query(`
		SELECT position, release_id, artist, title, year,
		       COALESCE(label, ''), COALESCE(catno, ''), COALESCE(country, ''),
		       COALESCE(format, ''), COALESCE(url, ''), COALESCE(notes, ''),
		       COALESCE(sort_artist, ''), COALESCE(sort_title, ''),
		       lowest_price, num_for_sale, COALESCE(currency, '')
		FROM run_rows
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		var releaseID, year, numForSale sql.NullInt64
		var price sql.NullFloat64
		err := rows.Scan(&r.Position, &releaseID, &r.Artist, &r.Title, &year,
			&r.Label, &r.CatalogNumber, &r.Country, &r.Format, &r.URL, &r.Notes,
			&r.SortArtist, &r.SortTitle, &price, &numForSale, &r.Currency)
		if err != nil {
			return nil, err
		}
		r.ReleaseID, r.Year, r.NumForSale = intPtr(releaseID), intPtr(year), intPtr(numForSale)
		if price.Valid {
			r.LowestPrice = &price.Float64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunExclusions returns the releases a build rejected, in collection order
func (s *Store) RunExclusions(runID string) ([]Exclusion, error) {
	rows, err := s.db.Query(`
		SELECT position, release_id, COALESCE(artist, ''), COALESCE(title, ''),
		       year, COALESCE(format, ''), reason
		FROM exclusions
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query exclusions: %w", err)
	}
	defer rows.Close()

	var out []Exclusion
	for rows.Next() {
		var e Exclusion
		var releaseID, year sql.NullInt64
		if err := rows.Scan(&e.Position, &releaseID, &e.Artist, &e.Title, &year, &e.Format, &e.Reason); err != nil {
			return nil, err
		}
		e.ReleaseID, e.Year = intPtr(releaseID), intPtr(year)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountExclusionsByReason groups a build's exclusions by reason
func (s *Store) CountExclusionsByReason(runID string) (map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT reason, COUNT(*) FROM exclusions WHERE run_id = ? GROUP BY reason
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count exclusions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		counts[reason] = n
	}
	return counts, rows.Err()
}

// PruneRuns keeps the newest keep builds and deletes the rest with their rows
func (s *Store) PruneRuns(keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	var deleted int64
	err := s.Transaction(func(tx *sql.Tx) error {
		const stale = `SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT -1 OFFSET ?`
		if _, err := tx.Exec(`DELETE FROM run_rows WHERE run_id IN (`+stale+`)`, keep); err != nil {
			return fmt.Errorf("failed to prune rows: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM exclusions WHERE run_id IN (`+stale+`)`, keep); err != nil {
			return fmt.Errorf("failed to prune exclusions: %w", err)
		}
		res, err := tx.Exec(`DELETE FROM runs WHERE id IN (`+stale+`)`, keep)
		if err != nil {
			return fmt.Errorf("failed to prune runs: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
