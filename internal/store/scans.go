package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/raysh454/patternshield/internal/logging"
	"github.com/raysh454/patternshield/internal/model"
)

// ScanFilter selects history entries. Zero values mean "all".
type ScanFilter struct {
	Domain string
	// OnlyFlagged keeps scans with at least one detection.
	OnlyFlagged bool
	Limit       int
}

// RecordScan stores a finished scan and prunes history. It satisfies
// report.Recorder.
func (s *Store) RecordScan(ctx context.Context, r *model.ScanResult) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("%w: scan without id", ErrInvalidInput)
	}
	blob, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal scan: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO scans
			  (id, kind, source_ref, domain, risk_score, max_severity, detection_count, result_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, string(r.Kind), r.SourceRef, r.Domain, r.RiskScore, r.MaxSeverity(),
			len(r.Detections), string(blob), millis(r.Timestamp))
		if err != nil {
			return fmt.Errorf("insert scan: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM scan_detections WHERE scan_id = ?`, r.ID); err != nil {
			return fmt.Errorf("clear detections: %w", err)
		}
		for _, d := range r.Detections {
			_, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO scan_detections (scan_id, rule_id, category, severity)
				VALUES (?, ?, ?, ?)`,
				r.ID, d.RuleID, string(d.Category), d.Severity)
			if err != nil {
				return fmt.Errorf("insert detection %s: %w", d.RuleID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := s.Prune(ctx); err != nil {
		s.logger.Warn("history prune failed", logging.Field{Key: "error", Value: err.Error()})
	}
	return nil
}

// ListScans returns history newest first.
func (s *Store) ListScans(ctx context.Context, f ScanFilter) ([]*model.ScanResult, error) {
	var (
		where []string
		args  []any
	)
	if f.Domain != "" {
		where = append(where, "domain = ?")
		args = append(args, strings.TrimPrefix(strings.ToLower(f.Domain), "www."))
	}
	if f.OnlyFlagged {
		where = append(where, "detection_count > 0")
	}
	q := `SELECT result_json FROM scans`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, rowid DESC"
	limit := f.Limit
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	out := []*model.ScanResult{}
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var r model.ScanResult
		if err := json.Unmarshal([]byte(blob), &r); err != nil {
			return nil, fmt.Errorf("decode scan: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *Store) GetScan(ctx context.Context, id string) (*model.ScanResult, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT result_json FROM scans WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scan: %w", err)
	}
	var r model.ScanResult
	if err := json.Unmarshal([]byte(blob), &r); err != nil {
		return nil, fmt.Errorf("decode scan: %w", err)
	}
	return &r, nil
}

// DeleteScan removes one history entry.
func (s *Store) DeleteScan(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete scan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrScanNotFound
	}
	return nil
}

// ClearHistory removes every stored scan.
func (s *Store) ClearHistory(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scans`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Prune drops scans older than HistoryMaxAge and everything beyond the
// newest HistoryLimit. It returns the number of rows removed.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	cutoff := millis(s.now().Add(-s.cfg.HistoryMaxAge))
	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM scans WHERE created_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("prune by age: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n

		res, err = tx.ExecContext(ctx, `
			DELETE FROM scans WHERE id NOT IN (
			  SELECT id FROM scans ORDER BY created_at DESC, rowid DESC LIMIT ?
			)`, s.cfg.HistoryLimit)
		if err != nil {
			return fmt.Errorf("prune by count: %w", err)
		}
		n, _ = res.RowsAffected()
		removed += n
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Debug("pruned history", logging.Field{Key: "removed", Value: removed})
	}
	return removed, nil
}
