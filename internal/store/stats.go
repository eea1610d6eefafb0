package store

import (
	"context"
	"fmt"

	"github.com/raysh454/patternshield/internal/model"
)

const (
	topIndustries  = 5
	recentActivity = 5
)

// Stats summarises the community reports and the local scan history.
func (s *Store) Stats(ctx context.Context) (*model.Stats, error) {
	st := &model.Stats{
		TopIndustries:        []model.NameCount{},
		RecentActivity:       []model.Activity{},
		DetectionsByCategory: []model.NameCount{},
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1),
		       COALESCE(SUM(kind = 'dark_pattern'), 0),
		       COALESCE(SUM(kind = 'ethical_alternative'), 0),
		       COALESCE(SUM(status = 'pending'), 0)
		FROM patterns`).Scan(&st.TotalPatterns, &st.DarkPatterns, &st.EthicalAlternatives, &st.PendingPatterns)
	if err != nil {
		return nil, fmt.Errorf("count patterns: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(1), COALESCE(SUM(detection_count > 0), 0) FROM scans`).Scan(&st.TotalScans, &st.FlaggedScans)
	if err != nil {
		return nil, fmt.Errorf("count scans: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM site_flags WHERE blocked = 1`).Scan(&st.BlockedSites); err != nil {
		return nil, fmt.Errorf("count blocked: %w", err)
	}

	if st.TopIndustries, err = s.nameCounts(ctx, `
		SELECT industry, COUNT(1) AS n FROM patterns
		GROUP BY industry ORDER BY n DESC, industry LIMIT ?`, topIndustries); err != nil {
		return nil, err
	}
	if st.DetectionsByCategory, err = s.nameCounts(ctx, `
		SELECT category, COUNT(1) AS n FROM scan_detections
		GROUP BY category ORDER BY n DESC, category LIMIT ?`, len(model.Categories())); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, kind, created_at FROM patterns
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, recentActivity)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			a    model.Activity
			kind string
			ts   int64
		)
		if err := rows.Scan(&a.ID, &a.Title, &kind, &ts); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Kind = model.PatternKind(kind)
		a.Timestamp = fromMillis(ts)
		st.RecentActivity = append(st.RecentActivity, a)
	}
	return st, rows.Err()
}

func (s *Store) nameCounts(ctx context.Context, q string, limit int) ([]model.NameCount, error) {
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()
	out := []model.NameCount{}
	for rows.Next() {
		var nc model.NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}
