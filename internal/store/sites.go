package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/raysh454/patternshield/internal/model"
	"github.com/raysh454/patternshield/internal/utils"
)

func siteKey(site string) (string, error) {
	k, err := utils.SiteKey(site)
	if err != nil || k == "" {
		return "", fmt.Errorf("%w: site %q", ErrInvalidInput, site)
	}
	return k, nil
}

// BlockSite marks site as blocked. site may be a URL or a bare host.
func (s *Store) BlockSite(ctx context.Context, site, reason string) (*model.SiteFlag, error) {
	return s.setBlocked(ctx, site, true, reason)
}

func (s *Store) UnblockSite(ctx context.Context, site string) (*model.SiteFlag, error) {
	return s.setBlocked(ctx, site, false, "")
}

func (s *Store) setBlocked(ctx context.Context, site string, blocked bool, reason string) (*model.SiteFlag, error) {
	key, err := siteKey(site)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO site_flags (domain, blocked, reason, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET blocked = excluded.blocked, reason = excluded.reason, updated_at = excluded.updated_at`,
		key, blocked, reason, millis(now))
	if err != nil {
		return nil, fmt.Errorf("set site flag: %w", err)
	}
	return &model.SiteFlag{Domain: key, Blocked: blocked, Reason: reason, UpdatedAt: fromMillis(millis(now))}, nil
}

// SiteFlag returns the stored flag for site, or an unblocked zero flag.
func (s *Store) SiteFlag(ctx context.Context, site string) (*model.SiteFlag, error) {
	key, err := siteKey(site)
	if err != nil {
		return nil, err
	}
	f := &model.SiteFlag{Domain: key}
	var updated int64
	err = s.db.QueryRowContext(ctx,
		`SELECT blocked, reason, updated_at FROM site_flags WHERE domain = ?`, key).
		Scan(&f.Blocked, &f.Reason, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get site flag: %w", err)
	}
	f.UpdatedAt = fromMillis(updated)
	return f, nil
}

func (s *Store) IsBlocked(ctx context.Context, site string) (bool, error) {
	f, err := s.SiteFlag(ctx, site)
	if err != nil {
		return false, err
	}
	return f.Blocked, nil
}

// ListBlocked returns blocked sites, most recently changed first.
func (s *Store) ListBlocked(ctx context.Context) ([]model.SiteFlag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain, reason, updated_at FROM site_flags WHERE blocked = 1 ORDER BY updated_at DESC, domain`)
	if err != nil {
		return nil, fmt.Errorf("list blocked: %w", err)
	}
	defer rows.Close()

	out := []model.SiteFlag{}
	for rows.Next() {
		f := model.SiteFlag{Blocked: true}
		var updated int64
		if err := rows.Scan(&f.Domain, &f.Reason, &updated); err != nil {
			return nil, fmt.Errorf("scan site flag: %w", err)
		}
		f.UpdatedAt = fromMillis(updated)
		out = append(out, f)
	}
	return out, rows.Err()
}
