package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/raysh454/patternshield/internal/logging"
	"github.com/raysh454/patternshield/internal/model"
)

const (
	DefaultPatternLimit = 50
	maxTitleLen         = 200
	maxDescriptionLen   = 5000
	maxCommentLen       = 2000
	defaultImpact       = 3
)

const patternColumns = `id, kind, industry, title, description, company_name, website_url,
	screenshot_url, impact_score, category, status, upvotes, downvotes, author, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (*model.Pattern, error) {
	var (
		p                  model.Pattern
		kind, ind, cat, st string
		created, updated   int64
	)
	err := row.Scan(&p.ID, &kind, &ind, &p.Title, &p.Description, &p.CompanyName, &p.WebsiteURL,
		&p.ScreenshotURL, &p.ImpactScore, &cat, &st, &p.Upvotes, &p.Downvotes, &p.Author, &created, &updated)
	if err != nil {
		return nil, err
	}
	p.Kind = model.PatternKind(kind)
	p.Industry = model.Industry(ind)
	p.Category = model.Category(cat)
	p.Status = model.PatternStatus(st)
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}

func validatePattern(p *model.Pattern) error {
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	switch {
	case !p.Kind.Valid():
		return fmt.Errorf("%w: kind %q", ErrInvalidInput, p.Kind)
	case p.Title == "" || len(p.Title) > maxTitleLen:
		return fmt.Errorf("%w: title must be 1..%d characters", ErrInvalidInput, maxTitleLen)
	case p.Description == "" || len(p.Description) > maxDescriptionLen:
		return fmt.Errorf("%w: description must be 1..%d characters", ErrInvalidInput, maxDescriptionLen)
	case p.Category != "" && !p.Category.Valid():
		return fmt.Errorf("%w: category %q", ErrInvalidInput, p.Category)
	}
	if p.Industry == "" {
		p.Industry = model.IndustryOther
	}
	if !p.Industry.Valid() {
		return fmt.Errorf("%w: industry %q", ErrInvalidInput, p.Industry)
	}
	if p.ImpactScore == 0 {
		p.ImpactScore = defaultImpact
	}
	if p.ImpactScore < 1 || p.ImpactScore > 5 {
		return fmt.Errorf("%w: impact score must be 1..5", ErrInvalidInput)
	}
	return nil
}

// SubmitPattern stores a new report. Id, status, votes and timestamps are
// assigned here; whatever the caller set for them is ignored.
func (s *Store) SubmitPattern(ctx context.Context, p model.Pattern) (*model.Pattern, error) {
	if err := validatePattern(&p); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p.ID = uuid.New().String()
	p.Status = model.StatusPending
	p.Upvotes, p.Downvotes = 0, 0
	if p.Author == "" {
		p.Author = "anonymous"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patterns (`+patternColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?)`,
		p.ID, string(p.Kind), string(p.Industry), p.Title, p.Description, p.CompanyName, p.WebsiteURL,
		p.ScreenshotURL, p.ImpactScore, string(p.Category), string(p.Status), p.Author, millis(now), millis(now))
	if err != nil {
		return nil, fmt.Errorf("insert pattern: %w", err)
	}
	p.CreatedAt = fromMillis(millis(now))
	p.UpdatedAt = p.CreatedAt
	s.logger.Info("pattern submitted",
		logging.Field{Key: "pattern_id", Value: p.ID},
		logging.Field{Key: "kind", Value: string(p.Kind)})
	return &p, nil
}

func (s *Store) GetPattern(ctx context.Context, id string) (*model.Pattern, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+patternColumns+` FROM patterns WHERE id = ?`, id)
	p, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPatternNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pattern: %w", err)
	}
	return p, nil
}

func orderBy(sort model.PatternSort) string {
	switch sort {
	case model.SortPopular:
		return "upvotes DESC, created_at DESC"
	case model.SortControversial:
		return "downvotes DESC, created_at DESC"
	default:
		return "created_at DESC, rowid DESC"
	}
}

// ListPatterns returns reports matching f.
func (s *Store) ListPatterns(ctx context.Context, f model.PatternFilter) ([]*model.Pattern, error) {
	var (
		where []string
		args  []any
	)
	if f.Industry != "" {
		where = append(where, "industry = ?")
		args = append(args, string(f.Industry))
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	q := `SELECT ` + patternColumns + ` FROM patterns`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY " + orderBy(f.Sort) + " LIMIT ?"
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultPatternLimit
	}
	args = append(args, limit)
	return s.queryPatterns(ctx, q, args...)
}

// SearchPatterns matches query case-insensitively against title,
// description and company name.
func (s *Store) SearchPatterns(ctx context.Context, query string, limit int) ([]*model.Pattern, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*model.Pattern{}, nil
	}
	if limit <= 0 {
		limit = DefaultPatternLimit
	}
	like := "%" + escapeLike(strings.ToLower(query)) + "%"
	return s.queryPatterns(ctx, `
		SELECT `+patternColumns+` FROM patterns
		WHERE lower(title) LIKE ? ESCAPE '\'
		   OR lower(description) LIKE ? ESCAPE '\'
		   OR lower(company_name) LIKE ? ESCAPE '\'
		ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		like, like, like, limit)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *Store) queryPatterns(ctx context.Context, q string, args ...any) ([]*model.Pattern, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	out := []*model.Pattern{}
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetPatternStatus moderates a report.
func (s *Store) SetPatternStatus(ctx context.Context, id string, status model.PatternStatus) (*model.Pattern, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidInput, status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE patterns SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), millis(s.now()), id)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrPatternNotFound
	}
	return s.GetPattern(ctx, id)
}

// Vote records voter's vote on a pattern. Each voter holds at most one vote
// per pattern; voting again with the other type moves the vote and voting
// the same way twice is a no-op. It returns the updated totals.
func (s *Store) Vote(ctx context.Context, patternID, voter string, vote model.VoteType) (up, down int, err error) {
	if vote != model.VoteUp && vote != model.VoteDown {
		return 0, 0, fmt.Errorf("%w: vote %q", ErrInvalidInput, vote)
	}
	voter = strings.TrimSpace(voter)
	if voter == "" {
		return 0, 0, fmt.Errorf("%w: empty voter", ErrInvalidInput)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM patterns WHERE id = ?`, patternID).Scan(&exists); err != nil {
			return fmt.Errorf("check pattern: %w", err)
		}
		if exists == 0 {
			return ErrPatternNotFound
		}

		var prev string
		err := tx.QueryRowContext(ctx,
			`SELECT vote_type FROM pattern_votes WHERE pattern_id = ? AND voter = ?`, patternID, voter).Scan(&prev)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO pattern_votes (pattern_id, voter, vote_type, created_at) VALUES (?, ?, ?, ?)`,
				patternID, voter, string(vote), millis(s.now())); err != nil {
				return fmt.Errorf("insert vote: %w", err)
			}
		case err != nil:
			return fmt.Errorf("read vote: %w", err)
		case prev == string(vote):
		default:
			if _, err := tx.ExecContext(ctx,
				`UPDATE pattern_votes SET vote_type = ? WHERE pattern_id = ? AND voter = ?`,
				string(vote), patternID, voter); err != nil {
				return fmt.Errorf("update vote: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE patterns SET
			  upvotes   = (SELECT COUNT(1) FROM pattern_votes WHERE pattern_id = ? AND vote_type = 'upvote'),
			  downvotes = (SELECT COUNT(1) FROM pattern_votes WHERE pattern_id = ? AND vote_type = 'downvote')
			WHERE id = ?`, patternID, patternID, patternID)
		if err != nil {
			return fmt.Errorf("update totals: %w", err)
		}
		return tx.QueryRowContext(ctx,
			`SELECT upvotes, downvotes FROM patterns WHERE id = ?`, patternID).Scan(&up, &down)
	})
	if err != nil {
		return 0, 0, err
	}
	return up, down, nil
}

// AddComment appends a comment to a pattern.
func (s *Store) AddComment(ctx context.Context, patternID, author, content string) (*model.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" || len(content) > maxCommentLen {
		return nil, fmt.Errorf("%w: comment must be 1..%d characters", ErrInvalidInput, maxCommentLen)
	}
	if author = strings.TrimSpace(author); author == "" {
		author = "anonymous"
	}
	if _, err := s.GetPattern(ctx, patternID); err != nil {
		return nil, err
	}
	c := &model.Comment{
		ID:        uuid.New().String(),
		PatternID: patternID,
		Author:    author,
		Content:   content,
		CreatedAt: fromMillis(millis(s.now())),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pattern_comments (id, pattern_id, author, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.PatternID, c.Author, c.Content, millis(c.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	return c, nil
}

// ListComments returns a pattern's comments oldest first.
func (s *Store) ListComments(ctx context.Context, patternID string) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pattern_id, author, content, created_at FROM pattern_comments
		WHERE pattern_id = ? ORDER BY created_at, rowid`, patternID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	out := []model.Comment{}
	for rows.Next() {
		var (
			c  model.Comment
			ts int64
		)
		if err := rows.Scan(&c.ID, &c.PatternID, &c.Author, &c.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.CreatedAt = fromMillis(ts)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Companies groups reports by company name, worst first. Reports without
// a company are grouped under "Unknown".
func (s *Store) Companies(ctx context.Context) ([]model.CompanyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT CASE WHEN company_name = '' THEN 'Unknown' ELSE company_name END AS company,
		       COUNT(1), AVG(impact_score), SUM(upvotes + downvotes), MAX(created_at)
		FROM patterns
		WHERE status != 'rejected'
		GROUP BY company
		ORDER BY AVG(impact_score) DESC, COUNT(1) DESC, company`)
	if err != nil {
		return nil, fmt.Errorf("query companies: %w", err)
	}
	defer rows.Close()

	out := []model.CompanyRecord{}
	for rows.Next() {
		var (
			c    model.CompanyRecord
			last int64
		)
		if err := rows.Scan(&c.Company, &c.TotalPatterns, &c.SeverityScore, &c.Reports, &last); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		c.LastUpdated = fromMillis(last)
		out = append(out, c)
	}
	return out, rows.Err()
}
