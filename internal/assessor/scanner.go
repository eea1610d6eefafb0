package assessor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raysh454/patternshield/internal/evidence"
	"github.com/raysh454/patternshield/internal/logging"
	"github.com/raysh454/patternshield/internal/matcher"
	"github.com/raysh454/patternshield/internal/model"
	"github.com/raysh454/patternshield/internal/rules"
	"github.com/raysh454/patternshield/internal/utils"
	"github.com/raysh454/patternshield/internal/webclient"
)

var (
	// ErrFetchFailed is returned when the target page cannot be loaded.
	ErrFetchFailed = errors.New("page fetch failed")

	// ErrInvalidURL is returned by ScanURL and ScanPage for unusable input.
	ErrInvalidURL = errors.New("invalid url")

	// ErrNoWebClient is returned by ScanPage when no web client is configured.
	ErrNoWebClient = errors.New("no web client configured")
)

// TextExtractor is the OCR collaborator.
type TextExtractor interface {
	ExtractText(ctx context.Context, imageRef string) ([]string, error)
}

// CompanyLookup is the cosmetic enrichment collaborator.
type CompanyLookup interface {
	Lookup(ctx context.Context, domain string) (*model.Company, error)
}

// Publisher receives every finished scan. report.Reporter implements it.
type Publisher interface {
	Publish(ctx context.Context, result *model.ScanResult)
}

// Scanner runs the extract, match, score, report pipeline for each input
// kind. A Scanner holds no per-scan state and may be shared.
type Scanner struct {
	cfg       Config
	matcher   *matcher.Matcher
	urlRules  []rules.URLRule
	web       webclient.WebClient
	ocr       TextExtractor
	company   CompanyLookup
	publisher Publisher
	logger    logging.Logger
	now       func() time.Time
}

type Option func(*Scanner)

func WithWebClient(wc webclient.WebClient) Option { return func(s *Scanner) { s.web = wc } }

func WithTextExtractor(te TextExtractor) Option { return func(s *Scanner) { s.ocr = te } }

func WithCompanyLookup(cl CompanyLookup) Option { return func(s *Scanner) { s.company = cl } }

func WithPublisher(p Publisher) Option { return func(s *Scanner) { s.publisher = p } }

// WithURLRules replaces the default URL heuristic table.
func WithURLRules(us []rules.URLRule) Option {
	return func(s *Scanner) { s.urlRules = us }
}

func New(cfg Config, m *matcher.Matcher, logger logging.Logger, opts ...Option) (*Scanner, error) {
	if m == nil {
		return nil, errors.New("assessor: nil matcher")
	}
	if logger == nil {
		return nil, errors.New("assessor: nil logger")
	}
	if cfg.CollaboratorTimeout <= 0 {
		cfg.CollaboratorTimeout = DefaultConfig().CollaboratorTimeout
	}
	s := &Scanner{
		cfg:      cfg,
		matcher:  m,
		urlRules: rules.DefaultURLRules(),
		logger:   logger.With(logging.Field{Key: "component", Value: "scanner"}),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if err := rules.ValidateURLRules(s.urlRules); err != nil {
		return nil, err
	}
	s.logger.Info("scanner constructed",
		logging.Field{Key: "rules_version", Value: m.Registry().Version()},
		logging.Field{Key: "url_rules", Value: len(s.urlRules)})
	return s, nil
}

// Matcher returns the matcher the scanner evaluates with.
func (s *Scanner) Matcher() *matcher.Matcher { return s.matcher }

// Selectors lists the structural selectors an HTML source must be
// extracted with.
func (s *Scanner) Selectors() []string { return s.matcher.Registry().Selectors() }

// ScanEvidence matches an already extracted set and publishes the result.
func (s *Scanner) ScanEvidence(ctx context.Context, kind model.ScanKind, sourceRef string, set *evidence.Set) *model.ScanResult {
	r := s.evaluate(kind, sourceRef, set)
	s.publish(ctx, r)
	return r
}

// ScanHTML scans a markup document. Unparseable or empty markup is
// treated as empty evidence.
func (s *Scanner) ScanHTML(ctx context.Context, sourceRef string, body []byte) *model.ScanResult {
	set := s.extractHTML(sourceRef, body)
	r := s.evaluate(model.ScanKindHTML, sourceRef, set)
	s.fillURLFields(r, sourceRef)
	s.publish(ctx, r)
	return r
}

// ScanText scans free text, one line at a time.
func (s *Scanner) ScanText(ctx context.Context, text string) *model.ScanResult {
	ref := "text:" + utils.ShortHash([]byte(text))
	return s.scanLines(ctx, model.ScanKindText, ref, evidence.SplitLines(text))
}

// ScanLines scans lines that were extracted elsewhere.
func (s *Scanner) ScanLines(ctx context.Context, sourceRef string, lines []string) *model.ScanResult {
	return s.scanLines(ctx, model.ScanKindText, sourceRef, lines)
}

// ScanImage runs the OCR collaborator over imageRef and scans the lines it
// returns. Missing or failing OCR yields an empty scan.
func (s *Scanner) ScanImage(ctx context.Context, imageRef string) *model.ScanResult {
	ref := "uploaded-image:" + utils.ShortHash([]byte(imageRef))
	var lines []string
	if s.ocr == nil {
		s.logger.Warn("no text extractor configured; image evidence is empty")
	} else {
		cctx, cancel := context.WithTimeout(ctx, s.cfg.CollaboratorTimeout)
		var err error
		lines, err = s.ocr.ExtractText(cctx, imageRef)
		cancel()
		if err != nil {
			s.logger.Warn("text extraction unavailable",
				logging.Field{Key: "source", Value: ref},
				logging.Field{Key: "error", Value: err.Error()})
			lines = nil
		}
	}
	return s.scanLines(ctx, model.ScanKindImage, ref, lines)
}

func (s *Scanner) scanLines(ctx context.Context, kind model.ScanKind, ref string, lines []string) *model.ScanResult {
	r := s.evaluate(kind, ref, evidence.FromLines(lines))
	s.publish(ctx, r)
	return r
}

// ScanURL applies the URL heuristic table to raw without loading it.
func (s *Scanner) ScanURL(ctx context.Context, raw string) (*model.ScanResult, error) {
	ev, err := evidence.FromURL(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	r := s.newResult(model.ScanKindURL, ev.Raw)
	r.Detections = matcher.MatchURL(s.urlRules, ev)
	r.Domain = strings.TrimPrefix(ev.Host, "www.")
	r.Secure = ev.Secure
	score(r, 1)
	r.Company = s.lookupCompany(ctx, r.Domain)
	s.publish(ctx, r)
	return r, nil
}

// ScanPage loads pageURL with the web client and scans the document. Only
// an unreachable page is reported as an error.
func (s *Scanner) ScanPage(ctx context.Context, pageURL string) (*model.ScanResult, error) {
	if s.web == nil {
		return nil, ErrNoWebClient
	}
	if _, err := evidence.FromURL(pageURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	resp, err := s.web.Get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, pageURL, err)
	}
	return s.ScanResponse(ctx, pageURL, resp)
}

// ScanResponse scans a page that was already fetched. A non-2xx response
// is a fetch failure; a non-HTML body is scanned as empty evidence.
func (s *Scanner) ScanResponse(ctx context.Context, pageURL string, resp *webclient.Response) (*model.ScanResult, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: %s: no response", ErrFetchFailed, pageURL)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: %s: status %d", ErrFetchFailed, pageURL, resp.StatusCode)
	}

	var set *evidence.Set
	if resp.IsHTML() {
		set = s.extractHTML(pageURL, resp.Body)
	} else {
		s.logger.Warn("non-html response; scanning empty evidence",
			logging.Field{Key: "url", Value: pageURL},
			logging.Field{Key: "content_type", Value: resp.Headers.Get("Content-Type")})
		set = &evidence.Set{}
	}

	r := s.evaluate(model.ScanKindPage, pageURL, set)
	s.fillURLFields(r, pageURL)
	r.Company = s.lookupCompany(ctx, r.Domain)
	s.publish(ctx, r)
	return r, nil
}

func (s *Scanner) extractHTML(ref string, body []byte) *evidence.Set {
	set, err := evidence.FromHTML(body, s.Selectors())
	if err != nil {
		s.logger.Warn("evidence extraction unavailable",
			logging.Field{Key: "source", Value: ref},
			logging.Field{Key: "error", Value: err.Error()})
		if set == nil {
			set = &evidence.Set{}
		}
	}
	return set
}

func (s *Scanner) evaluate(kind model.ScanKind, ref string, set *evidence.Set) *model.ScanResult {
	if set == nil {
		set = &evidence.Set{}
	}
	out := s.matcher.Match(set)

	r := s.newResult(kind, ref)
	r.Title = set.Title
	r.Description = set.Description
	r.Detections = out.Detections
	for _, d := range out.Diagnostics {
		r.Diagnostics = append(r.Diagnostics, d.String())
	}
	r.Suspicious = suspicious(set)
	examined := len(set.Elements)
	if set.LineMode() {
		examined = len(set.Lines)
	}
	score(r, examined)

	s.logger.Info("scan complete",
		logging.Field{Key: "kind", Value: string(kind)},
		logging.Field{Key: "source", Value: ref},
		logging.Field{Key: "detections", Value: len(r.Detections)},
		logging.Field{Key: "risk_score", Value: r.RiskScore})
	return r
}

// suspicious flags hidden or fine-print evidence.
func suspicious(set *evidence.Set) []model.SuspiciousElement {
	var out []model.SuspiciousElement
	for _, el := range set.Elements {
		if !el.IsHidden || el.Content == "" {
			continue
		}
		out = append(out, model.SuspiciousElement{
			Element:   el.Content,
			Reason:    "Important information hidden in fine print",
			RiskLevel: "high",
		})
	}
	return out
}

func (s *Scanner) newResult(kind model.ScanKind, ref string) *model.ScanResult {
	return &model.ScanResult{
		ID:           uuid.New().String(),
		Kind:         kind,
		SourceRef:    ref,
		Timestamp:    s.now().UTC(),
		Detections:   []model.Detection{},
		RulesVersion: s.matcher.Registry().Version(),
	}
}

func (s *Scanner) fillURLFields(r *model.ScanResult, ref string) {
	ev, err := evidence.FromURL(ref)
	if err != nil {
		return
	}
	r.Domain = strings.TrimPrefix(ev.Host, "www.")
	r.Secure = ev.Secure
}

func (s *Scanner) lookupCompany(ctx context.Context, domain string) *model.Company {
	if !s.cfg.EnrichCompany || s.company == nil || domain == "" {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CollaboratorTimeout)
	defer cancel()
	c, err := s.company.Lookup(cctx, domain)
	if err != nil {
		s.logger.Debug("company lookup failed",
			logging.Field{Key: "domain", Value: domain},
			logging.Field{Key: "error", Value: err.Error()})
		return nil
	}
	return c
}

func (s *Scanner) publish(ctx context.Context, r *model.ScanResult) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, r)
}
