package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/raysh454/patternshield/internal/model"
	"github.com/raysh454/patternshield/internal/testutil"
)

func openTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	cfg.Path = filepath.Join(t.TempDir(), "patternshield.db")
	s, err := Open(cfg, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func scanAt(id, domain string, ts time.Time, ds ...model.Detection) *model.ScanResult {
	risk := 0
	if len(ds) > 0 {
		risk = 2
	}
	if ds == nil {
		ds = []model.Detection{}
	}
	return &model.ScanResult{
		ID:         id,
		Kind:       model.ScanKindPage,
		SourceRef:  "https://" + domain + "/",
		Domain:     domain,
		Timestamp:  ts.UTC(),
		Detections: ds,
		RiskScore:  risk,
	}
}

var renewal = model.Detection{RuleID: "auto-renewal", Category: model.CategoryForcedRenewal, Severity: 4, Confidence: 0.9}

func TestOpen_NilArgs(t *testing.T) {
	t.Parallel()
	if _, err := New(nil, Config{}, &testutil.DummyLogger{}); err == nil {
		t.Error("expected error for nil db")
	}
}

// ─── Scan history ──────────────────────────────────────────────────────

func TestRecordScan_RoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, DefaultConfig())
	ctx := context.Background()

	in := scanAt("scan-1", "shop.example", time.Now(), renewal)
	in.Recommendations = []string{"Look for auto-renewal settings"}
	if err := s.RecordScan(ctx, in); err != nil {
		t.Fatalf("RecordScan: %v", err)
	}

	got, err := s.GetScan(ctx, "scan-1")
	if err != nil {
		t.Fatalf("GetScan: %v", err)
	}
	if got.Domain != "shop.example" || len(got.Detections) != 1 || got.Detections[0].RuleID != "auto-renewal" {
		t.Errorf("unexpected round trip: %+v", got)
	}
	if !got.Timestamp.Equal(in.Timestamp) {
		t.Errorf("expected timestamp %v, got %v", in.Timestamp, got.Timestamp)
	}

	if _, err := s.GetScan(ctx, "missing"); !errors.Is(err, ErrScanNotFound) {
		t.Errorf("expected ErrScanNotFound, got %v", err)
	}
	if err := s.RecordScan(ctx, &model.ScanResult{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for scan without id, got %v", err)
	}
}

func TestListScans_FiltersNewestFirst(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, DefaultConfig())
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, domain := range []string{"a.example", "b.example", "a.example"} {
		var ds []model.Detection
		if i > 0 {
			ds = []model.Detection{renewal}
		}
		if err := s.RecordScan(ctx, scanAt(fmt.Sprintf("s%d", i), domain, base.Add(time.Duration(i)*time.Minute), ds...)); err != nil {
			t.Fatalf("RecordScan: %v", err)
		}
	}

	all, err := s.ListScans(ctx, ScanFilter{})
	if err != nil {
		t.Fatalf("ListScans: %v", err)
	}
	if len(all) != 3 || all[0].ID != "s2" || all[2].ID != "s0" {
		t.Fatalf("expected newest first, got %v", ids(all))
	}

	a, _ := s.ListScans(ctx, ScanFilter{Domain: "WWW.A.example"})
	if len(a) != 2 {
		t.Errorf("expected 2 scans for a.example, got %v", ids(a))
	}
	flagged, _ := s.ListScans(ctx, ScanFilter{OnlyFlagged: true})
	if len(flagged) != 2 {
		t.Errorf("expected 2 flagged scans, got %v", ids(flagged))
	}
	one, _ := s.ListScans(ctx, ScanFilter{Limit: 1})
	if len(one) != 1 {
		t.Errorf("expected limit to apply, got %d", len(one))
	}
}

func ids(rs []*model.ScanResult) []string {
	var out []string
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func TestPrune_KeepsNewestAndRecent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, Config{HistoryLimit: 3, HistoryMaxAge: 24 * time.Hour})
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if err := s.RecordScan(ctx, scanAt("old", "x.example", now.Add(-48*time.Hour))); err != nil {
		t.Fatalf("RecordScan: %v", err)
	}
	if _, err := s.GetScan(ctx, "old"); !errors.Is(err, ErrScanNotFound) {
		t.Error("expected scan older than max age to be pruned")
	}

	for i := 0; i < 5; i++ {
		if err := s.RecordScan(ctx, scanAt(fmt.Sprintf("n%d", i), "x.example", now.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("RecordScan: %v", err)
		}
	}
	got, _ := s.ListScans(ctx, ScanFilter{})
	if len(got) != 3 || got[0].ID != "n4" || got[2].ID != "n2" {
		t.Errorf("expected newest 3 kept, got %v", ids(got))
	}
}

func TestDeleteAndClearHistory(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, DefaultConfig())
	ctx := context.Background()
	_ = s.RecordScan(ctx, scanAt("a", "x.example", time.Now(), renewal))
	_ = s.RecordScan(ctx, scanAt("b", "x.example", time.Now()))

	if err := s.DeleteScan(ctx, "a"); err != nil {
		t.Fatalf("DeleteScan: %v", err)
	}
	if err := s.DeleteScan(ctx, "a"); !errors.Is(err, ErrScanNotFound) {
		t.Errorf("expected ErrScanNotFound on second delete, got %v", err)
	}
	st, _ := s.Stats(ctx)
	if len(st.DetectionsByCategory) != 0 {
		t.Errorf("expected detections to cascade, got %v", st.DetectionsByCategory)
	}
	if err := s.ClearHistory(ctx); err != nil {
		t.Fatalf("ClearHistory: %v", err)
	}
	if got, _ := s.ListScans(ctx, ScanFilter{}); len(got) != 0 {
		t.Errorf("expected empty history, got %v", ids(got))
	}
}

// ─── Site flags ────────────────────────────────────────────────────────

func TestSiteFlags(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, DefaultConfig())
	ctx := context.Background()

	if blocked, err := s.IsBlocked(ctx, "shop.example"); err != nil || blocked {
		t.Fatalf("expected unknown site unblocked, got %v, %v", blocked, err)
	}
	f, err := s.BlockSite(ctx, "https://www.Shop.example/checkout", "auto-renewal trap")
	if err != nil {
		t.Fatalf("BlockSite: %v", err)
	}
	if f.Domain != "shop.example" {
		t.Errorf("expected site key shop.example, got %q", f.Domain)
	}
	if blocked, _ := s.IsBlocked(ctx, "shop.example"); !blocked {
		t.Error("expected site to be blocked")
	}
	list, _ := s.ListBlocked(ctx)
	if len(list) != 1 || list[0].Reason != "auto-renewal trap" {
		t.Errorf("unexpected blocked list %+v", list)
	}

	if _, err := s.UnblockSite(ctx, "shop.example"); err != nil {
		t.Fatalf("UnblockSite: %v", err)
	}
	if blocked, _ := s.IsBlocked(ctx, "www.shop.example"); blocked {
		t.Error("expected site to be unblocked")
	}
	if _, err := s.BlockSite(ctx, "", ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty site, got %v", err)
	}
}

// ─── Community patterns ────────────────────────────────────────────────

func submit(t *testing.T, s *Store, title string, kind model.PatternKind, ind model.Industry) *model.Pattern {
	t.Helper()
	p, err := s.SubmitPattern(context.Background(), model.Pattern{
		Kind:        kind,
		Industry:    ind,
		Title:       title,
		Description: title + " description",
		CompanyName: "StreamCo",
	})
	if err != nil {
		t.Fatalf("SubmitPattern: %v", err)
	}
	return p
}

func TestSubmitPattern_Defaults(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, DefaultConfig())

	p := submit(t, s, "Hidden renewal", model.KindDarkPattern, "")
	if p.Status != model.StatusPending || p.Upvotes != 0 || p.Downvotes != 0 {
		t.Errorf("expected pending with zero votes, got %+v", p)
	}
	if p.Industry != model.IndustryOther || p.ImpactScore != defaultImpact || p.Author != "anonymous" {
		t.Errorf("expected defaults applied, got %+v", p)
	}

	got, err := s.GetPattern(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetPattern: %v", err)
	}
	if got.Title != "Hidden renewal" {
		t.Errorf("unexpected title %q", got.Title)
	}
}

func TestSubmitPattern_Invalid(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, DefaultConfig())
	cases := map[string]model.Pattern{
		"kind":     {Kind: "bogus", Title: "t", Description: "d"},
		"title":    {Kind: model.KindDarkPattern, Title: "  ", Description: "d"},
		"industry": {Kind: model.KindDarkPattern, Title: "t", Description: "d", Industry: "mining"},
		"impact":   {Kind: model.KindDarkPattern, Title: "t", Description: "d", ImpactScore: 9},
		"category": {Kind: model.KindDarkPattern, Title: "t", Description: "d", Category: "nagging"},
	}
	for name, p := range cases {
		if _, err := s.SubmitPattern(context.Background(), p); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestVote_OnePerVoter(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, DefaultConfig())
	ctx := context.Background()
	p := submit(t, s, "Roach motel", model.KindDarkPattern, model.IndustryFitness)

	steps := []struct {
		voter    string
		vote     model.VoteType
		up, down int
	}{
		{"alice", model.VoteUp, 1, 0},
		{"alice", model.VoteUp, 1, 0},
		{"bob", model.VoteDown, 1, 1},
		{"alice", model.VoteDown, 0, 2},
	}
	for i, st := range steps {
		up, down, err := s.Vote(ctx, p.ID, st.voter, st.vote)
		if err != nil {
			t.Fatalf("step %d: Vote: %v", i, err)
		}
		if up != st.up || down != st.down {
			t.Errorf("step %d: expected %d/%d, got %d/%d", i, st.up, st.down, up, down)
		}
	}

	if _, _, err := s.Vote(ctx, "missing", "alice", model.VoteUp); !errors.Is(err, ErrPatternNotFound) {
		t.Errorf("expected ErrPatternNotFound, got %v", err)
	}
	if _, _, err := s.Vote(ctx, p.ID, "", model.VoteUp); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty voter, got %v", err)
	}
}

func TestListPatterns_FilterAndSort(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, DefaultConfig())
	ctx := context.Background()
	base := time.Now()
	var tick int
	s.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) }

	a := submit(t, s, "Streaming trap", model.KindDarkPattern, model.IndustryStreaming)
	b := submit(t, s, "Fair cancel", model.KindEthicalAlternative, model.IndustryStreaming)
	c := submit(t, s, "Gym trap", model.KindDarkPattern, model.IndustryFitness)
	_, _, _ = s.Vote(ctx, a.ID, "u1", model.VoteUp)
	_, _, _ = s.Vote(ctx, a.ID, "u2", model.VoteUp)
	_, _, _ = s.Vote(ctx, c.ID, "u1", model.VoteDown)

	recent, _ := s.ListPatterns(ctx, model.PatternFilter{})
	if len(recent) != 3 || recent[0].ID != c.ID {
		t.Errorf("expected most recent first, got %v", titles(recent))
	}
	popular, _ := s.ListPatterns(ctx, model.PatternFilter{Sort: model.SortPopular})
	if popular[0].ID != a.ID {
		t.Errorf("expected most upvoted first, got %v", titles(popular))
	}
	contro, _ := s.ListPatterns(ctx, model.PatternFilter{Sort: model.SortControversial})
	if contro[0].ID != c.ID {
		t.Errorf("expected most downvoted first, got %v", titles(contro))
	}
	streaming, _ := s.ListPatterns(ctx, model.PatternFilter{Industry: model.IndustryStreaming, Kind: model.KindDarkPattern})
	if len(streaming) != 1 || streaming[0].ID != a.ID {
		t.Errorf("expected only the streaming dark pattern, got %v", titles(streaming))
	}

	if _, err := s.SetPatternStatus(ctx, b.ID, model.StatusApproved); err != nil {
		t.Fatalf("SetPatternStatus: %v", err)
	}
	approved, _ := s.ListPatterns(ctx, model.PatternFilter{Status: model.StatusApproved})
	if len(approved) != 1 || approved[0].ID != b.ID {
		t.Errorf("expected the approved pattern, got %v", titles(approved))
	}
	if _, err := s.SetPatternStatus(ctx, "missing", model.StatusApproved); !errors.Is(err, ErrPatternNotFound) {
		t.Errorf("expected ErrPatternNotFound, got %v", err)
	}
}

func titles(ps []*model.Pattern) []string {
	var out []string
	for _, p := range ps {
		out = append(out, p.Title)
	}
	return out
}

func TestSearchPatterns(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, DefaultConfig())
	ctx := context.Background()
	submit(t, s, "Confirmshaming popup", model.KindDarkPattern, model.IndustryNews)
	submit(t, s, "100% off_trial", model.KindDarkPattern, model.IndustrySaaS)

	if got, _ := s.SearchPatterns(ctx, "CONFIRMSHAMING", 0); len(got) != 1 {
		t.Errorf("expected case-insensitive title match, got %v", titles(got))
	}
	if got, _ := s.SearchPatterns(ctx, "streamco", 0); len(got) != 2 {
		t.Errorf("expected company match, got %v", titles(got))
	}
	if got, _ := s.SearchPatterns(ctx, "0%", 0); len(got) != 1 {
		t.Errorf("expected literal percent, got %v", titles(got))
	}
	if got, _ := s.SearchPatterns(ctx, "  ", 0); len(got) != 0 {
		t.Errorf("expected no results for blank query, got %v", titles(got))
	}
}

func TestComments(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, DefaultConfig())
	ctx := context.Background()
	p := submit(t, s, "Sneak into basket", model.KindDarkPattern, model.IndustryEcommerce)

	if _, err := s.AddComment(ctx, p.ID, "carol", "Happened to me too"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if _, err := s.AddComment(ctx, p.ID, "", "Same here"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	cs, err := s.ListComments(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(cs) != 2 || cs[0].Author != "carol" || cs[1].Author != "anonymous" {
		t.Errorf("unexpected comments %+v", cs)
	}
	if _, err := s.AddComment(ctx, "missing", "x", "y"); !errors.Is(err, ErrPatternNotFound) {
		t.Errorf("expected ErrPatternNotFound, got %v", err)
	}
	if _, err := s.AddComment(ctx, p.ID, "x", " "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty comment, got %v", err)
	}
}

func TestStatsAndCompanies(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, DefaultConfig())
	ctx := context.Background()

	submit(t, s, "One", model.KindDarkPattern, model.IndustryStreaming)
	submit(t, s, "Two", model.KindDarkPattern, model.IndustryStreaming)
	submit(t, s, "Three", model.KindEthicalAlternative, model.IndustrySaaS)
	_ = s.RecordScan(ctx, scanAt("s1", "x.example", time.Now(), renewal))
	_ = s.RecordScan(ctx, scanAt("s2", "y.example", time.Now()))
	_, _ = s.BlockSite(ctx, "x.example", "")

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalPatterns != 3 || st.DarkPatterns != 2 || st.EthicalAlternatives != 1 || st.PendingPatterns != 3 {
		t.Errorf("unexpected pattern counts %+v", st)
	}
	if st.TotalScans != 2 || st.FlaggedScans != 1 || st.BlockedSites != 1 {
		t.Errorf("unexpected scan counts %+v", st)
	}
	if len(st.TopIndustries) == 0 || st.TopIndustries[0].Name != "streaming" || st.TopIndustries[0].Count != 2 {
		t.Errorf("unexpected top industries %+v", st.TopIndustries)
	}
	if len(st.DetectionsByCategory) != 1 || st.DetectionsByCategory[0].Name != string(model.CategoryForcedRenewal) {
		t.Errorf("unexpected detections by category %+v", st.DetectionsByCategory)
	}
	if len(st.RecentActivity) != 3 {
		t.Errorf("expected 3 activity entries, got %d", len(st.RecentActivity))
	}

	cs, err := s.Companies(ctx)
	if err != nil {
		t.Fatalf("Companies: %v", err)
	}
	if len(cs) != 1 || cs[0].Company != "StreamCo" || cs[0].TotalPatterns != 3 {
		t.Errorf("unexpected company records %+v", cs)
	}
}
