package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raysh454/patternshield/internal/app"
	"github.com/raysh454/patternshield/internal/server"
	"github.com/raysh454/patternshield/internal/testutil"
)

const (
	shopRoot  = "http://shop.test/"
	shopTrial = "http://shop.test/trial"
	trialHTML = `<html><head><title>Trial</title></head><body>
		<p>Your membership will automatically renew each month.</p>
		<p>To stop billing, call our support line to cancel.</p></body></html>`
)

func newTestServer(t *testing.T) *server.Server {
	t.Helper()

	web := &testutil.DummyWebClient{}
	web.SetPage(shopRoot, `<html><body><a href="/trial">Trial</a></body></html>`)
	web.SetPage(shopTrial, trialHTML)

	appCfg := app.DefaultConfig()
	appCfg.StorageRoot = t.TempDir()
	appCfg.Company.Enabled = false
	appCfg.Watch.Interval = 20 * time.Millisecond

	s, err := server.NewServer(server.Config{
		ListenAddr: ":0",
		AppConfig:  appCfg,
		Logger:     &testutil.DummyLogger{},
		AppOptions: []app.Option{
			app.WithWebClient(web),
			app.WithTextExtractor(&testutil.StaticOCR{Lines: []string{"Offer expires in 5 minutes"}}),
		},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func doJSON(t *testing.T, s http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON response: %v (body: %s)", err, rec.Body.String())
	}
}

type scanJSON struct {
	ID         string `json:"id"`
	RiskScore  int    `json:"risk_score"`
	Detections []struct {
		RuleID   string `json:"rule_id"`
		Category string `json:"category"`
	} `json:"detections"`
}

func scanTrial(t *testing.T, s http.Handler) scanJSON {
	t.Helper()
	rec := doJSON(t, s, "POST", "/scans/page", `{"url":"`+shopTrial+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res scanJSON
	decodeJSON(t, rec, &res)
	return res
}

// ─── CORS ──────────────────────────────────────────────────────────────

func TestServer_CORS_HeaderPresent(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := doJSON(t, s, "GET", "/scans", "")

	origin := rec.Header().Get("Access-Control-Allow-Origin")
	if origin != "*" {
		t.Errorf("expected CORS origin *, got %q", origin)
	}
}

func TestServer_OptionsPreflight(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := doJSON(t, s, "OPTIONS", "/scans/page", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for OPTIONS, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("expected Allow-Methods header on OPTIONS")
	}
}

// ─── Scans ─────────────────────────────────────────────────────────────

func TestServer_ScanPage(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	res := scanTrial(t, s)
	if len(res.Detections) != 2 {
		t.Fatalf("expected 2 detections, got %+v", res.Detections)
	}
	if res.RiskScore < 1 {
		t.Errorf("expected a positive risk score, got %d", res.RiskScore)
	}
}

func TestServer_ScanPage_FetchFailure(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := doJSON(t, s, "POST", "/scans/page", `{"url":"http://shop.test/missing"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502 for a 404 page, got %d", rec.Code)
	}
	rec = doJSON(t, s, "POST", "/scans/page", `{"url":"not a url"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an invalid url, got %d", rec.Code)
	}
}

func TestServer_ScanHTML(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	body, _ := json.Marshal(server.ScanHTMLRequest{SourceRef: "ext:tab-1", HTML: `<label><input type="checkbox" checked> Automatically renew</label>`})
	rec := doJSON(t, s, "POST", "/scans/html", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res scanJSON
	decodeJSON(t, rec, &res)
	if len(res.Detections) == 0 || res.Detections[0].Category != "forced_renewal" {
		t.Errorf("expected forced_renewal, got %+v", res.Detections)
	}
}

func TestServer_ScanText_CleanAndLines(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := doJSON(t, s, "POST", "/scans/text", `{"text":"Thanks for shopping with us."}`)
	var res scanJSON
	decodeJSON(t, rec, &res)
	if len(res.Detections) != 0 || res.RiskScore != 0 {
		t.Errorf("expected a clean scan, got %+v", res)
	}

	rec = doJSON(t, s, "POST", "/scans/text", `{"lines":["Hurry before gone!","Call us"]}`)
	decodeJSON(t, rec, &res)
	if len(res.Detections) != 1 || res.Detections[0].Category != "countdown_pressure" {
		t.Errorf("expected countdown_pressure, got %+v", res.Detections)
	}
}

func TestServer_InlineScansKeepSeparateAdvisories(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	refs := map[string]bool{}
	for _, body := range []string{
		`{"html":"<p>A processing fee applies.</p>"}`,
		`{"html":"<p>Offer expires in 5 minutes.</p>"}`,
		`{"lines":["Hurry before gone!"]}`,
		`{"lines":["Call us to cancel."]}`,
	} {
		path := "/scans/html"
		if strings.Contains(body, "lines") {
			path = "/scans/text"
		}
		rec := doJSON(t, s, "POST", path, body)
		var res struct {
			SourceRef string `json:"source_ref"`
		}
		decodeJSON(t, rec, &res)
		refs[res.SourceRef] = true
	}
	if len(refs) != 4 {
		t.Errorf("expected 4 distinct source refs, got %v", refs)
	}

	rec := doJSON(t, s, "GET", "/advisories", "")
	var advs []map[string]any
	decodeJSON(t, rec, &advs)
	if len(advs) != 4 {
		t.Errorf("expected 4 advisories, got %d", len(advs))
	}
}

func TestServer_ScanImage(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := doJSON(t, s, "POST", "/scans/image", `{"image_ref":"https://img.test/shot.png"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res scanJSON
	decodeJSON(t, rec, &res)
	if len(res.Detections) != 1 || res.Detections[0].Category != "countdown_pressure" {
		t.Errorf("expected countdown_pressure from OCR text, got %+v", res.Detections)
	}

	rec = doJSON(t, s, "POST", "/scans/image", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without image_ref, got %d", rec.Code)
	}
}

func TestServer_ScanURL(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := doJSON(t, s, "POST", "/scans/url", `{"url":"https://www.netflix.com/free-trial"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res scanJSON
	decodeJSON(t, rec, &res)
	if len(res.Detections) == 0 {
		t.Error("expected url heuristics to fire")
	}
	for _, d := range res.Detections {
		if !strings.HasPrefix(d.RuleID, "url:") {
			t.Errorf("expected url: rule ids, got %s", d.RuleID)
		}
	}
}

func TestServer_InvalidJSON(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	for _, path := range []string{"/scans/page", "/scans/html", "/scans/text", "/patterns", "/jobs/crawl"} {
		rec := doJSON(t, s, "POST", path, `{invalid}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, rec.Code)
		}
	}
}

// ─── History ───────────────────────────────────────────────────────────

func TestServer_History(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	res := scanTrial(t, s)
	doJSON(t, s, "POST", "/scans/text", `{"text":"nothing to see"}`)

	rec := doJSON(t, s, "GET", "/scans?flagged=true", "")
	var list []scanJSON
	decodeJSON(t, rec, &list)
	if len(list) != 1 || list[0].ID != res.ID {
		t.Fatalf("expected only the flagged scan, got %+v", list)
	}

	rec = doJSON(t, s, "GET", "/scans/"+res.ID+"/report", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Header().Get("Content-Type"), "markdown") {
		t.Errorf("expected a markdown report, got %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}

	rec = doJSON(t, s, "GET", "/scans/"+res.ID+"/alerts", "")
	var alerts []map[string]any
	decodeJSON(t, rec, &alerts)
	if len(alerts) != 2 {
		t.Errorf("expected 2 alerts, got %d", len(alerts))
	}

	if rec := doJSON(t, s, "DELETE", "/scans/"+res.ID, ""); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec := doJSON(t, s, "GET", "/scans/"+res.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}

	doJSON(t, s, "DELETE", "/scans", "")
	rec = doJSON(t, s, "GET", "/scans", "")
	decodeJSON(t, rec, &list)
	if len(list) != 0 {
		t.Errorf("expected empty history after clear, got %d", len(list))
	}
}

// ─── Sites ─────────────────────────────────────────────────────────────

func TestServer_BlockUnblockSite(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := doJSON(t, s, "PUT", "/sites/www.Shop.test/block", `{"reason":"renewal trap"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, "GET", "/sites/shop.test", "")
	var flag map[string]any
	decodeJSON(t, rec, &flag)
	if flag["blocked"] != true {
		t.Errorf("expected shop.test to be blocked, got %+v", flag)
	}

	rec = doJSON(t, s, "GET", "/sites/blocked", "")
	var blocked []map[string]any
	decodeJSON(t, rec, &blocked)
	if len(blocked) != 1 {
		t.Errorf("expected 1 blocked site, got %d", len(blocked))
	}

	doJSON(t, s, "DELETE", "/sites/shop.test/block", "")
	rec = doJSON(t, s, "GET", "/sites/shop.test", "")
	decodeJSON(t, rec, &flag)
	if flag["blocked"] == true {
		t.Error("expected shop.test to be unblocked")
	}
}

func TestServer_BlockSite_Body(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	if rec := doJSON(t, s, "PUT", "/sites/shop.test/block", `{"reason":`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed JSON, got %d", rec.Code)
	}
	rec := doJSON(t, s, "GET", "/sites/shop.test", "")
	var flag map[string]any
	decodeJSON(t, rec, &flag)
	if flag["blocked"] == true {
		t.Error("expected malformed request to leave the site unblocked")
	}

	if rec := doJSON(t, s, "PUT", "/sites/shop.test/block", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200 for empty body, got %d: %s", rec.Code, rec.Body.String())
	}
}

// ─── Patterns ──────────────────────────────────────────────────────────

func TestServer_PatternLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := doJSON(t, s, "POST", "/patterns", `{
		"kind":"dark_pattern",
		"title":"Streaming trial auto renews",
		"description":"The free trial will automatically renew and you must call to cancel the subscription.",
		"company_name":"StreamCo"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var sub struct {
		Pattern struct {
			ID       string `json:"id"`
			Status   string `json:"status"`
			Category string `json:"category"`
			Industry string `json:"industry"`
		} `json:"pattern"`
		Validation struct {
			Keywords []string `json:"keywords"`
		} `json:"validation"`
	}
	decodeJSON(t, rec, &sub)
	id := sub.Pattern.ID
	if sub.Pattern.Status != "pending" {
		t.Errorf("expected pending, got %s", sub.Pattern.Status)
	}
	if sub.Pattern.Category == "" {
		t.Error("expected a suggested category")
	}
	if sub.Pattern.Industry != "streaming" {
		t.Errorf("expected streaming industry, got %s", sub.Pattern.Industry)
	}

	rec = doJSON(t, s, "POST", "/patterns/"+id+"/votes", `{"voter":"alice","vote":"up"}`)
	var votes server.VoteResponse
	decodeJSON(t, rec, &votes)
	if votes.Upvotes != 1 || votes.Downvotes != 0 {
		t.Errorf("expected 1/0 votes, got %+v", votes)
	}
	// same voter changes their mind
	rec = doJSON(t, s, "POST", "/patterns/"+id+"/votes", `{"voter":"alice","vote":"down"}`)
	decodeJSON(t, rec, &votes)
	if votes.Upvotes != 0 || votes.Downvotes != 1 {
		t.Errorf("expected 0/1 votes, got %+v", votes)
	}

	if rec := doJSON(t, s, "POST", "/patterns/"+id+"/votes", `{"voter":"bob","vote":"sideways"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad vote, got %d", rec.Code)
	}

	rec = doJSON(t, s, "POST", "/patterns/"+id+"/comments", `{"content":"Happened to me too"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	rec = doJSON(t, s, "GET", "/patterns/"+id+"/comments", "")
	var comments []map[string]any
	decodeJSON(t, rec, &comments)
	if len(comments) != 1 || comments[0]["author"] != "anonymous" {
		t.Errorf("unexpected comments %+v", comments)
	}

	rec = doJSON(t, s, "PUT", "/patterns/"+id+"/status", `{"status":"approved"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, s, "GET", "/patterns?status=approved", "")
	var list []map[string]any
	decodeJSON(t, rec, &list)
	if len(list) != 1 {
		t.Errorf("expected 1 approved pattern, got %d", len(list))
	}

	rec = doJSON(t, s, "GET", "/patterns/search?q=streamco", "")
	decodeJSON(t, rec, &list)
	if len(list) != 1 {
		t.Errorf("expected search to find the pattern, got %d", len(list))
	}
}

func TestServer_SubmitPattern_Invalid(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := doJSON(t, s, "POST", "/patterns", `{"kind":"dark_pattern","title":"","description":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if rec := doJSON(t, s, "GET", "/patterns/nonexistent", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestServer_StatsAndCompanies(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	scanTrial(t, s)
	doJSON(t, s, "POST", "/patterns", `{"kind":"dark_pattern","title":"Hidden fee","description":"A processing fee appears at checkout.","company_name":"ShopCo"}`)

	rec := doJSON(t, s, "GET", "/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = doJSON(t, s, "GET", "/companies", "")
	var companies []map[string]any
	decodeJSON(t, rec, &companies)
	if len(companies) != 1 || companies[0]["company_name"] != "ShopCo" {
		t.Errorf("unexpected companies %+v", companies)
	}
}

// ─── Advisories and rules ──────────────────────────────────────────────

func TestServer_Advisories(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	scanTrial(t, s)
	rec := doJSON(t, s, "GET", "/advisories", "")
	var advs []map[string]any
	decodeJSON(t, rec, &advs)
	if len(advs) != 1 {
		t.Fatalf("expected 1 advisory, got %d", len(advs))
	}

	if rec := doJSON(t, s, "DELETE", "/advisories?source="+shopTrial, ""); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec := doJSON(t, s, "DELETE", "/advisories?source="+shopTrial, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second dismiss, got %d", rec.Code)
	}
}

func TestServer_Rules(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := doJSON(t, s, "GET", "/rules", "")
	var resp server.RulesResponse
	decodeJSON(t, rec, &resp)
	if len(resp.Rules) != 6 {
		t.Errorf("expected 6 rules, got %d", len(resp.Rules))
	}
	if len(resp.URL) == 0 {
		t.Error("expected url rules")
	}
}

// ─── Jobs ──────────────────────────────────────────────────────────────

func TestServer_ListJobs_Empty(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := doJSON(t, s, "GET", "/jobs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestServer_GetJob_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := doJSON(t, s, "GET", "/jobs/nonexistent", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestServer_CancelJob_NoContent(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := doJSON(t, s, "DELETE", "/jobs/nonexistent", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestServer_CrawlJob_REST(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := doJSON(t, s, "POST", "/jobs/crawl", `{"url":"`+shopRoot+`","max_depth":1}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var job app.Job
	decodeJSON(t, rec, &job)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec = doJSON(t, s, "GET", "/jobs/"+job.ID, "")
		decodeJSON(t, rec, &job)
		if job.Status == app.JobDone {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if job.Status != app.JobDone {
		t.Fatalf("expected done, got %s", job.Status)
	}
	if len(job.Pages) != 2 || job.Flagged != 1 {
		t.Errorf("expected 2 pages with 1 flagged, got %+v", job)
	}
}

func TestServer_BatchJob_REST(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := doJSON(t, s, "POST", "/jobs/batch", `{"urls":["`+shopRoot+`","`+shopTrial+`"]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var job app.Job
	decodeJSON(t, rec, &job)
	if job.Type != app.JobBatch {
		t.Errorf("expected batch job, got %s", job.Type)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec = doJSON(t, s, "GET", "/jobs/"+job.ID, "")
		decodeJSON(t, rec, &job)
		if job.Status == app.JobDone {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if job.Status != app.JobDone || len(job.Pages) != 2 || job.Flagged != 1 {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestServer_BatchJob_NoValidURLs(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	if rec := doJSON(t, s, "POST", "/jobs/batch", `{"urls":["nope"]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

// ─── WebSockets ────────────────────────────────────────────────────────

func dialWS(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestServer_EventsWS(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	ts := httptest.NewServer(s)
	defer ts.Close()

	conn := dialWS(t, ts, "/ws/events")

	// wait for the subscription before publishing
	deadline := time.Now().Add(2 * time.Second)
	for s.App().Bus.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	scanTrial(t, s)

	seen := map[string]bool{}
	for len(seen) < 2 {
		var ev app.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read event: %v", err)
		}
		seen[string(ev.Type)] = true
	}
	if !seen["scan_completed"] || !seen["alert_triggered"] {
		t.Errorf("expected scan_completed and alert_triggered, got %v", seen)
	}
}

func TestServer_CrawlWS(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	ts := httptest.NewServer(s)
	defer ts.Close()

	conn := dialWS(t, ts, "/ws/jobs/crawl?depth=1&url="+shopRoot)

	var job app.Job
	if err := conn.ReadJSON(&job); err != nil {
		t.Fatalf("read job: %v", err)
	}
	if job.Type != app.JobCrawl {
		t.Errorf("expected crawl job, got %s", job.Type)
	}

	var last app.JobEvent
	for {
		var ev app.JobEvent
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
		last = ev
	}
	if last.Type != app.JobEventResult {
		t.Errorf("expected the stream to end with a result event, got %+v", last)
	}
}
