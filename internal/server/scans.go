package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/raysh454/patternshield/internal/logging"
	"github.com/raysh454/patternshield/internal/report"
	"github.com/raysh454/patternshield/internal/rules"
	"github.com/raysh454/patternshield/internal/store"
	"github.com/raysh454/patternshield/internal/utils"
)

// Scans

func (s *Server) handleScanPage(w http.ResponseWriter, r *http.Request) {
	var body ScanPageRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := s.app.Scanner.ScanPage(r.Context(), body.URL)
	if err != nil {
		s.fail(w, "scanning page", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleScanHTML(w http.ResponseWriter, r *http.Request) {
	var body ScanHTMLRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	ref := body.SourceRef
	if ref == "" {
		ref = "inline-html:" + utils.ShortHash([]byte(body.HTML))
	}
	res := s.app.Scanner.ScanHTML(r.Context(), ref, []byte(body.HTML))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleScanText(w http.ResponseWriter, r *http.Request) {
	var body ScanTextRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(body.Lines) > 0 {
		ref := "text-lines:" + utils.ShortHash([]byte(strings.Join(body.Lines, "\n")))
		writeJSON(w, http.StatusOK, s.app.Scanner.ScanLines(r.Context(), ref, body.Lines))
		return
	}
	writeJSON(w, http.StatusOK, s.app.Scanner.ScanText(r.Context(), body.Text))
}

func (s *Server) handleScanImage(w http.ResponseWriter, r *http.Request) {
	var body ScanImageRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(body.ImageRef) == "" {
		writeError(w, http.StatusBadRequest, "image_ref is required")
		return
	}
	writeJSON(w, http.StatusOK, s.app.Scanner.ScanImage(r.Context(), body.ImageRef))
}

func (s *Server) handleScanURL(w http.ResponseWriter, r *http.Request) {
	var body ScanPageRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := s.app.Scanner.ScanURL(r.Context(), body.URL)
	if err != nil {
		s.fail(w, "scanning url", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// History

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ScanFilter{
		Domain:      q.Get("domain"),
		OnlyFlagged: q.Get("flagged") == "true" || q.Get("flagged") == "1",
		Limit:       queryInt(r, "limit", 0),
	}
	scans, err := s.app.Store.ListScans(r.Context(), f)
	if err != nil {
		s.fail(w, "listing scans", err)
		return
	}
	s.logger.Info("listed scans", logging.Field{Key: "count", Value: len(scans)})
	writeJSON(w, http.StatusOK, scans)
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	res, err := s.app.Store.GetScan(r.Context(), chi.URLParam(r, "scanID"))
	if err != nil {
		s.fail(w, "getting scan", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteScan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scanID")
	if err := s.app.Store.DeleteScan(r.Context(), id); err != nil {
		s.fail(w, "deleting scan", err)
		return
	}
	s.logger.Info("deleted scan", logging.Field{Key: "scan_id", Value: id})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearScans(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Store.ClearHistory(r.Context()); err != nil {
		s.fail(w, "clearing history", err)
		return
	}
	s.logger.Info("cleared scan history")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleScanReport(w http.ResponseWriter, r *http.Request) {
	res, err := s.app.Store.GetScan(r.Context(), chi.URLParam(r, "scanID"))
	if err != nil {
		s.fail(w, "getting scan report", err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(report.Markdown(res)))
}

func (s *Server) handleScanAlerts(w http.ResponseWriter, r *http.Request) {
	res, err := s.app.Store.GetScan(r.Context(), chi.URLParam(r, "scanID"))
	if err != nil {
		s.fail(w, "getting scan alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, report.Alerts(res))
}

// Sites

func (s *Server) handleListBlocked(w http.ResponseWriter, r *http.Request) {
	flags, err := s.app.Store.ListBlocked(r.Context())
	if err != nil {
		s.fail(w, "listing blocked sites", err)
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

func (s *Server) handleGetSite(w http.ResponseWriter, r *http.Request) {
	flag, err := s.app.Store.SiteFlag(r.Context(), chi.URLParam(r, "site"))
	if err != nil {
		s.fail(w, "getting site flag", err)
		return
	}
	writeJSON(w, http.StatusOK, flag)
}

func (s *Server) handleBlockSite(w http.ResponseWriter, r *http.Request) {
	var body BlockSiteRequest
	// An empty body blocks without a reason.
	if err := decodeBody(r, &body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	flag, err := s.app.Store.BlockSite(r.Context(), chi.URLParam(r, "site"), body.Reason)
	if err != nil {
		s.fail(w, "blocking site", err)
		return
	}
	s.logger.Info("blocked site", logging.Field{Key: "site", Value: flag.Domain})
	writeJSON(w, http.StatusOK, flag)
}

func (s *Server) handleUnblockSite(w http.ResponseWriter, r *http.Request) {
	flag, err := s.app.Store.UnblockSite(r.Context(), chi.URLParam(r, "site"))
	if err != nil {
		s.fail(w, "unblocking site", err)
		return
	}
	s.logger.Info("unblocked site", logging.Field{Key: "site", Value: flag.Domain})
	writeJSON(w, http.StatusOK, flag)
}

// Advisories

func (s *Server) handleListAdvisories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Advisories.Active())
}

func (s *Server) handleDismissAdvisory(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}
	if !s.app.Advisories.Dismiss(source) {
		writeError(w, http.StatusNotFound, "advisory not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Rules

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	reg := s.app.Rules
	resp := RulesResponse{Version: reg.Version()}
	for _, rule := range reg.All() {
		resp.Rules = append(resp.Rules, RuleInfo{
			ID:          rule.ID,
			Name:        rule.Name,
			Category:    rule.Category,
			Severity:    rule.Severity,
			Confidence:  rule.Confidence,
			Description: rule.Description,
			Suggestion:  rule.Suggestion,
			Selectors:   rule.Selectors(),
			Text:        rule.Text,
		})
	}
	for _, u := range rules.DefaultURLRules() {
		resp.URL = append(resp.URL, URLRuleRef{ID: u.ID, Category: u.Category, Severity: u.Severity(), Message: u.Message})
	}
	writeJSON(w, http.StatusOK, resp)
}
