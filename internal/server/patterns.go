package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/raysh454/patternshield/internal/app"
	"github.com/raysh454/patternshield/internal/logging"
	"github.com/raysh454/patternshield/internal/model"
)

func (s *Server) handleSubmitPattern(w http.ResponseWriter, r *http.Request) {
	var body model.Pattern
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	p, v, err := s.app.Community.Submit(r.Context(), body)
	if err != nil {
		s.fail(w, "submitting pattern", err)
		return
	}
	s.app.Bus.Publish(app.EventPatternAdded, p)
	s.logger.Info("submitted pattern", logging.Field{Key: "pattern_id", Value: p.ID})
	writeJSON(w, http.StatusCreated, SubmitPatternResponse{Pattern: p, Validation: v})
}

func (s *Server) handleValidatePattern(w http.ResponseWriter, r *http.Request) {
	var body model.Pattern
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	writeJSON(w, http.StatusOK, s.app.Community.Validate(r.Context(), body))
}

func (s *Server) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.PatternFilter{
		Industry: model.Industry(q.Get("industry")),
		Kind:     model.PatternKind(q.Get("kind")),
		Status:   model.PatternStatus(q.Get("status")),
		Sort:     model.PatternSort(q.Get("sort")),
		Limit:    queryInt(r, "limit", 0),
	}
	ps, err := s.app.Store.ListPatterns(r.Context(), f)
	if err != nil {
		s.fail(w, "listing patterns", err)
		return
	}
	s.logger.Info("listed patterns", logging.Field{Key: "count", Value: len(ps)})
	writeJSON(w, http.StatusOK, ps)
}

func (s *Server) handleSearchPatterns(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	ps, err := s.app.Store.SearchPatterns(r.Context(), query, queryInt(r, "limit", 0))
	if err != nil {
		s.fail(w, "searching patterns", err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (s *Server) handleGetPattern(w http.ResponseWriter, r *http.Request) {
	p, err := s.app.Store.GetPattern(r.Context(), chi.URLParam(r, "patternID"))
	if err != nil {
		s.fail(w, "getting pattern", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSetPatternStatus(w http.ResponseWriter, r *http.Request) {
	var body PatternStatusRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	p, err := s.app.Store.SetPatternStatus(r.Context(), chi.URLParam(r, "patternID"), body.Status)
	if err != nil {
		s.fail(w, "setting pattern status", err)
		return
	}
	s.app.Bus.Publish(app.EventPatternUpdated, p)
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var body VoteRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	vote, err := model.ParseVote(body.Vote)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "patternID")
	up, down, err := s.app.Store.Vote(r.Context(), id, body.Voter, vote)
	if err != nil {
		s.fail(w, "voting", err)
		return
	}
	resp := VoteResponse{PatternID: id, Upvotes: up, Downvotes: down}
	s.app.Bus.Publish(app.EventPatternUpdated, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	cs, err := s.app.Store.ListComments(r.Context(), chi.URLParam(r, "patternID"))
	if err != nil {
		s.fail(w, "listing comments", err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var body CommentRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	c, err := s.app.Store.AddComment(r.Context(), chi.URLParam(r, "patternID"), body.Author, body.Content)
	if err != nil {
		s.fail(w, "adding comment", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// Dashboard

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.app.Store.Stats(r.Context())
	if err != nil {
		s.fail(w, "computing stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	cs, err := s.app.Store.Companies(r.Context())
	if err != nil {
		s.fail(w, "listing companies", err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}
