package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/raysh454/patternshield/internal/app"
	"github.com/raysh454/patternshield/internal/logging"
)

const wsWriteWait = 10 * time.Second

// Jobs

func (s *Server) handleStartCrawlJob(w http.ResponseWriter, r *http.Request) {
	var body StartCrawlJobRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	job, err := s.app.Orch.StartCrawlJob(r.Context(), body.URL, body.MaxDepth)
	if err != nil {
		s.fail(w, "starting crawl job", err)
		return
	}
	s.logger.Info("started crawl job", logging.Field{Key: "job_id", Value: job.ID}, logging.Field{Key: "url", Value: body.URL})
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleStartBatchJob(w http.ResponseWriter, r *http.Request) {
	var body StartBatchJobRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	job, err := s.app.Orch.StartBatchJob(r.Context(), body.URLs)
	if err != nil {
		s.fail(w, "starting batch job", err)
		return
	}
	s.logger.Info("started batch job", logging.Field{Key: "job_id", Value: job.ID}, logging.Field{Key: "urls", Value: len(body.URLs)})
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleStartWatchJob(w http.ResponseWriter, r *http.Request) {
	var body StartWatchJobRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	job, err := s.app.Orch.StartWatchJob(r.Context(), body.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("started watch job", logging.Field{Key: "job_id", Value: job.ID}, logging.Field{Key: "url", Value: body.URL})
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.app.Orch.GetJob(jobID)
	if job == nil {
		s.logger.Warn("getting job: not found", logging.Field{Key: "job_id", Value: jobID})
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	s.app.Orch.CancelJob(jobID)
	s.logger.Info("canceled job", logging.Field{Key: "job_id", Value: jobID})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.app.Orch.ListJobs()
	s.logger.Info("listed jobs", logging.Field{Key: "count", Value: len(jobs)})
	writeJSON(w, http.StatusOK, jobs)
}

// WebSockets

func (s *Server) handleCrawlWS(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	depth, _ := strconv.Atoi(r.URL.Query().Get("depth"))
	s.streamJob(w, r, "crawl", func(ctx context.Context) (*app.Job, error) {
		return s.app.Orch.StartCrawlJob(ctx, target, depth)
	})
}

func (s *Server) handleWatchWS(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	s.streamJob(w, r, "watch", func(ctx context.Context) (*app.Job, error) {
		return s.app.Orch.StartWatchJob(ctx, target)
	})
}

// streamJob upgrades the connection, starts a job and forwards its events
// until the job ends or the client goes away. A client that disconnects
// cancels the job.
func (s *Server) streamJob(w http.ResponseWriter, r *http.Request, kind string, start func(context.Context) (*app.Job, error)) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	job, err := start(r.Context())
	if err != nil {
		s.logger.Warn("starting "+kind+" job", logging.Field{Key: "error", Value: err.Error()})
		_ = conn.WriteJSON(ErrorResponse{Error: err.Error()})
		return
	}

	s.logger.Info("started "+kind+" job", logging.Field{Key: "job_id", Value: job.ID})
	_ = conn.WriteJSON(job)

	gone := readUntilClosed(conn)
	for {
		select {
		case ev, ok := <-job.Events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"),
					time.Now().Add(wsWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				// Assume client disconnected; cancel job
				s.app.Orch.CancelJob(job.ID)
				return
			}
		case <-gone:
			s.app.Orch.CancelJob(job.ID)
			return
		}
	}
}

// handleEventsWS streams scan, alert and pattern events from the bus.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	events, unsubscribe := s.app.Bus.Subscribe(64)
	defer unsubscribe()
	s.logger.Info("event subscriber connected", logging.Field{Key: "subscribers", Value: s.app.Bus.Subscribers()})

	gone := readUntilClosed(conn)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

// readUntilClosed drains client frames so close and ping are processed.
// The returned channel closes when the client goes away.
func readUntilClosed(conn *websocket.Conn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
	return done
}
