package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/raphaelgruber/askmycourse/internal/db"
	"github.com/raphaelgruber/askmycourse/internal/metrics"
	"github.com/raphaelgruber/askmycourse/internal/models"
	"github.com/raphaelgruber/askmycourse/internal/service"
)

const maxBodySize = 1 << 20 // 1MB

// AddLectureRequest is the body of POST /add_lecture.
type AddLectureRequest struct {
	YoutubeURL string `json:"youtube_url"`
}

// AnswerRequest is the body of POST /answer.
type AnswerRequest struct {
	Question      string `json:"question"`
	ChatSessionID string `json:"chat_session_id,omitempty"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Lectures map[string]int   `json:"lectures"`
	Metrics  metrics.Snapshot `json:"metrics"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "unavailable")
			return
		}
	}
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleListLectures(w http.ResponseWriter, r *http.Request) {
	lectures, err := s.lectures.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lectures)
}

func (s *Server) handleGetLecture(w http.ResponseWriter, r *http.Request) {
	lecture, err := s.lectures.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lecture.Detail())
}

// handleAddLecture starts ingestion and answers true without waiting.
// The new lecture's location is returned in the Location header.
func (s *Server) handleAddLecture(w http.ResponseWriter, r *http.Request) {
	var req AddLectureRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	fileID, err := s.ingest.AddLecture(r.Context(), req.YoutubeURL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/lectures/"+fileID)
	writeJSON(w, http.StatusOK, true)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	answer, err := s.qa.Answer(r.Context(), req.Question, req.ChatSessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	turns, err := s.qa.History(r.Context(), r.PathValue("session"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	jobs, err := s.jobs.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	infos := make([]models.StageJobInfo, len(jobs))
	for i := range jobs {
		infos[i] = jobs[i].Info()
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if job == nil {
		s.writeError(w, fmt.Errorf("job %s: %w", id, db.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, job.Info())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.lectures.CountByStatus(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := StatsResponse{Lectures: counts}
	if s.metrics != nil {
		resp.Metrics = s.metrics.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeError maps service errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request error", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidURL), errors.Is(err, service.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
