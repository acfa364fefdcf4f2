package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"review_sync/internal/app"
	"review_sync/internal/domain"
)

type Handlers struct{ Q *app.QueryService }

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/v1/runs", h.listRuns)
	s.mux.Get("/v1/runs/{id}", h.getRun)
	s.mux.Get("/v1/runs/{id}/reviews", h.listRunReviews)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, body
}

// writeJSON honors If-None-Match against the body's weak ETag.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("route", routePattern(r)).Msg("failed to write body")
	}
}

func parseLimit(r *http.Request, def, max int) (int, bool) {
	ls := r.URL.Query().Get("limit")
	if ls == "" {
		return def, true
	}
	l, err := strconv.Atoi(ls)
	if err != nil || l <= 0 || l > max {
		return 0, false
	}
	return l, true
}

func runID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handlers) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r, 20, 100)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 100")
		return
	}
	runs, err := h.Q.ListRuns(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("list runs failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not list runs")
		return
	}
	if runs == nil {
		runs = []domain.Run{}
	}
	writeJSON(w, r, runs)
}

func (h *Handlers) getRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return
	}
	run, err := h.Q.GetRun(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "run not found")
		return
	case err != nil:
		log.Error().Err(err).Int64("id", id).Msg("get run failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not load run")
		return
	}
	writeJSON(w, r, run)
}

func (h *Handlers) listRunReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return
	}
	limit, ok := parseLimit(r, 50, 200)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
		return
	}
	pg := domain.PageQuery{Limit: limit}
	if c := r.URL.Query().Get("cursor"); c != "" {
		pg.Cursor = &c
	}
	out, err := h.Q.ListRunReviews(r.Context(), id, pg)
	if err != nil {
		log.Error().Err(err).Int64("id", id).Msg("list run reviews failed")
		writeProblem(w, http.StatusNotFound, "Not Found", "reviews not found")
		return
	}
	if out.Items == nil {
		out.Items = []domain.StoredReview{}
	}
	writeJSON(w, r, out)
}
