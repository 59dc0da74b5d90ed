package api

import (
	"net/http"

	"github.com/brandpulse/social-listening/internal/jobs"
	"github.com/brandpulse/social-listening/internal/storage"
	"github.com/gorilla/mux"
)

const (
	defaultJobLimit = 50
	maxJobLimit     = 200
)

type scrapeRequest struct {
	UserID    string   `json:"user_id"`
	Platforms []string `json:"platforms"`
}

func (s *Server) startScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	job, err := s.Queue.StartScrape(r.Context(), mux.Vars(r)["id"], req.UserID, req.Platforms)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":   job.ID,
		"status":   job.Status,
		"progress": job.Progress,
	})
}

// processJobs drains the queue synchronously and reports what it did
func (s *Server) processJobs(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Worker.ProcessQueuedJobs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.Queue.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.Queue.Cancel(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	job, err := s.Queue.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.JobFilter{CampaignID: q.Get("campaign_id")}

	if raw := q.Get("status"); raw != "" {
		status, err := jobs.ParseStatus(raw)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		filter.Status = status
	}

	limit, err := intParam(r, "limit", defaultJobLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	if limit == 0 || limit > maxJobLimit {
		limit = maxJobLimit
	}
	filter.Limit = limit

	list, err := s.Queue.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": list})
}
