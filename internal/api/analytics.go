package api

import (
	"net/http"

	"github.com/brandpulse/social-listening/internal/analytics"
	"github.com/gorilla/mux"
)

func (s *Server) classifyCampaign(w http.ResponseWriter, r *http.Request) {
	result, err := s.Classifier.Run(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) runAnalytics(w http.ResponseWriter, r *http.Request) {
	result, err := s.Analytics.RunAnalytics(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) runAnalyticsAll(w http.ResponseWriter, r *http.Request) {
	batch, err := s.Analytics.RunAnalyticsForAllCampaigns(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *Server) analyticsSummary(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", analytics.DefaultSummaryDays)
	if err != nil {
		writeError(w, err)
		return
	}
	if days < 1 || days > analytics.MaxSummaryDays {
		badRequest(w, "days must be between 1 and 365")
		return
	}

	summary, err := s.Analytics.GetSummary(r.Context(), mux.Vars(r)["id"], days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.Store.GetCampaign(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	alerts, err := s.Store.ListAlerts(r.Context(), id, r.URL.Query().Get("include_dismissed") == "true")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

func (s *Server) dismissAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DismissAlert(r.Context(), mux.Vars(r)["id"], s.now()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
}
