package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/brandpulse/social-listening/internal/models"
	"github.com/brandpulse/social-listening/internal/storage"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gorm.io/datatypes"
)

const maxCampaignTerms = 50

type campaignRequest struct {
	UserID    string                           `json:"user_id"`
	Name      string                           `json:"name"`
	Keywords  []string                         `json:"keywords"`
	Hashtags  []string                         `json:"hashtags"`
	Platforms map[string]models.PlatformConfig `json:"platforms"`
	IsActive  *bool                            `json:"is_active"`
}

func cleanTerms(values []string, trimHash bool) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, v := range values {
		v = strings.TrimSpace(v)
		if trimHash {
			v = strings.TrimPrefix(v, "#")
		}
		if v == "" || seen[strings.ToLower(v)] {
			continue
		}
		seen[strings.ToLower(v)] = true
		out = append(out, v)
	}
	return out
}

// apply validates the request and copies it onto c
func (req *campaignRequest) apply(c *models.Campaign) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return &storage.ValidationError{Msg: "name is required"}
	}

	keywords := cleanTerms(req.Keywords, false)
	hashtags := cleanTerms(req.Hashtags, true)
	if len(keywords)+len(hashtags) > maxCampaignTerms {
		return &storage.ValidationError{Msg: fmt.Sprintf("at most %d keywords and hashtags are allowed", maxCampaignTerms)}
	}

	settings := models.PlatformSettings{}
	hasProfiles := false
	for raw, pc := range req.Platforms {
		p, err := models.ParsePlatform(raw)
		if err != nil {
			return &storage.ValidationError{Msg: err.Error()}
		}
		if pc.MaxItems < 0 {
			return &storage.ValidationError{Msg: fmt.Sprintf("max_items for %s must not be negative", p)}
		}
		settings[p] = pc
		if pc.Enabled && len(pc.Profiles) > 0 {
			hasProfiles = true
		}
	}
	if len(keywords) == 0 && len(hashtags) == 0 && !hasProfiles {
		return &storage.ValidationError{Msg: "at least one keyword, hashtag or profile is required"}
	}

	c.Name = name
	c.Keywords = datatypes.JSONSlice[string](keywords)
	c.Hashtags = datatypes.JSONSlice[string](hashtags)
	c.Platforms = datatypes.NewJSONType(settings)
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
	return nil
}

func (s *Server) createCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaignRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		badRequest(w, "user_id is required")
		return
	}

	now := s.now()
	campaign := &models.Campaign{
		ID:        uuid.NewString(),
		UserID:    strings.TrimSpace(req.UserID),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := req.apply(campaign); err != nil {
		writeError(w, err)
		return
	}

	if err := s.Store.CreateCampaign(r.Context(), campaign); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (s *Server) listCampaigns(w http.ResponseWriter, r *http.Request) {
	filter := storage.CampaignFilter{
		UserID:     r.URL.Query().Get("user_id"),
		ActiveOnly: r.URL.Query().Get("active") == "true",
	}
	campaigns, err := s.Store.ListCampaigns(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"campaigns": campaigns})
}

func (s *Server) getCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.Store.GetCampaign(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (s *Server) updateCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.Store.GetCampaign(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	var req campaignRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := req.apply(campaign); err != nil {
		writeError(w, err)
		return
	}
	campaign.UpdatedAt = s.now()

	if err := s.Store.UpdateCampaign(r.Context(), campaign); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (s *Server) deleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DeleteCampaign(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
