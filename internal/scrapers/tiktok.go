package scrapers

import (
	"context"
	"fmt"
	"strings"

	"github.com/brandpulse/social-listening/internal/models"
)

// TikTokScraper runs the Apify TikTok actor once per request with hashtags,
// search queries and profiles combined.
type TikTokScraper struct {
	apify   *ApifyClient
	actorID string
}

type tiktokInput struct {
	Hashtags             []string `json:"hashtags,omitempty"`
	SearchQueries        []string `json:"searchQueries,omitempty"`
	Profiles             []string `json:"profiles,omitempty"`
	ResultsPerPage       int      `json:"resultsPerPage"`
	ShouldDownloadVideos bool     `json:"shouldDownloadVideos"`
	ShouldDownloadCovers bool     `json:"shouldDownloadCovers"`
}

func NewTikTokScraper(apify *ApifyClient, actorID string) *TikTokScraper {
	return &TikTokScraper{apify: apify, actorID: actorID}
}

func (s *TikTokScraper) Platform() models.Platform {
	return models.PlatformTikTok
}

func (s *TikTokScraper) IsEnabled() bool {
	return s.apify.Configured() && s.actorID != ""
}

func (s *TikTokScraper) Scrape(ctx context.Context, req Request) ([]RawItem, error) {
	if !s.IsEnabled() {
		return nil, fmt.Errorf("tiktok scraper not configured")
	}
	if req.Empty() {
		return nil, nil
	}
	return s.apify.RunActor(ctx, s.actorID, s.input(req))
}

func (s *TikTokScraper) input(req Request) tiktokInput {
	in := tiktokInput{ResultsPerPage: req.MaxItems}
	for _, term := range req.Terms {
		if isHashtag(term) {
			in.Hashtags = append(in.Hashtags, strings.TrimPrefix(term, "#"))
		} else {
			in.SearchQueries = append(in.SearchQueries, term)
		}
	}
	for _, p := range req.Profiles {
		p = strings.TrimSpace(p)
		if i := strings.Index(p, "tiktok.com/@"); i >= 0 {
			p = p[i+len("tiktok.com/@"):]
		}
		p = strings.Trim(strings.TrimPrefix(p, "@"), "/")
		if p != "" {
			in.Profiles = append(in.Profiles, p)
		}
	}
	return in
}
