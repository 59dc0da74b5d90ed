package scrapers

import (
	"context"
	"fmt"
	"strings"

	"github.com/brandpulse/social-listening/internal/models"
	"github.com/sirupsen/logrus"
)

// InstagramScraper pulls hashtag feeds, keyword searches and profile posts
// through the Apify Instagram actor. Each term is one actor run.
type InstagramScraper struct {
	apify   *ApifyClient
	actorID string
}

type instagramInput struct {
	Search       string   `json:"search,omitempty"`
	SearchType   string   `json:"searchType,omitempty"`
	SearchLimit  int      `json:"searchLimit,omitempty"`
	DirectURLs   []string `json:"directUrls,omitempty"`
	ResultsType  string   `json:"resultsType"`
	ResultsLimit int      `json:"resultsLimit"`
}

func NewInstagramScraper(apify *ApifyClient, actorID string) *InstagramScraper {
	return &InstagramScraper{apify: apify, actorID: actorID}
}

func (s *InstagramScraper) Platform() models.Platform {
	return models.PlatformInstagram
}

func (s *InstagramScraper) IsEnabled() bool {
	return s.apify.Configured() && s.actorID != ""
}

func (s *InstagramScraper) Scrape(ctx context.Context, req Request) ([]RawItem, error) {
	if !s.IsEnabled() {
		return nil, fmt.Errorf("instagram scraper not configured")
	}

	inputs := s.inputs(req)
	var (
		items []RawItem
		errs  []error
	)
	for _, input := range inputs {
		batch, err := s.apify.RunActor(ctx, s.actorID, input)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"platform": s.Platform(),
				"search":   input.Search,
				"urls":     input.DirectURLs,
			}).Warnf("Instagram scrape failed: %v", err)
			errs = append(errs, fmt.Errorf("%s: %w", input.label(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		items = append(items, batch...)
	}

	switch {
	case len(errs) == 0:
		return items, nil
	case len(errs) == len(inputs):
		return nil, errs[0]
	}
	return items, &PartialError{Errs: errs}
}

func (in instagramInput) label() string {
	if in.Search != "" {
		return "search " + in.Search
	}
	return "profile " + strings.Join(in.DirectURLs, ",")
}

func (s *InstagramScraper) inputs(req Request) []instagramInput {
	limit := req.MaxItems
	var inputs []instagramInput

	for _, term := range req.Terms {
		in := instagramInput{
			Search:       strings.TrimPrefix(term, "#"),
			SearchType:   "hashtag",
			SearchLimit:  1,
			ResultsType:  "posts",
			ResultsLimit: limit,
		}
		if !isHashtag(term) {
			// plain keywords become hashtag searches without spaces
			in.Search = strings.ReplaceAll(in.Search, " ", "")
		}
		if in.Search == "" {
			continue
		}
		inputs = append(inputs, in)
	}

	for _, profile := range req.Profiles {
		inputs = append(inputs, instagramInput{
			DirectURLs:   []string{profileURL(profile)},
			ResultsType:  "posts",
			ResultsLimit: limit,
		})
	}
	return inputs
}

func profileURL(profile string) string {
	profile = strings.TrimSpace(profile)
	if strings.HasPrefix(profile, "http://") || strings.HasPrefix(profile, "https://") {
		return profile
	}
	return "https://www.instagram.com/" + strings.TrimPrefix(profile, "@") + "/"
}
