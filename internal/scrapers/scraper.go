package scrapers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brandpulse/social-listening/internal/models"
)

// RawItem is one platform-native content item as returned by the provider
type RawItem = json.RawMessage

// Request describes what a single scrape should look for
type Request struct {
	Terms    []string // keywords and hashtags; hashtags keep their leading '#'
	Profiles []string
	MaxItems int
}

// Empty reports whether there is nothing to search for
func (r Request) Empty() bool {
	return len(r.Terms) == 0 && len(r.Profiles) == 0
}

// PartialError is returned alongside items when some of a scrape's provider
// runs failed and others succeeded.
type PartialError struct {
	Errs []error
}

func (e *PartialError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d of the scrape runs failed: %s", len(e.Errs), strings.Join(msgs, "; "))
}

func (e *PartialError) Unwrap() []error {
	return e.Errs
}

// Scraper fetches raw content for one platform. A *PartialError result still
// carries the items that were fetched.
type Scraper interface {
	Platform() models.Platform
	IsEnabled() bool
	Scrape(ctx context.Context, req Request) ([]RawItem, error)
}

// Registry maps each platform to its scraper
type Registry struct {
	scrapers map[models.Platform]Scraper
}

func NewRegistry(scrapers ...Scraper) *Registry {
	r := &Registry{scrapers: make(map[models.Platform]Scraper)}
	for _, s := range scrapers {
		r.scrapers[s.Platform()] = s
	}
	return r
}

// Get returns the scraper registered for p
func (r *Registry) Get(p models.Platform) (Scraper, bool) {
	s, ok := r.scrapers[p]
	return s, ok
}

// All returns registered scrapers in canonical platform order
func (r *Registry) All() []Scraper {
	var out []Scraper
	for _, p := range models.Platforms {
		if s, ok := r.scrapers[p]; ok {
			out = append(out, s)
		}
	}
	return out
}

// BuildTerms merges campaign keywords and hashtags into a deduplicated
// search-term list capped at limit. Hashtags are normalized to "#tag".
func BuildTerms(keywords, hashtags []string, limit int) []string {
	seen := make(map[string]bool)
	var terms []string

	add := func(term string) {
		if term == "" || seen[strings.ToLower(term)] {
			return
		}
		if limit > 0 && len(terms) >= limit {
			return
		}
		seen[strings.ToLower(term)] = true
		terms = append(terms, term)
	}

	for _, k := range keywords {
		add(strings.TrimSpace(k))
	}
	for _, h := range hashtags {
		h = strings.TrimPrefix(strings.TrimSpace(h), "#")
		if h != "" {
			add("#" + h)
		}
	}
	return terms
}

func isHashtag(term string) bool {
	return strings.HasPrefix(term, "#")
}
