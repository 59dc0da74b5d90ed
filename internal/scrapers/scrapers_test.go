package scrapers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brandpulse/social-listening/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRun struct {
	path  string
	token string
	body  map[string]interface{}
}

func newApifyServer(t *testing.T, handler func(run recordedRun) (int, string)) (*httptest.Server, *[]recordedRun) {
	t.Helper()
	var (
		mu   sync.Mutex
		runs []recordedRun
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		run := recordedRun{path: r.URL.Path, token: r.URL.Query().Get("token")}
		_ = json.Unmarshal(raw, &run.body)

		mu.Lock()
		runs = append(runs, run)
		mu.Unlock()

		status, body := handler(run)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &runs
}

func TestBuildTerms(t *testing.T) {
	tests := []struct {
		name     string
		keywords []string
		hashtags []string
		limit    int
		expected []string
	}{
		{
			name:     "keywords then hashtags",
			keywords: []string{"acme", "acme shoes"},
			hashtags: []string{"acme", "#AcmeRun"},
			limit:    5,
			expected: []string{"acme", "acme shoes", "#acme", "#AcmeRun"},
		},
		{
			name:     "capped",
			keywords: []string{"a", "b", "c"},
			hashtags: []string{"d", "e", "f"},
			limit:    5,
			expected: []string{"a", "b", "c", "#d", "#e"},
		},
		{
			name:     "blank and duplicate terms dropped",
			keywords: []string{" ", "Acme", "acme"},
			hashtags: []string{"#", ""},
			limit:    5,
			expected: []string{"Acme"},
		},
		{
			name:     "empty",
			limit:    5,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BuildTerms(tt.keywords, tt.hashtags, tt.limit))
		})
	}
}

func TestRegistry(t *testing.T) {
	apify := NewApifyClient("token", "", time.Second)
	reg := NewRegistry(NewTikTokScraper(apify, "tt"), NewInstagramScraper(apify, "ig"))

	s, ok := reg.Get(models.PlatformTikTok)
	require.True(t, ok)
	assert.Equal(t, models.PlatformTikTok, s.Platform())

	_, ok = reg.Get(models.Platform("youtube"))
	assert.False(t, ok)

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, models.PlatformInstagram, all[0].Platform())
}

func TestApifyClient_RunActor(t *testing.T) {
	srv, runs := newApifyServer(t, func(run recordedRun) (int, string) {
		return http.StatusCreated, `[{"id":"1"},{"id":"2"}]`
	})

	client := NewApifyClient("secret", srv.URL+"/", 5*time.Second)
	items, err := client.RunActor(context.Background(), "apify~instagram-scraper", map[string]string{"search": "acme"})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	require.Len(t, *runs, 1)
	assert.Equal(t, "/v2/acts/apify~instagram-scraper/run-sync-get-dataset-items", (*runs)[0].path)
	assert.Equal(t, "secret", (*runs)[0].token)
	assert.Equal(t, "acme", (*runs)[0].body["search"])
}

func TestApifyClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{}`, wantErr: "rate limited"},
		{name: "server error", status: http.StatusBadGateway, body: `upstream down`, wantErr: "returned status 502"},
		{name: "bad json", status: http.StatusOK, body: `{"not":"a list"}`, wantErr: "decode apify dataset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newApifyServer(t, func(recordedRun) (int, string) { return tt.status, tt.body })
			_, err := NewApifyClient("secret", srv.URL, time.Second).RunActor(context.Background(), "actor", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApifyClient_NotConfigured(t *testing.T) {
	_, err := NewApifyClient("", "", time.Second).RunActor(context.Background(), "actor", nil)
	assert.Error(t, err)
}

func TestInstagramScraper_OneRunPerTerm(t *testing.T) {
	srv, runs := newApifyServer(t, func(run recordedRun) (int, string) {
		return http.StatusOK, `[{"id":"p"}]`
	})
	s := NewInstagramScraper(NewApifyClient("secret", srv.URL, time.Second), "apify~instagram-scraper")

	items, err := s.Scrape(context.Background(), Request{
		Terms:    []string{"#acme", "acme shoes"},
		Profiles: []string{"@acmeofficial"},
		MaxItems: 25,
	})
	require.NoError(t, err)
	assert.Len(t, items, 3)

	require.Len(t, *runs, 3)
	assert.Equal(t, "acme", (*runs)[0].body["search"])
	assert.Equal(t, "hashtag", (*runs)[0].body["searchType"])
	assert.Equal(t, float64(25), (*runs)[0].body["resultsLimit"])
	assert.Equal(t, "acmeshoes", (*runs)[1].body["search"])
	assert.Equal(t, []interface{}{"https://www.instagram.com/acmeofficial/"}, (*runs)[2].body["directUrls"])
}

func TestInstagramScraper_PartialFailure(t *testing.T) {
	srv, _ := newApifyServer(t, func(run recordedRun) (int, string) {
		if run.body["search"] == "broken" {
			return http.StatusTooManyRequests, `{}`
		}
		return http.StatusOK, `[{"id":"p"}]`
	})
	s := NewInstagramScraper(NewApifyClient("secret", srv.URL, time.Second), "ig")

	items, err := s.Scrape(context.Background(), Request{Terms: []string{"#broken", "#ok"}, MaxItems: 5})
	assert.Len(t, items, 1)
	var partial *PartialError
	require.ErrorAs(t, err, &partial)
	require.Len(t, partial.Errs, 1)
	assert.ErrorIs(t, partial.Errs[0], ErrRateLimited)
	assert.Equal(t, "search broken: rate limited", partial.Errs[0].Error())
	assert.ErrorIs(t, err, ErrRateLimited)

	_, err = s.Scrape(context.Background(), Request{Terms: []string{"#broken"}, MaxItems: 5})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestTikTokScraper_SingleRun(t *testing.T) {
	srv, runs := newApifyServer(t, func(run recordedRun) (int, string) {
		return http.StatusOK, `[{"id":"1"},{"id":"2"}]`
	})
	s := NewTikTokScraper(NewApifyClient("secret", srv.URL, time.Second), "clockworks~tiktok-scraper")

	items, err := s.Scrape(context.Background(), Request{
		Terms:    []string{"acme", "#acmerun"},
		Profiles: []string{"https://www.tiktok.com/@acme/", "@other"},
		MaxItems: 10,
	})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	require.Len(t, *runs, 1)
	body := (*runs)[0].body
	assert.True(t, strings.HasSuffix((*runs)[0].path, "/clockworks~tiktok-scraper/run-sync-get-dataset-items"))
	assert.Equal(t, []interface{}{"acmerun"}, body["hashtags"])
	assert.Equal(t, []interface{}{"acme"}, body["searchQueries"])
	assert.Equal(t, []interface{}{"acme", "other"}, body["profiles"])
	assert.Equal(t, float64(10), body["resultsPerPage"])
}

func TestTikTokScraper_Disabled(t *testing.T) {
	s := NewTikTokScraper(NewApifyClient("", "", time.Second), "tt")
	assert.False(t, s.IsEnabled())

	_, err := s.Scrape(context.Background(), Request{Terms: []string{"acme"}})
	assert.Error(t, err)
}
