package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brandpulse/social-listening/internal/cache"
	"github.com/brandpulse/social-listening/internal/config"
	"github.com/brandpulse/social-listening/internal/jobs"
	"github.com/brandpulse/social-listening/internal/mentions"
	"github.com/brandpulse/social-listening/internal/models"
	"github.com/brandpulse/social-listening/internal/scrapers"
	"github.com/brandpulse/social-listening/internal/storage"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type fakeScraper struct {
	platform models.Platform
	items    []scrapers.RawItem
	err      error
	panics   bool
	disabled bool

	mu       sync.Mutex
	requests []scrapers.Request
}

func (f *fakeScraper) Platform() models.Platform { return f.platform }
func (f *fakeScraper) IsEnabled() bool           { return !f.disabled }

func (f *fakeScraper) Scrape(ctx context.Context, req scrapers.Request) ([]scrapers.RawItem, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.panics {
		panic("boom")
	}
	return f.items, f.err
}

func instagramItems(n int) []scrapers.RawItem {
	items := make([]scrapers.RawItem, n)
	for i := range items {
		items[i] = scrapers.RawItem(fmt.Sprintf(
			`{"id":"ig-%d","shortCode":"sc%d","caption":"acme run %d #acme","type":"Image","ownerUsername":"user%d","likesCount":%d}`,
			i, i, i, i, i*10))
	}
	return items
}

func testConfig() *config.Config {
	return &config.Config{
		MaxTermsPerPlatform: 5,
		DefaultMaxItems:     50,
		MentionBatchSize:    50,
		StaleJobTimeout:     2 * time.Hour,
		RunLockTTL:          time.Minute,
	}
}

func testCampaign(id string, platforms ...models.Platform) *models.Campaign {
	settings := models.PlatformSettings{}
	for _, p := range platforms {
		settings[p] = models.PlatformConfig{Enabled: true}
	}
	return &models.Campaign{
		ID:        id,
		UserID:    "user-1",
		Name:      "Acme " + id,
		Keywords:  datatypes.JSONSlice[string]{"acme"},
		Hashtags:  datatypes.JSONSlice[string]{"acmerun"},
		Platforms: datatypes.NewJSONType(settings),
		IsActive:  true,
	}
}

type harness struct {
	store     *storage.MemoryStore
	worker    *Worker
	queue     *Queue
	instagram *fakeScraper
	tiktok    *fakeScraper
}

func newHarness(t *testing.T, store storage.Store) *harness {
	t.Helper()
	mem := storage.NewMemoryStore()
	if store == nil {
		store = mem
	}
	h := &harness{
		store:     mem,
		instagram: &fakeScraper{platform: models.PlatformInstagram},
		tiktok:    &fakeScraper{platform: models.PlatformTikTok},
	}
	registry := scrapers.NewRegistry(h.instagram, h.tiktok)
	h.worker = New(testConfig(), store, registry, mentions.NewSaver(store, 50))
	h.queue = NewQueue(store, registry)
	return h
}

func (h *harness) job(t *testing.T, id string) *models.ScrapeJob {
	t.Helper()
	job, err := h.store.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

func TestProcessQueuedJobs_PlatformFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	require.NoError(t, h.store.CreateCampaign(ctx, testCampaign("c1", models.PlatformInstagram, models.PlatformTikTok)))

	h.instagram.items = instagramItems(10)
	h.tiktok.err = errors.New("rate limited")

	job, err := h.queue.StartScrape(ctx, "c1", "user-1", []string{"instagram", "tiktok"})
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusQueued, job.Status)
	assert.Equal(t, models.Progress{Current: 0, Total: 0, Message: jobs.QueuedMessage}, job.Progress)

	summary, err := h.worker.ProcessQueuedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 1, Completed: 1}, summary)

	got := h.job(t, job.ID)
	assert.Equal(t, jobs.StatusCompleted, got.Status)
	assert.Equal(t, 10, got.ItemsScraped)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.ErrorMessage)
	assert.Equal(t, 2, got.Progress.Total)
	assert.Equal(t, 2, got.Progress.Current)

	results := got.Results.Data()
	ig := results.Platforms[models.PlatformInstagram]
	require.NotNil(t, ig)
	assert.Equal(t, 10, ig.MentionsSaved)
	assert.Empty(t, ig.Errors)

	tt := results.Platforms[models.PlatformTikTok]
	require.NotNil(t, tt)
	assert.Equal(t, 0, tt.MentionsSaved)
	assert.Equal(t, []string{"rate limited"}, tt.Errors)

	saved, err := h.store.ListMentions(ctx, storage.MentionFilter{CampaignID: "c1"})
	require.NoError(t, err)
	assert.Len(t, saved, 10)
	for _, m := range saved {
		assert.Equal(t, job.ID, m.ScrapeJobID)
	}

	assert.Contains(t, h.worker.GetMetrics(), `"jobs_completed": 1`)
}

func TestProcessQueuedJobs_CampaignNotFound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	require.NoError(t, h.store.EnqueueJob(ctx, &models.ScrapeJob{
		ID:         "job-1",
		CampaignID: "missing",
		Platforms:  datatypes.JSONSlice[models.Platform]{models.PlatformInstagram},
		Status:     jobs.StatusQueued,
		QueuedAt:   time.Now(),
	}))

	summary, err := h.worker.ProcessQueuedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	got := h.job(t, "job-1")
	assert.Equal(t, jobs.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "campaign not found", *got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)
	assert.Empty(t, h.instagram.requests)
}

func TestProcessQueuedJobs_FIFOAndSequential(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	h.queue.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	var order []string
	for _, id := range []string{"c1", "c2", "c3"} {
		c := testCampaign(id, models.PlatformInstagram)
		c.Keywords = datatypes.JSONSlice[string]{"kw-" + id}
		require.NoError(t, h.store.CreateCampaign(ctx, c))
		_, err := h.queue.StartScrape(ctx, id, "", nil)
		require.NoError(t, err)
		order = append(order, "kw-"+id)
	}

	summary, err := h.worker.ProcessQueuedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Completed)

	require.Len(t, h.instagram.requests, 3)
	for i, req := range h.instagram.requests {
		assert.Equal(t, order[i], req.Terms[0])
	}

	// nothing left to do
	summary, err = h.worker.ProcessQueuedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
}

func TestProcessQueuedJobs_NoDuplicateMentionsAcrossJobs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	require.NoError(t, h.store.CreateCampaign(ctx, testCampaign("c1", models.PlatformInstagram)))
	h.instagram.items = instagramItems(10)

	first, err := h.queue.StartScrape(ctx, "c1", "", nil)
	require.NoError(t, err)
	_, err = h.worker.ProcessQueuedJobs(ctx)
	require.NoError(t, err)

	h.instagram.items = instagramItems(12)
	second, err := h.queue.StartScrape(ctx, "c1", "", nil)
	require.NoError(t, err)
	_, err = h.worker.ProcessQueuedJobs(ctx)
	require.NoError(t, err)

	assert.Equal(t, 10, h.job(t, first.ID).Results.Data().Platforms[models.PlatformInstagram].MentionsSaved)
	got := h.job(t, second.ID)
	assert.Equal(t, 2, got.Results.Data().Platforms[models.PlatformInstagram].MentionsSaved)
	assert.Equal(t, 12, got.ItemsScraped)

	saved, err := h.store.ListMentions(ctx, storage.MentionFilter{CampaignID: "c1"})
	require.NoError(t, err)
	assert.Len(t, saved, 12)
}

func TestProcessQueuedJobs_CancelledJobIsSkipped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	require.NoError(t, h.store.CreateCampaign(ctx, testCampaign("c1", models.PlatformInstagram)))

	job, err := h.queue.StartScrape(ctx, "c1", "", nil)
	require.NoError(t, err)
	require.NoError(t, h.queue.Cancel(ctx, job.ID))

	summary, err := h.worker.ProcessQueuedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)
	assert.Empty(t, h.instagram.requests)

	got := h.job(t, job.ID)
	assert.Equal(t, jobs.StatusCancelled, got.Status)

	// terminal jobs cannot be cancelled again
	assert.ErrorIs(t, h.queue.Cancel(ctx, job.ID), storage.ErrInvalidTransition)
	assert.ErrorIs(t, h.queue.Cancel(ctx, "missing"), storage.ErrNotFound)
}

type failingProgressStore struct {
	*storage.MemoryStore
}

func (s failingProgressStore) UpdateProgress(ctx context.Context, id string, progress models.Progress) error {
	return errors.New("connection refused")
}

func TestProcessQueuedJobs_DatastoreFailureFailsJob(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	h := newHarness(t, failingProgressStore{mem})
	h.store = mem
	require.NoError(t, mem.CreateCampaign(ctx, testCampaign("c1", models.PlatformInstagram)))

	job, err := h.queue.StartScrape(ctx, "c1", "", nil)
	require.NoError(t, err)

	summary, err := h.worker.ProcessQueuedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	got := h.job(t, job.ID)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "connection refused")
}

func TestProcessQueuedJobs_PanickingScraper(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	require.NoError(t, h.store.CreateCampaign(ctx, testCampaign("c1", models.PlatformInstagram, models.PlatformTikTok)))
	h.instagram.panics = true
	h.tiktok.disabled = true

	job, err := h.queue.StartScrape(ctx, "c1", "", nil)
	require.NoError(t, err)

	_, err = h.worker.ProcessQueuedJobs(ctx)
	require.NoError(t, err)

	got := h.job(t, job.ID)
	assert.Equal(t, jobs.StatusCompleted, got.Status)
	results := got.Results.Data()
	assert.Equal(t, []string{"internal error: boom"}, results.Platforms[models.PlatformInstagram].Errors)
	assert.Equal(t, []string{"tiktok scraper is not configured"}, results.Platforms[models.PlatformTikTok].Errors)
}

func TestProcessQueuedJobs_FailsStaleJobs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	require.NoError(t, h.store.CreateCampaign(ctx, testCampaign("c1", models.PlatformInstagram)))

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	h.worker.now = func() time.Time { return now }

	stale, err := h.queue.StartScrape(ctx, "c1", "", nil)
	require.NoError(t, err)
	claimed, err := h.store.ClaimJob(ctx, stale.ID, 1, now.Add(-3*time.Hour))
	require.NoError(t, err)
	require.True(t, claimed)

	recent, err := h.queue.StartScrape(ctx, "c1", "", nil)
	require.NoError(t, err)
	claimed, err = h.store.ClaimJob(ctx, recent.ID, 1, now.Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, claimed)

	summary, err := h.worker.ProcessQueuedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.StaleFailed)

	got := h.job(t, stale.ID)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "stale")
	assert.Equal(t, jobs.StatusRunning, h.job(t, recent.ID).Status)
}

func TestProcessQueuedJobs_RunLock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := cache.NewWithClient(client)
	h.worker.SetLocker(locker)

	held, err := locker.Acquire(ctx, runLockName, time.Minute)
	require.NoError(t, err)

	_, err = h.worker.ProcessQueuedJobs(ctx)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, held.Release(ctx))
	_, err = h.worker.ProcessQueuedJobs(ctx)
	require.NoError(t, err)

	// released after the run
	again, err := locker.Acquire(ctx, runLockName, time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestProcessQueuedJobs_DisabledCacheDoesNotLock(t *testing.T) {
	h := newHarness(t, nil)
	var disabled *cache.Redis
	h.worker.SetLocker(disabled)

	_, err := h.worker.ProcessQueuedJobs(context.Background())
	assert.NoError(t, err)
}

func TestProcessQueuedJobs_RequestAndArchive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	archive := storage.NewMemoryArchive()
	h.worker.SetArchive(archive)

	c := testCampaign("c1", models.PlatformInstagram)
	c.Keywords = datatypes.JSONSlice[string]{"a", "b", "c", "d", "e", "f"}
	c.Platforms = datatypes.NewJSONType(models.PlatformSettings{
		models.PlatformInstagram: {Enabled: true, Profiles: []string{"acmeofficial"}, MaxItems: 20},
	})
	require.NoError(t, h.store.CreateCampaign(ctx, c))
	h.instagram.items = instagramItems(3)

	job, err := h.queue.StartScrape(ctx, "c1", "", nil)
	require.NoError(t, err)
	_, err = h.worker.ProcessQueuedJobs(ctx)
	require.NoError(t, err)

	require.Len(t, h.instagram.requests, 1)
	req := h.instagram.requests[0]
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, req.Terms)
	assert.Equal(t, []string{"acmeofficial"}, req.Profiles)
	assert.Equal(t, 20, req.MaxItems)

	data, err := archive.Retrieve(ctx, storage.RawScrapeBlobName(job.ID, "instagram"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ig-2"`)
}

func TestQueue_StartScrapeValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	require.NoError(t, h.store.CreateCampaign(ctx, testCampaign("c1", models.PlatformInstagram)))

	inactive := testCampaign("c2", models.PlatformInstagram)
	inactive.IsActive = false
	require.NoError(t, h.store.CreateCampaign(ctx, inactive))

	require.NoError(t, h.store.CreateCampaign(ctx, testCampaign("c3")))

	tests := []struct {
		name      string
		campaign  string
		platforms []string
		wantMsg   string
	}{
		{"unknown platform", "c1", []string{"myspace"}, `unknown platform "myspace"`},
		{"platform not enabled", "c1", []string{"tiktok"}, "platform tiktok is not enabled for this campaign"},
		{"inactive campaign", "c2", nil, "campaign is not active"},
		{"no enabled platforms", "c3", nil, "campaign has no enabled platforms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.queue.StartScrape(ctx, tt.campaign, "", tt.platforms)
			var verr *storage.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantMsg, verr.Msg)
		})
	}

	_, err := h.queue.StartScrape(ctx, "missing", "", nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	job, err := h.queue.StartScrape(ctx, "c1", "", []string{"Instagram", "instagram"})
	require.NoError(t, err)
	assert.Equal(t, datatypes.JSONSlice[models.Platform]{models.PlatformInstagram}, job.Platforms)
	assert.Equal(t, "user-1", job.UserID)

	listed, err := h.queue.List(ctx, storage.JobFilter{CampaignID: "c1"})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestProcessQueuedJobs_PartialInstagramFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var input map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&input)
		if input["search"] == "acmerun" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("[" + string(instagramItems(1)[0]) + "]"))
	}))
	defer srv.Close()

	store := storage.NewMemoryStore()
	apify := scrapers.NewApifyClient("secret", srv.URL, 5*time.Second)
	registry := scrapers.NewRegistry(scrapers.NewInstagramScraper(apify, "ig"))
	w := New(testConfig(), store, registry, mentions.NewSaver(store, 50))
	queue := NewQueue(store, registry)

	require.NoError(t, store.CreateCampaign(ctx, testCampaign("c1", models.PlatformInstagram)))
	job, err := queue.StartScrape(ctx, "c1", "", nil)
	require.NoError(t, err)

	summary, err := w.ProcessQueuedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, got.Status)
	assert.Equal(t, 1, got.ItemsScraped)

	res := got.Results.Data().Platforms[models.PlatformInstagram]
	require.NotNil(t, res)
	assert.Equal(t, 1, res.MentionsSaved)
	assert.Equal(t, []string{"search acmerun: rate limited"}, res.Errors)
}
