package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brandpulse/social-listening/internal/cache"
	"github.com/brandpulse/social-listening/internal/config"
	"github.com/brandpulse/social-listening/internal/mentions"
	"github.com/brandpulse/social-listening/internal/models"
	"github.com/brandpulse/social-listening/internal/scrapers"
	"github.com/brandpulse/social-listening/internal/storage"
	"github.com/sirupsen/logrus"
)

const runLockName = "process-jobs"

var (
	// ErrAlreadyRunning is returned when another process holds the run lock
	ErrAlreadyRunning = errors.New("job processing is already running")

	errCampaignNotFound = errors.New("campaign not found")
)

// Locker serializes overlapping ProcessQueuedJobs invocations
type Locker interface {
	Lock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error)
}

// Summary reports what one ProcessQueuedJobs call did
type Summary struct {
	Processed   int `json:"processed"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
	StaleFailed int `json:"stale_failed"`
}

// Metrics holds worker metrics
type Metrics struct {
	JobsProcessed    int                     `json:"jobs_processed"`
	JobsCompleted    int                     `json:"jobs_completed"`
	JobsFailed       int                     `json:"jobs_failed"`
	ItemsScraped     int                     `json:"items_scraped"`
	PlatformMentions map[models.Platform]int `json:"platform_mentions"`
	PlatformErrors   map[models.Platform]int `json:"platform_errors"`
	LastRun          time.Time               `json:"last_run"`
	LastRunDuration  string                  `json:"last_run_duration"`
}

// Worker drains the scrape job queue
type Worker struct {
	config   *config.Config
	store    storage.Store
	registry *scrapers.Registry
	saver    *mentions.Saver
	archive  storage.Archive
	locker   Locker
	now      func() time.Time

	metrics *Metrics
	mu      sync.RWMutex
}

// New creates a job worker
func New(cfg *config.Config, store storage.Store, registry *scrapers.Registry, saver *mentions.Saver) *Worker {
	return &Worker{
		config:   cfg,
		store:    store,
		registry: registry,
		saver:    saver,
		now:      func() time.Time { return time.Now().UTC() },
		metrics: &Metrics{
			PlatformMentions: make(map[models.Platform]int),
			PlatformErrors:   make(map[models.Platform]int),
		},
	}
}

// SetArchive enables raw payload archiving
func (w *Worker) SetArchive(archive storage.Archive) {
	w.archive = archive
}

// SetLocker enables the cross-process run lock
func (w *Worker) SetLocker(locker Locker) {
	w.locker = locker
}

// ProcessQueuedJobs fails stale running jobs, then claims and runs every
// queued job in FIFO order, one at a time.
func (w *Worker) ProcessQueuedJobs(ctx context.Context) (Summary, error) {
	var summary Summary
	start := time.Now()

	release, err := w.acquire(ctx)
	if err != nil {
		return summary, err
	}
	if release != nil {
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logrus.Warnf("Failed to release run lock: %v", err)
			}
		}()
	}

	if w.config.StaleJobTimeout > 0 {
		now := w.now()
		cutoff := now.Add(-w.config.StaleJobTimeout)
		msg := fmt.Sprintf("stale: job did not finish within %s", w.config.StaleJobTimeout)
		n, err := w.store.FailStaleJobs(ctx, cutoff, msg, now)
		if err != nil {
			return summary, fmt.Errorf("failed to fail stale jobs: %w", err)
		}
		if n > 0 {
			logrus.Warnf("Failed %d stale running jobs", n)
		}
		summary.StaleFailed = n
	}

	queued, err := w.store.ListQueuedJobs(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list queued jobs: %w", err)
	}
	logrus.Infof("Found %d queued jobs", len(queued))

	for i := range queued {
		if ctx.Err() != nil {
			logrus.Warnf("Stopping job processing: %v", ctx.Err())
			break
		}
		job := &queued[i]

		claimed, err := w.store.ClaimJob(ctx, job.ID, len(job.Platforms), w.now())
		if err != nil {
			logrus.WithField("job_id", job.ID).Errorf("Failed to claim job: %v", err)
			summary.Skipped++
			continue
		}
		if !claimed {
			logrus.WithField("job_id", job.ID).Info("Job was claimed or cancelled elsewhere, skipping")
			summary.Skipped++
			continue
		}

		summary.Processed++
		if err := w.processJob(ctx, job); err != nil {
			summary.Failed++
		} else {
			summary.Completed++
		}
	}

	w.mu.Lock()
	w.metrics.LastRun = time.Now()
	w.metrics.LastRunDuration = time.Since(start).String()
	w.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"processed":    summary.Processed,
		"completed":    summary.Completed,
		"failed":       summary.Failed,
		"skipped":      summary.Skipped,
		"stale_failed": summary.StaleFailed,
	}).Infof("Job processing finished in %v", time.Since(start))
	return summary, nil
}

func (w *Worker) acquire(ctx context.Context) (func(context.Context) error, error) {
	if w.locker == nil {
		return nil, nil
	}
	release, err := w.locker.Lock(ctx, runLockName, w.config.RunLockTTL)
	switch {
	case err == nil:
		return release, nil
	case errors.Is(err, cache.ErrCacheDisabled):
		return nil, nil
	case errors.Is(err, cache.ErrLockHeld):
		return nil, ErrAlreadyRunning
	}
	return nil, fmt.Errorf("failed to acquire run lock: %w", err)
}

// processJob runs a claimed job to completion or failure. The returned error
// is the reason the job failed.
func (w *Worker) processJob(ctx context.Context, job *models.ScrapeJob) error {
	log := logrus.WithFields(logrus.Fields{
		"job_id":      job.ID,
		"campaign_id": job.CampaignID,
	})
	log.Infof("Processing job for %d platforms", len(job.Platforms))

	results, itemsScraped, err := w.runJob(ctx, job)
	if err == nil {
		err = w.store.CompleteJob(ctx, job.ID, results, itemsScraped, w.now())
	}
	if err != nil {
		log.Errorf("Job failed: %v", err)
		if ferr := w.store.FailJob(context.WithoutCancel(ctx), job.ID, err.Error(), w.now()); ferr != nil {
			log.Errorf("Failed to mark job as failed: %v", ferr)
		}
		w.recordJob(false, 0)
		return err
	}

	log.WithField("items_scraped", itemsScraped).Info("Job completed")
	w.recordJob(true, itemsScraped)
	return nil
}

func (w *Worker) runJob(ctx context.Context, job *models.ScrapeJob) (models.JobResults, int, error) {
	results := models.NewJobResults()

	campaign, err := w.store.GetCampaign(ctx, job.CampaignID)
	if errors.Is(err, storage.ErrNotFound) {
		return results, 0, errCampaignNotFound
	}
	if err != nil {
		return results, 0, fmt.Errorf("failed to load campaign: %w", err)
	}

	total := len(job.Platforms)
	itemsScraped := 0
	for i, p := range job.Platforms {
		progress := models.Progress{Current: i, Total: total, Message: fmt.Sprintf("Scraping %s...", p)}
		if err := w.store.UpdateProgress(ctx, job.ID, progress); err != nil {
			return results, itemsScraped, fmt.Errorf("failed to update progress: %w", err)
		}

		res, raw := w.scrapePlatform(ctx, job, campaign, p)
		results.Platforms[p] = res
		itemsScraped += raw
		w.recordPlatform(p, res)
	}

	done := models.Progress{Current: total, Total: total, Message: "Scrape finished"}
	if err := w.store.UpdateProgress(ctx, job.ID, done); err != nil {
		return results, itemsScraped, fmt.Errorf("failed to update progress: %w", err)
	}
	return results, itemsScraped, nil
}

// scrapePlatform never fails the job: every problem becomes an entry in the
// platform's error list.
func (w *Worker) scrapePlatform(ctx context.Context, job *models.ScrapeJob, campaign *models.Campaign, p models.Platform) (res *models.PlatformResult, itemsScraped int) {
	res = &models.PlatformResult{Errors: []string{}}
	log := logrus.WithFields(logrus.Fields{
		"job_id":      job.ID,
		"campaign_id": campaign.ID,
		"platform":    p,
	})

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Platform scrape panicked: %v", r)
			res.Errors = append(res.Errors, fmt.Sprintf("internal error: %v", r))
		}
	}()

	scraper, ok := w.registry.Get(p)
	if !ok {
		res.Errors = append(res.Errors, fmt.Sprintf("unsupported platform %q", p))
		return res, 0
	}
	if !scraper.IsEnabled() {
		res.Errors = append(res.Errors, fmt.Sprintf("%s scraper is not configured", p))
		return res, 0
	}

	req := w.buildRequest(campaign, p)
	if req.Empty() {
		res.Errors = append(res.Errors, "campaign has no keywords, hashtags or profiles")
		return res, 0
	}

	log.Infof("Scraping %d terms and %d profiles", len(req.Terms), len(req.Profiles))
	items, err := scraper.Scrape(ctx, req)
	var partial *scrapers.PartialError
	switch {
	case errors.As(err, &partial):
		log.Warnf("Scrape partially failed: %v", err)
		for _, e := range partial.Errs {
			res.Errors = append(res.Errors, e.Error())
		}
	case err != nil:
		log.Errorf("Scrape failed: %v", err)
		res.Errors = append(res.Errors, err.Error())
		return res, 0
	}
	res.ItemsScraped = len(items)
	w.archiveRaw(ctx, job.ID, p, items)

	saved := w.saver.Save(ctx, mentions.Scope{
		CampaignID: campaign.ID,
		JobID:      job.ID,
		Platform:   p,
		Now:        w.now(),
	}, items)
	res.MentionsSaved = saved.Saved
	res.SkippedItems = saved.Skipped
	res.FailedBatches = saved.FailedBatches
	return res, len(items)
}

func (w *Worker) buildRequest(campaign *models.Campaign, p models.Platform) scrapers.Request {
	pc := campaign.PlatformConfig(p)
	maxItems := pc.MaxItems
	if maxItems <= 0 {
		maxItems = w.config.DefaultMaxItems
	}
	return scrapers.Request{
		Terms:    scrapers.BuildTerms(campaign.Keywords, campaign.Hashtags, w.config.MaxTermsPerPlatform),
		Profiles: pc.Profiles,
		MaxItems: maxItems,
	}
}

func (w *Worker) archiveRaw(ctx context.Context, jobID string, p models.Platform, items []scrapers.RawItem) {
	if w.archive == nil || len(items) == 0 {
		return
	}
	data, err := json.Marshal(items)
	if err != nil {
		logrus.Warnf("Failed to encode raw %s items: %v", p, err)
		return
	}
	if err := w.archive.Store(ctx, storage.RawScrapeBlobName(jobID, string(p)), data); err != nil {
		logrus.WithField("job_id", jobID).Warnf("Failed to archive raw %s items: %v", p, err)
	}
}

func (w *Worker) recordJob(completed bool, items int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.metrics.JobsProcessed++
	if completed {
		w.metrics.JobsCompleted++
	} else {
		w.metrics.JobsFailed++
	}
	w.metrics.ItemsScraped += items
}

func (w *Worker) recordPlatform(p models.Platform, res *models.PlatformResult) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.metrics.PlatformMentions[p] += res.MentionsSaved
	w.metrics.PlatformErrors[p] += len(res.Errors)
}

// GetMetrics returns current metrics as JSON
func (w *Worker) GetMetrics() string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	data, _ := json.MarshalIndent(w.metrics, "", "  ")
	return string(data)
}
