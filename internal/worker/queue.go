package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/brandpulse/social-listening/internal/jobs"
	"github.com/brandpulse/social-listening/internal/models"
	"github.com/brandpulse/social-listening/internal/scrapers"
	"github.com/brandpulse/social-listening/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// Queue is the producer side of the job queue
type Queue struct {
	store    storage.Store
	registry *scrapers.Registry
	now      func() time.Time
}

func NewQueue(store storage.Store, registry *scrapers.Registry) *Queue {
	return &Queue{
		store:    store,
		registry: registry,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StartScrape enqueues a scrape job for a campaign. When platforms is empty
// every platform enabled on the campaign is scraped.
func (q *Queue) StartScrape(ctx context.Context, campaignID, userID string, platforms []string) (*models.ScrapeJob, error) {
	campaign, err := q.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.IsActive {
		return nil, &storage.ValidationError{Msg: "campaign is not active"}
	}

	selected, err := q.selectPlatforms(campaign, platforms)
	if err != nil {
		return nil, err
	}

	if userID == "" {
		userID = campaign.UserID
	}

	job := &models.ScrapeJob{
		ID:         uuid.NewString(),
		CampaignID: campaign.ID,
		UserID:     userID,
		Platforms:  datatypes.JSONSlice[models.Platform](selected),
		Status:     jobs.StatusQueued,
		Progress:   models.Progress{Current: 0, Total: 0, Message: jobs.QueuedMessage},
		Results:    datatypes.NewJSONType(models.NewJobResults()),
		QueuedAt:   q.now(),
	}
	if err := q.store.EnqueueJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"job_id":      job.ID,
		"campaign_id": campaign.ID,
	}).Infof("Queued scrape job for %v", selected)
	return job, nil
}

func (q *Queue) selectPlatforms(campaign *models.Campaign, requested []string) ([]models.Platform, error) {
	if len(requested) == 0 {
		enabled := campaign.EnabledPlatforms()
		if len(enabled) == 0 {
			return nil, &storage.ValidationError{Msg: "campaign has no enabled platforms"}
		}
		return enabled, nil
	}

	seen := make(map[models.Platform]bool)
	var selected []models.Platform
	for _, raw := range requested {
		p, err := models.ParsePlatform(raw)
		if err != nil {
			return nil, &storage.ValidationError{Msg: err.Error()}
		}
		if _, ok := q.registry.Get(p); !ok {
			return nil, &storage.ValidationError{Msg: fmt.Sprintf("no scraper registered for %s", p)}
		}
		if !campaign.PlatformConfig(p).Enabled {
			return nil, &storage.ValidationError{Msg: fmt.Sprintf("platform %s is not enabled for this campaign", p)}
		}
		if !seen[p] {
			seen[p] = true
			selected = append(selected, p)
		}
	}
	return selected, nil
}

// Cancel cancels a job that has not started yet
func (q *Queue) Cancel(ctx context.Context, jobID string) error {
	job, err := q.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if jobs.IsTerminal(job.Status) {
		return fmt.Errorf("job is already %s: %w", job.Status, storage.ErrInvalidTransition)
	}
	if err := q.store.CancelJob(ctx, jobID, q.now()); err != nil {
		return err
	}
	logrus.WithField("job_id", jobID).Info("Job cancelled")
	return nil
}

// Get returns a job with its progress and results
func (q *Queue) Get(ctx context.Context, jobID string) (*models.ScrapeJob, error) {
	return q.store.GetJob(ctx, jobID)
}

// List returns jobs newest first
func (q *Queue) List(ctx context.Context, filter storage.JobFilter) ([]models.ScrapeJob, error) {
	return q.store.ListJobs(ctx, filter)
}
