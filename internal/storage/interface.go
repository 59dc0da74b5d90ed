package storage

import (
	"context"
	"time"

	"github.com/brandpulse/social-listening/internal/jobs"
	"github.com/brandpulse/social-listening/internal/models"
)

// CampaignFilter narrows ListCampaigns
type CampaignFilter struct {
	UserID     string
	ActiveOnly bool
}

// JobFilter narrows ListJobs
type JobFilter struct {
	CampaignID string
	Status     jobs.Status
	Limit      int
}

// MentionFilter narrows ListMentions
type MentionFilter struct {
	CampaignID       string
	ScrapeJobID      string
	Since            time.Time
	UnclassifiedOnly bool
	Limit            int
}

// CampaignStore defines the contract for campaign CRUD
type CampaignStore interface {
	CreateCampaign(ctx context.Context, campaign *models.Campaign) error
	GetCampaign(ctx context.Context, id string) (*models.Campaign, error)
	UpdateCampaign(ctx context.Context, campaign *models.Campaign) error
	DeleteCampaign(ctx context.Context, id string) error
	ListCampaigns(ctx context.Context, filter CampaignFilter) ([]models.Campaign, error)
}

// JobStore is the job queue. Every status change goes through a conditional
// update so that only legal transitions of the job state machine can happen,
// and ClaimJob can be won by exactly one caller.
type JobStore interface {
	EnqueueJob(ctx context.Context, job *models.ScrapeJob) error
	GetJob(ctx context.Context, id string) (*models.ScrapeJob, error)
	// ListJobs returns matching jobs, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]models.ScrapeJob, error)
	// ListQueuedJobs returns queued jobs in FIFO order.
	ListQueuedJobs(ctx context.Context) ([]models.ScrapeJob, error)
	// ClaimJob moves a queued job to running. It returns false when the job
	// is no longer queued.
	ClaimJob(ctx context.Context, id string, total int, now time.Time) (bool, error)
	UpdateProgress(ctx context.Context, id string, progress models.Progress) error
	CompleteJob(ctx context.Context, id string, results models.JobResults, itemsScraped int, now time.Time) error
	FailJob(ctx context.Context, id, message string, now time.Time) error
	CancelJob(ctx context.Context, id string, now time.Time) error
	// FailStaleJobs fails running jobs started before cutoff.
	FailStaleJobs(ctx context.Context, cutoff time.Time, message string, now time.Time) (int, error)
}

// MentionStore persists normalized mentions
type MentionStore interface {
	// InsertMentions inserts the batch, ignoring rows whose (campaign,
	// platform, platform id) already exists. It returns the number of rows
	// actually inserted.
	InsertMentions(ctx context.Context, mentions []models.Mention) (int, error)
	ListMentions(ctx context.Context, filter MentionFilter) ([]models.Mention, error)
	ApplyClassifications(ctx context.Context, results []models.Classification) (int, error)
}

// AnalyticsStore holds the derived, fully recomputable tables
type AnalyticsStore interface {
	ReplaceDailyStats(ctx context.Context, campaignID string, stats []models.DailyStat) error
	ListDailyStats(ctx context.Context, campaignID string, since time.Time) ([]models.DailyStat, error)
	ReplaceTrends(ctx context.Context, campaignID string, windowStart time.Time, trends []models.Trend) error
	ListActiveTrends(ctx context.Context, campaignID string) ([]models.Trend, error)
	ReplaceInfluencers(ctx context.Context, campaignID string, influencers []models.Influencer) error
	ListInfluencers(ctx context.Context, campaignID string, limit int) ([]models.Influencer, error)
	OpenAlertKeys(ctx context.Context, campaignID string) (map[string]bool, error)
	CreateAlerts(ctx context.Context, alerts []models.Alert) ([]models.Alert, error)
	ListAlerts(ctx context.Context, campaignID string, includeDismissed bool) ([]models.Alert, error)
	DismissAlert(ctx context.Context, id string, now time.Time) error
}

// Store bundles every persistence contract
type Store interface {
	CampaignStore
	JobStore
	MentionStore
	AnalyticsStore
}

// Archive keeps raw scraper payloads for audit
type Archive interface {
	Store(ctx context.Context, filename string, data []byte) error
	Retrieve(ctx context.Context, filename string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}
