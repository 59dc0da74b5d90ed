package models

import (
	"time"

	"github.com/brandpulse/social-listening/internal/jobs"
	"gorm.io/datatypes"
)

// Progress is the human-facing progress record of a scrape job
type Progress struct {
	Current int    `gorm:"column:current;not null;default:0" json:"current"`
	Total   int    `gorm:"column:total;not null;default:0" json:"total"`
	Message string `gorm:"column:message;type:text" json:"message"`
}

// PlatformResult summarizes one platform's part of a scrape job
type PlatformResult struct {
	MentionsSaved int      `json:"mentions_saved"`
	ItemsScraped  int      `json:"items_scraped"`
	SkippedItems  int      `json:"skipped_items"`
	FailedBatches int      `json:"failed_batches"`
	Errors        []string `json:"errors"`
}

// JobResults is the result summary stored when a job completes
type JobResults struct {
	Platforms map[Platform]*PlatformResult `json:"platforms"`
}

// NewJobResults returns an empty result summary
func NewJobResults() JobResults {
	return JobResults{Platforms: make(map[Platform]*PlatformResult)}
}

// Platform returns the result entry for p, creating it if needed
func (r *JobResults) Platform(p Platform) *PlatformResult {
	if r.Platforms == nil {
		r.Platforms = make(map[Platform]*PlatformResult)
	}
	res, ok := r.Platforms[p]
	if !ok {
		res = &PlatformResult{Errors: []string{}}
		r.Platforms[p] = res
	}
	return res
}

// ScrapeJob is one queued, trackable unit of scrape work. The Job Worker owns
// it once claimed; everything else reads it.
type ScrapeJob struct {
	ID           string                         `gorm:"type:uuid;primaryKey" json:"id"`
	CampaignID   string                         `gorm:"type:uuid;not null;index" json:"campaign_id"`
	UserID       string                         `gorm:"type:varchar(128);index" json:"user_id"`
	Platforms    datatypes.JSONSlice[Platform]  `json:"platforms"`
	Status       jobs.Status                    `gorm:"type:varchar(16);not null;index:idx_scrape_jobs_queue,priority:1" json:"status"`
	Progress     Progress                       `gorm:"embedded;embeddedPrefix:progress_" json:"progress"`
	Results      datatypes.JSONType[JobResults] `json:"results"`
	ItemsScraped int                            `gorm:"not null;default:0" json:"items_scraped"`
	ErrorMessage *string                        `gorm:"type:text" json:"error_message,omitempty"`
	QueuedAt     time.Time                      `gorm:"not null;index:idx_scrape_jobs_queue,priority:2" json:"queued_at"`
	StartedAt    *time.Time                     `json:"started_at,omitempty"`
	CompletedAt  *time.Time                     `json:"completed_at,omitempty"`
}

// TableName specifies the table name for ScrapeJob
func (ScrapeJob) TableName() string {
	return "scrape_jobs"
}
