package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brandpulse/social-listening/internal/jobs"
	"github.com/brandpulse/social-listening/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore is the PostgreSQL-backed Store
type GormStore struct {
	db *gorm.DB
}

// Ensure GormStore implements Store
var _ Store = (*GormStore)(nil)

// OpenPostgres connects to databaseURL and configures the pool
func OpenPostgres(ctx context.Context, databaseURL string, debug bool) (*GormStore, error) {
	level := logger.Warn
	if debug {
		level = logger.Info
	}

	gormLogger := logger.New(
		logrus.StandardLogger(),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Database connection established")
	return &GormStore{db: db}, nil
}

// Migrate creates or updates every table the pipeline owns
func (s *GormStore) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&models.Campaign{},
		&models.ScrapeJob{},
		&models.Mention{},
		&models.DailyStat{},
		&models.Trend{},
		&models.Influencer{},
		&models.Alert{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	return s.createOpenAlertIndex(ctx)
}

// openAlertIndexSQL allows at most one open alert per condition. Dismissed
// rows fall outside the index so a condition can fire again.
const openAlertIndexSQL = "CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_open_condition ON alerts (campaign_id, condition_key) WHERE NOT is_dismissed"

func (s *GormStore) createOpenAlertIndex(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec(openAlertIndexSQL).Error; err != nil {
		return fmt.Errorf("failed to create alert index: %w", err)
	}
	return nil
}

// Health pings the database
func (s *GormStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Campaigns

func (s *GormStore) CreateCampaign(ctx context.Context, campaign *models.Campaign) error {
	return s.db.WithContext(ctx).Create(campaign).Error
}

func (s *GormStore) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&campaign).Error; err != nil {
		return nil, notFound(err)
	}
	return &campaign, nil
}

func (s *GormStore) UpdateCampaign(ctx context.Context, campaign *models.Campaign) error {
	result := s.db.WithContext(ctx).Model(&models.Campaign{}).Where("id = ?", campaign.ID).Updates(map[string]interface{}{
		"name":       campaign.Name,
		"keywords":   campaign.Keywords,
		"hashtags":   campaign.Hashtags,
		"platforms":  campaign.Platforms,
		"is_active":  campaign.IsActive,
		"updated_at": campaign.UpdatedAt,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeleteCampaign(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Campaign{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]models.Campaign, error) {
	q := s.db.WithContext(ctx).Model(&models.Campaign{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}

	var campaigns []models.Campaign
	if err := q.Order("created_at ASC, id ASC").Find(&campaigns).Error; err != nil {
		return nil, err
	}
	return campaigns, nil
}

// Jobs

func (s *GormStore) EnqueueJob(ctx context.Context, job *models.ScrapeJob) error {
	return s.db.WithContext(ctx).Create(job).Error
}

func (s *GormStore) GetJob(ctx context.Context, id string) (*models.ScrapeJob, error) {
	var job models.ScrapeJob
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

func (s *GormStore) ListJobs(ctx context.Context, filter JobFilter) ([]models.ScrapeJob, error) {
	q := s.db.WithContext(ctx).Model(&models.ScrapeJob{})
	if filter.CampaignID != "" {
		q = q.Where("campaign_id = ?", filter.CampaignID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var out []models.ScrapeJob
	if err := q.Order("queued_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) ListQueuedJobs(ctx context.Context) ([]models.ScrapeJob, error) {
	var out []models.ScrapeJob
	err := s.db.WithContext(ctx).
		Where("status = ?", jobs.StatusQueued).
		Order("queued_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// transition updates job id from one of the statuses allowed to reach `to`.
// The status predicate in the WHERE clause makes concurrent callers race on
// the row itself; only one UPDATE can match.
func (s *GormStore) transition(ctx context.Context, id string, from, to jobs.Status, updates map[string]interface{}) error {
	if !jobs.IsTransitionAllowed(from, to) {
		return ErrInvalidTransition
	}
	updates["status"] = to

	result := s.db.WithContext(ctx).
		Model(&models.ScrapeJob{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}

	if _, err := s.GetJob(ctx, id); err != nil {
		return err
	}
	return ErrInvalidTransition
}

func (s *GormStore) ClaimJob(ctx context.Context, id string, total int, now time.Time) (bool, error) {
	err := s.transition(ctx, id, jobs.StatusQueued, jobs.StatusRunning, map[string]interface{}{
		"started_at":       now,
		"progress_current": 0,
		"progress_total":   total,
		"progress_message": "Starting scrape...",
	})
	if errors.Is(err, ErrInvalidTransition) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *GormStore) UpdateProgress(ctx context.Context, id string, progress models.Progress) error {
	if progress.Current < 0 || progress.Total < 0 {
		return ErrInvalidTransition
	}

	result := s.db.WithContext(ctx).
		Model(&models.ScrapeJob{}).
		Where("id = ? AND status = ? AND progress_current <= ?", id, jobs.StatusRunning, progress.Current).
		Updates(map[string]interface{}{
			"progress_current": progress.Current,
			"progress_total":   progress.Total,
			"progress_message": progress.Message,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}

	if _, err := s.GetJob(ctx, id); err != nil {
		return err
	}
	return ErrInvalidTransition
}

func (s *GormStore) CompleteJob(ctx context.Context, id string, results models.JobResults, itemsScraped int, now time.Time) error {
	return s.transition(ctx, id, jobs.StatusRunning, jobs.StatusCompleted, map[string]interface{}{
		"completed_at":  now,
		"results":       datatypes.NewJSONType(results),
		"items_scraped": itemsScraped,
	})
}

func (s *GormStore) FailJob(ctx context.Context, id, message string, now time.Time) error {
	return s.transition(ctx, id, jobs.StatusRunning, jobs.StatusFailed, map[string]interface{}{
		"completed_at":  now,
		"error_message": message,
	})
}

func (s *GormStore) CancelJob(ctx context.Context, id string, now time.Time) error {
	return s.transition(ctx, id, jobs.StatusQueued, jobs.StatusCancelled, map[string]interface{}{
		"completed_at":     now,
		"progress_message": "Job cancelled",
	})
}

func (s *GormStore) FailStaleJobs(ctx context.Context, cutoff time.Time, message string, now time.Time) (int, error) {
	result := s.db.WithContext(ctx).
		Model(&models.ScrapeJob{}).
		Where("status = ? AND started_at < ?", jobs.StatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":        jobs.StatusFailed,
			"completed_at":  now,
			"error_message": message,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

// Mentions

// InsertMentions inserts the batch, silently skipping rows that collide on
// (campaign_id, platform, platform_id). The returned count is rows inserted.
func (s *GormStore) InsertMentions(ctx context.Context, mentions []models.Mention) (int, error) {
	if len(mentions) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "platform"}, {Name: "platform_id"}},
			DoNothing: true,
		}).
		Create(&mentions)
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

// mentionTimeExpr matches Mention.Timestamp: a zero post_timestamp means the
// source had none and created_at is used instead
const mentionTimeExpr = "COALESCE(NULLIF(post_timestamp, ?), created_at)"

func (s *GormStore) ListMentions(ctx context.Context, filter MentionFilter) ([]models.Mention, error) {
	q := s.db.WithContext(ctx).Model(&models.Mention{})
	if filter.CampaignID != "" {
		q = q.Where("campaign_id = ?", filter.CampaignID)
	}
	if filter.ScrapeJobID != "" {
		q = q.Where("scrape_job_id = ?", filter.ScrapeJobID)
	}
	if !filter.Since.IsZero() {
		q = q.Where(mentionTimeExpr+" >= ?", time.Time{}, filter.Since)
	}
	if filter.UnclassifiedOnly {
		q = q.Where("sentiment_label IS NULL OR is_relevant IS NULL")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var out []models.Mention
	if err := q.Order("created_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) ApplyClassifications(ctx context.Context, results []models.Classification) (int, error) {
	updated := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range results {
			res := tx.Model(&models.Mention{}).Where("id = ?", r.MentionID).Updates(map[string]interface{}{
				"is_relevant":          r.IsRelevant,
				"relevance_confidence": r.RelevanceConfidence,
				"sentiment_label":      r.SentimentLabel,
				"sentiment_score":      r.SentimentScore,
			})
			if res.Error != nil {
				return res.Error
			}
			updated += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// Analytics

func (s *GormStore) ReplaceDailyStats(ctx context.Context, campaignID string, stats []models.DailyStat) error {
	if len(stats) == 0 {
		return nil
	}

	dates := make([]time.Time, 0, len(stats))
	for _, st := range stats {
		dates = append(dates, st.Date)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("campaign_id = ? AND date IN ?", campaignID, dates).Delete(&models.DailyStat{}).Error; err != nil {
			return err
		}
		return tx.Create(&stats).Error
	})
}

func (s *GormStore) ListDailyStats(ctx context.Context, campaignID string, since time.Time) ([]models.DailyStat, error) {
	q := s.db.WithContext(ctx).Where("campaign_id = ?", campaignID)
	if !since.IsZero() {
		q = q.Where("date >= ?", since)
	}

	var out []models.DailyStat
	if err := q.Order("date ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) ReplaceTrends(ctx context.Context, campaignID string, windowStart time.Time, trends []models.Trend) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Trend{}).
			Where("campaign_id = ? AND window_start <> ?", campaignID, windowStart).
			Update("is_active", false).Error
		if err != nil {
			return err
		}
		if err := tx.Where("campaign_id = ? AND window_start = ?", campaignID, windowStart).Delete(&models.Trend{}).Error; err != nil {
			return err
		}
		if len(trends) == 0 {
			return nil
		}
		return tx.Create(&trends).Error
	})
}

func (s *GormStore) ListActiveTrends(ctx context.Context, campaignID string) ([]models.Trend, error) {
	var out []models.Trend
	err := s.db.WithContext(ctx).
		Where("campaign_id = ? AND is_active = ?", campaignID, true).
		Order("rank ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) ReplaceInfluencers(ctx context.Context, campaignID string, influencers []models.Influencer) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("campaign_id = ?", campaignID).Delete(&models.Influencer{}).Error; err != nil {
			return err
		}
		if len(influencers) == 0 {
			return nil
		}
		return tx.Create(&influencers).Error
	})
}

func (s *GormStore) ListInfluencers(ctx context.Context, campaignID string, limit int) ([]models.Influencer, error) {
	q := s.db.WithContext(ctx).Where("campaign_id = ?", campaignID).Order("rank ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var out []models.Influencer
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) OpenAlertKeys(ctx context.Context, campaignID string) (map[string]bool, error) {
	var keys []string
	err := s.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("campaign_id = ? AND is_dismissed = ?", campaignID, false).
		Pluck("condition_key", &keys).Error
	if err != nil {
		return nil, err
	}

	open := make(map[string]bool, len(keys))
	for _, k := range keys {
		open[k] = true
	}
	return open, nil
}

// CreateAlerts relies on idx_alerts_open_condition to drop alerts whose
// condition is already open. Only the inserted alerts are returned.
func (s *GormStore) CreateAlerts(ctx context.Context, alerts []models.Alert) ([]models.Alert, error) {
	if len(alerts) == 0 {
		return nil, nil
	}

	var created []models.Alert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range alerts {
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&alerts[i])
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 1 {
				created = append(created, alerts[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *GormStore) ListAlerts(ctx context.Context, campaignID string, includeDismissed bool) ([]models.Alert, error) {
	q := s.db.WithContext(ctx).Where("campaign_id = ?", campaignID)
	if !includeDismissed {
		q = q.Where("is_dismissed = ?", false)
	}

	var out []models.Alert
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) DismissAlert(ctx context.Context, id string, now time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_dismissed": true,
			"dismissed_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
