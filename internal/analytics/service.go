// Package analytics derives daily statistics, trends, influencer rankings and
// alerts from a campaign's stored mentions. Every derived table is fully
// recomputed on each run, so running twice on unchanged mentions is a no-op.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brandpulse/social-listening/internal/cache"
	"github.com/brandpulse/social-listening/internal/config"
	"github.com/brandpulse/social-listening/internal/models"
	"github.com/brandpulse/social-listening/internal/notifications"
	"github.com/brandpulse/social-listening/internal/storage"
	"github.com/sirupsen/logrus"
)

// Stage names in execution order
const (
	StageDaily       = "daily_stats"
	StageTrends      = "trends"
	StageInfluencers = "influencers"
	StageAlerts      = "alerts"
)

// StageResult reports one stage of a run
type StageResult struct {
	Name      string `json:"name"`
	Success   bool   `json:"success"`
	ItemCount int    `json:"item_count"`
	Error     string `json:"error,omitempty"`
}

// Result reports a full analytics run for one campaign
type Result struct {
	CampaignID string        `json:"campaign_id"`
	Stages     []StageResult `json:"stages"`
	Success    bool          `json:"success"`
	Errors     []string      `json:"errors"`
	Duration   string        `json:"duration"`
}

// BatchResult reports a run over many campaigns
type BatchResult struct {
	Campaigns int       `json:"campaigns"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Results   []*Result `json:"results"`
}

// Service runs the analytics pipeline
type Service struct {
	config   *config.Config
	store    storage.Store
	notifier notifications.Notifier
	cache    *cache.Redis
	now      func() time.Time
}

func NewService(cfg *config.Config, store storage.Store, notifier notifications.Notifier, redisCache *cache.Redis) *Service {
	if notifier == nil {
		notifier = notifications.Noop{}
	}
	return &Service{
		config:   cfg,
		store:    store,
		notifier: notifier,
		cache:    redisCache,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RunAnalytics runs every stage for one campaign. A failing stage is recorded
// and the next stage still runs. The error is non-nil only when the campaign
// cannot be loaded.
func (s *Service) RunAnalytics(ctx context.Context, campaignID string) (*Result, error) {
	start := time.Now()
	campaign, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	log := logrus.WithField("campaign_id", campaignID)
	log.Info("Starting analytics run")

	loadMentions := sync.OnceValues(func() ([]models.Mention, error) {
		all, err := s.store.ListMentions(ctx, storage.MentionFilter{CampaignID: campaignID})
		if err != nil {
			return nil, fmt.Errorf("failed to load mentions: %w", err)
		}
		return all, nil
	})

	result := &Result{CampaignID: campaignID, Success: true, Errors: []string{}}
	stages := []struct {
		name string
		run  func() (int, error)
	}{
		{StageDaily, func() (int, error) { return s.runDaily(ctx, campaign, loadMentions, now) }},
		{StageTrends, func() (int, error) { return s.runTrends(ctx, campaign, loadMentions, now) }},
		{StageInfluencers, func() (int, error) { return s.runInfluencers(ctx, campaign, loadMentions, now) }},
		{StageAlerts, func() (int, error) { return s.runAlerts(ctx, campaign, now) }},
	}

	for _, stage := range stages {
		sr := runStage(stage.name, stage.run)
		if !sr.Success {
			result.Success = false
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", sr.Name, sr.Error))
			log.WithField("stage", sr.Name).Errorf("Analytics stage failed: %s", sr.Error)
		} else {
			log.WithField("stage", sr.Name).Infof("Analytics stage produced %d items", sr.ItemCount)
		}
		result.Stages = append(result.Stages, sr)
	}

	if err := s.cache.InvalidateSummaries(ctx, campaignID); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		log.Warnf("Failed to invalidate cached summaries: %v", err)
	}

	result.Duration = time.Since(start).String()
	log.WithField("success", result.Success).Infof("Analytics run finished in %v", time.Since(start))
	return result, nil
}

func runStage(name string, run func() (int, error)) (sr StageResult) {
	sr.Name = name
	defer func() {
		if r := recover(); r != nil {
			sr.Success = false
			sr.Error = fmt.Sprintf("internal error: %v", r)
		}
	}()

	n, err := run()
	sr.ItemCount = n
	if err != nil {
		sr.Error = err.Error()
		return sr
	}
	sr.Success = true
	return sr
}

func (s *Service) runDaily(ctx context.Context, campaign *models.Campaign, load func() ([]models.Mention, error), now time.Time) (int, error) {
	all, err := load()
	if err != nil {
		return 0, err
	}
	stats := computeDailyStats(campaign.ID, all, now)
	if len(stats) == 0 {
		return 0, nil
	}
	if err := s.store.ReplaceDailyStats(ctx, campaign.ID, stats); err != nil {
		return 0, fmt.Errorf("failed to store daily stats: %w", err)
	}
	return len(stats), nil
}

func (s *Service) runTrends(ctx context.Context, campaign *models.Campaign, load func() ([]models.Mention, error), now time.Time) (int, error) {
	all, err := load()
	if err != nil {
		return 0, err
	}
	trends := detectTrends(campaign, all, s.config.Analytics, now)
	windowStart, _ := trendWindow(s.config.Analytics, now)
	if err := s.store.ReplaceTrends(ctx, campaign.ID, windowStart, trends); err != nil {
		return 0, fmt.Errorf("failed to store trends: %w", err)
	}
	return len(trends), nil
}

func (s *Service) runInfluencers(ctx context.Context, campaign *models.Campaign, load func() ([]models.Mention, error), now time.Time) (int, error) {
	all, err := load()
	if err != nil {
		return 0, err
	}
	influencers := scoreInfluencers(campaign.ID, all, now)
	if err := s.store.ReplaceInfluencers(ctx, campaign.ID, influencers); err != nil {
		return 0, fmt.Errorf("failed to store influencers: %w", err)
	}
	return len(influencers), nil
}

// runAlerts reads the stored derived tables, so it still evaluates the last
// good data when an earlier stage failed
func (s *Service) runAlerts(ctx context.Context, campaign *models.Campaign, now time.Time) (int, error) {
	since := now.UTC().Truncate(day).AddDate(0, 0, -(trailingDays + 1))
	daily, err := s.store.ListDailyStats(ctx, campaign.ID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to load daily stats: %w", err)
	}
	trends, err := s.store.ListActiveTrends(ctx, campaign.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load trends: %w", err)
	}
	influencers, err := s.store.ListInfluencers(ctx, campaign.ID, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to load influencers: %w", err)
	}

	candidates := evaluateAlerts(campaign.ID, alertInputs{daily: daily, trends: trends, influencers: influencers}, s.config.Analytics, now)
	if len(candidates) == 0 {
		return 0, nil
	}

	open, err := s.store.OpenAlertKeys(ctx, campaign.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load open alerts: %w", err)
	}
	fresh := filterOpen(candidates, open)
	if len(fresh) == 0 {
		return 0, nil
	}

	// a concurrent run may have opened some of these conditions since
	// OpenAlertKeys, so only the rows actually inserted are announced
	created, err := s.store.CreateAlerts(ctx, fresh)
	if err != nil {
		return 0, fmt.Errorf("failed to store alerts: %w", err)
	}
	if len(created) == 0 {
		return 0, nil
	}

	if err := s.notifier.SendAlerts(ctx, campaign, created); err != nil {
		logrus.WithField("campaign_id", campaign.ID).Warnf("Failed to send alert notifications: %v", err)
	}
	return len(created), nil
}

// RunAnalyticsForAllCampaigns runs the pipeline for every active campaign,
// optionally restricted to one user, one campaign at a time
func (s *Service) RunAnalyticsForAllCampaigns(ctx context.Context, userID string) (*BatchResult, error) {
	campaigns, err := s.store.ListCampaigns(ctx, storage.CampaignFilter{UserID: userID, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}

	batch := &BatchResult{Campaigns: len(campaigns), Results: []*Result{}}
	for _, c := range campaigns {
		if ctx.Err() != nil {
			return batch, ctx.Err()
		}
		res, err := s.RunAnalytics(ctx, c.ID)
		if err != nil {
			logrus.WithField("campaign_id", c.ID).Errorf("Analytics run failed: %v", err)
			res = &Result{CampaignID: c.ID, Errors: []string{err.Error()}}
		}
		if res.Success {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
		batch.Results = append(batch.Results, res)
	}
	return batch, nil
}
