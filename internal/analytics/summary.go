package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/brandpulse/social-listening/internal/cache"
	"github.com/brandpulse/social-listening/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultSummaryDays = 7
	MaxSummaryDays     = 365

	summaryInfluencers = 10
)

// SentimentBreakdown counts classified mentions per label
type SentimentBreakdown struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
}

// Summary is the dashboard view of a campaign's derived tables
type Summary struct {
	CampaignID      string                  `json:"campaign_id"`
	Days            int                     `json:"days"`
	From            time.Time               `json:"from"`
	TotalMentions   int                     `json:"total_mentions"`
	TotalEngagement int64                   `json:"total_engagement"`
	RelevantCount   int                     `json:"relevant_count"`
	AvgSentiment    *float64                `json:"avg_sentiment"`
	Sentiment       SentimentBreakdown      `json:"sentiment"`
	PlatformCounts  map[models.Platform]int `json:"platform_counts"`
	Daily           []models.DailyStat      `json:"daily"`
	Trends          []models.Trend          `json:"trends"`
	TopInfluencers  []models.Influencer     `json:"top_influencers"`
	OpenAlerts      []models.Alert          `json:"open_alerts"`
	GeneratedAt     time.Time               `json:"generated_at"`
}

// GetSummary builds the summary for the last days days, serving it from the
// Redis cache when available
func (s *Service) GetSummary(ctx context.Context, campaignID string, days int) (*Summary, error) {
	if days <= 0 {
		days = DefaultSummaryDays
	}
	if days > MaxSummaryDays {
		days = MaxSummaryDays
	}

	if _, err := s.store.GetCampaign(ctx, campaignID); err != nil {
		return nil, err
	}

	var cached Summary
	err := s.cache.GetSummary(ctx, campaignID, days, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) && !errors.Is(err, cache.ErrCacheDisabled) {
		logrus.Warnf("Failed to read cached summary: %v", err)
	}

	summary, err := s.buildSummary(ctx, campaignID, days)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetSummary(ctx, campaignID, days, summary, s.config.SummaryCacheTTL); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		logrus.Warnf("Failed to cache summary: %v", err)
	}
	return summary, nil
}

func (s *Service) buildSummary(ctx context.Context, campaignID string, days int) (*Summary, error) {
	now := s.now()
	from := now.UTC().Truncate(day).AddDate(0, 0, -(days - 1))

	daily, err := s.store.ListDailyStats(ctx, campaignID, from)
	if err != nil {
		return nil, err
	}
	trends, err := s.store.ListActiveTrends(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	influencers, err := s.store.ListInfluencers(ctx, campaignID, summaryInfluencers)
	if err != nil {
		return nil, err
	}
	alerts, err := s.store.ListAlerts(ctx, campaignID, false)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		CampaignID:     campaignID,
		Days:           days,
		From:           from,
		PlatformCounts: make(map[models.Platform]int),
		Daily:          daily,
		Trends:         trends,
		TopInfluencers: influencers,
		OpenAlerts:     alerts,
		GeneratedAt:    now,
	}

	var sentimentSum float64
	var sentimentDays int
	for _, d := range daily {
		summary.TotalMentions += d.TotalMentions
		summary.TotalEngagement += d.TotalEngagement
		summary.RelevantCount += d.RelevantCount
		summary.Sentiment.Positive += d.PositiveCount
		summary.Sentiment.Negative += d.NegativeCount
		summary.Sentiment.Neutral += d.NeutralCount
		for p, n := range d.PlatformCounts.Data() {
			summary.PlatformCounts[p] += n
		}
		if d.AvgSentiment != nil {
			sentimentSum += *d.AvgSentiment
			sentimentDays++
		}
	}
	if sentimentDays > 0 {
		avg := sentimentSum / float64(sentimentDays)
		summary.AvgSentiment = &avg
	}
	return summary, nil
}
