package analytics

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/brandpulse/social-listening/internal/config"
	"github.com/brandpulse/social-listening/internal/mentions"
	"github.com/brandpulse/social-listening/internal/models"
)

const day = 24 * time.Hour

// trendWindow returns the window the trend stage scores. The start is
// aligned to a UTC day so reruns on the same day replace the same rows.
func trendWindow(cfg config.AnalyticsConfig, now time.Time) (time.Time, time.Time) {
	start := now.UTC().Truncate(day).AddDate(0, 0, -cfg.TrendWindowDays)
	return start, now
}

// topics returns the lowercased hashtags of a caption plus every campaign
// keyword it contains
func topics(caption string, keywords []string) []string {
	lower := strings.ToLower(caption)
	seen := make(map[string]bool)
	var out []string
	for _, tag := range mentions.ExtractHashtags(lower) {
		if !seen[tag] {
			seen[tag] = true
			out = append(out, tag)
		}
	}
	for _, kw := range keywords {
		if kw != "" && !seen[kw] && strings.Contains(lower, kw) {
			seen[kw] = true
			out = append(out, kw)
		}
	}
	return out
}

type topicStats struct {
	count      int // whole population
	weight     float64
	recent     int
	engagement int64
}

// detectTrends scores every topic of the campaign's mentions. A topic trends
// when its decayed share of the recent window outgrows its smoothed share of
// the whole population.
func detectTrends(campaign *models.Campaign, all []models.Mention, cfg config.AnalyticsConfig, now time.Time) []models.Trend {
	windowStart, windowEnd := trendWindow(cfg, now)

	keywords := make([]string, 0, len(campaign.Keywords))
	for _, kw := range campaign.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	stats := make(map[string]*topicStats)
	var totalWeight float64
	var recentCount int
	var recentEngagement int64

	for i := range all {
		m := &all[i]
		ts := m.Timestamp()
		isRecent := !ts.Before(windowStart) && !ts.After(windowEnd)

		var w float64
		if isRecent {
			ageDays := now.Sub(ts).Hours() / 24
			if ageDays < 0 {
				ageDays = 0
			}
			w = math.Exp(-math.Ln2 * ageDays / cfg.TrendHalfLifeDays)
			totalWeight += w
			recentCount++
			recentEngagement += m.Engagement()
		}

		for _, topic := range topics(m.Caption, keywords) {
			st, ok := stats[topic]
			if !ok {
				st = &topicStats{}
				stats[topic] = st
			}
			st.count++
			if isRecent {
				st.weight += w
				st.recent++
				st.engagement += m.Engagement()
			}
		}
	}

	if recentCount == 0 || totalWeight == 0 {
		return []models.Trend{}
	}

	population := float64(len(all) + len(stats))
	meanEngagement := float64(recentEngagement) / float64(recentCount)

	var trends []models.Trend
	for topic, st := range stats {
		if st.recent < cfg.TrendMinMentions || st.recent == 0 {
			continue
		}
		recentShare := st.weight / totalWeight
		baselineShare := float64(st.count+1) / population
		growth := recentShare / baselineShare
		if growth < cfg.TrendMinGrowth {
			continue
		}

		topicEngagement := float64(st.engagement) / float64(st.recent)
		lift := (topicEngagement + 1) / (meanEngagement + 1)
		n := float64(st.recent)

		trends = append(trends, models.Trend{
			CampaignID:   campaign.ID,
			Topic:        topic,
			WindowStart:  windowStart,
			WindowEnd:    windowEnd,
			MentionCount: st.recent,
			Engagement:   st.engagement,
			GrowthRate:   growth,
			Strength:     growth * math.Sqrt(lift),
			Confidence:   n / (n + 5),
			IsActive:     true,
			CreatedAt:    now,
		})
	}

	sort.Slice(trends, func(i, j int) bool {
		if trends[i].Strength != trends[j].Strength {
			return trends[i].Strength > trends[j].Strength
		}
		return trends[i].Topic < trends[j].Topic
	})
	if cfg.TrendLimit > 0 && len(trends) > cfg.TrendLimit {
		trends = trends[:cfg.TrendLimit]
	}
	for i := range trends {
		trends[i].Rank = i + 1
	}
	if trends == nil {
		trends = []models.Trend{}
	}
	return trends
}
