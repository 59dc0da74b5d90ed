package analytics

import (
	"fmt"
	"time"

	"github.com/brandpulse/social-listening/internal/config"
	"github.com/brandpulse/social-listening/internal/models"
	"github.com/google/uuid"
)

const trailingDays = 7

type alertInputs struct {
	daily       []models.DailyStat // ascending by date
	trends      []models.Trend
	influencers []models.Influencer
}

func newAlert(campaignID, kind, severity, key, title, message string, value, threshold float64, now time.Time) models.Alert {
	return models.Alert{
		ID:           uuid.NewString(),
		CampaignID:   campaignID,
		Type:         kind,
		Severity:     severity,
		Title:        title,
		Message:      message,
		ConditionKey: key,
		Value:        value,
		Threshold:    threshold,
		CreatedAt:    now,
	}
}

// evaluateAlerts returns one alert per breached condition. Condition keys
// identify the breach so a rerun yields the same keys.
func evaluateAlerts(campaignID string, in alertInputs, cfg config.AnalyticsConfig, now time.Time) []models.Alert {
	var alerts []models.Alert

	if n := len(in.daily); n > 0 {
		latest := in.daily[n-1]
		date := latest.Date.Format("2006-01-02")

		if classified := latest.ClassifiedCount(); classified > 0 && classified >= cfg.AlertMinDailyVolume {
			ratio := float64(latest.NegativeCount) / float64(classified)
			if ratio >= cfg.AlertNegativeRatio {
				severity := models.SeverityWarning
				if ratio >= 1.5*cfg.AlertNegativeRatio {
					severity = models.SeverityCritical
				}
				alerts = append(alerts, newAlert(campaignID, models.AlertNegativeSentiment, severity,
					"negative_sentiment:"+date,
					"High share of negative mentions",
					fmt.Sprintf("%.0f%% of %d classified mentions on %s are negative", ratio*100, classified, date),
					ratio, cfg.AlertNegativeRatio, now))
			}
		}

		if latest.AvgSentiment != nil && *latest.AvgSentiment < cfg.AlertSentimentFloor {
			alerts = append(alerts, newAlert(campaignID, models.AlertSentimentDrop, models.SeverityWarning,
				"sentiment_drop:"+date,
				"Average sentiment dropped",
				fmt.Sprintf("Average sentiment on %s is %.2f", date, *latest.AvgSentiment),
				*latest.AvgSentiment, cfg.AlertSentimentFloor, now))
		}

		if mean := trailingMean(in.daily, latest.Date); mean > 0 && latest.TotalMentions >= cfg.AlertMinDailyVolume {
			spike := float64(latest.TotalMentions) / mean
			if spike >= cfg.AlertVolumeSpike {
				alerts = append(alerts, newAlert(campaignID, models.AlertVolumeSpike, models.SeverityWarning,
					"volume_spike:"+date,
					"Mention volume spike",
					fmt.Sprintf("%d mentions on %s vs %.1f trailing daily average", latest.TotalMentions, date, mean),
					spike, cfg.AlertVolumeSpike, now))
			}
		}
	}

	for _, t := range in.trends {
		if t.Strength <= cfg.AlertTrendStrength {
			continue
		}
		alerts = append(alerts, newAlert(campaignID, models.AlertTrendSpike, models.SeverityInfo,
			fmt.Sprintf("trend:%s:%s", t.Topic, t.WindowStart.Format("2006-01-02")),
			fmt.Sprintf("Trending topic %s", t.Topic),
			fmt.Sprintf("%s appears in %d recent mentions with %.1fx growth", t.Topic, t.MentionCount, t.GrowthRate),
			t.Strength, cfg.AlertTrendStrength, now))
	}

	for _, inf := range in.influencers {
		if inf.Score <= cfg.AlertInfluencerScore {
			continue
		}
		alerts = append(alerts, newAlert(campaignID, models.AlertInfluencer, models.SeverityInfo,
			fmt.Sprintf("influencer:%s:%s", inf.Platform, inf.AuthorUsername),
			fmt.Sprintf("Influencer @%s is talking about the campaign", inf.AuthorUsername),
			fmt.Sprintf("@%s on %s scored %.0f across %d mentions", inf.AuthorUsername, inf.Platform, inf.Score, inf.MentionCount),
			inf.Score, cfg.AlertInfluencerScore, now))
	}

	return alerts
}

// trailingMean averages mention volume over the days before latest. Days
// without a row count as zero.
func trailingMean(daily []models.DailyStat, latest time.Time) float64 {
	from := latest.AddDate(0, 0, -trailingDays)
	total := 0
	for _, s := range daily {
		if !s.Date.Before(from) && s.Date.Before(latest) {
			total += s.TotalMentions
		}
	}
	return float64(total) / trailingDays
}

// filterOpen drops alerts whose condition already has an open alert
func filterOpen(alerts []models.Alert, open map[string]bool) []models.Alert {
	out := make([]models.Alert, 0, len(alerts))
	for _, a := range alerts {
		if open[a.ConditionKey] {
			continue
		}
		open[a.ConditionKey] = true
		out = append(out, a)
	}
	return out
}
