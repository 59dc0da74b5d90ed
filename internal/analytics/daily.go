package analytics

import (
	"sort"
	"time"

	"github.com/brandpulse/social-listening/internal/models"
	"gorm.io/datatypes"
)

// computeDailyStats groups mentions by UTC publication day
func computeDailyStats(campaignID string, mentions []models.Mention, now time.Time) []models.DailyStat {
	type acc struct {
		stat       models.DailyStat
		platforms  map[models.Platform]int
		sentiment  float64
		classified int
	}

	days := make(map[time.Time]*acc)
	for i := range mentions {
		m := &mentions[i]
		day := m.Day()
		a, ok := days[day]
		if !ok {
			a = &acc{
				stat:      models.DailyStat{CampaignID: campaignID, Date: day},
				platforms: make(map[models.Platform]int),
			}
			days[day] = a
		}

		s := &a.stat
		s.TotalMentions++
		s.TotalLikes += m.Likes
		s.TotalComments += m.Comments
		s.TotalShares += m.Shares
		s.TotalViews += m.Views
		s.TotalEngagement += m.Engagement()
		a.platforms[m.Platform]++

		if m.SentimentLabel != nil {
			switch *m.SentimentLabel {
			case models.SentimentPositive:
				s.PositiveCount++
			case models.SentimentNegative:
				s.NegativeCount++
			default:
				s.NeutralCount++
			}
		}
		if m.SentimentScore != nil {
			a.sentiment += *m.SentimentScore
			a.classified++
		}
		if m.IsRelevant != nil && *m.IsRelevant {
			s.RelevantCount++
		}
	}

	stats := make([]models.DailyStat, 0, len(days))
	for _, a := range days {
		s := a.stat
		n := float64(s.TotalMentions)
		s.AvgEngagement = float64(s.TotalEngagement) / n
		s.AvgLikes = float64(s.TotalLikes) / n
		s.AvgComments = float64(s.TotalComments) / n
		if a.classified > 0 {
			avg := a.sentiment / float64(a.classified)
			s.AvgSentiment = &avg
		}
		s.PlatformCounts = datatypes.NewJSONType(a.platforms)
		s.UpdatedAt = now
		stats = append(stats, s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Date.Before(stats[j].Date) })
	return stats
}
