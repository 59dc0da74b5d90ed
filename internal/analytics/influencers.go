package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/brandpulse/social-listening/internal/models"
)

const (
	reachWeight      = 0.35
	relevanceWeight  = 0.25
	engagementWeight = 0.30
	trustWeight      = 0.10

	// engagement rate that earns the full engagement component
	fullEngagementRate = 0.10
)

type authorKey struct {
	platform models.Platform
	username string
}

type authorAcc struct {
	inf        models.Influencer
	relevant   int
	sentiment  float64
	classified int
}

// authorProfile reads follower count and verification from the platform payload
func authorProfile(m *models.Mention) (followers int64, verified bool) {
	payload, err := m.Payload()
	if err != nil || payload == nil {
		return 0, false
	}
	switch p := payload.(type) {
	case *models.InstagramData:
		return p.OwnerFollowers, p.OwnerVerified
	case *models.TikTokData:
		return p.FollowerCount, p.AuthorVerified
	}
	return 0, false
}

// scoreInfluencers ranks every author of the campaign's mentions
func scoreInfluencers(campaignID string, all []models.Mention, now time.Time) []models.Influencer {
	authors := make(map[authorKey]*authorAcc)
	var order []authorKey
	var campaignEngagement int64

	for i := range all {
		m := &all[i]
		campaignEngagement += m.Engagement()
		if m.AuthorUsername == "" {
			continue
		}

		key := authorKey{m.Platform, m.AuthorUsername}
		a, ok := authors[key]
		if !ok {
			a = &authorAcc{inf: models.Influencer{
				CampaignID:     campaignID,
				Platform:       m.Platform,
				AuthorUsername: m.AuthorUsername,
			}}
			authors[key] = a
			order = append(order, key)
		}

		inf := &a.inf
		inf.MentionCount++
		inf.TotalEngagement += m.Engagement()
		if m.AuthorID != "" {
			inf.AuthorID = m.AuthorID
		}
		followers, verified := authorProfile(m)
		if followers > inf.FollowerCount {
			inf.FollowerCount = followers
		}
		inf.Verified = inf.Verified || verified

		if m.IsRelevant != nil && *m.IsRelevant {
			a.relevant++
		}
		if m.SentimentScore != nil {
			a.sentiment += *m.SentimentScore
			a.classified++
		}
	}

	if len(authors) == 0 {
		return []models.Influencer{}
	}
	campaignAvg := float64(campaignEngagement) / float64(len(all))

	out := make([]models.Influencer, 0, len(authors))
	for _, key := range order {
		a := authors[key]
		inf := a.inf
		avgEngagement := float64(inf.TotalEngagement) / float64(inf.MentionCount)

		var rate float64
		switch {
		case inf.FollowerCount > 0:
			rate = avgEngagement / float64(inf.FollowerCount)
		case campaignAvg > 0:
			rate = avgEngagement / campaignAvg / 10
		}

		reach := math.Min(1, math.Log10(float64(inf.FollowerCount)+1)/7)
		relevance := float64(a.relevant) / float64(inf.MentionCount)
		engagement := math.Min(1, rate/fullEngagementRate)
		var trust float64
		if inf.Verified {
			trust = 1
		}

		inf.EngagementRate = rate
		inf.RelevanceRatio = relevance
		inf.Score = 100 * (reachWeight*reach + relevanceWeight*relevance + engagementWeight*engagement + trustWeight*trust)
		if a.classified > 0 {
			avg := a.sentiment / float64(a.classified)
			inf.AvgSentiment = &avg
		}
		inf.UpdatedAt = now
		out = append(out, inf)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].MentionCount != out[j].MentionCount {
			return out[i].MentionCount > out[j].MentionCount
		}
		return out[i].AuthorUsername < out[j].AuthorUsername
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
