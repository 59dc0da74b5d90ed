package analytics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brandpulse/social-listening/internal/cache"
	"github.com/brandpulse/social-listening/internal/config"
	"github.com/brandpulse/social-listening/internal/models"
	"github.com/brandpulse/social-listening/internal/storage"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendAlerts(ctx context.Context, campaign *models.Campaign, alerts []models.Alert) error {
	args := m.Called(ctx, campaign, alerts)
	return args.Error(0)
}

func testConfig() *config.Config {
	return &config.Config{Analytics: config.DefaultAnalyticsConfig(), SummaryCacheTTL: time.Minute}
}

func campaign(id, userID string, active bool) *models.Campaign {
	return &models.Campaign{
		ID:       id,
		UserID:   userID,
		Name:     "Campaign " + id,
		Keywords: datatypes.JSONSlice[string]{"Acme"},
		Platforms: datatypes.NewJSONType(models.PlatformSettings{
			models.PlatformInstagram: {Enabled: true},
		}),
		IsActive: active,
	}
}

func mention(campaignID, id string, ts time.Time, caption string) models.Mention {
	return models.Mention{
		ID:             id,
		CampaignID:     campaignID,
		Platform:       models.PlatformInstagram,
		PlatformID:     id,
		AuthorUsername: "author-" + id,
		Caption:        caption,
		PostTimestamp:  ts,
		CreatedAt:      ts,
	}
}

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool      { return &b }

// trendFixture: 20 old "#old" mentions, 6 recent "#launch" mentions and 2
// recent "#tiny" mentions
func trendFixture(campaignID string) []models.Mention {
	var out []models.Mention
	for i := 0; i < 20; i++ {
		out = append(out, mention(campaignID, fmt.Sprintf("old-%d", i), now.AddDate(0, 0, -30), "classic #old"))
	}
	for i := 0; i < 6; i++ {
		out = append(out, mention(campaignID, fmt.Sprintf("launch-%d", i), now.Add(-2*time.Hour), "new drop #launch"))
	}
	for i := 0; i < 2; i++ {
		out = append(out, mention(campaignID, fmt.Sprintf("tiny-%d", i), now.Add(-2*time.Hour), "side note #tiny"))
	}
	return out
}

func TestComputeDailyStats(t *testing.T) {
	d1 := time.Date(2026, 5, 8, 23, 30, 0, 0, time.UTC)
	d2 := time.Date(2026, 5, 9, 0, 30, 0, 0, time.UTC)

	a := mention("c1", "a", d1, "x")
	a.Likes, a.Comments, a.Shares, a.Views = 10, 2, 1, 100
	a.SentimentLabel, a.SentimentScore, a.IsRelevant = strPtr(models.SentimentPositive), f64Ptr(0.8), boolPtr(true)

	b := mention("c1", "b", d2, "y")
	b.Likes = 4
	b.SentimentLabel, b.SentimentScore, b.IsRelevant = strPtr(models.SentimentNegative), f64Ptr(-0.6), boolPtr(false)

	c := mention("c1", "c", time.Time{}, "z")
	c.CreatedAt = d2.Add(time.Hour)
	c.Platform = models.PlatformTikTok
	c.Likes = 6

	stats := computeDailyStats("c1", []models.Mention{b, a, c}, now)
	require.Len(t, stats, 2)

	first := stats[0]
	assert.Equal(t, time.Date(2026, 5, 8, 0, 0, 0, 0, time.UTC), first.Date)
	assert.Equal(t, 1, first.TotalMentions)
	assert.Equal(t, int64(13), first.TotalEngagement)
	assert.Equal(t, int64(100), first.TotalViews)
	assert.Equal(t, 1, first.PositiveCount)
	assert.Equal(t, 1, first.RelevantCount)
	require.NotNil(t, first.AvgSentiment)
	assert.InDelta(t, 0.8, *first.AvgSentiment, 1e-9)

	second := stats[1]
	assert.Equal(t, 2, second.TotalMentions)
	assert.Equal(t, int64(10), second.TotalEngagement)
	assert.InDelta(t, 5.0, second.AvgEngagement, 1e-9)
	assert.Equal(t, 1, second.NegativeCount)
	assert.Equal(t, 1, second.ClassifiedCount())
	assert.Equal(t, 0, second.RelevantCount)
	assert.Equal(t, map[models.Platform]int{models.PlatformInstagram: 1, models.PlatformTikTok: 1}, second.PlatformCounts.Data())
	require.NotNil(t, second.AvgSentiment)
	assert.InDelta(t, -0.6, *second.AvgSentiment, 1e-9)
}

func TestDetectTrends(t *testing.T) {
	cfg := config.DefaultAnalyticsConfig()
	trends := detectTrends(campaign("c1", "u1", true), trendFixture("c1"), cfg, now)

	require.Len(t, trends, 1)
	tr := trends[0]
	assert.Equal(t, "#launch", tr.Topic)
	assert.Equal(t, 6, tr.MentionCount)
	assert.Equal(t, 1, tr.Rank)
	assert.True(t, tr.IsActive)
	// recent share 6/8 over baseline (6+1)/(28+3)
	assert.InDelta(t, 0.75*31/7, tr.GrowthRate, 1e-9)
	assert.InDelta(t, tr.GrowthRate, tr.Strength, 1e-9)
	assert.InDelta(t, 6.0/11.0, tr.Confidence, 1e-9)
	assert.Equal(t, time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC), tr.WindowStart)
	assert.Equal(t, now, tr.WindowEnd)
}

func TestDetectTrends_KeywordsAndDecay(t *testing.T) {
	cfg := config.DefaultAnalyticsConfig()
	cfg.TrendMinGrowth = 0

	all := []models.Mention{
		mention("c1", "1", now.Add(-time.Hour), "ACME shoes"),
		mention("c1", "2", now.Add(-time.Hour), "love acme"),
		mention("c1", "3", now.Add(-time.Hour), "acme again"),
		mention("c1", "4", now.AddDate(0, 0, -4), "#fresh #fresh"),
		mention("c1", "5", now.AddDate(0, 0, -4), "#fresh"),
		mention("c1", "6", now.AddDate(0, 0, -4), "#fresh"),
	}
	trends := detectTrends(campaign("c1", "u1", true), all, cfg, now)
	require.Len(t, trends, 2)

	// same counts, but the keyword mentions are fresher so they weigh more
	assert.Equal(t, "acme", trends[0].Topic)
	assert.Equal(t, "#fresh", trends[1].Topic)
	assert.Greater(t, trends[0].GrowthRate, trends[1].GrowthRate)
}

func TestDetectTrends_NoRecentMentions(t *testing.T) {
	old := []models.Mention{mention("c1", "1", now.AddDate(0, -2, 0), "#gone")}
	assert.Empty(t, detectTrends(campaign("c1", "u1", true), old, config.DefaultAnalyticsConfig(), now))
	assert.Empty(t, detectTrends(campaign("c1", "u1", true), nil, config.DefaultAnalyticsConfig(), now))
}

func TestScoreInfluencers(t *testing.T) {
	star := mention("c1", "star", now, "acme")
	star.AuthorUsername = "bigstar"
	star.Likes = 50000
	star.IsRelevant = boolPtr(true)
	require.NoError(t, star.SetPayload(&models.InstagramData{OwnerFollowers: 1000000, OwnerVerified: true}))

	small := mention("c1", "small", now, "acme")
	small.AuthorUsername = "smallfry"
	small.Likes = 10

	anon := mention("c1", "anon", now, "acme")
	anon.AuthorUsername = ""

	out := scoreInfluencers("c1", []models.Mention{small, star, anon}, now)
	require.Len(t, out, 2)

	top := out[0]
	assert.Equal(t, "bigstar", top.AuthorUsername)
	assert.Equal(t, 1, top.Rank)
	assert.Equal(t, int64(1000000), top.FollowerCount)
	assert.True(t, top.Verified)
	assert.InDelta(t, 0.05, top.EngagementRate, 1e-9)
	assert.InDelta(t, 1.0, top.RelevanceRatio, 1e-9)
	// 0.35*reach(~0.857) + 0.25 + 0.30*0.5 + 0.10
	assert.InDelta(t, 80.0, top.Score, 0.01)

	assert.Equal(t, "smallfry", out[1].AuthorUsername)
	assert.Equal(t, 2, out[1].Rank)
	assert.Less(t, out[1].Score, 1.0)
}

func TestEvaluateAlerts(t *testing.T) {
	cfg := config.DefaultAnalyticsConfig()
	latestDay := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)

	var daily []models.DailyStat
	for i := 7; i >= 1; i-- {
		daily = append(daily, models.DailyStat{CampaignID: "c1", Date: latestDay.AddDate(0, 0, -i), TotalMentions: 2})
	}
	daily = append(daily, models.DailyStat{
		CampaignID:    "c1",
		Date:          latestDay,
		TotalMentions: 10,
		PositiveCount: 1,
		NegativeCount: 7,
		NeutralCount:  2,
		AvgSentiment:  f64Ptr(-0.5),
	})

	in := alertInputs{
		daily:       daily,
		trends:      []models.Trend{{Topic: "#launch", Strength: 4, GrowthRate: 4, MentionCount: 6, WindowStart: time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)}, {Topic: "#meh", Strength: 2}},
		influencers: []models.Influencer{{Platform: models.PlatformTikTok, AuthorUsername: "bigstar", Score: 85, MentionCount: 3}, {AuthorUsername: "small", Score: 20}},
	}

	alerts := evaluateAlerts("c1", in, cfg, now)
	keys := make(map[string]models.Alert)
	for _, a := range alerts {
		keys[a.ConditionKey] = a
		assert.NotEmpty(t, a.ID)
		assert.Equal(t, "c1", a.CampaignID)
	}

	require.Len(t, alerts, 5)
	assert.Equal(t, models.SeverityCritical, keys["negative_sentiment:2026-05-10"].Severity)
	assert.InDelta(t, 0.7, keys["negative_sentiment:2026-05-10"].Value, 1e-9)
	assert.Contains(t, keys, "sentiment_drop:2026-05-10")
	assert.InDelta(t, 5.0, keys["volume_spike:2026-05-10"].Value, 1e-9)
	assert.Contains(t, keys, "trend:#launch:2026-05-03")
	assert.Equal(t, models.AlertInfluencer, keys["influencer:tiktok:bigstar"].Type)
}

func TestEvaluateAlerts_BelowThresholds(t *testing.T) {
	cfg := config.DefaultAnalyticsConfig()
	in := alertInputs{daily: []models.DailyStat{{
		Date:          now.Truncate(day),
		TotalMentions: 3,
		NegativeCount: 3,
		AvgSentiment:  f64Ptr(0.1),
	}}}
	// three negatives are below the minimum daily volume of five
	assert.Empty(t, evaluateAlerts("c1", in, cfg, now))
	assert.Empty(t, evaluateAlerts("c1", alertInputs{}, cfg, now))
}

func newService(t *testing.T, store storage.Store, notifier *MockNotifier) *Service {
	t.Helper()
	svc := NewService(testConfig(), store, notifier, nil)
	svc.now = func() time.Time { return now }
	return svc
}

func seed(t *testing.T, store *storage.MemoryStore, c *models.Campaign, mentions []models.Mention) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateCampaign(ctx, c))
	if len(mentions) > 0 {
		_, err := store.InsertMentions(ctx, mentions)
		require.NoError(t, err)
	}
}

func TestRunAnalytics_IdempotentAndDeduplicatesAlerts(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	seed(t, store, campaign("c1", "u1", true), trendFixture("c1"))

	notifier := &MockNotifier{}
	notifier.On("SendAlerts", mock.Anything, mock.Anything, mock.MatchedBy(func(alerts []models.Alert) bool {
		return len(alerts) == 1 && alerts[0].Type == models.AlertTrendSpike
	})).Return(nil).Once()
	svc := newService(t, store, notifier)

	first, err := svc.RunAnalytics(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Empty(t, first.Errors)
	require.Len(t, first.Stages, 4)
	assert.Equal(t, StageResult{Name: StageDaily, Success: true, ItemCount: 2}, first.Stages[0])
	assert.Equal(t, StageResult{Name: StageTrends, Success: true, ItemCount: 1}, first.Stages[1])
	assert.Equal(t, StageResult{Name: StageInfluencers, Success: true, ItemCount: 28}, first.Stages[2])
	assert.Equal(t, StageResult{Name: StageAlerts, Success: true, ItemCount: 1}, first.Stages[3])

	dailyBefore, err := store.ListDailyStats(ctx, "c1", time.Time{})
	require.NoError(t, err)
	trendsBefore, err := store.ListActiveTrends(ctx, "c1")
	require.NoError(t, err)

	second, err := svc.RunAnalytics(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, 0, second.Stages[3].ItemCount)

	dailyAfter, err := store.ListDailyStats(ctx, "c1", time.Time{})
	require.NoError(t, err)
	trendsAfter, err := store.ListActiveTrends(ctx, "c1")
	require.NoError(t, err)

	require.Len(t, dailyAfter, len(dailyBefore))
	for i := range dailyBefore {
		assert.Equal(t, dailyBefore[i].Date, dailyAfter[i].Date)
		assert.Equal(t, dailyBefore[i].TotalMentions, dailyAfter[i].TotalMentions)
		assert.Equal(t, dailyBefore[i].TotalEngagement, dailyAfter[i].TotalEngagement)
	}
	require.Len(t, trendsAfter, len(trendsBefore))
	assert.Equal(t, trendsBefore[0].Topic, trendsAfter[0].Topic)
	assert.InDelta(t, trendsBefore[0].Strength, trendsAfter[0].Strength, 1e-9)

	alerts, err := store.ListAlerts(ctx, "c1", true)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
	notifier.AssertExpectations(t)
}

// staleAlertStore reports no open alerts, as if another run opened them
// after the keys were read
type staleAlertStore struct {
	*storage.MemoryStore
}

func (s staleAlertStore) OpenAlertKeys(ctx context.Context, campaignID string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func TestRunAnalytics_NotifiesOnlyInsertedAlerts(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	seed(t, mem, campaign("c1", "u1", true), trendFixture("c1"))

	first := &MockNotifier{}
	first.On("SendAlerts", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	_, err := newService(t, mem, first).RunAnalytics(ctx, "c1")
	require.NoError(t, err)
	first.AssertExpectations(t)

	racing := &MockNotifier{}
	racing.On("SendAlerts", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	res, err := newService(t, staleAlertStore{mem}, racing).RunAnalytics(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, res.Stages[3].Success)
	assert.Equal(t, 0, res.Stages[3].ItemCount)
	racing.AssertNotCalled(t, "SendAlerts", mock.Anything, mock.Anything, mock.Anything)

	alerts, err := mem.ListAlerts(ctx, "c1", true)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestRunAnalytics_ZeroMentions(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, campaign("c1", "u1", true), nil)

	res, err := newService(t, store, &MockNotifier{}).RunAnalytics(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	for _, st := range res.Stages {
		assert.True(t, st.Success, st.Name)
		assert.Equal(t, 0, st.ItemCount, st.Name)
	}
}

type failingTrendStore struct {
	*storage.MemoryStore
}

func (s failingTrendStore) ReplaceTrends(ctx context.Context, campaignID string, windowStart time.Time, trends []models.Trend) error {
	return errors.New("disk full")
}

func TestRunAnalytics_StageFailureIsIsolated(t *testing.T) {
	mem := storage.NewMemoryStore()
	seed(t, mem, campaign("c1", "u1", true), trendFixture("c1"))

	res, err := newService(t, failingTrendStore{mem}, &MockNotifier{}).RunAnalytics(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, []string{"trends: failed to store trends: disk full"}, res.Errors)
	assert.True(t, res.Stages[0].Success)
	assert.False(t, res.Stages[1].Success)
	assert.True(t, res.Stages[2].Success)
	assert.True(t, res.Stages[3].Success)
}

func TestRunAnalytics_CampaignNotFound(t *testing.T) {
	_, err := newService(t, storage.NewMemoryStore(), &MockNotifier{}).RunAnalytics(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunAnalyticsForAllCampaigns(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, campaign("c1", "u1", true), nil)
	seed(t, store, campaign("c2", "u1", true), nil)
	seed(t, store, campaign("c3", "u1", false), nil)
	seed(t, store, campaign("c4", "u2", true), nil)

	svc := newService(t, store, &MockNotifier{})

	batch, err := svc.RunAnalyticsForAllCampaigns(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Campaigns)
	assert.Equal(t, 2, batch.Succeeded)
	assert.Len(t, batch.Results, 2)

	all, err := svc.RunAnalyticsForAllCampaigns(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, all.Campaigns)
}

func TestGetSummary_CachedAndInvalidated(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	seed(t, store, campaign("c1", "u1", true), trendFixture("c1"))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	notifier := &MockNotifier{}
	notifier.On("SendAlerts", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	svc := NewService(testConfig(), store, notifier, cache.NewWithClient(client))
	svc.now = func() time.Time { return now }

	_, err := svc.RunAnalytics(ctx, "c1")
	require.NoError(t, err)

	summary, err := svc.GetSummary(ctx, "c1", 7)
	require.NoError(t, err)
	assert.Equal(t, 8, summary.TotalMentions)
	assert.Equal(t, 8, summary.PlatformCounts[models.PlatformInstagram])
	assert.Len(t, summary.Trends, 1)
	assert.Len(t, summary.OpenAlerts, 1)
	assert.Len(t, summary.Daily, 1)

	// new mentions are invisible until the next analytics run
	_, err = store.InsertMentions(ctx, []models.Mention{mention("c1", "late", now.Add(-time.Hour), "#launch")})
	require.NoError(t, err)
	cached, err := svc.GetSummary(ctx, "c1", 7)
	require.NoError(t, err)
	assert.Equal(t, 8, cached.TotalMentions)

	_, err = svc.RunAnalytics(ctx, "c1")
	require.NoError(t, err)
	fresh, err := svc.GetSummary(ctx, "c1", 7)
	require.NoError(t, err)
	assert.Equal(t, 9, fresh.TotalMentions)

	wide, err := svc.GetSummary(ctx, "c1", 60)
	require.NoError(t, err)
	assert.Equal(t, 29, wide.TotalMentions)

	_, err = svc.GetSummary(ctx, "missing", 7)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
