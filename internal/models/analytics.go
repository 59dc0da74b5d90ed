package models

import (
	"time"

	"gorm.io/datatypes"
)

// DailyStat aggregates a campaign's mentions for one UTC calendar day
type DailyStat struct {
	ID              uint                                 `gorm:"primaryKey" json:"-"`
	CampaignID      string                               `gorm:"type:uuid;not null;uniqueIndex:idx_daily_stats_day,priority:1" json:"campaign_id"`
	Date            time.Time                            `gorm:"type:date;not null;uniqueIndex:idx_daily_stats_day,priority:2" json:"date"`
	TotalMentions   int                                  `json:"total_mentions"`
	TotalLikes      int64                                `json:"total_likes"`
	TotalComments   int64                                `json:"total_comments"`
	TotalShares     int64                                `json:"total_shares"`
	TotalViews      int64                                `json:"total_views"`
	TotalEngagement int64                                `json:"total_engagement"`
	AvgEngagement   float64                              `json:"avg_engagement"`
	AvgLikes        float64                              `json:"avg_likes"`
	AvgComments     float64                              `json:"avg_comments"`
	PositiveCount   int                                  `json:"positive_count"`
	NegativeCount   int                                  `json:"negative_count"`
	NeutralCount    int                                  `json:"neutral_count"`
	AvgSentiment    *float64                             `json:"avg_sentiment"`
	RelevantCount   int                                  `json:"relevant_count"`
	PlatformCounts  datatypes.JSONType[map[Platform]int] `json:"platform_counts"`
	UpdatedAt       time.Time                            `json:"updated_at"`
}

// TableName specifies the table name for DailyStat
func (DailyStat) TableName() string {
	return "daily_stats"
}

// ClassifiedCount is the number of mentions that carry a sentiment label
func (d *DailyStat) ClassifiedCount() int {
	return d.PositiveCount + d.NegativeCount + d.NeutralCount
}

// Trend is a time-windowed signal that a topic is spiking
type Trend struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	CampaignID   string    `gorm:"type:uuid;not null;uniqueIndex:idx_trends_window,priority:1" json:"campaign_id"`
	Topic        string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_trends_window,priority:2" json:"topic"`
	WindowStart  time.Time `gorm:"not null;uniqueIndex:idx_trends_window,priority:3" json:"window_start"`
	WindowEnd    time.Time `gorm:"not null" json:"window_end"`
	MentionCount int       `json:"mention_count"`
	Engagement   int64     `json:"engagement"`
	GrowthRate   float64   `json:"growth_rate"`
	Strength     float64   `json:"strength"`
	Confidence   float64   `json:"confidence"`
	Rank         int       `json:"rank"`
	IsActive     bool      `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName specifies the table name for Trend
func (Trend) TableName() string {
	return "trends"
}

// Influencer is a ranked author within a campaign's mentions
type Influencer struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	CampaignID      string    `gorm:"type:uuid;not null;uniqueIndex:idx_influencers_author,priority:1" json:"campaign_id"`
	Platform        Platform  `gorm:"type:varchar(32);not null;uniqueIndex:idx_influencers_author,priority:2" json:"platform"`
	AuthorUsername  string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_influencers_author,priority:3" json:"author_username"`
	AuthorID        string    `gorm:"type:varchar(128)" json:"author_id"`
	FollowerCount   int64     `json:"follower_count"`
	MentionCount    int       `json:"mention_count"`
	TotalEngagement int64     `json:"total_engagement"`
	EngagementRate  float64   `json:"engagement_rate"`
	RelevanceRatio  float64   `json:"relevance_ratio"`
	Verified        bool      `json:"verified"`
	AvgSentiment    *float64  `json:"avg_sentiment"`
	Score           float64   `json:"score"`
	Rank            int       `json:"rank"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName specifies the table name for Influencer
func (Influencer) TableName() string {
	return "influencers"
}

// Alert types
const (
	AlertNegativeSentiment = "negative_sentiment"
	AlertSentimentDrop     = "sentiment_drop"
	AlertVolumeSpike       = "volume_spike"
	AlertTrendSpike        = "trend_spike"
	AlertInfluencer        = "influencer_detected"
)

// Alert severities
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is a threshold breach detected by the analytics pipeline. At most one
// undismissed alert exists per (CampaignID, ConditionKey).
type Alert struct {
	ID           string     `gorm:"type:uuid;primaryKey" json:"id"`
	CampaignID   string     `gorm:"type:uuid;not null;index:idx_alerts_condition,priority:1" json:"campaign_id"`
	Type         string     `gorm:"type:varchar(32);not null" json:"type"`
	Severity     string     `gorm:"type:varchar(16);not null" json:"severity"`
	Title        string     `gorm:"type:varchar(255)" json:"title"`
	Message      string     `gorm:"type:text" json:"message"`
	ConditionKey string     `gorm:"type:varchar(255);not null;index:idx_alerts_condition,priority:2" json:"condition_key"`
	Value        float64    `json:"value"`
	Threshold    float64    `json:"threshold"`
	IsRead       bool       `gorm:"not null;default:false" json:"is_read"`
	IsDismissed  bool       `gorm:"not null;default:false" json:"is_dismissed"`
	CreatedAt    time.Time  `json:"created_at"`
	DismissedAt  *time.Time `json:"dismissed_at,omitempty"`
}

// TableName specifies the table name for Alert
func (Alert) TableName() string {
	return "alerts"
}
