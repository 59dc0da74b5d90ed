package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Sentiment labels written by the classification process
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// Mention is one normalized piece of scraped content. (CampaignID, Platform,
// PlatformID) is unique.
type Mention struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	CampaignID     string    `gorm:"type:uuid;not null;uniqueIndex:idx_mentions_item,priority:1" json:"campaign_id"`
	ScrapeJobID    string    `gorm:"type:uuid;index" json:"scrape_job_id"`
	Platform       Platform  `gorm:"type:varchar(32);not null;uniqueIndex:idx_mentions_item,priority:2" json:"platform"`
	PlatformID     string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_mentions_item,priority:3" json:"platform_id"`
	PostURL        string    `gorm:"type:text" json:"post_url"`
	AuthorUsername string    `gorm:"type:varchar(255);index" json:"author_username"`
	AuthorID       string    `gorm:"type:varchar(128)" json:"author_id"`
	Caption        string    `gorm:"type:text" json:"caption"`
	PostTimestamp  time.Time `gorm:"index" json:"post_timestamp"`
	Likes          int64     `gorm:"not null;default:0" json:"likes"`
	Comments       int64     `gorm:"not null;default:0" json:"comments"`
	Shares         int64     `gorm:"not null;default:0" json:"shares"`
	Views          int64     `gorm:"not null;default:0" json:"views"`

	// Written by the classification process, never by the scrape pipeline
	SentimentLabel      *string  `gorm:"type:varchar(16)" json:"sentiment_label"`
	SentimentScore      *float64 `json:"sentiment_score"`
	IsRelevant          *bool    `json:"is_relevant"`
	RelevanceConfidence *float64 `json:"relevance_confidence"`

	InstagramData datatypes.JSON `gorm:"column:instagram_data" json:"instagram_data,omitempty"`
	TikTokData    datatypes.JSON `gorm:"column:tiktok_data" json:"tiktok_data,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for Mention
func (Mention) TableName() string {
	return "mentions"
}

// SetPayload stores p in the slot for its platform and clears the other slot
func (m *Mention) SetPayload(p PlatformPayload) error {
	if p == nil {
		m.InstagramData, m.TikTokData = nil, nil
		return nil
	}
	if p.Platform() != m.Platform {
		return fmt.Errorf("payload for %s on %s mention", p.Platform(), m.Platform)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", p.Platform(), err)
	}

	switch p.(type) {
	case *InstagramData:
		m.InstagramData, m.TikTokData = data, nil
	case *TikTokData:
		m.InstagramData, m.TikTokData = nil, data
	}
	return nil
}

// Payload decodes the platform-specific data. It returns nil, nil when the
// slot is empty.
func (m *Mention) Payload() (PlatformPayload, error) {
	var data []byte
	switch m.Platform {
	case PlatformInstagram:
		data = m.InstagramData
	case PlatformTikTok:
		data = m.TikTokData
	}
	if len(data) == 0 {
		return nil, nil
	}
	return decodePayload(m.Platform, data)
}

// Engagement is likes + comments + shares
func (m *Mention) Engagement() int64 {
	return m.Likes + m.Comments + m.Shares
}

// Day returns the UTC calendar day the content was published on, falling
// back to the time it was stored.
func (m *Mention) Day() time.Time {
	ts := m.PostTimestamp
	if ts.IsZero() {
		ts = m.CreatedAt
	}
	return ts.UTC().Truncate(24 * time.Hour)
}

// Timestamp returns PostTimestamp, or CreatedAt when the source had none
func (m *Mention) Timestamp() time.Time {
	if m.PostTimestamp.IsZero() {
		return m.CreatedAt
	}
	return m.PostTimestamp
}

// Classification is the output of a relevance/sentiment classifier for one mention
type Classification struct {
	MentionID           string  `json:"mention_id"`
	IsRelevant          bool    `json:"is_relevant"`
	RelevanceConfidence float64 `json:"relevance_confidence"`
	SentimentLabel      string  `json:"sentiment_label"`
	SentimentScore      float64 `json:"sentiment_score"`
}
