package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Platform identifies a content platform that can be scraped
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
)

// Platforms lists every supported platform in canonical order
var Platforms = []Platform{PlatformInstagram, PlatformTikTok}

// ParsePlatform converts a raw string to a Platform, returning an error for
// unknown values.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PlatformInstagram, PlatformTikTok:
		return p, nil
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// PlatformPayload is the platform-specific part of a Mention. It is
// implemented only by *InstagramData and *TikTokData.
type PlatformPayload interface {
	Platform() Platform
	isPlatformPayload()
}

// InstagramData holds fields only Instagram posts carry
type InstagramData struct {
	ShortCode       string   `json:"short_code"`
	PostType        string   `json:"post_type"`
	ProductType     string   `json:"product_type,omitempty"`
	DisplayURL      string   `json:"display_url,omitempty"`
	VideoURL        string   `json:"video_url,omitempty"`
	VideoDuration   float64  `json:"video_duration,omitempty"`
	VideoPlayCount  int64    `json:"video_play_count,omitempty"`
	OwnerFullName   string   `json:"owner_full_name,omitempty"`
	OwnerVerified   bool     `json:"owner_verified"`
	OwnerFollowers  int64    `json:"owner_followers,omitempty"`
	LocationName    string   `json:"location_name,omitempty"`
	IsSponsored     bool     `json:"is_sponsored"`
	IsPinned        bool     `json:"is_pinned"`
	Hashtags        []string `json:"hashtags"`
	Mentions        []string `json:"mentions"`
	TaggedUsers     []string `json:"tagged_users"`
	ChildPostsCount int      `json:"child_posts_count"`
	InputURL        string   `json:"input_url,omitempty"`
}

func (*InstagramData) Platform() Platform { return PlatformInstagram }
func (*InstagramData) isPlatformPayload() {}

// TikTokData holds fields only TikTok videos carry
type TikTokData struct {
	AuthorNickname string   `json:"author_nickname,omitempty"`
	AuthorVerified bool     `json:"author_verified"`
	FollowerCount  int64    `json:"follower_count"`
	FollowingCount int64    `json:"following_count"`
	HeartCount     int64    `json:"heart_count"`
	VideoCount     int64    `json:"video_count"`
	Reposts        int64    `json:"reposts"`
	Duration       int      `json:"duration"`
	ThumbnailURL   string   `json:"thumbnail_url,omitempty"`
	MusicTitle     string   `json:"music_title,omitempty"`
	MusicAuthor    string   `json:"music_author,omitempty"`
	MusicOriginal  bool     `json:"music_original"`
	IsAd           bool     `json:"is_ad"`
	Hashtags       []string `json:"hashtags"`
	Mentions       []string `json:"mentions"`
	SearchQuery    string   `json:"search_query,omitempty"`
}

func (*TikTokData) Platform() Platform { return PlatformTikTok }
func (*TikTokData) isPlatformPayload() {}

// decodePayload unmarshals the JSON column belonging to platform p
func decodePayload(p Platform, data []byte) (PlatformPayload, error) {
	switch p {
	case PlatformInstagram:
		var v InstagramData
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode instagram data: %w", err)
		}
		return &v, nil
	case PlatformTikTok:
		var v TikTokData
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode tiktok data: %w", err)
		}
		return &v, nil
	}
	return nil, fmt.Errorf("unknown platform %q", p)
}
