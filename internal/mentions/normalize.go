package mentions

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brandpulse/social-listening/internal/models"
	"github.com/brandpulse/social-listening/internal/scrapers"
	"github.com/google/uuid"
)

// ErrSkipItem marks raw items that are valid JSON but not content we keep
var ErrSkipItem = errors.New("item skipped")

// Scope is the campaign/job/platform context a batch of raw items belongs to
type Scope struct {
	CampaignID string
	JobID      string
	Platform   models.Platform
	Now        time.Time
}

type normalizeFunc func(raw scrapers.RawItem, scope Scope) (*models.Mention, error)

var normalizers = map[models.Platform]normalizeFunc{
	models.PlatformInstagram: normalizeInstagram,
	models.PlatformTikTok:    normalizeTikTok,
}

// Normalize maps one platform-native item onto a Mention. Missing source
// fields become zero values; classifier fields stay nil.
func Normalize(raw scrapers.RawItem, scope Scope) (*models.Mention, error) {
	fn, ok := normalizers[scope.Platform]
	if !ok {
		return nil, fmt.Errorf("no normalizer for platform %q", scope.Platform)
	}
	m, err := fn(raw, scope)
	if err != nil {
		return nil, err
	}
	m.ID = uuid.NewString()
	m.CampaignID = scope.CampaignID
	m.ScrapeJobID = scope.JobID
	m.Platform = scope.Platform
	m.CreatedAt = scope.Now
	return m, nil
}

// Instagram

var instagramPostTypes = map[string]bool{
	"image":        true,
	"video":        true,
	"sidecar":      true,
	"carousel":     true,
	"graphimage":   true,
	"graphvideo":   true,
	"graphsidecar": true,
}

type instagramItem struct {
	ID             flexString `json:"id"`
	ShortCode      string     `json:"shortCode"`
	Caption        string     `json:"caption"`
	Type           string     `json:"type"`
	ProductType    string     `json:"productType"`
	URL            string     `json:"url"`
	InputURL       string     `json:"inputUrl"`
	Timestamp      string     `json:"timestamp"`
	DisplayURL     string     `json:"displayUrl"`
	VideoURL       string     `json:"videoUrl"`
	VideoDuration  float64    `json:"videoDuration"`
	LikesCount     flexInt    `json:"likesCount"`
	CommentsCount  flexInt    `json:"commentsCount"`
	VideoViewCount flexInt    `json:"videoViewCount"`
	VideoPlayCount flexInt    `json:"videoPlayCount"`
	OwnerUsername  string     `json:"ownerUsername"`
	OwnerID        flexString `json:"ownerId"`
	OwnerFullName  string     `json:"ownerFullName"`
	OwnerVerified  bool       `json:"verified"`
	OwnerFollowers flexInt    `json:"followersCount"`
	LocationName   string     `json:"locationName"`
	IsSponsored    bool       `json:"isSponsored"`
	IsPinned       bool       `json:"isPinned"`
	TaggedUsers    []struct {
		Username string `json:"username"`
	} `json:"taggedUsers"`
	ChildPosts []json.RawMessage `json:"childPosts"`
}

func normalizeInstagram(raw scrapers.RawItem, scope Scope) (*models.Mention, error) {
	var item instagramItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decode instagram item: %w", err)
	}

	platformID := string(item.ID)
	if platformID == "" {
		platformID = item.ShortCode
	}
	if platformID == "" {
		return nil, fmt.Errorf("%w: instagram item without id", ErrSkipItem)
	}

	postType := strings.ToLower(item.Type)
	if postType != "" && !instagramPostTypes[postType] {
		return nil, fmt.Errorf("%w: instagram post type %q", ErrSkipItem, item.Type)
	}
	postType = strings.TrimPrefix(postType, "graph")

	postURL := item.URL
	if postURL == "" && item.ShortCode != "" {
		postURL = "https://www.instagram.com/p/" + item.ShortCode + "/"
	}

	views := int64(item.VideoViewCount)
	if views == 0 {
		views = int64(item.VideoPlayCount)
	}

	caption := cleanCaption(item.Caption)
	m := &models.Mention{
		Platform:       models.PlatformInstagram,
		PlatformID:     platformID,
		PostURL:        postURL,
		AuthorUsername: item.OwnerUsername,
		AuthorID:       string(item.OwnerID),
		Caption:        caption,
		PostTimestamp:  parseTimestamp(item.Timestamp),
		Likes:          int64(item.LikesCount),
		Comments:       int64(item.CommentsCount),
		Views:          views,
	}

	tagged := []string{}
	for _, u := range item.TaggedUsers {
		if u.Username != "" {
			tagged = append(tagged, u.Username)
		}
	}

	payload := &models.InstagramData{
		ShortCode:       item.ShortCode,
		PostType:        postType,
		ProductType:     item.ProductType,
		DisplayURL:      item.DisplayURL,
		VideoURL:        item.VideoURL,
		VideoDuration:   item.VideoDuration,
		VideoPlayCount:  int64(item.VideoPlayCount),
		OwnerFullName:   item.OwnerFullName,
		OwnerVerified:   item.OwnerVerified,
		OwnerFollowers:  int64(item.OwnerFollowers),
		LocationName:    item.LocationName,
		IsSponsored:     item.IsSponsored,
		IsPinned:        item.IsPinned,
		Hashtags:        ExtractHashtags(caption),
		Mentions:        ExtractMentions(caption),
		TaggedUsers:     tagged,
		ChildPostsCount: len(item.ChildPosts),
		InputURL:        item.InputURL,
	}
	if err := m.SetPayload(payload); err != nil {
		return nil, err
	}
	return m, nil
}

// TikTok

// tiktokItem covers both the dataset shape of the Apify actor (authorMeta,
// top-level counters) and the web API shape (author, stats, challenges).
type tiktokItem struct {
	ID         flexString `json:"id"`
	Text       string     `json:"text"`
	Desc       string     `json:"desc"`
	CreateTime flexInt    `json:"createTime"`
	CreateISO  string     `json:"createTimeISO"`
	WebURL     string     `json:"webVideoUrl"`
	IsAd       bool       `json:"isAd"`
	Query      string     `json:"searchQuery"`

	DiggCount    flexInt `json:"diggCount"`
	CommentCount flexInt `json:"commentCount"`
	ShareCount   flexInt `json:"shareCount"`
	PlayCount    flexInt `json:"playCount"`
	CollectCount flexInt `json:"collectCount"`

	AuthorMeta *struct {
		ID        flexString `json:"id"`
		Name      string     `json:"name"`
		NickName  string     `json:"nickName"`
		Verified  bool       `json:"verified"`
		Fans      flexInt    `json:"fans"`
		Following flexInt    `json:"following"`
		Heart     flexInt    `json:"heart"`
		Video     flexInt    `json:"video"`
	} `json:"authorMeta"`
	Author *struct {
		ID       flexString `json:"id"`
		UniqueID string     `json:"uniqueId"`
		Nickname string     `json:"nickname"`
		Verified bool       `json:"verified"`
	} `json:"author"`
	AuthorStats struct {
		FollowerCount  flexInt `json:"followerCount"`
		FollowingCount flexInt `json:"followingCount"`
		Heart          flexInt `json:"heart"`
		HeartCount     flexInt `json:"heartCount"`
		VideoCount     flexInt `json:"videoCount"`
	} `json:"authorStats"`
	Stats struct {
		DiggCount    flexInt `json:"diggCount"`
		CommentCount flexInt `json:"commentCount"`
		ShareCount   flexInt `json:"shareCount"`
		PlayCount    flexInt `json:"playCount"`
		CollectCount flexInt `json:"collectCount"`
		RepostCount  flexInt `json:"repostCount"`
	} `json:"stats"`

	Hashtags []struct {
		Name string `json:"name"`
	} `json:"hashtags"`
	Challenges []struct {
		Title string `json:"title"`
	} `json:"challenges"`
	TextExtra []struct {
		Type         int    `json:"type"`
		UserUniqueID string `json:"userUniqueId"`
	} `json:"textExtra"`

	VideoMeta struct {
		Duration flexInt `json:"duration"`
		CoverURL string  `json:"coverUrl"`
	} `json:"videoMeta"`
	Video struct {
		Duration flexInt `json:"duration"`
		Cover    string  `json:"cover"`
	} `json:"video"`
	MusicMeta struct {
		MusicName     string `json:"musicName"`
		MusicAuthor   string `json:"musicAuthor"`
		MusicOriginal bool   `json:"musicOriginal"`
	} `json:"musicMeta"`
	Music struct {
		Title      string `json:"title"`
		AuthorName string `json:"authorName"`
		Original   bool   `json:"original"`
	} `json:"music"`
}

func firstNonZero(values ...int64) int64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func normalizeTikTok(raw scrapers.RawItem, scope Scope) (*models.Mention, error) {
	var item tiktokItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decode tiktok item: %w", err)
	}
	if item.ID == "" {
		return nil, fmt.Errorf("%w: tiktok item without id", ErrSkipItem)
	}

	payload := &models.TikTokData{
		FollowerCount:  int64(item.AuthorStats.FollowerCount),
		FollowingCount: int64(item.AuthorStats.FollowingCount),
		HeartCount:     firstNonZero(int64(item.AuthorStats.HeartCount), int64(item.AuthorStats.Heart)),
		VideoCount:     int64(item.AuthorStats.VideoCount),
		Reposts:        firstNonZero(int64(item.CollectCount), int64(item.Stats.CollectCount), int64(item.Stats.RepostCount)),
		Duration:       int(firstNonZero(int64(item.VideoMeta.Duration), int64(item.Video.Duration))),
		ThumbnailURL:   firstNonEmpty(item.VideoMeta.CoverURL, item.Video.Cover),
		MusicTitle:     firstNonEmpty(item.MusicMeta.MusicName, item.Music.Title),
		MusicAuthor:    firstNonEmpty(item.MusicMeta.MusicAuthor, item.Music.AuthorName),
		MusicOriginal:  item.MusicMeta.MusicOriginal || item.Music.Original,
		IsAd:           item.IsAd,
		SearchQuery:    item.Query,
	}

	var username, authorID string
	switch {
	case item.AuthorMeta != nil:
		username, authorID = item.AuthorMeta.Name, string(item.AuthorMeta.ID)
		payload.AuthorNickname = item.AuthorMeta.NickName
		payload.AuthorVerified = item.AuthorMeta.Verified
		payload.FollowerCount = firstNonZero(int64(item.AuthorMeta.Fans), payload.FollowerCount)
		payload.FollowingCount = firstNonZero(int64(item.AuthorMeta.Following), payload.FollowingCount)
		payload.HeartCount = firstNonZero(int64(item.AuthorMeta.Heart), payload.HeartCount)
		payload.VideoCount = firstNonZero(int64(item.AuthorMeta.Video), payload.VideoCount)
	case item.Author != nil:
		username, authorID = item.Author.UniqueID, string(item.Author.ID)
		payload.AuthorNickname = item.Author.Nickname
		payload.AuthorVerified = item.Author.Verified
	}

	caption := cleanCaption(firstNonEmpty(item.Text, item.Desc))

	tags := []string{}
	for _, h := range item.Hashtags {
		if h.Name != "" {
			tags = append(tags, "#"+h.Name)
		}
	}
	for _, c := range item.Challenges {
		if c.Title != "" {
			tags = append(tags, "#"+c.Title)
		}
	}
	if len(tags) == 0 {
		tags = ExtractHashtags(caption)
	}
	payload.Hashtags = uniqueCapped(tags, maxTags)

	mentioned := []string{}
	for _, t := range item.TextExtra {
		if t.Type == 0 && t.UserUniqueID != "" {
			mentioned = append(mentioned, "@"+t.UserUniqueID)
		}
	}
	if len(mentioned) == 0 {
		mentioned = ExtractMentions(caption)
	}
	payload.Mentions = uniqueCapped(mentioned, maxTags)

	postedAt := parseTimestamp(item.CreateISO)
	if postedAt.IsZero() && item.CreateTime > 0 {
		postedAt = time.Unix(int64(item.CreateTime), 0).UTC()
	}

	postURL := item.WebURL
	if postURL == "" && username != "" {
		postURL = fmt.Sprintf("https://www.tiktok.com/@%s/video/%s", username, item.ID)
	}

	m := &models.Mention{
		Platform:       models.PlatformTikTok,
		PlatformID:     string(item.ID),
		PostURL:        postURL,
		AuthorUsername: username,
		AuthorID:       authorID,
		Caption:        caption,
		PostTimestamp:  postedAt,
		Likes:          firstNonZero(int64(item.DiggCount), int64(item.Stats.DiggCount)),
		Comments:       firstNonZero(int64(item.CommentCount), int64(item.Stats.CommentCount)),
		Shares:         firstNonZero(int64(item.ShareCount), int64(item.Stats.ShareCount)),
		Views:          firstNonZero(int64(item.PlayCount), int64(item.Stats.PlayCount)),
	}
	if err := m.SetPayload(payload); err != nil {
		return nil, err
	}
	return m, nil
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z0700", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
