package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/brandpulse/social-listening/internal/jobs"
	"github.com/brandpulse/social-listening/internal/models"
	"gorm.io/datatypes"
)

// MemoryStore is an in-process Store. check-scrapers uses it for dry runs
// and the package tests use it in place of Postgres.
type MemoryStore struct {
	mu          sync.RWMutex
	campaigns   map[string]models.Campaign
	jobs        map[string]models.ScrapeJob
	mentions    []models.Mention
	mentionKeys map[string]bool
	dailyStats  map[string][]models.DailyStat
	trends      map[string][]models.Trend
	influencers map[string][]models.Influencer
	alerts      []models.Alert
	nextID      uint
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns:   make(map[string]models.Campaign),
		jobs:        make(map[string]models.ScrapeJob),
		mentionKeys: make(map[string]bool),
		dailyStats:  make(map[string][]models.DailyStat),
		trends:      make(map[string][]models.Trend),
		influencers: make(map[string][]models.Influencer),
	}
}

func newResults(r models.JobResults) datatypes.JSONType[models.JobResults] {
	return datatypes.NewJSONType(r)
}

func mentionKey(m models.Mention) string {
	return m.CampaignID + "|" + string(m.Platform) + "|" + m.PlatformID
}

// Campaigns

func (s *MemoryStore) CreateCampaign(ctx context.Context, campaign *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[campaign.ID] = *campaign
	return nil
}

func (s *MemoryStore) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemoryStore) UpdateCampaign(ctx context.Context, campaign *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[campaign.ID]; !ok {
		return ErrNotFound
	}
	s.campaigns[campaign.ID] = *campaign
	return nil
}

func (s *MemoryStore) DeleteCampaign(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[id]; !ok {
		return ErrNotFound
	}
	delete(s.campaigns, id)
	return nil
}

func (s *MemoryStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Campaign, 0)
	for _, c := range s.campaigns {
		if filter.UserID != "" && c.UserID != filter.UserID {
			continue
		}
		if filter.ActiveOnly && !c.IsActive {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Jobs

func (s *MemoryStore) EnqueueJob(ctx context.Context, job *models.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (*models.ScrapeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &j, nil
}

func (s *MemoryStore) ListJobs(ctx context.Context, filter JobFilter) ([]models.ScrapeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ScrapeJob, 0)
	for _, j := range s.jobs {
		if filter.CampaignID != "" && j.CampaignID != filter.CampaignID {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedAt.After(out[j].QueuedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) ListQueuedJobs(ctx context.Context) ([]models.ScrapeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ScrapeJob, 0)
	for _, j := range s.jobs {
		if j.Status == jobs.StatusQueued {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QueuedAt.Equal(out[j].QueuedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].QueuedAt.Before(out[j].QueuedAt)
	})
	return out, nil
}

// transition applies fn to job id when its status may move to `to`
func (s *MemoryStore) transition(id string, to jobs.Status, fn func(j *models.ScrapeJob)) error {
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !jobs.IsTransitionAllowed(j.Status, to) {
		return ErrInvalidTransition
	}
	j.Status = to
	fn(&j)
	s.jobs[id] = j
	return nil
}

func (s *MemoryStore) ClaimJob(ctx context.Context, id string, total int, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.transition(id, jobs.StatusRunning, func(j *models.ScrapeJob) {
		started := now
		j.StartedAt = &started
		j.Progress = models.Progress{Current: 0, Total: total, Message: "Starting scrape..."}
	})
	if err == ErrInvalidTransition {
		return false, nil
	}
	return err == nil, err
}

func (s *MemoryStore) UpdateProgress(ctx context.Context, id string, progress models.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if err := jobs.ValidateProgress(j.Status, j.Progress.Current, progress.Current, progress.Total); err != nil {
		return ErrInvalidTransition
	}
	j.Progress = progress
	s.jobs[id] = j
	return nil
}

func (s *MemoryStore) CompleteJob(ctx context.Context, id string, results models.JobResults, itemsScraped int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(id, jobs.StatusCompleted, func(j *models.ScrapeJob) {
		completed := now
		j.CompletedAt = &completed
		j.Results = newResults(results)
		j.ItemsScraped = itemsScraped
	})
}

func (s *MemoryStore) FailJob(ctx context.Context, id, message string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(id, jobs.StatusFailed, func(j *models.ScrapeJob) {
		completed := now
		msg := message
		j.CompletedAt = &completed
		j.ErrorMessage = &msg
	})
}

func (s *MemoryStore) CancelJob(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(id, jobs.StatusCancelled, func(j *models.ScrapeJob) {
		completed := now
		j.CompletedAt = &completed
		j.Progress.Message = "Job cancelled"
	})
}

func (s *MemoryStore) FailStaleJobs(ctx context.Context, cutoff time.Time, message string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, j := range s.jobs {
		if j.Status != jobs.StatusRunning || j.StartedAt == nil || !j.StartedAt.Before(cutoff) {
			continue
		}
		if err := s.transition(id, jobs.StatusFailed, func(j *models.ScrapeJob) {
			completed := now
			msg := message
			j.CompletedAt = &completed
			j.ErrorMessage = &msg
		}); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Mentions

func (s *MemoryStore) InsertMentions(ctx context.Context, mentions []models.Mention) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, m := range mentions {
		key := mentionKey(m)
		if s.mentionKeys[key] {
			continue
		}
		s.mentionKeys[key] = true
		s.mentions = append(s.mentions, m)
		inserted++
	}
	return inserted, nil
}

func (s *MemoryStore) ListMentions(ctx context.Context, filter MentionFilter) ([]models.Mention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Mention, 0)
	for _, m := range s.mentions {
		if filter.CampaignID != "" && m.CampaignID != filter.CampaignID {
			continue
		}
		if filter.ScrapeJobID != "" && m.ScrapeJobID != filter.ScrapeJobID {
			continue
		}
		if !filter.Since.IsZero() && m.Timestamp().Before(filter.Since) {
			continue
		}
		if filter.UnclassifiedOnly && m.SentimentLabel != nil && m.IsRelevant != nil {
			continue
		}
		out = append(out, m)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) ApplyClassifications(ctx context.Context, results []models.Classification) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := make(map[string]models.Classification, len(results))
	for _, r := range results {
		byID[r.MentionID] = r
	}
	updated := 0
	for i := range s.mentions {
		r, ok := byID[s.mentions[i].ID]
		if !ok {
			continue
		}
		label, score := r.SentimentLabel, r.SentimentScore
		relevant, confidence := r.IsRelevant, r.RelevanceConfidence
		s.mentions[i].SentimentLabel = &label
		s.mentions[i].SentimentScore = &score
		s.mentions[i].IsRelevant = &relevant
		s.mentions[i].RelevanceConfidence = &confidence
		updated++
	}
	return updated, nil
}

// Analytics

func (s *MemoryStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) ReplaceDailyStats(ctx context.Context, campaignID string, stats []models.DailyStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	replace := make(map[time.Time]bool, len(stats))
	for _, st := range stats {
		replace[st.Date] = true
	}
	kept := make([]models.DailyStat, 0, len(s.dailyStats[campaignID])+len(stats))
	for _, st := range s.dailyStats[campaignID] {
		if !replace[st.Date] {
			kept = append(kept, st)
		}
	}
	for _, st := range stats {
		st.ID = s.id()
		kept = append(kept, st)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Date.Before(kept[j].Date) })
	s.dailyStats[campaignID] = kept
	return nil
}

func (s *MemoryStore) ListDailyStats(ctx context.Context, campaignID string, since time.Time) ([]models.DailyStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.DailyStat, 0)
	for _, st := range s.dailyStats[campaignID] {
		if !since.IsZero() && st.Date.Before(since) {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *MemoryStore) ReplaceTrends(ctx context.Context, campaignID string, windowStart time.Time, trends []models.Trend) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]models.Trend, 0)
	for _, t := range s.trends[campaignID] {
		if t.WindowStart.Equal(windowStart) {
			continue
		}
		t.IsActive = false
		kept = append(kept, t)
	}
	for _, t := range trends {
		t.ID = s.id()
		kept = append(kept, t)
	}
	s.trends[campaignID] = kept
	return nil
}

func (s *MemoryStore) ListActiveTrends(ctx context.Context, campaignID string) ([]models.Trend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Trend, 0)
	for _, t := range s.trends[campaignID] {
		if t.IsActive {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (s *MemoryStore) ReplaceInfluencers(ctx context.Context, campaignID string, influencers []models.Influencer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Influencer, 0, len(influencers))
	for _, inf := range influencers {
		inf.ID = s.id()
		out = append(out, inf)
	}
	s.influencers[campaignID] = out
	return nil
}

func (s *MemoryStore) ListInfluencers(ctx context.Context, campaignID string, limit int) ([]models.Influencer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]models.Influencer{}, s.influencers[campaignID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) OpenAlertKeys(ctx context.Context, campaignID string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make(map[string]bool)
	for _, a := range s.alerts {
		if a.CampaignID == campaignID && !a.IsDismissed {
			keys[a.ConditionKey] = true
		}
	}
	return keys, nil
}

func (s *MemoryStore) CreateAlerts(ctx context.Context, alerts []models.Alert) ([]models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var created []models.Alert
	for _, a := range alerts {
		duplicate := false
		for _, existing := range s.alerts {
			if existing.CampaignID == a.CampaignID && existing.ConditionKey == a.ConditionKey && !existing.IsDismissed {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		s.alerts = append(s.alerts, a)
		created = append(created, a)
	}
	return created, nil
}

func (s *MemoryStore) ListAlerts(ctx context.Context, campaignID string, includeDismissed bool) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Alert, 0)
	for _, a := range s.alerts {
		if a.CampaignID != campaignID {
			continue
		}
		if a.IsDismissed && !includeDismissed {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DismissAlert(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID != id {
			continue
		}
		dismissed := now
		s.alerts[i].IsDismissed = true
		s.alerts[i].DismissedAt = &dismissed
		return nil
	}
	return ErrNotFound
}

// MemoryArchive is an in-process Archive
type MemoryArchive struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// Ensure MemoryArchive implements Archive
var _ Archive = (*MemoryArchive)(nil)

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{blobs: make(map[string][]byte)}
}

func (a *MemoryArchive) Store(ctx context.Context, filename string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blobs[filename] = append([]byte(nil), data...)
	return nil
}

func (a *MemoryArchive) Retrieve(ctx context.Context, filename string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	data, ok := a.blobs[filename]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (a *MemoryArchive) List(ctx context.Context, prefix string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var names []string
	for name := range a.blobs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
