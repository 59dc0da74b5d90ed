package mentions

import (
	"context"
	"errors"

	"github.com/brandpulse/social-listening/internal/models"
	"github.com/brandpulse/social-listening/internal/scrapers"
	"github.com/brandpulse/social-listening/internal/storage"
	"github.com/sirupsen/logrus"
)

// DefaultBatchSize bounds the rows sent in one insert
const DefaultBatchSize = 50

// SaveResult reports what happened to one platform's raw items
type SaveResult struct {
	Saved         int // rows actually inserted
	Skipped       int // items that could not be normalized
	Duplicates    int // normalized items already stored
	FailedBatches int
}

// Saver normalizes raw items and writes them in insert-or-ignore batches
type Saver struct {
	store     storage.MentionStore
	batchSize int
}

func NewSaver(store storage.MentionStore, batchSize int) *Saver {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Saver{store: store, batchSize: batchSize}
}

// Save persists items for scope. A failing batch is logged and the
// remaining batches still run.
func (s *Saver) Save(ctx context.Context, scope Scope, items []scrapers.RawItem) SaveResult {
	log := logrus.WithFields(logrus.Fields{
		"campaign_id": scope.CampaignID,
		"job_id":      scope.JobID,
		"platform":    scope.Platform,
	})

	var result SaveResult
	normalized := make([]models.Mention, 0, len(items))
	for i, raw := range items {
		m, err := Normalize(raw, scope)
		if err != nil {
			result.Skipped++
			if errors.Is(err, ErrSkipItem) {
				log.Debugf("Skipping item %d: %v", i, err)
			} else {
				log.Warnf("Failed to normalize item %d: %v", i, err)
			}
			continue
		}
		normalized = append(normalized, *m)
	}

	for start := 0; start < len(normalized); start += s.batchSize {
		if ctx.Err() != nil {
			log.Warnf("Stopping mention persistence: %v", ctx.Err())
			result.FailedBatches += (len(normalized) - start + s.batchSize - 1) / s.batchSize
			break
		}

		end := start + s.batchSize
		if end > len(normalized) {
			end = len(normalized)
		}
		batch := normalized[start:end]

		inserted, err := s.store.InsertMentions(ctx, batch)
		if err != nil {
			result.FailedBatches++
			log.WithField("batch", start/s.batchSize).Errorf("Failed to insert %d mentions: %v", len(batch), err)
			continue
		}
		result.Saved += inserted
		result.Duplicates += len(batch) - inserted
	}

	log.WithFields(logrus.Fields{
		"items":      len(items),
		"saved":      result.Saved,
		"duplicates": result.Duplicates,
		"skipped":    result.Skipped,
	}).Info("Persisted mentions")
	return result
}
