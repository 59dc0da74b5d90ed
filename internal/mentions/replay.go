package mentions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brandpulse/social-listening/internal/models"
	"github.com/brandpulse/social-listening/internal/scrapers"
	"github.com/brandpulse/social-listening/internal/storage"
	"github.com/sirupsen/logrus"
)

// Replay reads every raw payload archived for jobID and runs it through the
// saver again. scope.JobID and scope.Platform are set per blob.
func Replay(ctx context.Context, archive storage.Archive, saver *Saver, jobID string, scope Scope) (map[models.Platform]SaveResult, error) {
	names, err := archive.List(ctx, storage.RawScrapePrefix(jobID))
	if err != nil {
		return nil, fmt.Errorf("failed to list archived payloads: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no archived payloads for job %s: %w", jobID, storage.ErrNotFound)
	}

	results := make(map[models.Platform]SaveResult)
	for _, name := range names {
		raw, ok := storage.ParseRawScrapeBlobName(jobID, name)
		if !ok {
			logrus.Warnf("Ignoring unexpected archive entry %s", name)
			continue
		}
		platform, err := models.ParsePlatform(raw)
		if err != nil {
			logrus.Warnf("Ignoring archive entry %s: %v", name, err)
			continue
		}

		data, err := archive.Retrieve(ctx, name)
		if err != nil {
			return results, err
		}
		var items []scrapers.RawItem
		if err := json.Unmarshal(data, &items); err != nil {
			return results, fmt.Errorf("failed to decode %s: %w", name, err)
		}

		s := scope
		s.JobID = jobID
		s.Platform = platform
		results[platform] = saver.Save(ctx, s, items)
	}
	return results, nil
}
