// Command check-scrapers runs a small scrape on every registered platform and
// reports how many items normalize into mentions. With -replay it re-runs a
// job's archived raw payloads through normalization instead. Nothing is
// written to the database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/brandpulse/social-listening/internal/app"
	"github.com/brandpulse/social-listening/internal/config"
	"github.com/brandpulse/social-listening/internal/mentions"
	"github.com/brandpulse/social-listening/internal/models"
	"github.com/brandpulse/social-listening/internal/scrapers"
	"github.com/brandpulse/social-listening/internal/storage"
	"github.com/google/uuid"
)

func main() {
	keywords := flag.String("keywords", "coffee,#latteart", "comma-separated keywords and hashtags to search")
	profiles := flag.String("profiles", "", "comma-separated profiles to scrape")
	maxItems := flag.Int("max-items", 5, "items to request per platform")
	timeout := flag.Duration("timeout", 3*time.Minute, "overall timeout")
	replayJob := flag.String("replay", "", "re-normalize the archived raw payloads of this job instead of scraping")
	flag.Parse()

	fmt.Println("Social Listening - Scraper Check")
	fmt.Println("================================")

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store := storage.NewMemoryStore()
	saver := mentions.NewSaver(store, cfg.MentionBatchSize)
	campaignID := uuid.NewString()

	if *replayJob != "" {
		if err := replay(ctx, cfg.StorageAccount, cfg.StorageContainer, *replayJob, saver, campaignID); err != nil {
			log.Fatalf("Replay failed: %v", err)
		}
		return
	}

	req := scrapers.Request{
		Terms:    scrapers.BuildTerms(config.SplitList(*keywords), nil, cfg.MaxTermsPerPlatform),
		Profiles: config.SplitList(*profiles),
		MaxItems: *maxItems,
	}
	fmt.Printf("\nTerms: %s\n", strings.Join(req.Terms, ", "))
	fmt.Println(strings.Repeat("-", 40))

	registry := app.NewRegistry(cfg)

	for _, s := range registry.All() {
		checkScraper(ctx, s, req, saver, store, campaignID)
	}

	fmt.Println("\nScraper check completed")
}

func checkScraper(ctx context.Context, s scrapers.Scraper, req scrapers.Request, saver *mentions.Saver, store *storage.MemoryStore, campaignID string) {
	fmt.Printf("- %s... ", s.Platform())

	if !s.IsEnabled() {
		fmt.Println("DISABLED (missing Apify token or actor id)")
		return
	}

	start := time.Now()
	items, err := s.Scrape(ctx, req)
	var partial *scrapers.PartialError
	if errors.As(err, &partial) {
		fmt.Printf("PARTIAL (%v) ", err)
	} else if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		return
	}

	scope := mentions.Scope{
		CampaignID: campaignID,
		JobID:      uuid.NewString(),
		Platform:   s.Platform(),
		Now:        time.Now().UTC(),
	}
	result := saver.Save(ctx, scope, items)
	fmt.Printf("OK (%d items in %s, %d normalized, %d skipped, %d duplicates)\n",
		len(items), time.Since(start).Round(time.Millisecond), result.Saved, result.Skipped, result.Duplicates)

	saved, err := store.ListMentions(ctx, storage.MentionFilter{CampaignID: campaignID, ScrapeJobID: scope.JobID, Limit: 1})
	if err == nil && len(saved) > 0 {
		m := saved[0]
		fmt.Printf("  sample: @%s %q\n", m.AuthorUsername, truncate(m.Caption, 80))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func replay(ctx context.Context, account, container, jobID string, saver *mentions.Saver, campaignID string) error {
	if account == "" {
		return fmt.Errorf("AZURE_STORAGE_ACCOUNT is required to replay archived payloads")
	}
	archive, err := storage.NewAzureArchive(ctx, account, container)
	if err != nil {
		return err
	}

	fmt.Printf("\nReplaying archived payloads of job %s\n", jobID)
	fmt.Println(strings.Repeat("-", 40))

	results, err := mentions.Replay(ctx, archive, saver, jobID, mentions.Scope{
		CampaignID: campaignID,
		Now:        time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	for _, p := range models.Platforms {
		if r, ok := results[p]; ok {
			fmt.Printf("- %s: %d normalized, %d skipped, %d duplicates\n", p, r.Saved, r.Skipped, r.Duplicates)
		}
	}
	return nil
}
