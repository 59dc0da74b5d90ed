// Command run-analytics runs the analytics pipeline for one campaign, or for
// every active campaign when no campaign is given.
//
// Usage:
//
//	run-analytics -campaign <id>
//	run-analytics [-user <id>] [-classify]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/brandpulse/social-listening/internal/app"
	"github.com/brandpulse/social-listening/internal/storage"
	"github.com/sirupsen/logrus"
)

func main() {
	campaignID := flag.String("campaign", "", "campaign to analyze (default: all active campaigns)")
	userID := flag.String("user", "", "restrict the all-campaigns run to one user")
	classifyFirst := flag.Bool("classify", false, "classify unlabeled mentions before running analytics")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize services: %v", err)
	}
	defer services.Close()

	if err := run(ctx, services, *campaignID, *userID, *classifyFirst); err != nil {
		services.Close()
		logrus.Fatalf("Analytics run failed: %v", err)
	}
}

func run(ctx context.Context, services *app.App, campaignID, userID string, classifyFirst bool) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if classifyFirst {
		ids := []string{campaignID}
		if campaignID == "" {
			campaigns, err := services.Store.ListCampaigns(ctx, storage.CampaignFilter{UserID: userID, ActiveOnly: true})
			if err != nil {
				return err
			}
			ids = ids[:0]
			for _, c := range campaigns {
				ids = append(ids, c.ID)
			}
		}
		for _, id := range ids {
			if _, err := services.Classifier.Run(ctx, id); err != nil {
				logrus.WithField("campaign_id", id).Errorf("Classification failed: %v", err)
			}
		}
	}

	if campaignID != "" {
		result, err := services.Analytics.RunAnalytics(ctx, campaignID)
		if err != nil {
			return err
		}
		return enc.Encode(result)
	}

	batch, err := services.Analytics.RunAnalyticsForAllCampaigns(ctx, userID)
	if err != nil {
		return err
	}
	return enc.Encode(batch)
}
