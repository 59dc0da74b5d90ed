// Command process-jobs drains the scrape job queue once and exits.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/brandpulse/social-listening/internal/app"
	"github.com/brandpulse/social-listening/internal/worker"
	"github.com/sirupsen/logrus"
)

func main() {
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

	summary, err := services.Worker.ProcessQueuedJobs(ctx)
	if errors.Is(err, worker.ErrAlreadyRunning) {
		logrus.Warn("Another process-jobs run holds the lock, exiting")
		return
	}
	if err != nil {
		services.Close()
		logrus.Fatalf("Job processing failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(summary)
}
