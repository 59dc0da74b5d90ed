package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brandpulse/social-listening/internal/api"
	"github.com/brandpulse/social-listening/internal/app"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.Info("Starting social listening API")

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	services, err := app.New(startCtx, cfg)
	cancelStart()
	if err != nil {
		logrus.Fatalf("Failed to initialize services: %v", err)
	}
	defer services.Close()

	server := api.NewServer(api.Deps{
		Store:      services.Store,
		Queue:      services.Queue,
		Worker:     services.Worker,
		Analytics:  services.Analytics,
		Classifier: services.Classifier,
		Cache:      services.Cache,
	})

	// process-jobs and analytics runs are synchronous, so the write timeout
	// covers a full scrape
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ScrapeTimeout*2 + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}
