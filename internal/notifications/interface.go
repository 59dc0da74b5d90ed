package notifications

import (
	"context"

	"github.com/brandpulse/social-listening/internal/models"
)

// Notifier delivers newly created alerts
type Notifier interface {
	SendAlerts(ctx context.Context, campaign *models.Campaign, alerts []models.Alert) error
}

// Noop drops every notification
type Noop struct{}

func (Noop) SendAlerts(ctx context.Context, campaign *models.Campaign, alerts []models.Alert) error {
	return nil
}
