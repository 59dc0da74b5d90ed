package notifications

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/brandpulse/social-listening/internal/config"
	"github.com/brandpulse/social-listening/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Service sends alerts to Teams and email
type Service struct {
	config *config.Config
	client *resty.Client
	dialer mailer
}

type mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Ensure Service implements Notifier
var _ Notifier = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message card
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	ActivityText     string      `json:"activityText,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a notification service for the configured channels
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
	}
}

// Enabled reports whether any channel is configured
func (s *Service) Enabled() bool {
	return s.config.TeamsWebhookURL != "" || s.config.NotificationEmail != ""
}

// SendAlerts delivers alerts on every configured channel
func (s *Service) SendAlerts(ctx context.Context, campaign *models.Campaign, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	var errs []string

	if s.config.TeamsWebhookURL != "" {
		if err := s.sendToTeams(ctx, campaign, alerts); err != nil {
			logrus.Errorf("Failed to send Teams notification: %v", err)
			errs = append(errs, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.WithField("campaign_id", campaign.ID).Infof("Sent %d alerts to Teams", len(alerts))
		}
	}

	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(campaign, alerts); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errs = append(errs, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.WithField("campaign_id", campaign.ID).Infof("Sent %d alerts via email", len(alerts))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (s *Service) sendToTeams(ctx context.Context, campaign *models.Campaign, alerts []models.Alert) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(buildTeamsMessage(campaign, alerts)).
		Post(s.config.TeamsWebhookURL)
	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	return nil
}

func severityColor(alerts []models.Alert) string {
	color := "0078D4"
	for _, a := range alerts {
		switch a.Severity {
		case models.SeverityCritical:
			return "D13438"
		case models.SeverityWarning:
			color = "FFB900"
		}
	}
	return color
}

func buildTeamsMessage(campaign *models.Campaign, alerts []models.Alert) *TeamsMessage {
	message := &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: severityColor(alerts),
		Title:      fmt.Sprintf("Social listening alerts - %s", campaign.Name),
		Text:       fmt.Sprintf("%d new alert(s) for campaign %s", len(alerts), campaign.Name),
	}

	for _, a := range alerts {
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle:    a.Title,
			ActivitySubtitle: strings.ToUpper(a.Severity),
			ActivityText:     a.Message,
			Facts: []TeamsFact{
				{Name: "Type", Value: a.Type},
				{Name: "Value", Value: fmt.Sprintf("%.2f", a.Value)},
				{Name: "Threshold", Value: fmt.Sprintf("%.2f", a.Threshold)},
			},
			Markdown: true,
		})
	}
	return message
}

func (s *Service) sendEmail(campaign *models.Campaign, alerts []models.Alert) error {
	subject := fmt.Sprintf("[%s] %d new social listening alert(s)", campaign.Name, len(alerts))

	htmlBody, err := buildEmailHTML(campaign, alerts)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", buildEmailText(campaign, alerts))
	m.AddAlternative("text/html", htmlBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

var emailTemplate = template.Must(template.New("alerts").Funcs(template.FuncMap{
	"upper": strings.ToUpper,
}).Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Social listening alerts</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #0078d4; color: white; padding: 20px; border-radius: 5px; }
        .alert { border-left: 4px solid #605e5c; padding: 10px; margin: 10px 0; background-color: #fafafa; }
        .warning { border-left-color: #ffb900; }
        .critical { border-left-color: #d13438; }
        .meta { color: #666; font-size: 0.9em; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.Campaign.Name}}</h1>
        <p>{{len .Alerts}} new alert(s)</p>
    </div>
    {{range .Alerts}}
    <div class="alert {{.Severity}}">
        <strong>{{.Severity | upper}}: {{.Title}}</strong>
        <p>{{.Message}}</p>
        <div class="meta">{{.Type}} | value {{printf "%.2f" .Value}} | threshold {{printf "%.2f" .Threshold}}</div>
    </div>
    {{end}}
</body>
</html>
`))

func buildEmailHTML(campaign *models.Campaign, alerts []models.Alert) (string, error) {
	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, struct {
		Campaign *models.Campaign
		Alerts   []models.Alert
	}{campaign, alerts})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildEmailText(campaign *models.Campaign, alerts []models.Alert) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("Social listening alerts - %s\n", campaign.Name))
	text.WriteString("==========================\n")
	for i, a := range alerts {
		text.WriteString(fmt.Sprintf("\n%d. [%s] %s\n", i+1, strings.ToUpper(a.Severity), a.Title))
		text.WriteString(fmt.Sprintf("   %s\n", a.Message))
		text.WriteString(fmt.Sprintf("   Value: %.2f | Threshold: %.2f\n", a.Value, a.Threshold))
	}
	return text.String()
}
