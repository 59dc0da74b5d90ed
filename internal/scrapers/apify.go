package scrapers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// ErrRateLimited is returned when the provider answers 429
var ErrRateLimited = errors.New("rate limited")

// ApifyClient runs Apify actors synchronously and returns their dataset items
type ApifyClient struct {
	token   string
	baseURL string
	client  *resty.Client
}

func NewApifyClient(token, baseURL string, timeout time.Duration) *ApifyClient {
	if baseURL == "" {
		baseURL = "https://api.apify.com"
	}
	return &ApifyClient{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  resty.New().SetTimeout(timeout),
	}
}

func (a *ApifyClient) Configured() bool {
	return a != nil && a.token != ""
}

// RunActor starts actorID with input and waits for its dataset
func (a *ApifyClient) RunActor(ctx context.Context, actorID string, input interface{}) ([]RawItem, error) {
	if !a.Configured() {
		return nil, fmt.Errorf("apify token not configured")
	}

	logrus.WithFields(logrus.Fields{
		"actor": actorID,
	}).Debug("Running Apify actor")

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("token", a.token).
		SetBody(input).
		Post(fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items", a.baseURL, actorID))
	if err != nil {
		return nil, fmt.Errorf("apify actor %s: %w", actorID, err)
	}

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode() >= 300:
		return nil, fmt.Errorf("apify actor %s returned status %d: %s", actorID, resp.StatusCode(), truncate(resp.String(), 200))
	}

	var items []RawItem
	if err := json.Unmarshal(resp.Body(), &items); err != nil {
		return nil, fmt.Errorf("failed to decode apify dataset: %w", err)
	}
	return items, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
