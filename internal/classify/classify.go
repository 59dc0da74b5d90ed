// Package classify fills the relevance and sentiment fields of stored
// mentions. The pipeline only reads those fields; classification runs as a
// separate, manually triggered step.
package classify

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/brandpulse/social-listening/internal/models"
	"github.com/brandpulse/social-listening/internal/storage"
	"github.com/sirupsen/logrus"
)

// Classifier labels a batch of mentions for a campaign
type Classifier interface {
	Classify(ctx context.Context, campaign *models.Campaign, mentions []models.Mention) ([]models.Classification, error)
}

// LexiconClassifier scores relevance by campaign term matches and
// sentiment by word lists
type LexiconClassifier struct {
	positive map[string]bool
	negative map[string]bool
}

var (
	positiveWords = []string{
		"good", "great", "excellent", "love", "loved", "loving", "awesome", "fantastic", "helpful",
		"works", "solved", "success", "amazing", "best", "perfect", "recommend", "happy", "beautiful",
		"favorite", "favourite", "obsessed", "wow", "nice", "comfy", "worth",
		"❤️", "😍", "🔥", "👍", "😊",
	}
	negativeWords = []string{
		"bad", "terrible", "awful", "hate", "broken", "error", "fail", "failed", "problem", "issue",
		"bug", "worst", "scam", "refund", "disappointed", "disappointing", "poor", "fake", "waste",
		"never", "ugly", "angry", "cheap", "overpriced", "return",
		"👎", "😡", "😤", "🤮",
	}
)

func NewLexiconClassifier() *LexiconClassifier {
	c := &LexiconClassifier{
		positive: make(map[string]bool, len(positiveWords)),
		negative: make(map[string]bool, len(negativeWords)),
	}
	for _, w := range positiveWords {
		c.positive[w] = true
	}
	for _, w := range negativeWords {
		c.negative[w] = true
	}
	return c
}

func (c *LexiconClassifier) Classify(ctx context.Context, campaign *models.Campaign, mentions []models.Mention) ([]models.Classification, error) {
	terms := campaignTerms(campaign)
	out := make([]models.Classification, 0, len(mentions))
	for _, m := range mentions {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		text := strings.ToLower(m.Caption)
		relevant, confidence := relevance(text, terms)
		label, score := c.sentiment(text)
		out = append(out, models.Classification{
			MentionID:           m.ID,
			IsRelevant:          relevant,
			RelevanceConfidence: confidence,
			SentimentLabel:      label,
			SentimentScore:      score,
		})
	}
	return out, nil
}

func campaignTerms(campaign *models.Campaign) []string {
	var terms []string
	for _, k := range campaign.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			terms = append(terms, k)
		}
	}
	for _, h := range campaign.Hashtags {
		if h = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "#")); h != "" {
			terms = append(terms, h)
		}
	}
	return terms
}

func relevance(text string, terms []string) (bool, float64) {
	if len(terms) == 0 {
		return false, 0
	}
	matches := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			matches++
		}
	}
	if matches == 0 {
		return false, 0.7
	}
	confidence := 0.55 + 0.15*float64(matches)
	if confidence > 0.95 {
		confidence = 0.95
	}
	return true, confidence
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '\'') || r == '#' || r == '@'
	})
}

// sentiment returns a label and a score in [-1, 1]
func (c *LexiconClassifier) sentiment(text string) (string, float64) {
	pos, neg := 0, 0
	for _, tok := range tokenize(text) {
		if !isWord(tok) {
			continue
		}
		switch {
		case c.positive[tok]:
			pos++
		case c.negative[tok]:
			neg++
		}
	}
	// emoji are often glued to words
	for _, w := range positiveWords {
		if !isWord(w) {
			pos += strings.Count(text, w)
		}
	}
	for _, w := range negativeWords {
		if !isWord(w) {
			neg += strings.Count(text, w)
		}
	}

	if pos+neg == 0 {
		return models.SentimentNeutral, 0
	}
	score := float64(pos-neg) / float64(pos+neg)
	switch {
	case pos > neg:
		return models.SentimentPositive, score
	case neg > pos:
		return models.SentimentNegative, score
	}
	return models.SentimentNeutral, score
}

func isWord(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// Service applies a Classifier to a campaign's unclassified mentions
type Service struct {
	store      storage.Store
	classifier Classifier
	batchSize  int
}

func NewService(store storage.Store, classifier Classifier, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Service{store: store, classifier: classifier, batchSize: batchSize}
}

// Result counts the mentions a classification run updated
type Result struct {
	CampaignID string `json:"campaign_id"`
	Classified int    `json:"classified"`
	Relevant   int    `json:"relevant"`
}

// Run classifies every unclassified mention of campaignID
func (s *Service) Run(ctx context.Context, campaignID string) (*Result, error) {
	campaign, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}

	result := &Result{CampaignID: campaignID}
	for {
		pending, err := s.store.ListMentions(ctx, storage.MentionFilter{
			CampaignID:       campaignID,
			UnclassifiedOnly: true,
			Limit:            s.batchSize,
		})
		if err != nil {
			return result, fmt.Errorf("failed to list unclassified mentions: %w", err)
		}
		if len(pending) == 0 {
			break
		}

		labels, err := s.classifier.Classify(ctx, campaign, pending)
		if err != nil {
			return result, fmt.Errorf("classification failed: %w", err)
		}
		updated, err := s.store.ApplyClassifications(ctx, labels)
		if err != nil {
			return result, fmt.Errorf("failed to store classifications: %w", err)
		}

		result.Classified += updated
		for _, l := range labels {
			if l.IsRelevant {
				result.Relevant++
			}
		}
		if updated == 0 || len(pending) < s.batchSize {
			break
		}
	}

	logrus.WithFields(logrus.Fields{
		"campaign_id": campaignID,
		"classified":  result.Classified,
		"relevant":    result.Relevant,
	}).Info("Classified mentions")
	return result, nil
}
