package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Persistence
	DatabaseURL string
	RedisURL    string

	// Scraper adapters (Apify actors)
	ApifyToken       string
	ApifyBaseURL     string
	InstagramActorID string
	TikTokActorID    string
	ScrapeTimeout    time.Duration

	// Job worker
	MaxTermsPerPlatform int
	DefaultMaxItems     int
	MentionBatchSize    int
	StaleJobTimeout     time.Duration
	RunLockTTL          time.Duration

	// Raw payload archive
	StorageAccount   string
	StorageContainer string

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	// Analytics
	Analytics AnalyticsConfig

	SummaryCacheTTL time.Duration
}

// AnalyticsConfig holds trend detection parameters and alert thresholds
type AnalyticsConfig struct {
	TrendWindowDays   int     `yaml:"trend_window_days"`
	TrendHalfLifeDays float64 `yaml:"trend_half_life_days"`
	TrendMinMentions  int     `yaml:"trend_min_mentions"`
	TrendMinGrowth    float64 `yaml:"trend_min_growth"`
	TrendLimit        int     `yaml:"trend_limit"`

	AlertNegativeRatio   float64 `yaml:"alert_negative_ratio"`
	AlertSentimentFloor  float64 `yaml:"alert_sentiment_floor"`
	AlertVolumeSpike     float64 `yaml:"alert_volume_spike"`
	AlertMinDailyVolume  int     `yaml:"alert_min_daily_volume"`
	AlertTrendStrength   float64 `yaml:"alert_trend_strength"`
	AlertInfluencerScore float64 `yaml:"alert_influencer_score"`
}

// DefaultAnalyticsConfig returns the thresholds used when nothing is configured
func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		TrendWindowDays:      7,
		TrendHalfLifeDays:    2,
		TrendMinMentions:     3,
		TrendMinGrowth:       1.5,
		TrendLimit:           20,
		AlertNegativeRatio:   0.4,
		AlertSentimentFloor:  -0.2,
		AlertVolumeSpike:     2.0,
		AlertMinDailyVolume:  5,
		AlertTrendStrength:   3.0,
		AlertInfluencerScore: 80,
	}
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	defaults := DefaultAnalyticsConfig()
	if path := os.Getenv("ANALYTICS_CONFIG_FILE"); path != "" {
		fileCfg, err := LoadAnalyticsFile(path, defaults)
		if err != nil {
			return nil, err
		}
		defaults = fileCfg
	}

	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		ApifyToken:       getEnv("APIFY_TOKEN", ""),
		ApifyBaseURL:     getEnv("APIFY_BASE_URL", "https://api.apify.com"),
		InstagramActorID: getEnv("INSTAGRAM_ACTOR_ID", "apify~instagram-scraper"),
		TikTokActorID:    getEnv("TIKTOK_ACTOR_ID", "clockworks~tiktok-scraper"),
		ScrapeTimeout:    getDurationEnv("SCRAPE_TIMEOUT", 5*time.Minute),

		MaxTermsPerPlatform: getIntEnv("MAX_TERMS_PER_PLATFORM", 5),
		DefaultMaxItems:     getIntEnv("DEFAULT_MAX_ITEMS", 50),
		MentionBatchSize:    getIntEnv("MENTION_BATCH_SIZE", 50),
		StaleJobTimeout:     getDurationEnv("STALE_JOB_TIMEOUT", 2*time.Hour),
		RunLockTTL:          getDurationEnv("RUN_LOCK_TTL", 2*time.Hour),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "raw-scrapes"),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),

		Analytics: AnalyticsConfig{
			TrendWindowDays:      getIntEnv("TREND_WINDOW_DAYS", defaults.TrendWindowDays),
			TrendHalfLifeDays:    getFloatEnv("TREND_HALF_LIFE_DAYS", defaults.TrendHalfLifeDays),
			TrendMinMentions:     getIntEnv("TREND_MIN_MENTIONS", defaults.TrendMinMentions),
			TrendMinGrowth:       getFloatEnv("TREND_MIN_GROWTH", defaults.TrendMinGrowth),
			TrendLimit:           getIntEnv("TREND_LIMIT", defaults.TrendLimit),
			AlertNegativeRatio:   getFloatEnv("ALERT_NEGATIVE_RATIO", defaults.AlertNegativeRatio),
			AlertSentimentFloor:  getFloatEnv("ALERT_SENTIMENT_FLOOR", defaults.AlertSentimentFloor),
			AlertVolumeSpike:     getFloatEnv("ALERT_VOLUME_SPIKE", defaults.AlertVolumeSpike),
			AlertMinDailyVolume:  getIntEnv("ALERT_MIN_DAILY_VOLUME", defaults.AlertMinDailyVolume),
			AlertTrendStrength:   getFloatEnv("ALERT_TREND_STRENGTH", defaults.AlertTrendStrength),
			AlertInfluencerScore: getFloatEnv("ALERT_INFLUENCER_SCORE", defaults.AlertInfluencerScore),
		},

		SummaryCacheTTL: getDurationEnv("SUMMARY_CACHE_TTL", 5*time.Minute),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.MaxTermsPerPlatform < 1 {
		return fmt.Errorf("MAX_TERMS_PER_PLATFORM must be positive")
	}

	if c.MentionBatchSize < 1 || c.MentionBatchSize > 1000 {
		return fmt.Errorf("MENTION_BATCH_SIZE must be between 1 and 1000")
	}

	if c.StaleJobTimeout < 0 {
		return fmt.Errorf("STALE_JOB_TIMEOUT must not be negative")
	}

	if c.Analytics.TrendWindowDays < 1 {
		return fmt.Errorf("TREND_WINDOW_DAYS must be positive")
	}

	if c.Analytics.TrendHalfLifeDays <= 0 {
		return fmt.Errorf("TREND_HALF_LIFE_DAYS must be positive")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// LoadAnalyticsFile reads analytics thresholds from a YAML file. Keys absent
// from the file keep the values in base.
func LoadAnalyticsFile(path string, base AnalyticsConfig) (AnalyticsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read analytics config %s: %w", path, err)
	}

	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("failed to parse analytics config %s: %w", path, err)
	}
	return cfg, nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// SplitList splits a comma-separated value, dropping blanks
func SplitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
