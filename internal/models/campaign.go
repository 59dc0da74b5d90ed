package models

import (
	"time"

	"gorm.io/datatypes"
)

// PlatformConfig is the per-platform part of a campaign
type PlatformConfig struct {
	Enabled  bool     `json:"enabled"`
	Profiles []string `json:"profiles,omitempty"` // profile URLs or handles to monitor
	MaxItems int      `json:"max_items,omitempty"`
}

// PlatformSettings maps each platform to its campaign configuration
type PlatformSettings map[Platform]PlatformConfig

// Campaign describes what to monitor. Only campaign CRUD mutates it.
type Campaign struct {
	ID        string                               `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string                               `gorm:"type:varchar(128);not null;index" json:"user_id"`
	Name      string                               `gorm:"type:varchar(255);not null" json:"name"`
	Keywords  datatypes.JSONSlice[string]          `json:"keywords"`
	Hashtags  datatypes.JSONSlice[string]          `json:"hashtags"`
	Platforms datatypes.JSONType[PlatformSettings] `json:"platforms"`
	IsActive  bool                                 `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time                            `json:"created_at"`
	UpdatedAt time.Time                            `json:"updated_at"`
}

// TableName specifies the table name for Campaign
func (Campaign) TableName() string {
	return "campaigns"
}

// PlatformConfig returns the configuration for p (zero value when absent)
func (c *Campaign) PlatformConfig(p Platform) PlatformConfig {
	settings := c.Platforms.Data()
	if settings == nil {
		return PlatformConfig{}
	}
	return settings[p]
}

// EnabledPlatforms returns the enabled platforms in canonical order
func (c *Campaign) EnabledPlatforms() []Platform {
	var enabled []Platform
	for _, p := range Platforms {
		if c.PlatformConfig(p).Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled
}
