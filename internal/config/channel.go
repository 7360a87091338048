package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ScheduleSettings defines a channel's daily publishing window. EndHour is
// the hour of the last slot of the day; slots are StartHour + k*IntervalHours
// for every value not past EndHour.
type ScheduleSettings struct {
	Timezone      string `yaml:"timezone"`
	StartHour     int    `yaml:"start_hour"`
	EndHour       int    `yaml:"end_hour"`
	IntervalHours int    `yaml:"interval_hours"`
	HorizonDays   int    `yaml:"horizon_days"`
}

// ChannelConfig is the per-channel YAML configuration file.
type ChannelConfig struct {
	Name        string           `yaml:"name"`
	ChannelID   string           `yaml:"channel_id"`
	CategoryID  string           `yaml:"category_id"`
	MadeForKids bool             `yaml:"made_for_kids"`
	DefaultTags []string         `yaml:"default_tags"`
	Language    string           `yaml:"default_language"`
	Schedule    ScheduleSettings `yaml:"schedule"`
}

// LoadChannel reads and validates <dir>/<name>.yaml.
func LoadChannel(dir, name string) (*ChannelConfig, error) {
	path := filepath.Join(dir, name+".yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read channel config %s: %w", path, err)
	}
	var cc ChannelConfig
	if err := yaml.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("parse channel config %s: %w", path, err)
	}
	if cc.Name == "" {
		cc.Name = name
	}
	if err := cc.Validate(); err != nil {
		return nil, fmt.Errorf("channel %s: %w", name, err)
	}
	return &cc, nil
}

// Validate checks window invariants and resolves the timezone.
func (c *ChannelConfig) Validate() error {
	s := c.Schedule
	if s.Timezone == "" {
		return fmt.Errorf("schedule.timezone is required")
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone %q: %w", s.Timezone, err)
	}
	if s.StartHour < 0 || s.StartHour > 23 {
		return fmt.Errorf("schedule.start_hour %d out of range", s.StartHour)
	}
	if s.EndHour < 0 || s.EndHour > 23 {
		return fmt.Errorf("schedule.end_hour %d out of range", s.EndHour)
	}
	if s.StartHour > s.EndHour {
		return fmt.Errorf("schedule.start_hour (%d) must not exceed end_hour (%d)", s.StartHour, s.EndHour)
	}
	if s.IntervalHours <= 0 {
		return fmt.Errorf("schedule.interval_hours must be positive, got %d", s.IntervalHours)
	}
	return nil
}

// Location resolves the configured IANA zone. Validate must have passed.
func (c *ChannelConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
