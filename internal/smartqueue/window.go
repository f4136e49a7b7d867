package smartqueue

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultSurgeDay       = "sunday"
	defaultSurgeStartHour = 20
	defaultSurgeEndHour   = 22
	defaultTimezone       = "America/New_York"
	defaultSurgeBatch     = 10
	defaultTrickleBatch   = 2
	hoursPerDay           = 24
)

// Config configures release gating.
type Config struct {
	SurgeDay         string `yaml:"surge_day"          env:"QUEUE_SURGE_DAY"`
	SurgeStartHour   int    `yaml:"surge_start_hour"   env:"QUEUE_SURGE_START_HOUR"`
	SurgeEndHour     int    `yaml:"surge_end_hour"     env:"QUEUE_SURGE_END_HOUR"`
	Timezone         string `yaml:"timezone"           env:"QUEUE_TIMEZONE"`
	SurgeBatchSize   int    `yaml:"surge_batch_size"   env:"QUEUE_SURGE_BATCH_SIZE"`
	TrickleBatchSize int    `yaml:"trickle_batch_size" env:"QUEUE_TRICKLE_BATCH_SIZE"`
	// TrickleDisabled releases nothing outside the surge window.
	TrickleDisabled bool `yaml:"trickle_disabled" env:"QUEUE_TRICKLE_DISABLED"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.SurgeDay == "" {
		c.SurgeDay = defaultSurgeDay
	}
	if c.SurgeStartHour == 0 && c.SurgeEndHour == 0 {
		c.SurgeStartHour, c.SurgeEndHour = defaultSurgeStartHour, defaultSurgeEndHour
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.SurgeBatchSize == 0 {
		c.SurgeBatchSize = defaultSurgeBatch
	}
	if c.TrickleBatchSize == 0 {
		c.TrickleBatchSize = defaultTrickleBatch
	}
}

// BatchSize returns how many entries one release may take.
func (c Config) BatchSize(surge bool) int {
	switch {
	case surge:
		return c.SurgeBatchSize
	case c.TrickleDisabled:
		return 0
	default:
		return c.TrickleBatchSize
	}
}

// Window is the resolved surge window.
type Window struct {
	Day      time.Weekday
	Start    int
	End      int
	Location *time.Location
}

// Window resolves and validates the configured surge window.
func (c Config) Window() (Window, error) {
	day, err := parseWeekday(c.SurgeDay)
	if err != nil {
		return Window{}, err
	}
	if c.SurgeStartHour < 0 || c.SurgeEndHour > hoursPerDay || c.SurgeStartHour >= c.SurgeEndHour {
		return Window{}, fmt.Errorf("invalid surge hours %d-%d", c.SurgeStartHour, c.SurgeEndHour)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return Window{}, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return Window{Day: day, Start: c.SurgeStartHour, End: c.SurgeEndHour, Location: loc}, nil
}

// Contains reports whether t falls inside the window, in local market time.
func (w Window) Contains(t time.Time) bool {
	local := t.In(w.Location)
	return local.Weekday() == w.Day && local.Hour() >= w.Start && local.Hour() < w.End
}

// StartOfDay returns local midnight of t's market day.
func (w Window) StartOfDay(t time.Time) time.Time {
	local := t.In(w.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, w.Location)
}

func (w Window) String() string {
	return fmt.Sprintf("%s %02d:00-%02d:00 %s", w.Day, w.Start, w.End, w.Location)
}

func parseWeekday(name string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), name) || strings.EqualFold(d.String()[:3], name) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown surge day %q", name)
}
