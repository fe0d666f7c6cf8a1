// Package config loads the queue service configuration from the process
// environment, plus an optional YAML file for the weekly operating-hours
// schedule.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/workshop-queue/internal/queue"
)

// EventMode selects how domain events reach subscribers.
type EventMode string

const (
	// EventModePush delivers events synchronously from the write path.
	EventModePush EventMode = "push"
	// EventModePoll synthesizes events by periodically diffing the store.
	EventModePoll EventMode = "poll"
)

// Config captures environment driven configuration values for the queue service.
type Config struct {
	HTTPPort              int
	SQLiteDSN             string
	AverageServiceMinutes int
	CodeTTL               time.Duration
	CodeAttempts          int
	ClaimBudget           int
	RetryMaxAttempts      int
	RetryBaseDelay        time.Duration
	RetryMaxDelay         time.Duration
	CacheCapacity         int
	CacheTTL              time.Duration
	ExpirySweepInterval   time.Duration
	HoursSweepInterval    time.Duration
	EventMode             EventMode
	PollInterval          time.Duration
	OperatingHoursPath    string
}

// Load parses configuration values from the current process environment.
//
// The loader applies defaults for every optional field while validating the
// values that are present and reporting localized error messages for invalid
// entries.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:              8080,
		SQLiteDSN:             "file:queue.db?_foreign_keys=on",
		AverageServiceMinutes: 15,
		CodeTTL:               15 * time.Minute,
		CodeAttempts:          5,
		ClaimBudget:           3,
		RetryMaxAttempts:      3,
		RetryBaseDelay:        100 * time.Millisecond,
		RetryMaxDelay:         5 * time.Second,
		CacheCapacity:         256,
		CacheTTL:              5 * time.Minute,
		ExpirySweepInterval:   60 * time.Second,
		HoursSweepInterval:    5 * time.Minute,
		EventMode:             EventModePush,
		PollInterval:          5 * time.Second,
	}

	invalid := make([]string, 0, 2)

	readInt := func(name string, min int, target *int) {
		value := strings.TrimSpace(os.Getenv(name))
		if value == "" {
			return
		}
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < min {
			invalid = append(invalid, name)
			return
		}
		*target = parsed
	}
	readDuration := func(name string, target *time.Duration) {
		value := strings.TrimSpace(os.Getenv(name))
		if value == "" {
			return
		}
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			invalid = append(invalid, name)
			return
		}
		*target = parsed
	}

	readInt("QUEUED_HTTP_PORT", 1, &cfg.HTTPPort)
	readInt("QUEUED_AVERAGE_SERVICE_MINUTES", 1, &cfg.AverageServiceMinutes)
	readInt("QUEUED_CODE_ATTEMPTS", 1, &cfg.CodeAttempts)
	readInt("QUEUED_CLAIM_BUDGET", 1, &cfg.ClaimBudget)
	readInt("QUEUED_RETRY_MAX_ATTEMPTS", 1, &cfg.RetryMaxAttempts)
	readInt("QUEUED_CACHE_CAPACITY", 1, &cfg.CacheCapacity)
	readDuration("QUEUED_CODE_TTL", &cfg.CodeTTL)
	readDuration("QUEUED_RETRY_BASE_DELAY", &cfg.RetryBaseDelay)
	readDuration("QUEUED_RETRY_MAX_DELAY", &cfg.RetryMaxDelay)
	readDuration("QUEUED_CACHE_TTL", &cfg.CacheTTL)
	readDuration("QUEUED_EXPIRY_SWEEP_INTERVAL", &cfg.ExpirySweepInterval)
	readDuration("QUEUED_HOURS_SWEEP_INTERVAL", &cfg.HoursSweepInterval)
	readDuration("QUEUED_POLL_INTERVAL", &cfg.PollInterval)

	if dsn := strings.TrimSpace(os.Getenv("QUEUED_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}
	if path := strings.TrimSpace(os.Getenv("QUEUED_OPERATING_HOURS_FILE")); path != "" {
		cfg.OperatingHoursPath = path
	}
	if mode := strings.TrimSpace(os.Getenv("QUEUED_EVENT_MODE")); mode != "" {
		switch EventMode(mode) {
		case EventModePush, EventModePoll:
			cfg.EventMode = EventMode(mode)
		default:
			invalid = append(invalid, "QUEUED_EVENT_MODE")
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// operatingHoursFile is the YAML document shape for the schedule file.
type operatingHoursFile struct {
	OperatingHours queue.WeeklyHours `yaml:"operating_hours"`
}

// LoadOperatingHours reads the weekly schedule from a YAML file. An empty
// path returns the default schedule.
func LoadOperatingHours(path string) (queue.WeeklyHours, error) {
	if strings.TrimSpace(path) == "" {
		return queue.DefaultWeeklyHours(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read operating hours file: %w", err)
	}

	var doc operatingHoursFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse operating hours file: %w", err)
	}
	if len(doc.OperatingHours) == 0 {
		return queue.DefaultWeeklyHours(), nil
	}
	if err := doc.OperatingHours.Validate(); err != nil {
		return nil, err
	}
	return doc.OperatingHours, nil
}
