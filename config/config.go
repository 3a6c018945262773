// Package config loads scheduler settings from YAML and hot-reloads allocation changes.
package config

import (
	"errors"
	"fmt"
	"os"

	yaml "github.com/goccy/go-yaml"

	"github.com/Swind/go-task-scheduler/core"
)

const (
	defaultName        = "tasks-scheduler"
	defaultLogLevel    = "info"
	defaultHistorySize = 100
)

// Allocation mirrors one tier of a core.ThreadAllocationsMap.
type Allocation struct {
	Priority int `yaml:"priority"`
	Slots    int `yaml:"slots"`
}

// Config mirrors tasksched.yaml
type Config struct {
	Name        string       `yaml:"name"`
	Workers     int          `yaml:"workers"` // 0 = one worker per slot
	LogLevel    string       `yaml:"log_level"`
	HistorySize int          `yaml:"history_size"`
	Allocations []Allocation `yaml:"allocations"`
}

// Default returns the settings used when no file is given: two user-visible slots and
// one slot reserved for user-blocking work.
func Default() Config {
	return Config{
		Name:        defaultName,
		LogLevel:    defaultLogLevel,
		HistorySize: defaultHistorySize,
		Allocations: []Allocation{
			{Priority: int(core.TaskPriorityUserVisible), Slots: 2},
			{Priority: int(core.TaskPriorityUserBlocking), Slots: 1},
		},
	}
}

// Load reads YAML and overrides defaults; empty path = defaults only.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults, clamps out-of-range values and validates.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}

	// sanity clamps
	if cfg.Name == "" {
		cfg.Name = defaultName
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if cfg.Workers < 0 {
		cfg.Workers = 0
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects negative or duplicate tiers. An empty allocation list is valid and
// means nothing runs until allocations are added.
func (c Config) Validate() error {
	var errs []error
	seen := make(map[int]bool, len(c.Allocations))
	for i, a := range c.Allocations {
		if a.Priority < 0 {
			errs = append(errs, fmt.Errorf("allocations[%d]: priority %d is negative", i, a.Priority))
		}
		if a.Slots < 0 {
			errs = append(errs, fmt.Errorf("allocations[%d]: slots %d is negative", i, a.Slots))
		}
		if seen[a.Priority] {
			errs = append(errs, fmt.Errorf("allocations[%d]: duplicate priority %d", i, a.Priority))
		}
		seen[a.Priority] = true
	}
	return errors.Join(errs...)
}

// ThreadAllocations converts the configured tiers into a scheduler allocation map.
func (c Config) ThreadAllocations() core.ThreadAllocationsMap {
	tiers := make(map[core.TaskPriority]int, len(c.Allocations))
	for _, a := range c.Allocations {
		tiers[core.TaskPriority(a.Priority)] = a.Slots
	}
	return core.NewThreadAllocationsMap(tiers)
}

// PoolWorkers is the worker count for the thread pool: Workers when set, otherwise
// the total slot count (at least one).
func (c Config) PoolWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return max(core.ComputeThreadsCount(c.ThreadAllocations()), 1)
}
