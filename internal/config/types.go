package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Driver controls the tick loop that pumps the scheduler.
	Driver DriverConfig `json:"driver"`

	// Journal controls the optional failure journal (sqlite).
	Journal *JournalConfig `json:"journal,omitempty"`

	// Jobs are cron-triggered routines.
	Jobs []JobConfig `json:"jobs,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
	File    struct {
		Enabled bool   `json:"enabled"`
		Path    string `json:"path,omitempty"`
	} `json:"file"`
}

// DriverConfig tunes the scheduler pump.
//
// All durations are Go duration strings (e.g. "10ms", "1s").
//
// Defaults (when fields are omitted/zero):
//   - tick_interval: "10ms"
//   - op_queue: 256
type DriverConfig struct {
	TickInterval string `json:"tick_interval,omitempty"`
	OpQueue      int    `json:"op_queue,omitempty"`
}

// JournalConfig controls failure persistence.
//
// Example:
//
//	"journal": { "enabled": true, "path": "./corund.db", "keep": 1000 }
type JournalConfig struct {
	Enabled     bool   `json:"enabled"`
	Path        string `json:"path,omitempty"`
	Keep        int    `json:"keep,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// JobConfig describes one recurring routine.
//
// Schedule is a standard 5-field cron expression (robfig/cron). Program names
// a built-in program; Ticks/Width/Delay parameterize it.
type JobConfig struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Program  string `json:"program"`

	Ticks int    `json:"ticks,omitempty"`
	Width int    `json:"width,omitempty"`
	Delay string `json:"delay,omitempty"` // Go duration string
}

const (
	defaultTickInterval = 10 * time.Millisecond
	defaultOpQueue      = 256
	defaultJournalKeep  = 1000
)

// Validate checks cross-field constraints and duration syntax. It does not
// mutate cfg; use the accessor methods for defaulted values.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := ParseDurationOrDefault("driver.tick_interval", c.Driver.TickInterval, defaultTickInterval); err != nil {
		return err
	}
	if c.Driver.OpQueue < 0 {
		return fmt.Errorf("driver.op_queue: must be >= 0")
	}
	if j := c.Journal; j != nil && j.Enabled {
		if strings.TrimSpace(j.Path) == "" {
			return fmt.Errorf("journal.path: required when journal is enabled")
		}
		if j.Keep < 0 {
			return fmt.Errorf("journal.keep: must be >= 0")
		}
		if _, err := ParseDurationField("journal.busy_timeout", j.BusyTimeout); err != nil {
			return err
		}
	}
	seen := make(map[string]struct{}, len(c.Jobs))
	for i, j := range c.Jobs {
		path := fmt.Sprintf("jobs[%d]", i)
		if strings.TrimSpace(j.Name) == "" {
			return fmt.Errorf("%s.name: required", path)
		}
		if _, dup := seen[j.Name]; dup {
			return fmt.Errorf("%s.name: duplicate %q", path, j.Name)
		}
		seen[j.Name] = struct{}{}
		if strings.TrimSpace(j.Schedule) == "" {
			return fmt.Errorf("%s.schedule: required", path)
		}
		if strings.TrimSpace(j.Program) == "" {
			return fmt.Errorf("%s.program: required", path)
		}
		if j.Ticks < 0 || j.Width < 0 {
			return fmt.Errorf("%s: ticks and width must be >= 0", path)
		}
		if _, err := ParseDurationField(path+".delay", j.Delay); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) TickInterval() time.Duration {
	d, err := ParseDurationOrDefault("driver.tick_interval", c.Driver.TickInterval, defaultTickInterval)
	if err != nil {
		return defaultTickInterval
	}
	return d
}

func (c *Config) OpQueue() int {
	if c.Driver.OpQueue <= 0 {
		return defaultOpQueue
	}
	return c.Driver.OpQueue
}

func (j *JournalConfig) KeepOrDefault() int {
	if j == nil || j.Keep <= 0 {
		return defaultJournalKeep
	}
	return j.Keep
}

func (j *JobConfig) DelayOrZero() time.Duration {
	d, err := ParseDurationField("delay", j.Delay)
	if err != nil {
		return 0
	}
	return d
}
