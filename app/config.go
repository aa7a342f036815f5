package app

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config selects the demo configuration. Durations are in milliseconds so the
// JSON form stays readable.
type Config struct {
	// Cores is the number of kernel instances, 1 or 2.
	Cores int `json:"cores"`

	BlinkPeriodMS      int `json:"blink_period_ms"`
	SamplePeriodMS     int `json:"sample_period_ms"`
	ControlPeriodMS    int `json:"control_period_ms"`
	SupervisorPeriodMS int `json:"supervisor_period_ms"`
	ReportPeriodMS     int `json:"report_period_ms"`

	// TaskBudgetMS is the execution budget of every user task.
	TaskBudgetMS int `json:"task_budget_ms"`

	// FaultEvery makes the control task of process 2 misbehave on every Nth
	// activation. A negative value disables fault injection.
	FaultEvery int `json:"fault_every"`
	// FailureThreshold suspends process 2 once it has failed this often.
	FailureThreshold uint32 `json:"failure_threshold"`

	// HoldOnHalt keeps Step returning nil after a kernel panic so the panic
	// screen stays visible.
	HoldOnHalt bool `json:"-"`
}

// DefaultConfig returns the built-in demo configuration.
func DefaultConfig() Config {
	c := Config{}
	applyDefaults(&c)
	return c
}

// ParseConfig reads a JSON configuration. Fields left out keep their defaults.
func ParseConfig(data []byte) (Config, error) {
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("app: parse config: %w", err)
	}
	applyDefaults(&c)
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadConfig reads a JSON configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("app: load config: %w", err)
	}
	return ParseConfig(data)
}

func applyDefaults(c *Config) {
	if c.Cores == 0 {
		c.Cores = 2
	}
	if c.BlinkPeriodMS == 0 {
		c.BlinkPeriodMS = 500
	}
	if c.SamplePeriodMS == 0 {
		c.SamplePeriodMS = 1
	}
	if c.ControlPeriodMS == 0 {
		c.ControlPeriodMS = 10
	}
	if c.SupervisorPeriodMS == 0 {
		c.SupervisorPeriodMS = 10
	}
	if c.ReportPeriodMS == 0 {
		c.ReportPeriodMS = 1000
	}
	if c.TaskBudgetMS == 0 {
		c.TaskBudgetMS = 5
	}
	if c.FaultEvery == 0 {
		c.FaultEvery = 7
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 20
	}
}

func (c Config) validate() error {
	if c.Cores < 1 || c.Cores > 2 {
		return fmt.Errorf("app: cores = %d, want 1 or 2", c.Cores)
	}
	for _, p := range []struct {
		name string
		ms   int
	}{
		{"blink_period_ms", c.BlinkPeriodMS},
		{"sample_period_ms", c.SamplePeriodMS},
		{"control_period_ms", c.ControlPeriodMS},
		{"supervisor_period_ms", c.SupervisorPeriodMS},
		{"report_period_ms", c.ReportPeriodMS},
		{"task_budget_ms", c.TaskBudgetMS},
	} {
		if p.ms <= 0 {
			return fmt.Errorf("app: %s = %d, want > 0", p.name, p.ms)
		}
	}
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
