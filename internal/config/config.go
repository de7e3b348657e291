// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the engine's own settings: scheduler concurrency,
// HTTP client timeouts, retry/backoff constants, and logging defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	WPSClient WPSClientConfig `yaml:"wps_client"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SchedulerConfig bounds how the Scheduler runs worker goroutines.
type SchedulerConfig struct {
	// MaxInflightTasks caps the number of worker goroutines running at
	// once across the whole graph, independent of any single parallel
	// group's max_processes. Zero means unbounded.
	MaxInflightTasks int `yaml:"max_inflight_tasks"`

	// EdgeBufferSize is the channel buffer size for each graph edge.
	EdgeBufferSize int `yaml:"edge_buffer_size"`
}

// WPSClientConfig configures the remote WPS client: HTTP timeouts, the
// status-poll delays from spec section 4.1, and transport-level retry.
type WPSClientConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// PollSuccessDelay and PollFailureDelay implement the fixed-delay
	// long-poll rule: 3s after a successful status read, 5s after a
	// failed one.
	PollSuccessDelay time.Duration `yaml:"poll_success_delay"`
	PollFailureDelay time.Duration `yaml:"poll_failure_delay"`

	// MaxConsecutivePollFailures is the retry budget before a poll loop
	// gives up with StatusReadFailed. Default tolerates 5 consecutive
	// failures and fails on the 6th.
	MaxConsecutivePollFailures int `yaml:"max_consecutive_poll_failures"`

	// TransportMaxAttempts/InitialBackoff/MaxBackoff/BackoffFactor tune
	// the exponential-backoff retry wrapping describe/execute calls,
	// distinct from the fixed-delay poll loop above.
	TransportMaxAttempts  int           `yaml:"transport_max_attempts"`
	TransportInitBackoff  time.Duration `yaml:"transport_initial_backoff"`
	TransportMaxBackoff   time.Duration `yaml:"transport_max_backoff"`
	TransportBackoffMul   float64       `yaml:"transport_backoff_factor"`

	// RequestsPerSecond caps outbound requests per distinct remote URL.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	RateBurst         int     `yaml:"rate_burst"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Scheduler: SchedulerConfig{
			MaxInflightTasks: 0,
			EdgeBufferSize:   16,
		},
		WPSClient: WPSClientConfig{
			RequestTimeout:             30 * time.Second,
			PollSuccessDelay:           3 * time.Second,
			PollFailureDelay:           5 * time.Second,
			MaxConsecutivePollFailures: 5,
			TransportMaxAttempts:       3,
			TransportInitBackoff:       500 * time.Millisecond,
			TransportMaxBackoff:        10 * time.Second,
			TransportBackoffMul:        2.0,
			RequestsPerSecond:          5,
			RateBurst:                  5,
		},
	}
}

// Load reads a YAML configuration file, applying it on top of Default.
// A missing file is not an error; the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return cfg, nil
}

// FromEnv overlays environment variables on top of cfg. Supported
// variables mirror the logging package's own WPSFLOW_* convention.
func FromEnv(cfg *Config) *Config {
	if cfg == nil {
		cfg = Default()
	}

	if level := os.Getenv("WPSFLOW_LOG_LEVEL"); level != "" {
		cfg.Log.Level = strings.ToLower(level)
	}
	if format := os.Getenv("WPSFLOW_LOG_FORMAT"); format != "" {
		cfg.Log.Format = strings.ToLower(format)
	}
	if n := os.Getenv("WPSFLOW_MAX_INFLIGHT_TASKS"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			cfg.Scheduler.MaxInflightTasks = v
		}
	}

	return cfg
}
