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

package workflow

import (
	"context"
	"log/slog"

	wflog "github.com/wpsflow/engine/internal/log"
	"github.com/wpsflow/engine/internal/config"
	"github.com/wpsflow/engine/internal/wpsclient"
)

// Run compiles def into a Graph and drives it to completion with a
// fresh Scheduler and Client scoped to this one run, reporting through
// the caller-supplied Monitor and returning a Summary. The caller owns
// monitor and may poll its ProgressSnapshot concurrently while Run is
// still in flight. A non-nil error is a *WorkflowInvalidError or a
// *RemoteUnavailableError (compile-time; the latter when a
// describeprocess call fails) or a *WorkflowFailedError (one or more
// worker exceptions).
func Run(ctx context.Context, def *Definition, monitor *Monitor, cfg *config.Config, headers map[string]string) (Summary, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	logCfg := wflog.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = wflog.Format(cfg.Log.Format)
	logger := wflog.New(logCfg, monitor)
	logger = wflog.WithRunContext(logger, monitor.runID, def.Name)
	slog.SetDefault(logger)

	client := wpsclient.New(
		wpsclient.WithRateLimit(cfg.WPSClient.RequestsPerSecond, cfg.WPSClient.RateBurst),
		wpsclient.WithPollDelays(cfg.WPSClient.PollSuccessDelay, cfg.WPSClient.PollFailureDelay, cfg.WPSClient.MaxConsecutivePollFailures),
		wpsclient.WithRetryConfig(&wpsclient.RetryConfig{
			MaxAttempts:    cfg.WPSClient.TransportMaxAttempts,
			InitialBackoff: cfg.WPSClient.TransportInitBackoff,
			MaxBackoff:     cfg.WPSClient.TransportMaxBackoff,
			BackoffFactor:  cfg.WPSClient.TransportBackoffMul,
		}),
	)

	graph, err := BuildGraph(def, client, monitor, headers)
	if err != nil {
		return Summary{}, err
	}
	logger.Info("starting run", slog.Int("tasks", len(graph.nodes)))

	sched := NewScheduler(graph, client, monitor, cfg.Scheduler.EdgeBufferSize)
	if err := sched.Run(ctx); err != nil {
		return Summary{}, err
	}

	if monitor.Failed() {
		return Summary{}, monitor.Err()
	}

	return BuildSummary(def.Name, monitor), nil
}
