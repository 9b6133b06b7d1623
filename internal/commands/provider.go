// internal/commands/provider.go
package flowpipe

import (
	"fmt"

	"github.com/mwiater/flowpipe/internal/appconfig"
	"github.com/mwiater/flowpipe/internal/logging"
	"github.com/mwiater/flowpipe/internal/metrics"
	"github.com/mwiater/flowpipe/internal/pipe"
	"github.com/mwiater/flowpipe/internal/providerfactory"
)

// newProvider builds the workflow provider. Tests replace it.
var newProvider = providerfactory.NewWorkflowProvider

// buildPipe validates cfg and returns a pipe plus the cleanup that closes the
// provider and flushes metrics.
func buildPipe(cfg *appconfig.Config, aggregator *metrics.Aggregator) (*pipe.Pipe, func(), error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("configuration is not initialized")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	ownAggregator := false
	if cfg.Metrics && aggregator == nil {
		aggregator = metrics.NewAggregator(cfg.MetricsFile, metrics.DefaultSaveInterval)
		ownAggregator = true
	}

	provider, err := newProvider(cfg, aggregator)
	if err != nil {
		return nil, nil, fmt.Errorf("create provider: %w", err)
	}

	cleanup := func() {
		if err := provider.Close(); err != nil {
			logging.LogEvent("close provider: %v", err)
		}
		if ownAggregator {
			if err := aggregator.Close(); err != nil {
				logging.LogEvent("flush metrics: %v", err)
			}
		}
	}
	return pipe.New(cfg, provider), cleanup, nil
}
