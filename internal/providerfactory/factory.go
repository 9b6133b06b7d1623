// internal/providerfactory/factory.go
package providerfactory

import (
	"fmt"

	"github.com/mwiater/flowpipe/internal/appconfig"
	"github.com/mwiater/flowpipe/internal/logging"
	"github.com/mwiater/flowpipe/internal/metrics"
	"github.com/mwiater/flowpipe/internal/providers"
	"github.com/mwiater/flowpipe/internal/providers/flowise"
)

// NewWorkflowProvider builds the Flowise provider for cfg and wraps it with metrics
// collection when metrics are enabled. A nil aggregator with metrics enabled gets
// a fresh one backed by cfg.MetricsFile.
func NewWorkflowProvider(cfg *appconfig.Config, aggregator *metrics.Aggregator) (providers.WorkflowProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config provided to provider factory")
	}

	var provider providers.WorkflowProvider = flowise.New(cfg)
	logging.LogEvent("Flowise provider ready: %s", cfg.BaseURL())

	if cfg.Metrics {
		if aggregator == nil {
			aggregator = metrics.NewAggregator(cfg.MetricsFile, metrics.DefaultSaveInterval)
		}
		provider = metrics.NewProvider(provider, aggregator)
	}

	return provider, nil
}
