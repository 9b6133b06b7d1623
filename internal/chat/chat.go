// Package chat wires a workflow provider and pipe for the interactive chat UI.
package chat

import (
	"context"
	"fmt"

	"github.com/mwiater/flowpipe/internal/appconfig"
	"github.com/mwiater/flowpipe/internal/logging"
	"github.com/mwiater/flowpipe/internal/metrics"
	"github.com/mwiater/flowpipe/internal/pipe"
	"github.com/mwiater/flowpipe/internal/providers"
)

// ProviderFactory builds the provider a chat session talks to.
type ProviderFactory func(*appconfig.Config, *metrics.Aggregator) (providers.WorkflowProvider, error)

// GUI runs the interactive session until the user quits.
type GUI func(context.Context, *appconfig.Config, *pipe.Pipe) error

// Run starts the chat UI for cfg. Metrics collected during the session are flushed
// before Run returns.
func Run(ctx context.Context, cfg *appconfig.Config, newProvider ProviderFactory, startGUI GUI) error {
	if cfg == nil {
		return fmt.Errorf("configuration is not initialized")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var aggregator *metrics.Aggregator
	if cfg.Metrics {
		aggregator = metrics.NewAggregator(cfg.MetricsFile, metrics.DefaultSaveInterval)
		defer func() {
			if err := aggregator.Close(); err != nil {
				logging.LogEvent("[CHAT] metrics flush failed: %v", err)
			}
		}()
	}

	provider, err := newProvider(cfg, aggregator)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}
	defer provider.Close()

	logging.LogEvent("[CHAT] session starting against %s", cfg.BaseURL())
	return startGUI(ctx, cfg, pipe.New(cfg, provider))
}
