// internal/commands/serve.go
package flowpipe

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mwiater/flowpipe/internal/logging"
	"github.com/mwiater/flowpipe/internal/metrics"
	"github.com/mwiater/flowpipe/internal/pipe"
	"github.com/mwiater/flowpipe/internal/server"
	"github.com/spf13/cobra"
)

// serveCmd implements 'serve', which exposes the Flowise workflows through an
// OpenAI-compatible API until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve Flowise workflows as an OpenAI-compatible API",
	Long: `The 'serve' command starts an HTTP server with /v1/models and /v1/chat/completions
so OpenWebUI (or any OpenAI client) can chat with Flowise workflows. Status updates are
sent as SSE comments on streamed responses.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return fmt.Errorf("configuration is not initialized")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var aggregator *metrics.Aggregator
		if cfg.Metrics {
			aggregator = metrics.NewAggregator(cfg.MetricsFile, metrics.DefaultSaveInterval)
			defer func() {
				if err := aggregator.Close(); err != nil {
					logging.LogEvent("flush metrics: %v", err)
				}
			}()
		}

		p, cleanup, err := buildPipe(cfg, aggregator)
		if err != nil {
			return err
		}
		defer cleanup()

		if models, err := p.Discover(ctx); err != nil {
			logging.LogEvent("initial workflow discovery failed: %s", pipe.ErrorMessage(err))
		} else {
			logging.LogEvent("discovered %d workflows", len(models))
		}

		return server.New(cfg, p, aggregator).ListenAndServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "address to listen on (default :8080)")
	serveCmd.Flags().String("serverApiKey", "", "require this bearer key on /v1 routes")
	_ = cfgViper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	_ = cfgViper.BindPFlag("serverApiKey", serveCmd.Flags().Lookup("serverApiKey"))
}
