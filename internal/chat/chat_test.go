package chat

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"testing"

	"github.com/mwiater/flowpipe/internal/appconfig"
	"github.com/mwiater/flowpipe/internal/metrics"
	"github.com/mwiater/flowpipe/internal/pipe"
	"github.com/mwiater/flowpipe/internal/providers"
)

type stubProvider struct{ closed int }

func (s *stubProvider) ListWorkflows(context.Context) ([]providers.Workflow, error) {
	return []providers.Workflow{{ID: "wf-1", Name: "Support"}}, nil
}

func (s *stubProvider) Predict(context.Context, string, providers.PredictionRequest) (providers.Prediction, error) {
	return providers.Prediction{Text: "ok"}, nil
}

func (s *stubProvider) StreamPredict(context.Context, string, providers.PredictionRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) { yield("ok", nil) }
}

func (s *stubProvider) Close() error {
	s.closed++
	return nil
}

func validConfig() *appconfig.Config {
	cfg := appconfig.Default()
	cfg.FlowiseURL = "http://flowise.local:3000"
	return &cfg
}

func TestRunNilConfig(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), nil,
		func(*appconfig.Config, *metrics.Aggregator) (providers.WorkflowProvider, error) {
			t.Fatal("provider should not be built")
			return nil, nil
		},
		func(context.Context, *appconfig.Config, *pipe.Pipe) error {
			t.Fatal("GUI should not start")
			return nil
		},
	)
	if err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestRunInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := appconfig.Default()
	err := Run(context.Background(), &cfg, nil, nil)
	if err == nil {
		t.Fatal("expected validation error without a flowise URL")
	}
}

func TestRunStartsGUIAndClosesProvider(t *testing.T) {
	t.Parallel()

	stub := &stubProvider{}
	calledGUI := 0
	err := Run(context.Background(), validConfig(),
		func(cfg *appconfig.Config, agg *metrics.Aggregator) (providers.WorkflowProvider, error) {
			if agg != nil {
				t.Fatal("expected no aggregator with metrics disabled")
			}
			return stub, nil
		},
		func(ctx context.Context, cfg *appconfig.Config, p *pipe.Pipe) error {
			calledGUI++
			if ctx == nil || p == nil {
				t.Fatal("expected context and pipe")
			}
			models, err := p.Discover(ctx)
			if err != nil || len(models) != 1 {
				t.Fatalf("Discover = %v, %v", models, err)
			}
			return nil
		},
	)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if calledGUI != 1 {
		t.Fatalf("expected GUI to run once, got %d", calledGUI)
	}
	if stub.closed != 1 {
		t.Fatalf("expected provider closed once, got %d", stub.closed)
	}
}

func TestRunPassesAggregatorWhenMetricsEnabled(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Metrics = true
	cfg.MetricsFile = filepath.Join(t.TempDir(), "metrics.json")

	var got *metrics.Aggregator
	err := Run(context.Background(), cfg,
		func(_ *appconfig.Config, agg *metrics.Aggregator) (providers.WorkflowProvider, error) {
			got = agg
			return &stubProvider{}, nil
		},
		func(context.Context, *appconfig.Config, *pipe.Pipe) error { return nil },
	)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if got == nil {
		t.Fatal("expected aggregator with metrics enabled")
	}
}

func TestRunPropagatesErrors(t *testing.T) {
	t.Parallel()

	factoryErr := errors.New("boom")
	err := Run(context.Background(), validConfig(),
		func(*appconfig.Config, *metrics.Aggregator) (providers.WorkflowProvider, error) {
			return nil, factoryErr
		},
		func(context.Context, *appconfig.Config, *pipe.Pipe) error { return nil },
	)
	if !errors.Is(err, factoryErr) {
		t.Fatalf("expected factory error, got %v", err)
	}

	guiErr := errors.New("tty gone")
	err = Run(context.Background(), validConfig(),
		func(*appconfig.Config, *metrics.Aggregator) (providers.WorkflowProvider, error) {
			return &stubProvider{}, nil
		},
		func(context.Context, *appconfig.Config, *pipe.Pipe) error { return guiErr },
	)
	if !errors.Is(err, guiErr) {
		t.Fatalf("expected GUI error, got %v", err)
	}
}
