package quill

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/redferne/quill/pkg/agent"
	"github.com/redferne/quill/pkg/llm"
	"github.com/redferne/quill/pkg/logging"
	"github.com/redferne/quill/pkg/metrics"
	"github.com/redferne/quill/pkg/observers"
	"github.com/redferne/quill/pkg/redact"
	"github.com/redferne/quill/pkg/runner"
	"github.com/redferne/quill/pkg/tools"
)

// Engine assembles a configured chat agent with its provider adapter,
// tool registry, and observer fan-out, and owns their shutdown order.
type Engine struct {
	cfg        Config
	agent      *agent.Agent
	adapter    llm.LLMAdapter
	providers  *ProviderRegistry
	asyncObs   *metrics.AsyncObserver
	transcript *observers.TranscriptObserver
	usage      *observers.UsageObserver
	runner     runner.Runner
	ctx        context.Context
	cancel     context.CancelFunc
}

type EngineOptions struct {
	Config    Config
	Providers *ProviderRegistry
	Tools     *tools.Registry
	// Extra observers joined into the fan-out next to the built-in ones.
	Observers []metrics.Observer
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	log := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	log.Info("quill_init",
		"environment", cfg.Environment,
		"llm_provider", cfg.Vendors.LLM.Provider,
	)

	latencyObs := observers.NewLatencyObserver(log)
	logObs := observers.NewLoggerObserver(log)
	var transcriptObs *observers.TranscriptObserver
	var usageObs *observers.UsageObserver
	obsList := []metrics.Observer{latencyObs, logObs}
	if dir := strings.TrimSpace(cfg.Observability.ArtifactsDir); dir != "" {
		if cfg.Observability.RetentionDays > 0 {
			_, _ = observers.PurgeArtifacts(dir, time.Duration(cfg.Observability.RetentionDays)*24*time.Hour)
		}
		transcriptObs = observers.NewTranscriptObserver(dir)
		usageObs = observers.NewUsageObserver(dir)
		obsList = append(obsList, transcriptObs, usageObs)
	}
	obsList = append(obsList, opts.Observers...)
	var root metrics.Observer = observers.NewMultiObserver(obsList...)
	if rate := cfg.Observability.SampleRate; rate > 0 && rate < 1 {
		root = metrics.NewSamplingObserver(root, rate)
	}
	asyncObs := metrics.NewAsyncObserver(root, 2048)

	providers := opts.Providers
	if providers == nil {
		providers = DefaultRegistry()
	}
	adapter, err := providers.BuildLLM(cfg.Vendors.LLM.Provider, cfg)
	if err != nil {
		asyncObs.Close()
		return nil, err
	}
	if cb, ok := adapter.(*llm.CircuitBreakerAdapter); ok {
		cb.SetObserver(asyncObs)
	}

	ag := agent.New(adapter, opts.Tools,
		agent.WithSystemPrompt(cfg.Agent.SystemPrompt),
		agent.WithObserver(asyncObs),
		agent.WithLogger(logging.NewComponentLogger(log, "agent")),
	)

	hooks := runner.Hooks{
		OnStart: func() {
			log.Info("engine_ready",
				"provider", adapter.Name(),
				"tools", toolNames(opts.Tools),
			)
		},
		OnStop: func() {
			if transcriptObs != nil {
				_ = transcriptObs.Close()
			}
			if usageObs != nil {
				_ = usageObs.Close()
			}
			log.Info("shutdown", "goroutines", runtime.NumGoroutine())
		},
	}

	// Drain flushes queued events into the fan-out before OnStop closes
	// the artifact files behind them.
	drainer := runner.DrainerFunc(func() error {
		asyncObs.Close()
		return nil
	})

	lr := runner.NewLifecycleRunner(drainer, hooks, 30*time.Second)

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:        cfg,
		agent:      ag,
		adapter:    adapter,
		providers:  providers,
		asyncObs:   asyncObs,
		transcript: transcriptObs,
		usage:      usageObs,
		runner:     lr,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

func toolNames(reg *tools.Registry) []string {
	if reg == nil {
		return nil
	}
	return reg.Names()
}

func (e *Engine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		_ = e.runner.Run(ctx)
	}()
	return nil
}

func (e *Engine) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}
	return e.runner.Stop()
}

func (e *Engine) Agent() *agent.Agent {
	return e.agent
}

func (e *Engine) ProviderRegistry() *ProviderRegistry {
	return e.providers
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) State() runner.State {
	return e.runner.State()
}

func (e *Engine) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

func (e *Engine) Health() error {
	if e.adapter == nil {
		return fmt.Errorf("missing llm adapter")
	}
	return nil
}
