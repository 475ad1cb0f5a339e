package cmd

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/autoheal/internal/config"
	"github.com/felixgeelhaar/autoheal/internal/deploy"
	"github.com/felixgeelhaar/autoheal/internal/diagnosis"
	"github.com/felixgeelhaar/autoheal/internal/errors"
	"github.com/felixgeelhaar/autoheal/internal/eval"
	"github.com/felixgeelhaar/autoheal/internal/fixgen"
	"github.com/felixgeelhaar/autoheal/internal/heal"
	"github.com/felixgeelhaar/autoheal/internal/health"
	"github.com/felixgeelhaar/autoheal/internal/log"
	"github.com/felixgeelhaar/autoheal/internal/metrics"
	"github.com/felixgeelhaar/autoheal/internal/patch"
	"github.com/felixgeelhaar/autoheal/internal/provider"
	"github.com/felixgeelhaar/autoheal/internal/rootcause"
	"github.com/felixgeelhaar/autoheal/internal/snapshot"
	"github.com/felixgeelhaar/autoheal/internal/store"
	"github.com/felixgeelhaar/autoheal/internal/ux"
)

// app is the per-invocation wiring built from autoheal.yaml.
type app struct {
	*CommandContext
	cfg      *config.Config
	logger   *log.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func newApp(cmd *cobra.Command) (*app, error) {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return nil, err
	}

	path := cc.ConfigPath
	if path == "" {
		if found, err := discoverConfig(); err == nil && found != "" {
			path = found
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Log
	if cc.LogLevel != "" {
		logCfg.Level = cc.LogLevel
	}
	logger := logCfg.Logger()
	log.SetDefaultLogger(logger)

	reg, m := metrics.NewRegistry()
	return &app{CommandContext: cc, cfg: cfg, logger: logger, registry: reg, metrics: m}, nil
}

// discoverConfig is swapped in tests.
var discoverConfig = func() (string, error) {
	return ux.DiscoverConfigFile(config.DefaultPath)
}

func (a *app) openStore() (*store.Store, error) {
	if dir := filepath.Dir(a.cfg.Store.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.Wrap(errors.ErrCodeDirectoryFailed, "failed to create store directory", err)
		}
	}
	return store.Open(a.cfg.Store.Path)
}

func (a *app) patchWriter() *patch.Writer {
	return patch.NewWriter(a.cfg.Patches.Dir)
}

func (a *app) analyzer() *rootcause.Analyzer {
	return rootcause.NewAnalyzer(rootcause.Thresholds{
		Critical: a.cfg.Diagnosis.CriticalRatio,
		High:     a.cfg.Diagnosis.HighRatio,
	})
}

func (a *app) diagnoserOptions(selectors []string) diagnosis.Options {
	return diagnosis.Options{
		Selectors:       append(append([]string(nil), a.cfg.Diagnosis.Selectors...), selectors...),
		ConsoleCapacity: a.cfg.Diagnosis.ConsoleCapacity,
		NetworkCapacity: a.cfg.Diagnosis.NetworkCapacity,
		Snapshot:        snapshot.Options{MaxHTMLLength: a.cfg.Diagnosis.MaxHTMLLength},
		Thresholds: rootcause.Thresholds{
			Critical: a.cfg.Diagnosis.CriticalRatio,
			High:     a.cfg.Diagnosis.HighRatio,
		},
	}
}

func (a *app) generator() (*fixgen.Generator, error) {
	oracle, err := provider.New(a.cfg.Oracle)
	if err != nil {
		return nil, err
	}
	opts := fixgen.PromptOptions{DOMBudget: a.cfg.Prompt.DOMBudget, KeepRawDOM: a.cfg.Prompt.KeepRawDOM}
	return fixgen.NewGenerator(oracle, opts, a.logger).WithObserver(a.metrics), nil
}

func (a *app) validator() (*eval.Validator, error) {
	runner, err := eval.NewCommandRunner(a.cfg.Tests, a.logger)
	if err != nil {
		return nil, err
	}
	return eval.NewValidator(runner, a.logger).WithObserver(a.metrics), nil
}

func (a *app) monitor() (health.Monitor, error) {
	if a.cfg.Monitor.URL == "" {
		return nil, errors.NewConfigInvalidError("monitor.url is required to watch rollout health")
	}
	return health.NewHTTPMonitor(a.cfg.Monitor.URL, &http.Client{Timeout: a.cfg.Monitor.Timeout}), nil
}

func (a *app) pipeline() (*deploy.Pipeline, error) {
	if a.cfg.Executor.URL == "" {
		return nil, errors.NewConfigInvalidError("executor.url is required to roll out fixes")
	}
	mon, err := a.monitor()
	if err != nil {
		return nil, err
	}
	executor := deploy.NewHTTPExecutor(a.cfg.Executor.URL, a.cfg.Executor.Token,
		&http.Client{Timeout: a.cfg.Executor.Timeout})

	p, err := deploy.NewPipeline(a.cfg.Deploy, executor, mon,
		deploy.WithObserver(a.metrics),
		deploy.WithLogger(a.logger))
	if err != nil {
		return nil, errors.NewConfigInvalidError(err.Error())
	}
	return p, nil
}

// healer wires the full pipeline. The caller closes the returned store.
func (a *app) healer() (*heal.Healer, *store.Store, error) {
	gen, err := a.generator()
	if err != nil {
		return nil, nil, err
	}
	val, err := a.validator()
	if err != nil {
		return nil, nil, err
	}
	pipe, err := a.pipeline()
	if err != nil {
		return nil, nil, err
	}
	st, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}

	h, err := heal.New(heal.Deps{
		Analyzer:  a.analyzer(),
		Generator: gen,
		Validator: val,
		Deployer:  pipe,
		Records:   st,
		Patches:   a.patchWriter(),
		Recorder:  a.metrics,
		Logger:    a.logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return h, st, nil
}
