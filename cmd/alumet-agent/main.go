// Command alumet-agent runs the measurement pipeline: it loads a TOML
// configuration, starts every built-in plugin through the staged
// lifecycle, and serves the pipeline until SIGINT or SIGTERM (or, for
// exec, until the child exits). A ShutdownMessage sent through the
// control plane stops the pipeline but does not end the process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sa-mf/alumet-agent/internal/config"
	"github.com/sa-mf/alumet-agent/internal/eventbus"
	"github.com/sa-mf/alumet-agent/internal/logging"
	"github.com/sa-mf/alumet-agent/internal/metricregistry"
	"github.com/sa-mf/alumet-agent/internal/pipeline"
	"github.com/sa-mf/alumet-agent/internal/plugin"
	"github.com/sa-mf/alumet-agent/internal/selfmetrics"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "alumet-agent",
		Short: "Measurement pipeline agent",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "alumet-config.toml", "path to the agent's TOML configuration file")

	root.AddCommand(newRunCommand())
	root.AddCommand(newExecCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(64)
	}
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context())
		},
	}
}

func newExecCommand() *cobra.Command {
	return &cobra.Command{
		Use:                "exec COMMAND [ARGS...]",
		Short:              "Run the agent alongside a single external command",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("exec requires a command to run")
			}
			return runAgentWithExec(cmd.Context(), args[0], args[1:])
		},
	}
}

// agentRuntime bundles everything a running agent needs to shut down
// cleanly, shared by the plain run path and the exec path.
type agentRuntime struct {
	logger           *zap.Logger
	bus              *eventbus.Bus
	manager          *plugin.Manager
	controlPlane     *pipeline.ControlPlane
	metricsSrvCancel context.CancelFunc
}

func startAgent() (*agentRuntime, error) {
	logger, err := logging.New()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	raw, meta, err := config.Load(configPath)
	if err != nil {
		logger.Warn("no usable configuration file found; continuing with defaults", zap.String("path", configPath), zap.Error(err))
		raw = &config.RawConfig{Agent: config.DefaultAgentConfig()}
	}

	metrics := metricregistry.New()
	sources := pipeline.NewSourceRegistry()
	transforms := pipeline.NewTransformRegistry()
	outputs := pipeline.NewOutputRegistry()
	bus := eventbus.New()
	selfReg := selfmetrics.New()

	scheduler := pipeline.NewScheduler(raw.Agent.WorkerThreads, logger)
	if raw.Agent.PriorityWorkerThreads > 0 {
		if err := scheduler.EnsurePriorityScheduler(raw.Agent.PriorityWorkerThreads); err != nil {
			logger.Warn("priority scheduler unavailable; priority-class sources run on the normal scheduler", zap.Error(err))
		}
	}
	selfReg.PrioritySchedulerDegraded.Set(boolToFloat(scheduler.IsPriorityDegraded()))

	executor := pipeline.NewExecutor(sources, transforms, outputs, scheduler, logger)
	executor.OnBufferDropped = func(key pipeline.ElementKey, n int) {
		selfReg.BuffersDropped.WithLabelValues(key.String()).Add(float64(n))
	}
	executor.OnPollError = func(key pipeline.ElementKey, kind string) {
		selfReg.PollErrors.WithLabelValues(key.String(), kind).Inc()
	}

	controlPlane := pipeline.NewControlPlane(executor, sources, transforms, outputs, logger)
	controlPlane.Run()

	manager := plugin.NewManager(metrics, sources, transforms, outputs, bus, logger)
	manager.LoadAndStart(resolvePluginConfigs(raw, meta, logger))
	manager.RunPreStart()
	manager.RunPostStart(controlPlane.Handle())

	report := manager.Report()
	logger.Info("plugins loaded",
		zap.Strings("plugins", report.Loaded),
		zap.Int("metrics", report.Metrics),
		zap.Int("sources", report.Sources),
		zap.Int("transforms", report.Transforms),
		zap.Int("outputs", report.Outputs),
	)
	selfReg.SourcesActive.Set(float64(report.Sources))
	selfReg.TransformsActive.Set(float64(report.Transforms))
	selfReg.OutputsActive.Set(float64(report.Outputs))

	var metricsCancel context.CancelFunc
	if raw.Agent.SelfMetricsAddr != "" {
		metricsSrv := selfReg.NewServer(raw.Agent.SelfMetricsAddr)
		var metricsCtx context.Context
		metricsCtx, metricsCancel = context.WithCancel(context.Background())
		go func() {
			if err := metricsSrv.Run(metricsCtx, logger); err != nil {
				logger.Warn("self-metrics server stopped with an error", zap.Error(err))
			}
		}()
	}

	return &agentRuntime{
		logger:           logger,
		bus:              bus,
		manager:          manager,
		controlPlane:     controlPlane,
		metricsSrvCancel: metricsCancel,
	}, nil
}

func (a *agentRuntime) shutdown() {
	if err := a.controlPlane.Send(pipeline.ShutdownMessage{}); err != nil {
		a.logger.Warn("control plane shutdown message failed", zap.Error(err))
	}
	a.manager.Stop()
	if a.metricsSrvCancel != nil {
		a.metricsSrvCancel()
	}
	_ = a.logger.Sync()
}

func runAgent(ctx context.Context) error {
	rt, err := startAgent()
	if err != nil {
		return err
	}
	defer rt.shutdown()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		rt.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}
	return nil
}

func runAgentWithExec(ctx context.Context, command string, args []string) error {
	rt, err := startAgent()
	if err != nil {
		return err
	}

	exitCode := runExternalCommand(rt.bus, rt.logger, command, args)
	rt.shutdown()
	os.Exit(exitCode)
	return nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
