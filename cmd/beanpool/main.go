package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/beanpool/internal/simulate"
	"github.com/ajitpratap0/beanpool/pkg/bean"
	"github.com/ajitpratap0/beanpool/pkg/config"
	"github.com/ajitpratap0/beanpool/pkg/logger"
	"github.com/ajitpratap0/beanpool/pkg/observability"
	"github.com/ajitpratap0/beanpool/pkg/stateless"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BEANPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "beanpool",
		Short: "Beanpool - stateless session bean instance pools",
		Long: `Beanpool manages pools of stateless bean instances with strict admission control.
The CLI validates container configurations and drives deployments with simulated load.`,
		SilenceUsage: true,
	}
	root.SetOut(out)

	root.PersistentFlags().StringP("config", "c", "", "Path to container configuration YAML file (required)")
	root.PersistentFlags().String("log-level", "", "Override the configured log level (debug, info, warn, error)")
	_ = v.BindPFlags(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Beanpool v%s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate a container configuration and print the resolved pool policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return printPolicies(cmd.OutOrStdout(), cfg)
		},
	})

	root.AddCommand(newSimulateCmd(v))
	return root
}

func newSimulateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Deploy the configured beans and drive one of them with concurrent load",
		Long: `Deploy every bean in the container configuration and run concurrent
invocations against one deployment, then print a JSON report of the run.

Example:
  beanpool simulate --config container.yaml --deployment orders --workers 32 --duration 30s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return runSimulation(cmd.Context(), cmd.OutOrStdout(), cfg, v)
		},
	}

	defaults := simulate.DefaultConfig("")
	cmd.Flags().String("deployment", "", "Deployment to drive; defaults to the first configured one")
	cmd.Flags().Int("workers", defaults.Workers, "Number of concurrent callers")
	cmd.Flags().Int("invocations", defaults.Invocations, "Invocations per caller; 0 runs until --duration elapses")
	cmd.Flags().Duration("duration", 0, "Upper bound on the run (e.g. 10s, 2m)")
	cmd.Flags().Duration("work-time", defaults.WorkTime, "Time spent in each business call")
	cmd.Flags().Float64("system-error-rate", 0, "Fraction of calls failing with a system error")
	cmd.Flags().Float64("app-error-rate", 0, "Fraction of calls failing with an application error")
	cmd.Flags().String("metrics-address", "", "Serve Prometheus metrics on this address; overrides the configuration")
	_ = v.BindPFlags(cmd.Flags())
	return cmd
}

func loadConfig(v *viper.Viper) (*config.ContainerConfig, error) {
	path := v.GetString("config")
	if path == "" {
		return nil, fmt.Errorf("a configuration file is required (--config or BEANPOOL_CONFIG)")
	}
	cfg, err := config.LoadContainer(path)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if level := v.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

type resolvedDeployment struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Bean   string            `json:"bean,omitempty"`
	Policy config.PoolConfig `json:"policy"`
}

func printPolicies(w io.Writer, cfg *config.ContainerConfig) error {
	resolved := make([]resolvedDeployment, 0, len(cfg.Deployments))
	for _, d := range cfg.Deployments {
		resolved = append(resolved, resolvedDeployment{
			ID:     d.ID,
			Name:   d.DisplayName(),
			Bean:   d.Bean,
			Policy: d.Resolve(cfg.Defaults),
		})
	}
	data, err := gojson.MarshalIndent(map[string]any{
		"container":   cfg.Name,
		"deployments": resolved,
	}, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func runSimulation(ctx context.Context, out io.Writer, cfg *config.ContainerConfig, v *viper.Viper) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("logger error: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.With(zap.String("component", "beanpool-cli"), zap.String("container", cfg.Name))

	tracing := observability.FromContainer(cfg)
	tracing.ServiceVersion = version
	tracing.Writer = os.Stderr
	if err := observability.Initialize(tracing); err != nil {
		return fmt.Errorf("tracing error: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := observability.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to shutdown tracing", zap.Error(err))
		}
	}()

	descriptors, err := simulate.Descriptors(cfg)
	if err != nil {
		return err
	}
	catalog := bean.NewCatalog()
	for _, d := range descriptors {
		if err := catalog.Register(d); err != nil {
			return err
		}
	}

	mgr := stateless.NewManager(stateless.NewRegistry(),
		stateless.WithLogger(log),
		stateless.WithTracer(observability.GetTracer()),
		stateless.WithDescriptorSource(catalog))
	defer func() {
		if err := mgr.Close(context.Background()); err != nil {
			log.Warn("failed to close manager", zap.Error(err))
		}
	}()

	for _, d := range descriptors {
		if err := mgr.Deploy(ctx, d); err != nil {
			return fmt.Errorf("failed to deploy %s: %w", d.ID, err)
		}
	}

	metricsAddr := v.GetString("metrics-address")
	if metricsAddr == "" && cfg.Observability.EnableMetrics {
		metricsAddr = cfg.Observability.MetricsAddress
	}
	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: metricsHandler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
		log.Info("serving metrics", zap.String("address", metricsAddr))
	}

	deployment := bean.DeploymentID(v.GetString("deployment"))
	if deployment == "" {
		deployment = descriptors[0].ID
	}
	run := simulate.Config{
		Deployment:      deployment,
		Workers:         v.GetInt("workers"),
		Invocations:     v.GetInt("invocations"),
		Duration:        v.GetDuration("duration"),
		WorkTime:        v.GetDuration("work-time"),
		SystemErrorRate: v.GetFloat64("system-error-rate"),
		AppErrorRate:    v.GetFloat64("app-error-rate"),
	}

	report, err := simulate.Run(ctx, mgr, run, log)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}
	return report.WriteJSON(out)
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
