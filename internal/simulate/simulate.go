// Package simulate drives an instance manager with concurrent load and
// reports how its pools behaved.
package simulate

import (
	"context"
	"io"
	"math/rand/v2"
	"sync/atomic"
	"time"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/beanpool/pkg/bean"
	"github.com/ajitpratap0/beanpool/pkg/errors"
	"github.com/ajitpratap0/beanpool/pkg/logger"
	"github.com/ajitpratap0/beanpool/pkg/pool"
	"github.com/ajitpratap0/beanpool/pkg/stateless"
)

// Config describes one load run.
type Config struct {
	// Deployment receives the load
	Deployment bean.DeploymentID `json:"deployment"`
	// Workers is the number of concurrent callers
	Workers int `json:"workers"`
	// Invocations per worker; zero means run until Duration elapses
	Invocations int `json:"invocations"`
	// Duration bounds the run; zero means no bound
	Duration time.Duration `json:"duration"`
	// WorkTime is how long each business call takes
	WorkTime time.Duration `json:"work_time"`
	// SystemErrorRate is the fraction of calls failing with a system error
	SystemErrorRate float64 `json:"system_error_rate"`
	// AppErrorRate is the fraction of calls failing with an application error
	AppErrorRate float64 `json:"app_error_rate"`
}

// DefaultConfig returns a short run against deployment.
func DefaultConfig(deployment bean.DeploymentID) Config {
	return Config{
		Deployment:  deployment,
		Workers:     8,
		Invocations: 100,
		WorkTime:    time.Millisecond,
	}
}

// Validate checks the run parameters.
func (c Config) Validate() error {
	switch {
	case c.Deployment == "":
		return errors.New(errors.ErrorTypeInvalidArgument, "deployment is required")
	case c.Workers < 1:
		return errors.New(errors.ErrorTypeInvalidArgument, "workers must be at least 1")
	case c.Invocations < 0 || c.Duration < 0 || c.WorkTime < 0:
		return errors.New(errors.ErrorTypeInvalidArgument, "invocations, duration and work time cannot be negative")
	case c.Invocations == 0 && c.Duration == 0:
		return errors.New(errors.ErrorTypeInvalidArgument, "either invocations or duration must be set")
	case c.SystemErrorRate < 0 || c.AppErrorRate < 0 || c.SystemErrorRate+c.AppErrorRate > 1:
		return errors.New(errors.ErrorTypeInvalidArgument, "error rates must be within [0,1]")
	}
	return nil
}

// Report summarizes a load run.
type Report struct {
	Config       Config         `json:"config"`
	Invocations  int64          `json:"invocations"`
	Succeeded    int64          `json:"succeeded"`
	AppErrors    int64          `json:"app_errors"`
	SystemErrors int64          `json:"system_errors"`
	Timeouts     int64          `json:"timeouts"`
	Elapsed      time.Duration  `json:"elapsed"`
	Throughput   float64        `json:"throughput_per_sec"`
	LatencyP50   time.Duration  `json:"latency_p50"`
	LatencyP95   time.Duration  `json:"latency_p95"`
	LatencyP99   time.Duration  `json:"latency_p99"`
	Pool         pool.Stats     `json:"pool"`
	Resources    *ResourceUsage `json:"resources,omitempty"`
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	data, err := gojson.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

var (
	errInjectedSystem = errors.New(errors.ErrorTypeSystem, "injected system failure")
	errInjectedApp    = errors.New(errors.ErrorTypeApplication, "injected application failure")
)

// Run drives mgr with cfg.Workers concurrent callers and reports the
// outcome. Access timeouts are counted, not fatal; the run stops early
// only when ctx is done.
func Run(ctx context.Context, mgr *stateless.Manager, cfg Config, log *zap.Logger) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Get()
	}
	log = log.With(zap.String("component", "simulator"), zap.String("deployment", string(cfg.Deployment)))

	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	monitor := NewResourceMonitor()
	latency := NewLatencyTracker(0)
	report := &Report{Config: cfg}
	var invocations, succeeded, appErrors, systemErrors, timeouts atomic.Int64

	log.Info("starting load run",
		zap.Int("workers", cfg.Workers),
		zap.Int("invocations_per_worker", cfg.Invocations),
		zap.Duration("duration", cfg.Duration))

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		g.Go(func() error {
			for i := 0; cfg.Invocations == 0 || i < cfg.Invocations; i++ {
				if gctx.Err() != nil {
					return nil
				}

				callStart := time.Now()
				err := mgr.Invoke(gctx, cfg.Deployment, func(ctx context.Context, b any) error {
					worker, ok := b.(*Worker)
					if !ok {
						return errors.Newf(errors.ErrorTypeInternal, "unexpected bean type %T", b)
					}
					if err := worker.Handle(ctx, cfg.WorkTime); err != nil {
						return err
					}
					switch roll := rand.Float64(); {
					case roll < cfg.SystemErrorRate:
						return errInjectedSystem
					case roll < cfg.SystemErrorRate+cfg.AppErrorRate:
						return errInjectedApp
					}
					return nil
				})
				latency.Record(time.Since(callStart))
				invocations.Add(1)

				switch {
				case err == nil:
					succeeded.Add(1)
				case errors.IsType(err, errors.ErrorTypeNoInstanceAvailable):
					timeouts.Add(1)
				case errors.TypeOf(err) == errors.ErrorTypeApplication:
					appErrors.Add(1)
				case errors.IsType(err, errors.ErrorTypeCancelled) || gctx.Err() != nil:
					return nil
				case errors.IsType(err, errors.ErrorTypeNotFound), errors.IsType(err, errors.ErrorTypeClosed):
					return err
				default:
					systemErrors.Add(1)
					if errors.TypeOf(err) == errors.ErrorTypeInternal {
						log.Error("worker failed", zap.Error(err))
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Elapsed = time.Since(start)
	report.Invocations = invocations.Load()
	report.Succeeded = succeeded.Load()
	report.AppErrors = appErrors.Load()
	report.SystemErrors = systemErrors.Load()
	report.Timeouts = timeouts.Load()
	if secs := report.Elapsed.Seconds(); secs > 0 {
		report.Throughput = float64(report.Invocations) / secs
	}
	report.LatencyP50, report.LatencyP95, report.LatencyP99 = latency.Percentiles()
	report.Resources = monitor.Usage()

	stats, err := mgr.Stats(cfg.Deployment)
	if err != nil {
		return nil, err
	}
	report.Pool = stats

	log.Info("load run finished",
		zap.Int64("invocations", report.Invocations),
		zap.Int64("succeeded", report.Succeeded),
		zap.Int64("timeouts", report.Timeouts),
		zap.Int64("system_errors", report.SystemErrors),
		zap.Float64("throughput", report.Throughput))

	return report, nil
}
