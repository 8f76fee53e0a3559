package stateless

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/beanpool/pkg/bean"
	"github.com/ajitpratap0/beanpool/pkg/config"
	"github.com/ajitpratap0/beanpool/pkg/metrics"
	"github.com/ajitpratap0/beanpool/pkg/observability"
	"github.com/ajitpratap0/beanpool/pkg/pool"
)

// deployment is the runtime state of one deployed bean: its pool, policy
// and the sweeper goroutine.
type deployment struct {
	id     bean.DeploymentID
	desc   *bean.Descriptor
	policy config.PoolConfig

	pool    *pool.Pool[*Instance]
	metrics *metrics.Collector
	tracer  *observability.PoolTracer
	logger  *zap.Logger

	stopOnce  sync.Once
	stopCh    chan struct{}
	sweepDone chan struct{} // nil when no sweeper runs
}

func (m *Manager) newDeployment(desc *bean.Descriptor) *deployment {
	policy := desc.Policy.WithDefaults()
	d := &deployment{
		id:      desc.ID,
		desc:    desc,
		policy:  policy,
		metrics: metrics.NewCollector(string(desc.ID)),
		tracer:  observability.NewPoolTracer(string(desc.ID), m.tracer),
		logger: m.logger.With(
			zap.String("deployment", string(desc.ID)),
			zap.String("bean", desc.DisplayName()),
		),
		stopCh: make(chan struct{}),
	}
	if policy.SweepInterval > 0 {
		d.sweepDone = make(chan struct{})
	}
	d.pool = pool.New[*Instance](pool.Options{
		Name:        string(desc.ID),
		Capacity:    policy.MaxSize,
		MinSize:     policy.MinSize,
		Strict:      policy.StrictPooling,
		IdleTimeout: policy.IdleTimeout,
		MaxAge:      policy.MaxAge,
		Clock:       m.clock,
		OnWait:      d.observeWait,
	})
	return d
}

func (d *deployment) observeWait(ctx context.Context, waited time.Duration, result string) {
	d.metrics.Waited(waited, result)
	trace.SpanFromContext(ctx).AddEvent("wait", trace.WithAttributes(
		attribute.String("result", result),
		attribute.Int64("waited_ms", waited.Milliseconds()),
	))
}

// publish pushes the pool occupancy to the gauges.
func (d *deployment) publish() {
	s := d.pool.Stats()
	if s.Closed {
		return
	}
	d.metrics.SetInstances(s.Idle, s.Active, s.Waiting)
}

// start prefills MinSize instances and launches the sweeper.
func (m *Manager) start(ctx context.Context, d *deployment) {
	if d.policy.MinSize > 0 {
		m.replenish(ctx, d, d.policy.MinSize)
	}
	if d.sweepDone != nil {
		go m.sweepLoop(d)
	}
	d.publish()

	d.logger.Info("deployment started",
		zap.Int("max_size", d.policy.MaxSize),
		zap.Int("min_size", d.policy.MinSize),
		zap.Bool("strict_pooling", d.policy.StrictPooling),
		zap.Duration("access_timeout", d.policy.AccessTimeout))
}

// sweepLoop periodically evicts idle, aged and flushed instances
func (m *Manager) sweepLoop(d *deployment) {
	defer close(d.sweepDone)

	ticker := time.NewTicker(d.policy.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep(context.Background(), d)
		case <-d.stopCh:
			return
		}
	}
}

// sweep destroys what the pool evicts and constructs replacements for aged
// or flushed instances when the policy asks for it, topping the pool back
// up to MinSize.
func (m *Manager) sweep(ctx context.Context, d *deployment) {
	evicted := d.pool.Sweep()

	replace := 0
	for _, ev := range evicted {
		m.destroy(ctx, d, ev.Entry.Value(), metrics.Reason(ev.Reason))
		switch ev.Reason {
		case pool.ReasonAged:
			if d.policy.ReplaceAged {
				replace++
			}
		case pool.ReasonFlushed:
			if d.policy.ReplaceFlushed {
				replace++
			}
		}
	}

	stats := d.pool.Stats()
	if deficit := d.policy.MinSize - stats.Live; deficit > replace {
		replace = deficit
	}
	if replace > 0 && !stats.Closed {
		m.replenish(ctx, d, replace)
	}
	d.publish()

	if len(evicted) > 0 {
		d.logger.Debug("sweep evicted instances",
			zap.Int("evicted", len(evicted)),
			zap.Int("replaced", replace))
	}
}

// replenish constructs n instances straight into the idle stack, at most
// CallbackThreads at a time. It stops at the first construction failure.
func (m *Manager) replenish(ctx context.Context, d *deployment, n int) {
	g, gctx := errgroup.WithContext(ctx)
	limit := d.policy.CallbackThreads
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i := 0; i < n; i++ {
		g.Go(func() error {
			inst, err := m.construct(gctx, d)
			if err != nil {
				return err
			}
			inst.state.Store(int32(statePooled))
			if !d.pool.Add(inst) {
				inst.state.Store(int32(stateReleased))
				m.destroy(gctx, d, inst, metrics.ReasonFull)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		d.logger.Warn("failed to fill pool",
			zap.Int("requested", n),
			zap.Int("live", d.pool.Stats().Live),
			zap.Error(err))
	}
}

// construct builds and initializes one instance for d. It does not touch
// the pool.
func (m *Manager) construct(ctx context.Context, d *deployment) (*Instance, error) {
	b, err := m.factory.Create(ctx, d.desc)
	if err != nil {
		d.metrics.ConstructionFailed()
		return nil, err
	}
	d.metrics.Created()
	return newInstance(d, b, m.clock()), nil
}

// destroy runs the bean's teardown at most once.
func (m *Manager) destroy(ctx context.Context, d *deployment, inst *Instance, reason metrics.Reason) {
	if !inst.destroyed.CompareAndSwap(false, true) {
		return
	}
	d.metrics.Destroyed(reason)
	if err := m.factory.Destroy(ctx, inst.bean); err != nil {
		d.logger.Warn("failed to destroy bean instance",
			zap.String("reason", string(reason)),
			zap.Error(err))
	}
}

// stop halts the sweeper and waits for it to exit.
func (d *deployment) stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
	if d.sweepDone != nil {
		<-d.sweepDone
	}
}
