// Package stateless manages pools of stateless bean instances.
//
// A Manager hands out instances of deployed beans to concurrent callers.
// Each deployment has its own bounded pool. Under strict pooling the pool's
// capacity is a hard ceiling on live instances and callers block, up to the
// deployment's access timeout, when it is exhausted; otherwise capacity only
// bounds how many idle instances are kept.
//
// Every successful GetInstance must be paired with exactly one Release:
//
//	inst, err := mgr.GetInstance(ctx, "OrderProcessor")
//	if err != nil {
//	    return err
//	}
//	err = inst.Bean().(*OrderProcessor).Process(ctx, order)
//	outcome := stateless.Recyclable
//	if err != nil && errors.TypeOf(err) != errors.ErrorTypeApplication {
//	    outcome = stateless.Corrupted
//	}
//	return mgr.Release(ctx, inst, outcome)
//
// Invoke wraps exactly this pattern.
package stateless

import (
	"context"
	stderrors "errors"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/beanpool/pkg/bean"
	"github.com/ajitpratap0/beanpool/pkg/errors"
	"github.com/ajitpratap0/beanpool/pkg/logger"
	"github.com/ajitpratap0/beanpool/pkg/metrics"
	"github.com/ajitpratap0/beanpool/pkg/observability"
	"github.com/ajitpratap0/beanpool/pkg/pool"
)

// Manager is the instance manager for stateless beans. It is safe for
// concurrent use.
type Manager struct {
	registry *Registry
	factory  *bean.Factory
	source   bean.DescriptorSource
	logger   *zap.Logger
	tracer   trace.Tracer
	clock    func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithTracer sets the tracer used for instance spans
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) {
		m.tracer = t
	}
}

// WithDescriptorSource lets GetInstance deploy unknown identifiers on
// first access
func WithDescriptorSource(s bean.DescriptorSource) Option {
	return func(m *Manager) {
		m.source = s
	}
}

// WithFactory replaces the bean factory
func WithFactory(f *bean.Factory) Option {
	return func(m *Manager) {
		m.factory = f
	}
}

// WithClock sets the clock used to age pooled instances
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.clock = now
	}
}

// NewManager creates a manager over registry. A nil registry gets a fresh
// one.
func NewManager(registry *Registry, opts ...Option) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	m := &Manager{registry: registry}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.Get()
	}
	m.logger = m.logger.With(zap.String("component", "instance_manager"))
	if m.tracer == nil {
		m.tracer = observability.GetTracer()
	}
	if m.factory == nil {
		m.factory = bean.NewFactory(m.logger)
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	return m
}

// GetInstance checks out an instance of the deployment: the most recently
// returned idle instance if there is one, otherwise a newly constructed
// one. A strict pool at capacity blocks until an instance is released, the
// access timeout elapses (ErrorTypeNoInstanceAvailable) or ctx is done.
// Construction failures are reported as ErrorTypeSystem wrapping the
// ErrorTypeConstruction cause.
func (m *Manager) GetInstance(ctx context.Context, id bean.DeploymentID) (*Instance, error) {
	ctx = callContext(ctx, id, "get_instance")
	d, err := m.resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	ctx, span := d.tracer.StartSpan(ctx, "get_instance")
	defer span.End()

	entry, reserved, err := d.pool.Checkout(ctx, d.policy.AccessTimeout)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeNoInstanceAvailable) {
			d.metrics.AccessTimeout()
			logger.FromContext(ctx, m.logger).Warn("no instance available",
				zap.Duration("access_timeout", d.policy.AccessTimeout),
				zap.Int("max_size", d.policy.MaxSize))
		}
		d.publish()
		span.Fail(err)
		return nil, err
	}

	if !reserved {
		inst := entry.Value()
		inst.entry = entry
		inst.checkOut()
		span.SetAttribute("beanpool.pooled", true)
		d.publish()
		return inst, nil
	}

	inst, err := m.construct(ctx, d)
	if err != nil {
		d.pool.Discard()
		d.publish()
		err = errors.Wrap(err, errors.ErrorTypeSystem, "failed to create bean instance").
			WithDetail("deployment", string(id))
		logger.FromContext(ctx, m.logger).Error("bean construction failed", zap.Error(err))
		span.Fail(err)
		return nil, err
	}
	inst.entry = d.pool.Commit(inst)
	span.SetAttribute("beanpool.pooled", false)
	d.publish()
	return inst, nil
}

// callContext tags ctx with the deployment and operation for logging,
// keeping values an outer call already set.
func callContext(ctx context.Context, id bean.DeploymentID, operation string) context.Context {
	if _, ok := ctx.Value(logger.DeploymentKey).(string); !ok {
		ctx = logger.ContextWithDeployment(ctx, string(id))
	}
	if _, ok := ctx.Value(logger.OperationKey).(string); !ok {
		ctx = logger.ContextWithOperation(ctx, operation)
	}
	return ctx
}

// resolve finds the deployment, creating it from the descriptor source on
// first access.
func (m *Manager) resolve(ctx context.Context, id bean.DeploymentID) (*deployment, error) {
	if d, ok := m.registry.lookup(id); ok {
		return d, nil
	}
	if m.source != nil {
		if desc, ok := m.source.Descriptor(id); ok {
			d, _, err := m.install(ctx, desc)
			return d, err
		}
	}
	return nil, errors.Newf(errors.ErrorTypeNotFound, "deployment %q not found", id).
		WithDetail("deployment", string(id))
}

// install registers a deployment for desc, or returns the one already
// registered under its id.
func (m *Manager) install(ctx context.Context, desc *bean.Descriptor) (*deployment, bool, error) {
	if err := desc.Validate(); err != nil {
		return nil, false, err
	}
	d, inserted := m.registry.insert(m.newDeployment(desc))
	if inserted {
		m.start(ctx, d)
	}
	return d, inserted, nil
}

// Release gives an instance back. Recyclable instances return to the idle
// stack; a pool that refuses them (non-strict and full, flushed, aged, or
// undeployed) destroys them on the calling goroutine. Corrupted instances
// are destroyed and their slot is freed for a waiting caller, and so are
// Recyclable instances already torn down by FreeInstance. Releasing an
// instance twice is an ErrorTypeInvalidArgument error.
func (m *Manager) Release(ctx context.Context, inst *Instance, outcome Outcome) error {
	if inst == nil || inst.owner == nil {
		return errors.New(errors.ErrorTypeInvalidArgument, "invalid arguments: nil instance")
	}
	d := inst.owner

	if outcome == Recyclable && inst.destroyed.Load() {
		outcome = Corrupted
	}

	switch outcome {
	case Recyclable:
		if !inst.transition(statePooled) {
			return m.doubleRelease(d, inst)
		}
		if ok, reason := d.pool.ReturnIdle(inst.entry); !ok {
			inst.state.Store(int32(stateReleased))
			m.destroy(ctx, d, inst, metrics.Reason(reason))
			m.replaceRefused(ctx, d, reason)
		}
	case Corrupted:
		if !inst.transition(stateReleased) {
			return m.doubleRelease(d, inst)
		}
		d.pool.Discard()
		m.destroy(ctx, d, inst, metrics.ReasonDiscarded)
	default:
		return errors.Newf(errors.ErrorTypeInvalidArgument, "unknown release outcome %d", outcome)
	}

	d.publish()
	return nil
}

// replaceRefused constructs a replacement for a flushed or aged instance
// refused on return when the policy asks for one.
func (m *Manager) replaceRefused(ctx context.Context, d *deployment, reason pool.Reason) {
	if (reason == pool.ReasonAged && d.policy.ReplaceAged) ||
		(reason == pool.ReasonFlushed && d.policy.ReplaceFlushed) {
		m.replenish(ctx, d, 1)
	}
}

func (m *Manager) doubleRelease(d *deployment, inst *Instance) error {
	d.logger.Warn("instance released twice")
	return errors.New(errors.ErrorTypeInvalidArgument, "instance already released").
		WithDetail("deployment", string(d.id))
}

// PoolInstance returns an instance to its pool after a successful or
// application-error invocation.
func (m *Manager) PoolInstance(ctx context.Context, inst *Instance) error {
	return m.Release(ctx, inst, Recyclable)
}

// DiscardInstance destroys an instance after a system error and frees its
// pool slot.
func (m *Manager) DiscardInstance(ctx context.Context, inst *Instance) error {
	return m.Release(ctx, inst, Corrupted)
}

// FreeInstance runs the instance's teardown callback without touching pool
// accounting. It is a no-op for an instance already destroyed; teardown
// failures are logged, never returned. The instance must still be
// released; a freed instance is never pooled again.
func (m *Manager) FreeInstance(ctx context.Context, inst *Instance) {
	if inst == nil || inst.owner == nil {
		return
	}
	m.destroy(ctx, inst.owner, inst, metrics.ReasonDiscarded)
}

// Deploy registers a deployment, prefills MinSize instances and starts its
// sweeper. Deploying an identifier twice is an ErrorTypeConflict error.
func (m *Manager) Deploy(ctx context.Context, desc *bean.Descriptor) error {
	_, inserted, err := m.install(ctx, desc)
	if err != nil {
		return err
	}
	if !inserted {
		return errors.Newf(errors.ErrorTypeConflict, "deployment %q already exists", desc.ID).
			WithDetail("deployment", string(desc.ID))
	}
	return nil
}

// Undeploy removes a deployment. Waiting callers fail with ErrorTypeClosed,
// idle instances are destroyed, and instances still checked out are
// destroyed as they come back. Undeploy waits up to CloseTimeout (the
// default close timeout when the policy leaves it zero) for them and
// returns an ErrorTypeTimeout error if some are still out.
func (m *Manager) Undeploy(ctx context.Context, id bean.DeploymentID) error {
	var evicted []pool.Eviction[*Instance]
	d, ok := m.registry.remove(id, func(d *deployment) {
		evicted = d.pool.Close()
		d.metrics.Forget()
	})
	if !ok {
		return errors.Newf(errors.ErrorTypeNotFound, "deployment %q not found", id).
			WithDetail("deployment", string(id))
	}

	d.stop()
	for _, ev := range evicted {
		inst := ev.Entry.Value()
		inst.state.Store(int32(stateReleased))
		m.destroy(ctx, d, inst, metrics.ReasonClosed)
	}

	waitCtx, cancel := context.WithTimeout(ctx, d.policy.CloseTimeout)
	defer cancel()
	err := d.pool.AwaitDrained(waitCtx)

	if err != nil {
		d.logger.Warn("undeployed with instances still checked out", zap.Error(err))
		return err
	}
	d.logger.Info("deployment stopped")
	return nil
}

// Flush makes every current instance of the deployment stale. Idle
// instances are destroyed now and checked-out ones when they are released;
// replacements are built when ReplaceFlushed is set or the pool falls
// below MinSize.
func (m *Manager) Flush(ctx context.Context, id bean.DeploymentID) error {
	d, ok := m.registry.lookup(id)
	if !ok {
		return errors.Newf(errors.ErrorTypeNotFound, "deployment %q not found", id)
	}
	d.pool.Flush()
	m.sweep(ctx, d)
	d.logger.Info("pool flushed", zap.Uint64("version", d.pool.Stats().Version))
	return nil
}

// Sweep runs one eviction pass over the deployment's pool, the same pass
// the background sweeper runs every SweepInterval.
func (m *Manager) Sweep(ctx context.Context, id bean.DeploymentID) error {
	d, ok := m.registry.lookup(id)
	if !ok {
		return errors.Newf(errors.ErrorTypeNotFound, "deployment %q not found", id)
	}
	m.sweep(ctx, d)
	return nil
}

// Stats returns a snapshot of the deployment's pool.
func (m *Manager) Stats(id bean.DeploymentID) (pool.Stats, error) {
	d, ok := m.registry.lookup(id)
	if !ok {
		return pool.Stats{}, errors.Newf(errors.ErrorTypeNotFound, "deployment %q not found", id)
	}
	return d.pool.Stats(), nil
}

// Deployments lists the deployed identifiers in sorted order.
func (m *Manager) Deployments() []bean.DeploymentID {
	return m.registry.IDs()
}

// Close undeploys everything and joins the errors.
func (m *Manager) Close(ctx context.Context) error {
	m.logger.Info("closing instance manager", zap.Int("deployments", m.registry.Len()))
	var errs []error
	for _, id := range m.registry.IDs() {
		if err := m.Undeploy(ctx, id); err != nil && !errors.IsType(err, errors.ErrorTypeNotFound) {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
