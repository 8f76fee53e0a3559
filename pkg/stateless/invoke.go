package stateless

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/beanpool/pkg/bean"
	"github.com/ajitpratap0/beanpool/pkg/errors"
	"github.com/ajitpratap0/beanpool/pkg/logger"
)

// BusinessMethod is a call made on a checked-out bean.
type BusinessMethod func(ctx context.Context, b any) error

// Invoke checks out an instance of the deployment, runs fn on it and
// releases it. The instance is recycled only when fn returns nil or an
// error whose outermost type is ErrorTypeApplication. Any other error
// discards it, and so does a panic, which is returned as an ErrorTypeSystem
// error.
func (m *Manager) Invoke(ctx context.Context, id bean.DeploymentID, fn BusinessMethod) (err error) {
	ctx = logger.ContextWithDeployment(ctx, string(id))
	ctx = logger.ContextWithOperation(ctx, "invoke")

	inst, err := m.GetInstance(ctx, id)
	if err != nil {
		return err
	}
	d := inst.owner

	ctx, span := d.tracer.StartSpan(ctx, "invoke")
	defer span.End()

	outcome := Corrupted
	defer func() {
		log := logger.FromContext(ctx, m.logger)
		if r := recover(); r != nil {
			outcome = Corrupted
			err = errors.Newf(errors.ErrorTypeSystem, "panic in business method: %v", r).
				WithDetail("deployment", string(id))
			log.Error("business method panicked", zap.Any("panic", r))
		}

		if relErr := m.Release(ctx, inst, outcome); relErr != nil && err == nil {
			err = relErr
		}
		elapsed := span.Elapsed()
		d.metrics.Invoked(outcome.String(), elapsed)
		span.SetAttribute("beanpool.outcome", outcome.String())
		if err != nil {
			span.Fail(err)
		}
		log.Debug("invocation finished",
			zap.String("outcome", outcome.String()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	}()

	err = fn(ctx, inst.Bean())
	if err == nil || errors.TypeOf(err) == errors.ErrorTypeApplication {
		outcome = Recyclable
	}
	return err
}
