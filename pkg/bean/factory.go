package bean

import (
	"context"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/ajitpratap0/beanpool/pkg/errors"
)

// Factory constructs and destroys bean instances. It holds no state about
// the instances it creates and is safe for concurrent use.
type Factory struct {
	logger *zap.Logger
}

// NewFactory creates a factory. The logger is handed to beans through
// their SessionContext.
func NewFactory(logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{logger: logger.With(zap.String("component", "bean_factory"))}
}

// Create instantiates a bean and runs its initialization callbacks:
// construction, SetSessionContext, then Create. Any failure, a panic
// included, yields an ErrorTypeConstruction error and no instance.
func (f *Factory) Create(ctx context.Context, d *Descriptor) (instance any, err error) {
	stage := "construct"
	defer func() {
		if r := recover(); r != nil {
			instance = nil
			err = errors.Newf(errors.ErrorTypeConstruction, "panic during %s: %v", stage, r).
				WithDetail("deployment", string(d.ID)).
				WithDetail("stage", stage)
		}
	}()

	instance, err = f.instantiate(ctx, d)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConstruction, "failed to construct bean").
			WithDetail("deployment", string(d.ID)).
			WithDetail("stage", stage)
	}
	if instance == nil {
		return nil, errors.New(errors.ErrorTypeConstruction, "constructor returned nil").
			WithDetail("deployment", string(d.ID))
	}

	if aware, ok := instance.(ContextAware); ok {
		stage = "set_session_context"
		sc := &SessionContext{
			DeploymentID: d.ID,
			Name:         d.DisplayName(),
			Logger:       f.logger.With(zap.String("deployment", string(d.ID))),
		}
		if err := aware.SetSessionContext(sc); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConstruction, "failed to inject session context").
				WithDetail("deployment", string(d.ID)).
				WithDetail("stage", stage)
		}
	}

	if c, ok := instance.(Creatable); ok {
		stage = "create"
		if err := c.Create(ctx); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConstruction, "create callback failed").
				WithDetail("deployment", string(d.ID)).
				WithDetail("stage", stage)
		}
	}

	return instance, nil
}

func (f *Factory) instantiate(ctx context.Context, d *Descriptor) (any, error) {
	if d.Constructor != nil {
		return d.Constructor(ctx)
	}
	if d.Type == nil {
		return nil, fmt.Errorf("deployment %q has neither constructor nor type", d.ID)
	}
	t := d.Type
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return reflect.New(t).Interface(), nil
}

// Destroy runs the Remove callback of a Removable bean. Failures and
// panics yield an ErrorTypeDestruction error.
func (f *Factory) Destroy(ctx context.Context, instance any) (err error) {
	r, ok := instance.(Removable)
	if !ok {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = errors.Newf(errors.ErrorTypeDestruction, "panic during remove: %v", p)
		}
	}()
	if err := r.Remove(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestruction, "remove callback failed")
	}
	return nil
}
