package simulate

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/beanpool/pkg/bean"
	"github.com/ajitpratap0/beanpool/pkg/config"
	"github.com/ajitpratap0/beanpool/pkg/errors"
)

// Worker is the bean type deployed by the simulator. It is deliberately
// not safe for concurrent use: Handle reports an error if two callers
// ever share an instance.
type Worker struct {
	ID        int64
	InitDelay time.Duration
	Handled   int64

	busy atomic.Bool
}

// Create implements bean.Creatable
func (w *Worker) Create(ctx context.Context) error {
	if w.InitDelay <= 0 {
		return nil
	}
	select {
	case <-time.After(w.InitDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle simulates a business method taking d
func (w *Worker) Handle(ctx context.Context, d time.Duration) error {
	if !w.busy.CompareAndSwap(false, true) {
		return errors.Newf(errors.ErrorTypeInternal, "worker %d used concurrently", w.ID)
	}
	defer w.busy.Store(false)

	w.Handled++
	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Kinds of worker bean the simulator can deploy.
var workloads = map[string]time.Duration{
	"worker":      0,
	"slow-worker": 20 * time.Millisecond,
}

// Workloads lists the bean names accepted in deployment configs.
func Workloads() []string {
	names := make([]string, 0, len(workloads))
	for name := range workloads {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors builds one descriptor per configured deployment.
func Descriptors(cfg *config.ContainerConfig) ([]*bean.Descriptor, error) {
	descriptors := make([]*bean.Descriptor, 0, len(cfg.Deployments))
	for _, dc := range cfg.Deployments {
		kind := dc.Bean
		if kind == "" {
			kind = "worker"
		}
		initDelay, ok := workloads[kind]
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeConfig, "unknown bean %q for deployment %q, known: %v",
				kind, dc.ID, Workloads())
		}

		var seq atomic.Int64
		descriptors = append(descriptors, &bean.Descriptor{
			ID:   bean.DeploymentID(dc.ID),
			Name: dc.DisplayName(),
			Constructor: func(ctx context.Context) (any, error) {
				return &Worker{ID: seq.Add(1), InitDelay: initDelay}, nil
			},
			Policy: dc.Resolve(cfg.Defaults),
		})
	}
	if len(descriptors) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "no deployments configured")
	}
	return descriptors, nil
}
