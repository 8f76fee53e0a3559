// Package beanpool manages pools of stateless bean instances for a
// component container.
//
// A stateless bean holds no conversational state, so any idle instance can
// serve any caller. Beanpool keeps one pool per deployment, hands out
// exactly one caller per instance at a time, and bounds how many instances
// may exist at once.
//
// # Strict Pooling
//
// With strict pooling (the default) max_size is a hard ceiling on live
// instances. A caller arriving at an exhausted pool waits up to
// access_timeout for an instance to be returned or discarded, then fails
// with a retryable NoInstanceAvailable error. Without strict pooling the
// pool grows on demand and max_size only bounds how many idle instances are
// kept; surplus instances are destroyed when they are returned.
//
// # Quick Start
//
//	import (
//	    "context"
//	    "github.com/ajitpratap0/beanpool/pkg/bean"
//	    "github.com/ajitpratap0/beanpool/pkg/config"
//	    "github.com/ajitpratap0/beanpool/pkg/stateless"
//	)
//
//	policy := config.DefaultPoolConfig()
//	policy.MaxSize = 20
//
//	mgr := stateless.NewManager(stateless.NewRegistry())
//	defer mgr.Close(ctx)
//
//	err := mgr.Deploy(ctx, &bean.Descriptor{
//	    ID:          "OrderProcessor",
//	    Constructor: func(ctx context.Context) (any, error) { return &OrderProcessor{}, nil },
//	    Policy:      policy,
//	})
//
//	err = mgr.Invoke(ctx, "OrderProcessor", func(ctx context.Context, b any) error {
//	    return b.(*OrderProcessor).Process(ctx, order)
//	})
//
// # Key Packages
//
//	pkg/stateless     - Instance manager: deploy, check out, release, undeploy
//	pkg/pool          - Generic bounded pool with the admission gate and sweeper primitives
//	pkg/bean          - Descriptors, lifecycle callbacks and the instance factory
//	pkg/config        - Container and pool policy configuration (YAML)
//	pkg/errors        - Structured error types
//	pkg/logger        - Structured logging on zap
//	pkg/metrics       - Prometheus metrics per deployment
//	pkg/observability - OpenTelemetry tracing
//	internal/simulate - Load simulator used by the beanpool CLI
//
// # Configuration
//
// A container document sets pool defaults and lists deployments, each of
// which may override any policy field:
//
//	name: orders
//	defaults:
//	  max_size: 10
//	  strict_pooling: true
//	  access_timeout: 30s
//	deployments:
//	  - id: OrderProcessor
//	    min_size: 2
//	  - id: ReportBuilder
//	    bean: slow-worker
//	    strict_pooling: false
//
// Environment variables are supported with ${VAR_NAME} syntax.
//
// # Command Line
//
//	beanpool validate --config container.yaml
//	beanpool simulate --config container.yaml --workers 32 --duration 30s
package beanpool
