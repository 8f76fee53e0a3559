// Package metrics provides Prometheus metrics for the instance pools.
//
// # Overview
//
// Every metric is labelled with the deployment identifier so that pools of
// different beans can be told apart on a dashboard:
//   - beanpool_instances{deployment,state}: live instances split into idle and active
//   - beanpool_waiters{deployment}: callers blocked on the admission gate
//   - beanpool_instances_created_total{deployment}
//   - beanpool_instances_destroyed_total{deployment,reason}
//   - beanpool_construction_failures_total{deployment}
//   - beanpool_access_timeouts_total{deployment}
//   - beanpool_wait_duration_seconds{deployment,result}
//   - beanpool_invocations_total{deployment,outcome}
//   - beanpool_invocation_duration_seconds{deployment,outcome}
//
// # Basic Usage
//
//	c := metrics.NewCollector("OrderProcessor")
//	c.Created()
//	c.Destroyed(metrics.ReasonDiscarded)
//	c.SetInstances(idle, active)
//
// Collectors are cheap handles over the package-level vectors; creating one
// per deployment is the expected pattern.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reason labels why an instance was destroyed.
type Reason string

const (
	// ReasonDiscarded means the invocation layer reported the instance corrupted
	ReasonDiscarded Reason = "discarded"
	// ReasonFull means a non-strict pool already held max_size idle instances
	ReasonFull Reason = "full"
	// ReasonIdle means the sweeper evicted an instance idle past idle_timeout
	ReasonIdle Reason = "idle"
	// ReasonAged means the instance outlived max_age
	ReasonAged Reason = "aged"
	// ReasonFlushed means the pool was flushed after the instance was created
	ReasonFlushed Reason = "flushed"
	// ReasonClosed means the deployment was undeployed
	ReasonClosed Reason = "closed"
)

var (
	// Instances tracks live instances per deployment.
	// Labels: deployment, state (idle/active)
	Instances = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "beanpool_instances",
			Help: "Live bean instances by state",
		},
		[]string{"deployment", "state"},
	)

	// Waiters tracks callers blocked on an exhausted strict pool
	Waiters = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "beanpool_waiters",
			Help: "Callers waiting for an instance",
		},
		[]string{"deployment"},
	)

	// InstancesCreated counts successful constructions
	InstancesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beanpool_instances_created_total",
			Help: "Total number of bean instances constructed",
		},
		[]string{"deployment"},
	)

	// InstancesDestroyed counts instances removed from service.
	// Labels: deployment, reason
	InstancesDestroyed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beanpool_instances_destroyed_total",
			Help: "Total number of bean instances destroyed",
		},
		[]string{"deployment", "reason"},
	)

	// ConstructionFailures counts constructor or initialization failures
	ConstructionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beanpool_construction_failures_total",
			Help: "Total number of failed bean constructions",
		},
		[]string{"deployment"},
	)

	// AccessTimeouts counts GetInstance calls that gave up waiting
	AccessTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beanpool_access_timeouts_total",
			Help: "Total number of access timeouts on exhausted pools",
		},
		[]string{"deployment"},
	)

	// WaitDuration tracks how long callers blocked on the admission gate.
	// Labels: deployment, result (acquired/timeout/cancelled/closed)
	WaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "beanpool_wait_duration_seconds",
			Help: "Time spent waiting for an instance",
			Buckets: []float64{
				0.0001, // 100μs - woken almost immediately
				0.001,  // 1ms
				0.01,   // 10ms
				0.1,    // 100ms
				1,      // 1s
				10,     // 10s
				30,     // default access timeout
			},
		},
		[]string{"deployment", "result"},
	)

	// Invocations counts business invocations by release outcome
	Invocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beanpool_invocations_total",
			Help: "Total number of business invocations",
		},
		[]string{"deployment", "outcome"},
	)

	// InvocationDuration tracks business method latency, instance release
	// included. Labels: deployment, outcome
	InvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beanpool_invocation_duration_seconds",
			Help:    "Business invocation latency",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100μs to ~26s
		},
		[]string{"deployment", "outcome"},
	)
)

// Collector records pool metrics for one deployment.
type Collector struct {
	deployment string
}

// NewCollector creates a collector for a deployment.
func NewCollector(deployment string) *Collector {
	return &Collector{deployment: deployment}
}

// Deployment returns the label value used by this collector
func (c *Collector) Deployment() string {
	return c.deployment
}

// Created records a successful construction
func (c *Collector) Created() {
	InstancesCreated.WithLabelValues(c.deployment).Inc()
}

// Destroyed records an instance leaving service
func (c *Collector) Destroyed(reason Reason) {
	InstancesDestroyed.WithLabelValues(c.deployment, string(reason)).Inc()
}

// ConstructionFailed records a failed construction
func (c *Collector) ConstructionFailed() {
	ConstructionFailures.WithLabelValues(c.deployment).Inc()
}

// AccessTimeout records a caller that gave up waiting
func (c *Collector) AccessTimeout() {
	AccessTimeouts.WithLabelValues(c.deployment).Inc()
}

// Waited records time spent blocked on the admission gate
func (c *Collector) Waited(d time.Duration, result string) {
	WaitDuration.WithLabelValues(c.deployment, result).Observe(d.Seconds())
}

// Invoked records a business invocation, how long it took and how the
// instance was released
func (c *Collector) Invoked(outcome string, elapsed time.Duration) {
	Invocations.WithLabelValues(c.deployment, outcome).Inc()
	InvocationDuration.WithLabelValues(c.deployment, outcome).Observe(elapsed.Seconds())
}

// SetInstances publishes the current pool occupancy
func (c *Collector) SetInstances(idle, active, waiting int) {
	Instances.WithLabelValues(c.deployment, "idle").Set(float64(idle))
	Instances.WithLabelValues(c.deployment, "active").Set(float64(active))
	Waiters.WithLabelValues(c.deployment).Set(float64(waiting))
}

// Forget drops every series of the deployment, used on undeploy
func (c *Collector) Forget() {
	labels := prometheus.Labels{"deployment": c.deployment}
	Instances.DeletePartialMatch(labels)
	Waiters.DeletePartialMatch(labels)
}
