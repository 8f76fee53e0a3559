package simulate

import (
	"bytes"
	"context"
	"testing"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/beanpool/pkg/config"
	"github.com/ajitpratap0/beanpool/pkg/errors"
	"github.com/ajitpratap0/beanpool/pkg/stateless"
	"github.com/ajitpratap0/beanpool/pkg/testutil"
)

func containerConfig(maxSize int, strict bool) *config.ContainerConfig {
	cfg := config.NewContainerConfig("sim-test")
	cfg.Defaults.MaxSize = maxSize
	cfg.Defaults.StrictPooling = strict
	cfg.Defaults.AccessTimeout = 5 * time.Second
	cfg.Defaults.SweepInterval = 0
	cfg.Defaults.CloseTimeout = time.Second
	return cfg
}

func deployAll(t *testing.T, cfg *config.ContainerConfig) *stateless.Manager {
	t.Helper()
	m := stateless.NewManager(stateless.NewRegistry(), stateless.WithLogger(zaptest.NewLogger(t)))
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	descriptors, err := Descriptors(cfg)
	require.NoError(t, err)
	for _, d := range descriptors {
		require.NoError(t, m.Deploy(context.Background(), d))
	}
	return m
}

func TestRunStrictPool(t *testing.T) {
	cfg := containerConfig(3, true)
	cfg.Deployments = []config.DeploymentConfig{{ID: "sim-strict"}}
	m := deployAll(t, cfg)

	run := DefaultConfig("sim-strict")
	run.Workers = 10
	run.Invocations = 20

	var report *Report
	testutil.NewLoadTarget(t, "strict pool").
		MinThroughput(50).
		MaxHeapGrowth(64 << 20).
		Check(func() (int64, time.Duration) {
			var err error
			report, err = Run(testutil.TestContext(t), m, run, zaptest.NewLogger(t))
			require.NoError(t, err)
			return report.Invocations, report.Elapsed
		})

	assert.Equal(t, int64(200), report.Invocations)
	assert.Equal(t, int64(200), report.Succeeded)
	assert.Zero(t, report.SystemErrors, "a worker must never be shared")
	assert.LessOrEqual(t, report.Pool.Live, 3)
	assert.LessOrEqual(t, report.Pool.Reservations, int64(3))
	assert.Greater(t, report.Throughput, 0.0)
	assert.NotNil(t, report.Resources)
}

func TestRunInjectedFailures(t *testing.T) {
	cfg := containerConfig(4, true)
	cfg.Deployments = []config.DeploymentConfig{{ID: "sim-failures"}}
	m := deployAll(t, cfg)

	run := DefaultConfig("sim-failures")
	run.Workers = 4
	run.Invocations = 50
	run.WorkTime = 0
	run.SystemErrorRate = 0.2
	run.AppErrorRate = 0.2

	report, err := Run(testutil.TestContext(t), m, run, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(200), report.Invocations)
	assert.Equal(t, report.Invocations, report.Succeeded+report.AppErrors+report.SystemErrors+report.Timeouts)
	assert.Greater(t, report.SystemErrors, int64(0))
	assert.Greater(t, report.AppErrors, int64(0))
	assert.Greater(t, report.Pool.Discards, int64(0), "system errors discard instances")
}

func TestRunDuration(t *testing.T) {
	testutil.SkipInShort(t)
	cfg := containerConfig(2, false)
	cfg.Deployments = []config.DeploymentConfig{{ID: "sim-duration", Bean: "worker"}}
	m := deployAll(t, cfg)

	run := DefaultConfig("sim-duration")
	run.Invocations = 0
	run.Duration = 50 * time.Millisecond

	start := time.Now()
	report, err := Run(context.Background(), m, run, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Greater(t, report.Invocations, int64(0))
}

func TestRunUnknownDeployment(t *testing.T) {
	cfg := containerConfig(1, true)
	cfg.Deployments = []config.DeploymentConfig{{ID: "sim-known"}}
	m := deployAll(t, cfg)

	_, err := Run(context.Background(), m, DefaultConfig("sim-unknown"), nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestConfigValidate(t *testing.T) {
	valid := DefaultConfig("x")
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no deployment", func(c *Config) { c.Deployment = "" }},
		{"no workers", func(c *Config) { c.Workers = 0 }},
		{"unbounded", func(c *Config) { c.Invocations = 0; c.Duration = 0 }},
		{"negative work", func(c *Config) { c.WorkTime = -time.Second }},
		{"rates above one", func(c *Config) { c.SystemErrorRate = 0.6; c.AppErrorRate = 0.6 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig("x")
			tt.mutate(&c)
			assert.True(t, errors.IsType(c.Validate(), errors.ErrorTypeInvalidArgument))
		})
	}
}

func TestDescriptors(t *testing.T) {
	cfg := containerConfig(2, true)
	maxSize := 7
	cfg.Deployments = []config.DeploymentConfig{
		{ID: "a", Bean: "slow-worker", PoolOverrides: config.PoolOverrides{MaxSize: &maxSize}},
		{ID: "b"},
	}

	descriptors, err := Descriptors(cfg)
	require.NoError(t, err)
	require.Len(t, descriptors, 2)
	assert.Equal(t, 7, descriptors[0].Policy.MaxSize)
	assert.Equal(t, 2, descriptors[1].Policy.MaxSize)

	v, err := descriptors[0].Constructor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, v.(*Worker).InitDelay)

	cfg.Deployments = []config.DeploymentConfig{{ID: "c", Bean: "quantum"}}
	_, err = Descriptors(cfg)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	cfg.Deployments = nil
	_, err = Descriptors(cfg)
	assert.Error(t, err)
}

func TestReportJSON(t *testing.T) {
	r := &Report{Config: DefaultConfig("json"), Invocations: 3, Succeeded: 3}
	var buf bytes.Buffer
	require.NoError(t, r.WriteJSON(&buf))

	var decoded map[string]any
	require.NoError(t, gojson.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 3.0, decoded["invocations"])
	assert.Contains(t, decoded, "pool")
}

func TestLatencyTracker(t *testing.T) {
	lt := NewLatencyTracker(100)
	p50, _, _ := lt.Percentiles()
	assert.Zero(t, p50)

	for i := 1; i <= 200; i++ {
		lt.Record(time.Duration(i) * time.Millisecond)
	}
	p50, p95, p99 := lt.Percentiles()
	assert.Equal(t, 151*time.Millisecond, p50, "only the last 100 samples are kept")
	assert.Equal(t, 196*time.Millisecond, p95)
	assert.Equal(t, 200*time.Millisecond, p99)
}

func TestResourceMonitor(t *testing.T) {
	usage := NewResourceMonitor().Usage()
	assert.Greater(t, usage.GoroutineCount, 0)
}
