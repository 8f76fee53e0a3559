package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// ContainerSuite is a testify suite base for tests that deploy beans. The
// suite owns a context and a directory for container documents; every test
// gets a fresh Lifecycle.
type ContainerSuite struct {
	suite.Suite

	// Lifecycle counts the callbacks of beans built during the current test
	Lifecycle *Lifecycle

	ctx    context.Context
	cancel context.CancelFunc
	dir    string
}

// SetupSuite creates the suite context and config directory.
func (s *ContainerSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)

	dir, err := os.MkdirTemp("", "beanpool-suite-*")
	require.NoError(s.T(), err)
	s.dir = dir
}

// TearDownSuite cancels the context and removes the config directory.
func (s *ContainerSuite) TearDownSuite() {
	s.cancel()
	if s.dir != "" {
		_ = os.RemoveAll(s.dir)
	}
}

// SetupTest resets the lifecycle counters.
func (s *ContainerSuite) SetupTest() {
	s.Lifecycle = &Lifecycle{}
}

// Context returns the suite context
func (s *ContainerSuite) Context() context.Context {
	return s.ctx
}

// Logger returns a logger writing to the current test's output
func (s *ContainerSuite) Logger() *zap.Logger {
	return zaptest.NewLogger(s.T())
}

// WriteContainer writes a container document and returns its path.
func (s *ContainerSuite) WriteContainer(name, document string) string {
	path := filepath.Join(s.dir, name)
	require.NoError(s.T(), os.WriteFile(path, []byte(document), 0o600))
	return path
}

// SkipInShort skips load and end-to-end tests under -short.
func SkipInShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping load test in short mode")
	}
}

// LoadTarget checks a load run against a throughput floor and a ceiling
// on heap growth.
type LoadTarget struct {
	t             *testing.T
	name          string
	minThroughput float64 // invocations/sec
	maxHeapGrowth int64   // bytes
}

// NewLoadTarget creates a target with no limits set.
func NewLoadTarget(t *testing.T, name string) *LoadTarget {
	return &LoadTarget{t: t, name: name}
}

// MinThroughput fails the check below perSec invocations per second.
func (l *LoadTarget) MinThroughput(perSec float64) *LoadTarget {
	l.minThroughput = perSec
	return l
}

// MaxHeapGrowth fails the check when the live heap grows by more than
// bytes across the run.
func (l *LoadTarget) MaxHeapGrowth(bytes int64) *LoadTarget {
	l.maxHeapGrowth = bytes
	return l
}

// Check runs fn, which reports how many invocations it made and how long
// they took, and verifies the limits.
func (l *LoadTarget) Check(fn func() (invocations int64, elapsed time.Duration)) {
	l.t.Helper()

	before := TakeHeapSnapshot()
	invocations, elapsed := fn()
	after := TakeHeapSnapshot()

	var throughput float64
	if elapsed > 0 {
		throughput = float64(invocations) / elapsed.Seconds()
	}
	growth := int64(after.HeapAlloc) - int64(before.HeapAlloc)

	l.t.Logf("load %s: %d invocations in %v (%.0f/sec), heap %+d (%s), %d GCs",
		l.name, invocations, elapsed, throughput, growth, FormatBytes(growth), after.NumGC-before.NumGC)

	if l.minThroughput > 0 && throughput < l.minThroughput {
		l.t.Errorf("load %s: throughput %.0f/sec below %.0f/sec", l.name, throughput, l.minThroughput)
	}
	if l.maxHeapGrowth > 0 && growth > l.maxHeapGrowth {
		l.t.Errorf("load %s: heap grew %s, limit %s", l.name, FormatBytes(growth), FormatBytes(l.maxHeapGrowth))
	}
}

// HeapSnapshot is the part of runtime.MemStats a load check looks at.
type HeapSnapshot struct {
	HeapAlloc uint64
	Mallocs   uint64
	NumGC     uint32
}

// TakeHeapSnapshot collects garbage and reads the heap statistics, so
// HeapAlloc approximates the live heap.
func TakeHeapSnapshot() HeapSnapshot {
	runtime.GC()
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return HeapSnapshot{HeapAlloc: m.HeapAlloc, Mallocs: m.Mallocs, NumGC: m.NumGC}
}

// FormatBytes formats bytes into human-readable string
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < 0 {
		return "-" + FormatBytes(-bytes)
	}
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
