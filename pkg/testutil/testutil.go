// Package testutil provides testing utilities for beanpool
package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/beanpool/pkg/bean"
	"github.com/ajitpratap0/beanpool/pkg/config"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout, cancelled
// when the test completes.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// AssertEventually asserts that a condition becomes true within the specified timeout.
// It checks the condition every 10ms until it succeeds or the timeout expires.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// Lifecycle counts the callbacks of the beans built by its descriptor and
// can be told to fail them.
type Lifecycle struct {
	Constructed atomic.Int64
	Initialized atomic.Int64
	Removed     atomic.Int64

	// FailConstruct makes the constructor return an error
	FailConstruct atomic.Bool
	// FailCreate makes the Create callback return an error
	FailCreate atomic.Bool
	// PanicCreate makes the Create callback panic
	PanicCreate atomic.Bool
	// FailRemove makes the Remove callback return an error
	FailRemove atomic.Bool

	mu      sync.Mutex
	removed []int64
}

// Bean is a stateful, non-thread-safe test bean.
type Bean struct {
	ID      int64
	Calls   int
	Session *bean.SessionContext

	lc      *Lifecycle
	inUse   atomic.Bool
	removed atomic.Int32
}

// SetSessionContext implements bean.ContextAware
func (b *Bean) SetSessionContext(sc *bean.SessionContext) error {
	b.Session = sc
	return nil
}

// Create implements bean.Creatable
func (b *Bean) Create(ctx context.Context) error {
	if b.lc.PanicCreate.Load() {
		panic(fmt.Sprintf("bean %d exploded in create", b.ID))
	}
	if b.lc.FailCreate.Load() {
		return fmt.Errorf("bean %d failed to initialize", b.ID)
	}
	b.lc.Initialized.Add(1)
	return nil
}

// Remove implements bean.Removable
func (b *Bean) Remove(ctx context.Context) error {
	b.removed.Add(1)
	b.lc.Removed.Add(1)
	b.lc.mu.Lock()
	b.lc.removed = append(b.lc.removed, b.ID)
	b.lc.mu.Unlock()
	if b.lc.FailRemove.Load() {
		return fmt.Errorf("bean %d failed to release resources", b.ID)
	}
	return nil
}

// RemoveCount reports how many times Remove ran on this bean.
func (b *Bean) RemoveCount() int {
	return int(b.removed.Load())
}

// Enter marks the bean as in use and reports false if another caller was
// already using it.
func (b *Bean) Enter() bool {
	if !b.inUse.CompareAndSwap(false, true) {
		return false
	}
	b.Calls++
	return true
}

// Leave marks the bean as no longer in use.
func (b *Bean) Leave() {
	b.inUse.Store(false)
}

// RemovedIDs returns the IDs of removed beans in removal order.
func (lc *Lifecycle) RemovedIDs() []int64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return append([]int64(nil), lc.removed...)
}

// Live returns constructed beans minus removed ones.
func (lc *Lifecycle) Live() int64 {
	return lc.Initialized.Load() - lc.Removed.Load()
}

// Constructor returns a bean.Constructor producing *Bean values numbered
// from 1.
func (lc *Lifecycle) Constructor() bean.Constructor {
	return func(ctx context.Context) (any, error) {
		if lc.FailConstruct.Load() {
			return nil, fmt.Errorf("constructor failed")
		}
		return &Bean{ID: lc.Constructed.Add(1), lc: lc}, nil
	}
}

// Descriptor builds a descriptor for id whose beans report to lc.
func (lc *Lifecycle) Descriptor(id bean.DeploymentID, policy config.PoolConfig) *bean.Descriptor {
	return &bean.Descriptor{
		ID:          id,
		Name:        string(id),
		Constructor: lc.Constructor(),
		Policy:      policy,
	}
}

// Policy returns the default pool policy with the given capacity and
// strictness, no sweeper and a short close timeout.
func Policy(maxSize int, strict bool, accessTimeout time.Duration) config.PoolConfig {
	p := config.DefaultPoolConfig()
	p.MaxSize = maxSize
	p.StrictPooling = strict
	p.AccessTimeout = accessTimeout
	p.SweepInterval = 0
	p.CloseTimeout = time.Second
	return p
}
