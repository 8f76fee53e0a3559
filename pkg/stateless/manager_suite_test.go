package stateless

import (
	"context"
	"sync"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/beanpool/pkg/bean"
	"github.com/ajitpratap0/beanpool/pkg/config"
	"github.com/ajitpratap0/beanpool/pkg/errors"
	"github.com/ajitpratap0/beanpool/pkg/metrics"
	"github.com/ajitpratap0/beanpool/pkg/testutil"
)

type managerSuite struct {
	testutil.ContainerSuite
	m *Manager
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(managerSuite))
}

func (s *managerSuite) SetupTest() {
	s.ContainerSuite.SetupTest()
	s.m = NewManager(NewRegistry(), WithLogger(s.Logger()))
}

func (s *managerSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.m.Close(ctx)
}

func (s *managerSuite) deploy(id bean.DeploymentID, policy config.PoolConfig) {
	s.Require().NoError(s.m.Deploy(s.Context(), s.Lifecycle.Descriptor(id, policy)))
}

func (s *managerSuite) TestSystemErrorWrappingApplicationErrorDiscards() {
	s.deploy("wrapped-app", testutil.Policy(1, true, time.Second))
	ctx := s.Context()

	err := s.m.Invoke(ctx, "wrapped-app", func(ctx context.Context, b any) error {
		cause := errors.New(errors.ErrorTypeApplication, "order rejected")
		return errors.Wrap(cause, errors.ErrorTypeSystem, "ledger unavailable")
	})
	s.Require().Error(err)
	s.Equal(errors.ErrorTypeSystem, errors.TypeOf(err))

	inst, err := s.m.GetInstance(ctx, "wrapped-app")
	s.Require().NoError(err)
	s.Equal(int64(2), inst.Bean().(*testutil.Bean).ID, "the failed bean must not be reused")
	s.Equal([]int64{1}, s.Lifecycle.RemovedIDs())
	s.Require().NoError(s.m.PoolInstance(ctx, inst))

	err = s.m.Invoke(ctx, "wrapped-app", func(ctx context.Context, b any) error {
		return errors.New(errors.ErrorTypeApplication, "order rejected")
	})
	s.True(errors.IsType(err, errors.ErrorTypeApplication))
	st, _ := s.m.Stats("wrapped-app")
	s.Equal(1, st.Idle, "a plain application error recycles the bean")
	s.Equal([]int64{1}, s.Lifecycle.RemovedIDs())
}

func (s *managerSuite) TestFreedInstanceIsNeverPooled() {
	s.deploy("freed", testutil.Policy(1, true, 5*time.Second))
	ctx := s.Context()

	inst, err := s.m.GetInstance(ctx, "freed")
	s.Require().NoError(err)

	waiter := make(chan *Instance, 1)
	go func() {
		next, err := s.m.GetInstance(ctx, "freed")
		s.NoError(err)
		waiter <- next
	}()
	testutil.AssertEventually(s.T(), func() bool {
		st, _ := s.m.Stats("freed")
		return st.Waiting == 1
	}, time.Second, "second caller should wait on the exhausted pool")

	s.m.FreeInstance(ctx, inst)
	s.Require().NoError(s.m.PoolInstance(ctx, inst))

	select {
	case next := <-waiter:
		b := next.Bean().(*testutil.Bean)
		s.Equal(int64(2), b.ID, "waiter gets a newly built bean")
		s.Zero(b.RemoveCount())
		s.Require().NoError(s.m.PoolInstance(ctx, next))
	case <-time.After(2 * time.Second):
		s.FailNow("waiter was not woken by the release of a freed instance")
	}

	st, _ := s.m.Stats("freed")
	s.Equal(1, st.Live)
	s.Equal(1, st.Idle)
	s.Equal(1, inst.Bean().(*testutil.Bean).RemoveCount())
}

func (s *managerSuite) TestMinimalPolicyDeploys() {
	policy := config.PoolConfig{MaxSize: 2, StrictPooling: true, AccessTimeout: 100 * time.Millisecond}
	s.deploy("minimal", policy)

	d, ok := s.m.registry.lookup("minimal")
	s.Require().True(ok)
	defaults := config.DefaultPoolConfig()
	s.Equal(defaults.CallbackThreads, d.policy.CallbackThreads)
	s.Equal(defaults.CloseTimeout, d.policy.CloseTimeout, "a zero close timeout falls back to the default")

	err := s.m.Invoke(s.Context(), "minimal", func(ctx context.Context, b any) error { return nil })
	s.NoError(err)
}

func (s *managerSuite) TestUndeployWithZeroCloseTimeoutIsBounded() {
	policy := testutil.Policy(1, true, time.Second)
	policy.CloseTimeout = 0
	s.deploy("zero-close", policy)

	leaked, err := s.m.GetInstance(s.Context(), "zero-close")
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = s.m.Undeploy(ctx, "zero-close")
	s.True(errors.IsType(err, errors.ErrorTypeTimeout))

	s.Require().NoError(s.m.PoolInstance(s.Context(), leaked))
	s.Equal(int64(1), s.Lifecycle.Removed.Load())
}

func (s *managerSuite) TestUndeployKeepsGaugesOfLazyReinstall() {
	policy := testutil.Policy(1, true, time.Second)
	policy.CloseTimeout = 300 * time.Millisecond
	m := NewManager(NewRegistry(),
		WithLogger(s.Logger()),
		WithDescriptorSource(bean.NewCatalog(s.Lifecycle.Descriptor("reinstall", policy))))
	defer func() { _ = m.Close(context.Background()) }()
	ctx := s.Context()

	leaked, err := m.GetInstance(ctx, "reinstall")
	s.Require().NoError(err)

	undeployed := make(chan error, 1)
	go func() { undeployed <- m.Undeploy(ctx, "reinstall") }()
	testutil.AssertEventually(s.T(), func() bool {
		return len(m.Deployments()) == 0
	}, time.Second, "deployment should be unregistered")

	fresh, err := m.GetInstance(ctx, "reinstall")
	s.Require().NoError(err, "the source installs the deployment again")
	s.Require().NoError(m.PoolInstance(ctx, fresh))

	s.True(errors.IsType(<-undeployed, errors.ErrorTypeTimeout))
	s.Equal(1.0, promtestutil.ToFloat64(metrics.Instances.WithLabelValues("reinstall", "idle")),
		"the old deployment must not drop the new deployment's series")

	s.Require().NoError(m.PoolInstance(ctx, leaked))
	st, err := m.Stats("reinstall")
	s.Require().NoError(err)
	s.Equal(1, st.Live)
}

func (s *managerSuite) TestConcurrentNonStrictOverflow() {
	const capacity, callers = 2, 7
	s.deploy("overflow-concurrent", testutil.Policy(capacity, false, 0))
	ctx := s.Context()

	var acquired, release sync.WaitGroup
	acquired.Add(callers)
	release.Add(1)
	var done sync.WaitGroup
	for i := 0; i < callers; i++ {
		done.Add(1)
		go func() {
			defer done.Done()
			inst, err := s.m.GetInstance(ctx, "overflow-concurrent")
			acquired.Done()
			if !s.NoError(err) {
				return
			}
			release.Wait()
			s.NoError(s.m.PoolInstance(ctx, inst))
		}()
	}

	acquired.Wait()
	st, _ := s.m.Stats("overflow-concurrent")
	s.Equal(callers, st.Live, "every caller holds its own instance")
	s.Equal(callers, st.Active)

	release.Done()
	done.Wait()

	st, _ = s.m.Stats("overflow-concurrent")
	s.Equal(capacity, st.Live)
	s.Equal(capacity, st.Idle)
	s.Equal(int64(callers), s.Lifecycle.Constructed.Load())
	s.Equal(int64(callers-capacity), s.Lifecycle.Removed.Load())
}

func (s *managerSuite) TestRegistryTracksDeployments() {
	s.deploy("first", testutil.Policy(1, true, time.Second))
	s.deploy("second", testutil.Policy(1, true, time.Second))
	s.Equal(2, s.m.registry.Len())

	s.Require().NoError(s.m.Undeploy(s.Context(), "first"))
	s.Equal(1, s.m.registry.Len())
	s.Equal([]bean.DeploymentID{"second"}, s.m.Deployments())
}
