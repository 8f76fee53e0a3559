package stateless

import (
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/beanpool/pkg/bean"
	"github.com/ajitpratap0/beanpool/pkg/pool"
)

// Outcome tells Release what to do with an instance.
type Outcome int

const (
	// Recyclable instances go back to the pool
	Recyclable Outcome = iota
	// Corrupted instances are destroyed and their pool slot freed
	Corrupted
)

// String implements fmt.Stringer
func (o Outcome) String() string {
	switch o {
	case Recyclable:
		return "recyclable"
	case Corrupted:
		return "corrupted"
	default:
		return "unknown"
	}
}

type instanceState int32

const (
	stateCheckedOut instanceState = iota + 1
	statePooled
	stateReleased
)

// Instance is a bean instance handed out by GetInstance. It must be given
// back exactly once through Release, PoolInstance or DiscardInstance.
type Instance struct {
	bean    any
	owner   *deployment
	entry   *pool.Entry[*Instance]
	created time.Time

	state     atomic.Int32
	destroyed atomic.Bool
}

func newInstance(owner *deployment, b any, created time.Time) *Instance {
	inst := &Instance{bean: b, owner: owner, created: created}
	inst.state.Store(int32(stateCheckedOut))
	return inst
}

// Bean returns the bean value.
func (i *Instance) Bean() any {
	return i.bean
}

// DeploymentID returns the deployment the instance belongs to.
func (i *Instance) DeploymentID() bean.DeploymentID {
	return i.owner.id
}

// Created returns when the instance was constructed.
func (i *Instance) Created() time.Time {
	return i.created
}

func (i *Instance) checkOut() {
	i.state.Store(int32(stateCheckedOut))
}

// transition moves a checked-out instance to next. It fails when the
// instance is not checked out, which is how a double release shows up.
func (i *Instance) transition(next instanceState) bool {
	return i.state.CompareAndSwap(int32(stateCheckedOut), int32(next))
}
