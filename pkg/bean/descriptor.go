// Package bean describes deployable stateless beans and constructs and
// destroys their instances.
//
// A bean is any Go value. The optional lifecycle interfaces ContextAware,
// Creatable and Removable let a bean take part in its own initialization and
// teardown; the Factory drives them in a fixed order and converts failures,
// including panics, into structured errors.
package bean

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"github.com/ajitpratap0/beanpool/pkg/config"
	"github.com/ajitpratap0/beanpool/pkg/errors"
)

// DeploymentID identifies one deployed bean and selects its pool.
type DeploymentID string

// String implements fmt.Stringer
func (id DeploymentID) String() string {
	return string(id)
}

// Constructor builds a new, uninitialized bean instance.
type Constructor func(ctx context.Context) (any, error)

// Descriptor is everything the container needs to run a deployment.
type Descriptor struct {
	ID   DeploymentID
	Name string

	// Constructor builds instances. When nil, Type is instantiated with
	// reflect.New and the resulting pointer is the bean.
	Constructor Constructor
	Type        reflect.Type

	Policy config.PoolConfig
}

// DisplayName returns Name, falling back to the ID.
func (d *Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return string(d.ID)
}

// Validate checks the descriptor and its policy.
func (d *Descriptor) Validate() error {
	if d == nil {
		return errors.New(errors.ErrorTypeInvalidArgument, "descriptor is nil")
	}
	if d.ID == "" {
		return errors.New(errors.ErrorTypeInvalidArgument, "deployment id is required")
	}
	if d.Constructor == nil && d.Type == nil {
		return errors.Newf(errors.ErrorTypeInvalidArgument,
			"deployment %q needs a constructor or a type", d.ID)
	}
	if err := d.Policy.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid pool policy").
			WithDetail("deployment", string(d.ID))
	}
	return nil
}

// DescriptorSource resolves deployment descriptors, letting the instance
// manager create a pool on first access.
type DescriptorSource interface {
	Descriptor(id DeploymentID) (*Descriptor, bool)
}

// Catalog is an in-memory DescriptorSource safe for concurrent use.
type Catalog struct {
	mu          sync.RWMutex
	descriptors map[DeploymentID]*Descriptor
}

// NewCatalog creates a catalog holding the given descriptors.
func NewCatalog(descriptors ...*Descriptor) *Catalog {
	c := &Catalog{descriptors: make(map[DeploymentID]*Descriptor, len(descriptors))}
	for _, d := range descriptors {
		c.descriptors[d.ID] = d
	}
	return c
}

// Register adds or replaces a descriptor after validating it.
func (c *Catalog) Register(d *Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.descriptors[d.ID] = d
	c.mu.Unlock()
	return nil
}

// Descriptor implements DescriptorSource
func (c *Catalog) Descriptor(id DeploymentID) (*Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.descriptors[id]
	return d, ok
}

// IDs returns the registered deployment identifiers in sorted order.
func (c *Catalog) IDs() []DeploymentID {
	c.mu.RLock()
	ids := make([]DeploymentID, 0, len(c.descriptors))
	for id := range c.descriptors {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
