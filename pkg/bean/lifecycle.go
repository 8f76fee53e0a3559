package bean

import (
	"context"

	"go.uber.org/zap"
)

// SessionContext is injected into ContextAware beans before their Create
// callback runs.
type SessionContext struct {
	DeploymentID DeploymentID
	Name         string
	Logger       *zap.Logger
}

// ContextAware beans receive their SessionContext right after construction.
type ContextAware interface {
	SetSessionContext(sc *SessionContext) error
}

// Creatable beans run an initialization callback before first use.
type Creatable interface {
	Create(ctx context.Context) error
}

// Removable beans run a teardown callback when the container destroys them.
type Removable interface {
	Remove(ctx context.Context) error
}
