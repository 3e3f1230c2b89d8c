package system

import (
	"context"
	"time"
)

// State represents the current lifecycle state of a system
type State int

const (
	// StateCreated indicates the system was created but not initialized
	StateCreated State = iota
	// StateInitialized indicates the system was initialized but not started
	StateInitialized
	// StateStarted indicates the system is running
	StateStarted
	// StateStopped indicates the system was stopped
	StateStopped
	// StateFailed indicates the system failed during a lifecycle operation
	StateFailed
)

// String returns a string representation of the lifecycle state
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Lifecycle is implemented by systems that support managed startup and
// shutdown:
//   - Initialize() error                 // setup only, no I/O loops, no context
//   - Start(ctx context.Context) error   // spawn background work bound to ctx
//   - Stop(timeout time.Duration) error  // graceful shutdown with deadline
type Lifecycle interface {
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}
