package worker

import "errors"

var (
	// ErrNilProcessor indicates the pool was created without a processor function
	ErrNilProcessor = errors.New("worker: processor function is nil")
	// ErrPoolNotStarted indicates work was submitted before Start
	ErrPoolNotStarted = errors.New("worker: pool not started")
	// ErrPoolAlreadyStarted indicates Start was called twice
	ErrPoolAlreadyStarted = errors.New("worker: pool already started")
	// ErrPoolStopped indicates work was submitted after Stop
	ErrPoolStopped = errors.New("worker: pool stopped")
	// ErrQueueFull indicates the work queue is saturated and the item was dropped
	ErrQueueFull = errors.New("worker: queue full")
	// ErrStopTimeout indicates workers did not drain within the stop timeout
	ErrStopTimeout = errors.New("worker: stop timeout exceeded")
)
