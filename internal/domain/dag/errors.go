package dag

import "errors"

var (
	// ErrCycle is returned when a graph cannot be ordered.
	ErrCycle = errors.New("cycle detected in graph")
	// ErrInvalid is returned when an operation needs a valid DAG.
	ErrInvalid = errors.New("invalid DAG")
)
