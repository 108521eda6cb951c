package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/okian/connect-extensions/internal/domain/dag"
)

// Sentinel errors returned by the service.
var (
	ErrNoPlatform           = errors.New("connect server is not configured")
	ErrNoVisitorIntegration = errors.New("no visitor API key integration is attached to this content")
	ErrNoKillTargets        = errors.New("no jobs to kill")
	ErrKillTimeout          = errors.New("job did not stop in time")
)

// ValidationError lists why a DAG was rejected.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid DAG: " + strings.Join(e.Errors, "; ")
}

// Unwrap lets callers match dag.ErrInvalid.
func (e *ValidationError) Unwrap() error { return dag.ErrInvalid }

// DeployError is a publish task that finished unsuccessfully.
type DeployError struct {
	TaskID  string
	Code    int
	Message string
	Output  []string
}

func (e *DeployError) Error() string {
	msg := e.Message
	if msg == "" && len(e.Output) > 0 {
		msg = e.Output[len(e.Output)-1]
	}
	return fmt.Sprintf("deploy task %s failed (code %d): %s", e.TaskID, e.Code, msg)
}
