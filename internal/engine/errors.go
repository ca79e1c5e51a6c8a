package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTaskNotFound is returned when a referenced task does not exist
	ErrTaskNotFound = errors.New("task not found")
	// ErrFlowNotFound is returned when a referenced flow does not exist
	ErrFlowNotFound = errors.New("flow not found")
	// ErrInvalidStatus is returned for unknown status values
	ErrInvalidStatus = errors.New("invalid task status")
	// ErrSelfDependency is returned when a task is made to depend on itself
	ErrSelfDependency = errors.New("task cannot depend on itself")
	// ErrDependencyExists is returned when the edge already exists
	ErrDependencyExists = errors.New("dependency already exists")
	// ErrCrossFlowDependency is returned when the two tasks belong to different flows
	ErrCrossFlowDependency = errors.New("dependency must stay within one flow")
	// ErrDependencyCycle is returned when an edge would close a cycle
	ErrDependencyCycle = errors.New("dependency would create a cycle")
	// ErrInvalidDependencyType is returned for unknown edge types
	ErrInvalidDependencyType = errors.New("invalid dependency type")
)

// BlockedError rejects a forward status change on a blocked task; it
// names the precedents still in the way.
type BlockedError struct {
	TaskID  int64
	Reasons []string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("task %d is blocked: %s", e.TaskID, strings.Join(e.Reasons, "; "))
}

// IsBlocked reports whether err is a BlockedError
func IsBlocked(err error) (*BlockedError, bool) {
	var be *BlockedError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
