package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrToolLoopExhausted = errors.New("tool loop exhausted")
	ErrForbiddenWrite    = errors.New("write outside allowed fields")
	ErrInvalidConfig     = errors.New("invalid run configuration")

	// errStopped unwinds a run after the stop flag was observed. It never
	// reaches the caller.
	errStopped = errors.New("run stopped")
)

// ToolLoopExhaustedError reports an analyst that kept requesting tools past
// its iteration bound.
type ToolLoopExhaustedError struct {
	Role       string
	Iterations int
}

func (e *ToolLoopExhaustedError) Error() string {
	return fmt.Sprintf("%s: no final report after %d reasoning steps", e.Role, e.Iterations)
}

func (e *ToolLoopExhaustedError) Is(target error) bool {
	return target == ErrToolLoopExhausted
}
