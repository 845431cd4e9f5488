// Package cleanup collects undo actions and runs them in reverse order.
package cleanup

import (
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Stack is a LIFO list of cleanup functions.
type Stack struct {
	mu    sync.Mutex
	funcs []func() error
}

// NewStack returns an empty cleanup stack.
func NewStack() *Stack {
	return &Stack{}
}

// Push adds a cleanup function to the top of the stack.
func (s *Stack) Push(f func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.funcs = append(s.funcs, f)
}

// Len returns the number of pending cleanup functions.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.funcs)
}

// Cleanup runs every pushed function, last pushed first, even when some of
// them fail. The returned error contains err followed by all cleanup errors,
// or is nil when there were none.
func (s *Stack) Cleanup(err error) error {
	s.mu.Lock()
	funcs := s.funcs
	s.funcs = nil
	s.mu.Unlock()

	var result *multierror.Error
	if err != nil {
		result = multierror.Append(result, err)
	}

	for i := len(funcs) - 1; i >= 0; i-- {
		if cerr := funcs[i](); cerr != nil {
			result = multierror.Append(result, cerr)
		}
	}

	if result == nil {
		return nil
	}

	if len(result.Errors) == 1 {
		return result.Errors[0]
	}

	return result
}
