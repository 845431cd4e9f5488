package cmd

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Invocation is a command recorded by a Recorder.
type Invocation struct {
	Args  []string
	Stdin string
}

// String returns the command line, without stdin.
func (i Invocation) String() string {
	return strings.Join(i.Args, " ")
}

// Recorder records commands instead of running them. It backs --dry-run.
type Recorder struct {
	Log logrus.FieldLogger

	// Outputs maps a command line prefix to the output returned for it.
	Outputs map[string]string
	// Errors maps a command line prefix to the error returned for it.
	Errors map[string]error

	mu          sync.Mutex
	invocations []Invocation
}

// Run records a command.
func (r *Recorder) Run(ctx context.Context, name string, args ...string) (string, error) {
	return r.RunWithStdin(ctx, nil, name, args...)
}

// RunWithStdin records a command and the data it would have read from stdin.
func (r *Recorder) RunWithStdin(_ context.Context, stdin io.Reader, name string, args ...string) (string, error) {
	inv := Invocation{Args: append([]string{name}, args...)}

	if stdin != nil {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", err
		}
		inv.Stdin = string(b)
	}

	r.mu.Lock()
	r.invocations = append(r.invocations, inv)
	r.mu.Unlock()

	if r.Log != nil {
		r.Log.Infof("would run: %s", inv)
	}

	line := inv.String()

	if err, ok := longestPrefix(r.Errors, line); ok {
		return "", &ExitError{Args: inv.Args, ExitCode: 1, Err: err}
	}

	out, _ := longestPrefix(r.Outputs, line)

	return out, nil
}

// longestPrefix returns the value of the longest key of m that line starts with.
func longestPrefix[V any](m map[string]V, line string) (V, bool) {
	var (
		value V
		found = -1
	)

	for prefix, v := range m {
		if len(prefix) > found && strings.HasPrefix(line, prefix) {
			value, found = v, len(prefix)
		}
	}

	return value, found >= 0
}

// Invocations returns the recorded commands in order.
func (r *Recorder) Invocations() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Invocation(nil), r.invocations...)
}

// Lines returns the recorded command lines in order.
func (r *Recorder) Lines() []string {
	invs := r.Invocations()
	lines := make([]string, len(invs))

	for i, inv := range invs {
		lines[i] = inv.String()
	}

	return lines
}
