// Package cmd runs the external tools the installer is built on.
package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/armon/circbuf"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// MaxStderrLen is maximum length of stderr output captured for error message
const MaxStderrLen = 4096

// Runner runs an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
	RunWithStdin(ctx context.Context, stdin io.Reader, name string, args ...string) (string, error)
}

// ExitError is returned when a command could not be started or exited unsuccessfully.
type ExitError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: %v", strings.Join(e.Args, " "), e.Err)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += "\noutput: " + stderr
	}
	return msg
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Exec runs commands on the host.
type Exec struct {
	Log logrus.FieldLogger
}

// NewExec returns a Runner executing commands on the host.
func NewExec(log logrus.FieldLogger) *Exec {
	return &Exec{Log: log}
}

// Run executes a command.
func (e *Exec) Run(ctx context.Context, name string, args ...string) (string, error) {
	return e.RunWithStdin(ctx, nil, name, args...)
}

// RunWithStdin executes a command with stdin attached to the given reader.
func (e *Exec) RunWithStdin(ctx context.Context, stdin io.Reader, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	stderr, err := circbuf.NewBuffer(MaxStderrLen)
	if err != nil {
		return "", err
	}

	var stdout bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	cmd.Stdin = stdin

	if e.Log != nil {
		e.Log.WithField("cmd", cmd.Args).Debug("running command")
	}

	if err = cmd.Run(); err != nil {
		exitErr := &ExitError{Args: cmd.Args, ExitCode: -1, Stderr: stderr.String(), Err: err}

		var ee *exec.ExitError
		if errors.As(err, &ee) {
			exitErr.ExitCode = ee.ExitCode()
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			exitErr.Err = ctxErr
		}

		return stdout.String(), exitErr
	}

	return stdout.String(), nil
}

// LookPath checks that every named tool is available on PATH.
func LookPath(names ...string) error {
	var result *multierror.Error

	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			result = multierror.Append(result, fmt.Errorf("required tool %q not found", name))
		}
	}

	return result.ErrorOrNil()
}
