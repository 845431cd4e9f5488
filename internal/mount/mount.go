// Package mount mounts the filesystems of the target system and takes them
// down again in reverse order.
package mount

import (
	"fmt"
	"os"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	mountutils "k8s.io/mount-utils"
)

// Point is a filesystem mounted by a Stack.
type Point struct {
	Source  string
	Target  string
	FSType  string
	Options []string
}

// Stack mounts filesystems and remembers them so they can be unmounted in
// reverse order.
type Stack struct {
	Mounter mountutils.Interface
	Log     logrus.FieldLogger
	// DryRun skips creating mount point directories.
	DryRun bool

	mu     sync.Mutex
	points []Point
}

// NewStack returns a Stack backed by mounter.
func NewStack(mounter mountutils.Interface, log logrus.FieldLogger) *Stack {
	return &Stack{Mounter: mounter, Log: log}
}

// Mount mounts source on target, creating target if needed.
func (s *Stack) Mount(source, target, fstype string, options ...string) error {
	if !s.DryRun {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("failed to create mount point %s: %w", target, err)
		}
	}

	if s.Log != nil {
		s.Log.WithFields(logrus.Fields{"device": source, "target": target}).Debug("mounting")
	}

	if err := s.Mounter.Mount(source, target, fstype, options); err != nil {
		return fmt.Errorf("failed to mount %s on %s: %w", source, target, err)
	}

	s.mu.Lock()
	s.points = append(s.points, Point{Source: source, Target: target, FSType: fstype, Options: options})
	s.mu.Unlock()

	return nil
}

// Points returns the filesystems currently mounted by the stack in mount order.
func (s *Stack) Points() []Point {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Point(nil), s.points...)
}

// UnmountAll unmounts everything mounted through the stack, most recent
// first. Every mount is attempted even if some fail. Filesystems that could
// not be unmounted stay on the stack.
func (s *Stack) UnmountAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		result *multierror.Error
		failed []Point
	)

	for i := len(s.points) - 1; i >= 0; i-- {
		p := s.points[i]

		if s.Log != nil {
			s.Log.WithField("target", p.Target).Debug("unmounting")
		}

		if err := s.Mounter.Unmount(p.Target); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to unmount %s: %w", p.Target, err))
			failed = append([]Point{p}, failed...)
		}
	}

	s.points = failed

	return result.ErrorOrNil()
}
