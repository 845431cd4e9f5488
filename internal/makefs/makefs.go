// Package makefs creates the filesystems of the installed system.
package makefs

import (
	"context"
	"fmt"

	"github.com/retrixe/glassarch/internal/cmd"
)

const (
	FilesystemTypeVFAT  = "vfat"
	FilesystemTypeExt4  = "ext4"
	FilesystemTypeBtrfs = "btrfs"
	FilesystemTypeXFS   = "xfs"
)

// Option changes how a filesystem is created.
type Option func(*settings)

type settings struct {
	label string
	force bool
}

// Label names the new filesystem.
func Label(label string) Option {
	return func(s *settings) { s.label = label }
}

// Force overwrites an existing filesystem signature.
func Force() Option {
	return func(s *settings) { s.force = true }
}

// format describes the command line of one mkfs tool.
type format struct {
	name  string
	tool  string
	args  []string
	force string
	label string
}

var formats = map[string]format{
	FilesystemTypeVFAT:  {name: "FAT32", tool: "mkfs.fat", args: []string{"-F", "32"}, label: "-n"},
	FilesystemTypeExt4:  {name: "ext4", tool: "mkfs.ext4", force: "-F", label: "-L"},
	FilesystemTypeBtrfs: {name: "btrfs", tool: "mkfs.btrfs", force: "-f", label: "-L"},
	FilesystemTypeXFS:   {name: "XFS", tool: "mkfs.xfs", force: "-f", label: "-L"},
}

func lookup(fstype string) (format, error) {
	f, ok := formats[fstype]
	if !ok {
		return format{}, fmt.Errorf("unsupported filesystem type: %s", fstype)
	}
	return f, nil
}

// Tool returns the mkfs binary used for fstype.
func Tool(fstype string) (string, error) {
	f, err := lookup(fstype)
	if err != nil {
		return "", err
	}
	return f.tool, nil
}

// Make creates a filesystem of type fstype on partname. mkfs.fat always
// overwrites, so Force has no effect on vfat.
func Make(ctx context.Context, runner cmd.Runner, fstype, partname string, opts ...Option) error {
	f, err := lookup(fstype)
	if err != nil {
		return err
	}

	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	args := append([]string(nil), f.args...)
	if s.force && f.force != "" {
		args = append(args, f.force)
	}
	if s.label != "" {
		args = append(args, f.label, s.label)
	}
	args = append(args, partname)

	if _, err := runner.Run(ctx, f.tool, args...); err != nil {
		return fmt.Errorf("failed to create %s filesystem: %w", f.name, err)
	}

	return nil
}
