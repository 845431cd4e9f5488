package sysconf

import (
	"fmt"
	"path"
	"strings"

	"github.com/siderolabs/go-procfs/procfs"
	vfs "github.com/twpayne/go-vfs"
)

const (
	LoaderConfPath   = "/boot/loader/loader.conf"
	LoaderEntriesDir = "/boot/loader/entries"
	GrubDefaultsPath = "/etc/default/grub"
)

// CmdlineOptions describe how the kernel finds the root filesystem.
type CmdlineOptions struct {
	// RootPARTUUID is the GPT partition GUID of the root partition.
	RootPARTUUID string
	// MapperName is the device-mapper name the encrypt hook opens the root
	// partition as. Empty when the root is not encrypted.
	MapperName string
	Extra      []string
}

// KernelCmdline builds the kernel command line for the installed system.
func KernelCmdline(opts CmdlineOptions) (*procfs.Cmdline, error) {
	cmdline := procfs.NewCmdline("")

	root := "PARTUUID=" + strings.ToLower(opts.RootPARTUUID)

	if opts.MapperName != "" {
		cmdline.Append("cryptdevice", root+":"+opts.MapperName)
		cmdline.Append("root", "/dev/mapper/"+opts.MapperName)
	} else {
		cmdline.Append("root", root)
	}

	cmdline.Append("rw", "")

	if err := cmdline.AppendAll(opts.Extra); err != nil {
		return nil, fmt.Errorf("invalid kernel arguments: %w", err)
	}

	return cmdline, nil
}

// Entry is a systemd-boot loader entry.
type Entry struct {
	Title   string
	Linux   string
	Initrd  string
	Options string
}

func (e Entry) String() string {
	return fmt.Sprintf("title   %s\nlinux   %s\ninitrd  %s\noptions %s\n", e.Title, e.Linux, e.Initrd, e.Options)
}

// WriteSystemdBoot writes the systemd-boot loader configuration with a
// default and a fallback entry for kernel.
func WriteSystemdBoot(fsys vfs.FS, kernel, cmdline string) error {
	loader := "default arch.conf\ntimeout 3\nconsole-mode max\neditor no\n"
	if err := writeFile(fsys, LoaderConfPath, []byte(loader), defaultFileMode); err != nil {
		return err
	}

	entries := map[string]Entry{
		"arch.conf": {
			Title:   "Arch Linux",
			Linux:   "/vmlinuz-" + kernel,
			Initrd:  "/initramfs-" + kernel + ".img",
			Options: cmdline,
		},
		"arch-fallback.conf": {
			Title:   "Arch Linux (fallback initramfs)",
			Linux:   "/vmlinuz-" + kernel,
			Initrd:  "/initramfs-" + kernel + "-fallback.img",
			Options: cmdline,
		},
	}

	for name, entry := range entries {
		if err := writeFile(fsys, path.Join(LoaderEntriesDir, name), []byte(entry.String()), defaultFileMode); err != nil {
			return err
		}
	}

	return nil
}

// ConfigureGrub sets the kernel command line in /etc/default/grub and lets
// GRUB unlock encrypted disks when encrypt is set.
func ConfigureGrub(fsys vfs.FS, cmdline string, encrypt bool) error {
	if err := setShellVar(fsys, GrubDefaultsPath, "GRUB_CMDLINE_LINUX", fmt.Sprintf("%q", cmdline)); err != nil {
		return err
	}

	if encrypt {
		return setShellVar(fsys, GrubDefaultsPath, "GRUB_ENABLE_CRYPTODISK", "y")
	}

	return nil
}

// setShellVar sets key in a shell-style KEY=value file, uncommenting an
// existing assignment or appending one.
func setShellVar(fsys vfs.FS, name, key, value string) error {
	assignment := key + "=" + value

	return editLines(fsys, name, func(line string) (string, bool) {
		trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "#"))
		if strings.HasPrefix(trimmed, key+"=") {
			return assignment, true
		}
		return line, false
	}, assignment)
}
