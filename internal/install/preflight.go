package install

import (
	"context"
	"errors"
	"fmt"
	"os"

	efi "github.com/canonical/go-efilib"
	"golang.org/x/sys/unix"

	"github.com/retrixe/glassarch/internal/cmd"
	"github.com/retrixe/glassarch/internal/config"
	"github.com/retrixe/glassarch/internal/disk"
	"github.com/retrixe/glassarch/internal/makefs"
)

var (
	// ErrNotRoot is returned when the installer does not run as root.
	ErrNotRoot = errors.New("glassArch must be run as root")
	// ErrNoUEFI is returned when the live system was not booted in UEFI mode.
	ErrNoUEFI = errors.New("system is not booted in UEFI mode")
)

// EFIVarsDir only exists when the kernel was booted by UEFI firmware.
const EFIVarsDir = "/sys/firmware/efi/efivars"

// Preflight holds the host checks run before touching the disk.
type Preflight struct {
	Geteuid      func() int
	EFIVarsDir   string
	SecureBoot   func() (bool, error)
	LookPath     func(names ...string) error
	ValidateDisk func(path string, minSize int64) (*disk.Info, error)
}

// DefaultPreflight checks the running host.
func DefaultPreflight() Preflight {
	return Preflight{
		Geteuid:      unix.Geteuid,
		EFIVarsDir:   EFIVarsDir,
		SecureBoot:   SecureBootEnabled,
		LookPath:     cmd.LookPath,
		ValidateDisk: disk.Validate,
	}
}

// SecureBootEnabled reads the SecureBoot EFI variable.
func SecureBootEnabled() (bool, error) {
	data, _, err := efi.ReadVariable("SecureBoot", efi.GlobalVariable)
	if err != nil {
		return false, err
	}
	return len(data) > 0 && data[0] == 1, nil
}

// RequiredTools returns the external programs needed to install with cfg.
func RequiredTools(cfg *config.Config) []string {
	tools := []string{"wipefs", "partprobe", "pacstrap", "genfstab", "arch-chroot"}

	for _, fstype := range []string{makefs.FilesystemTypeVFAT, cfg.Filesystem} {
		if tool, err := makefs.Tool(fstype); err == nil {
			tools = append(tools, tool)
		}
	}

	if cfg.Encrypt {
		tools = append(tools, "cryptsetup")
	}

	return tools
}

// MinDiskSize is the smallest disk the layout for cfg fits on, including the
// 1 MiB left free at each end of the disk.
func MinDiskSize(cfg *config.Config) int64 {
	return disk.MinSize(cfg.ESPBytes(), config.MinRootSize)
}

func (i *Installer) preflight(ctx context.Context) error {
	cfg := i.Config
	log := i.logger()
	pf := i.Preflight

	if cfg.DryRun {
		log.Info("dry run: skipping root and tool checks")
	} else {
		if pf.Geteuid != nil && pf.Geteuid() != 0 {
			return ErrNotRoot
		}

		if pf.LookPath != nil {
			if err := pf.LookPath(RequiredTools(cfg)...); err != nil {
				return err
			}
		}
	}

	if pf.EFIVarsDir != "" {
		if _, err := os.Stat(pf.EFIVarsDir); err != nil {
			if !cfg.DryRun {
				return ErrNoUEFI
			}
			log.Warn("system is not booted in UEFI mode, the installed system will not boot from this machine's firmware")
		}
	}

	if pf.SecureBoot != nil {
		if enabled, err := pf.SecureBoot(); err != nil {
			log.WithError(err).Debug("could not read Secure Boot state")
		} else if enabled {
			log.Warn("Secure Boot is enabled, the installed system will not boot until it is disabled or keys are enrolled")
		}
	}

	info, err := pf.ValidateDisk(cfg.Disk, MinDiskSize(cfg))
	if err != nil {
		return err
	}
	i.device = info.Path
	log.WithField("device", i.device).Infof("installing to %s (%s)", cfg.Disk, describe(info))

	unmounted, err := disk.UnmountAll(i.Mounter, i.device)
	if err != nil {
		return fmt.Errorf("failed to unmount destination disk: %w", err)
	}
	for _, target := range unmounted {
		log.WithField("target", target).Info("unmounted")
	}

	return ctx.Err()
}
