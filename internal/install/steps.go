package install

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/retrixe/imprint/imaging"
	vfs "github.com/twpayne/go-vfs"

	"github.com/retrixe/glassarch/internal/chroot"
	"github.com/retrixe/glassarch/internal/config"
	"github.com/retrixe/glassarch/internal/disk"
	"github.com/retrixe/glassarch/internal/luks"
	"github.com/retrixe/glassarch/internal/makefs"
	"github.com/retrixe/glassarch/internal/mirror"
	"github.com/retrixe/glassarch/internal/sysconf"
)

const (
	espLabel  = "EFI"
	rootLabel = "root"
)

func describe(info *disk.Info) string {
	size := imaging.BytesToString(int(info.Size), true)
	if info.Model == "" {
		return size
	}
	return info.Model + ", " + size
}

func (i *Installer) fetchMirrorlist(ctx context.Context) error {
	if i.Config.DryRun {
		i.logger().Infof("would download the %s mirrorlist to %s", i.Config.MirrorCountry, mirror.DefaultPath)
		return nil
	}

	servers, err := i.Mirror.Fetch(ctx, i.Config.MirrorCountry, mirror.DefaultPath)
	if err != nil {
		return err
	}

	i.logger().Infof("using %d mirrors from %s", servers, i.Config.MirrorCountry)

	return nil
}

func (i *Installer) partition(ctx context.Context) error {
	layout, err := i.Partitioner.Partition(ctx, i.device, i.Config.ESPBytes(), config.MinRootSize)
	if err != nil {
		return err
	}

	i.layout = layout
	i.esp = disk.PartitionPath(i.device, layout.ESP.Number)
	i.root = disk.PartitionPath(i.device, layout.Root.Number)

	return nil
}

func (i *Installer) encrypt(ctx context.Context) error {
	cfg := i.Config

	params := luks.Params{
		Cipher:   cfg.LUKS.Cipher,
		KeySize:  cfg.LUKS.KeySize,
		Hash:     cfg.LUKS.Hash,
		PBKDF:    cfg.LUKS.PBKDF,
		IterTime: cfg.LUKS.IterTime,
	}

	if err := luks.Format(ctx, i.Runner, i.root, cfg.Passphrase, params); err != nil {
		return err
	}

	mapped, err := luks.Open(ctx, i.Runner, i.root, cfg.MapperName, cfg.Passphrase)
	if err != nil {
		return err
	}

	i.cleanup.Push(func() error {
		return luks.Close(context.WithoutCancel(ctx), i.Runner, cfg.MapperName)
	})

	i.root = mapped

	return nil
}

func (i *Installer) makeFilesystems(ctx context.Context) error {
	if err := makefs.Make(ctx, i.Runner, makefs.FilesystemTypeVFAT, i.esp, makefs.Label(espLabel)); err != nil {
		return err
	}

	return makefs.Make(ctx, i.Runner, i.Config.Filesystem, i.root,
		makefs.Label(rootLabel), makefs.Force())
}

func (i *Installer) mount(_ context.Context) error {
	mp := i.Config.MountPoint

	i.cleanup.Push(i.mounts.UnmountAll)

	if err := i.mounts.Mount(i.root, mp, i.Config.Filesystem); err != nil {
		return err
	}

	return i.mounts.Mount(i.esp, path.Join(mp, "boot"), makefs.FilesystemTypeVFAT, "fmask=0077", "dmask=0077")
}

func (i *Installer) pacstrap(ctx context.Context) error {
	vendor := ""
	if i.Config.Microcode == config.MicrocodeAuto && i.CPUVendor != nil {
		vendor = i.CPUVendor()
	}

	pkgs := i.Config.PackageSet(vendor)
	i.logger().WithField("packages", len(pkgs)).Debugf("installing %v", pkgs)

	args := append([]string{"-K", i.Config.MountPoint}, pkgs...)
	if _, err := i.Runner.Run(ctx, "pacstrap", args...); err != nil {
		return fmt.Errorf("failed to install packages: %w", err)
	}

	return nil
}

// kernelCmdline returns the kernel command line of the installed system.
func (i *Installer) kernelCmdline() (string, error) {
	opts := sysconf.CmdlineOptions{RootPARTUUID: i.layout.Root.GUID}
	if i.Config.Encrypt {
		opts.MapperName = i.Config.MapperName
	}

	cmdline, err := sysconf.KernelCmdline(opts)
	if err != nil {
		return "", err
	}

	return cmdline.String(), nil
}

func (i *Installer) configure(ctx context.Context) error {
	cfg := i.Config
	log := i.logger()

	cmdline, err := i.kernelCmdline()
	if err != nil {
		return err
	}
	log.WithField("cmdline", cmdline).Debug("kernel command line")

	fstab, err := i.Runner.Run(ctx, "genfstab", "-U", cfg.MountPoint)
	if err != nil {
		return fmt.Errorf("failed to generate fstab: %w", err)
	}

	if cfg.DryRun {
		log.Info("would write fstab, hostname, hosts, locale, console, initramfs and boot loader configuration")
		return nil
	}

	fs := i.TargetFS(cfg.MountPoint)

	if _, err := fs.Stat(path.Join("/usr/share/zoneinfo", cfg.Timezone)); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", cfg.Timezone, err)
	}

	steps := []func(vfs.FS) error{
		func(fs vfs.FS) error { return sysconf.WriteFstab(fs, fstab) },
		func(fs vfs.FS) error { return sysconf.WriteHostname(fs, cfg.Hostname) },
		func(fs vfs.FS) error { return sysconf.WriteHosts(fs, cfg.Hostname) },
		func(fs vfs.FS) error { return sysconf.EnableLocale(fs, cfg.Locale) },
		func(fs vfs.FS) error { return sysconf.WriteLocaleConf(fs, cfg.Locale) },
		func(fs vfs.FS) error { return sysconf.WriteVConsole(fs, cfg.Keymap) },
		func(fs vfs.FS) error { return sysconf.ConfigureMkinitcpio(fs, cfg.Encrypt) },
	}

	if cfg.User != "" {
		steps = append(steps, sysconf.EnableWheelSudo)
	}

	switch cfg.Bootloader {
	case config.BootloaderGrub:
		steps = append(steps, func(fs vfs.FS) error { return sysconf.ConfigureGrub(fs, cmdline, cfg.Encrypt) })
	default:
		steps = append(steps, func(fs vfs.FS) error { return sysconf.WriteSystemdBoot(fs, cfg.Kernel, cmdline) })
	}

	for _, step := range steps {
		if err := step(fs); err != nil {
			return err
		}
	}

	return nil
}

func (i *Installer) configureChroot(ctx context.Context) error {
	cfg := i.Config
	c := chroot.New(i.Runner, cfg.MountPoint)

	if err := c.SetTimezone(ctx, cfg.Timezone); err != nil {
		return err
	}
	if err := c.GenerateLocales(ctx); err != nil {
		return err
	}
	if err := c.BuildInitramfs(ctx); err != nil {
		return err
	}

	if cfg.RootPassword != "" {
		if err := c.SetPassword(ctx, "root", cfg.RootPassword); err != nil {
			return err
		}
	} else {
		i.logger().Warn("no root password set, the root account stays locked")
	}

	if cfg.User != "" {
		if err := c.AddUser(ctx, cfg.User); err != nil {
			return err
		}
		if cfg.UserPassword != "" {
			if err := c.SetPassword(ctx, cfg.User, cfg.UserPassword); err != nil {
				return err
			}
		}
	}

	switch cfg.Bootloader {
	case config.BootloaderGrub:
		if err := c.InstallGrub(ctx); err != nil {
			return err
		}
	case config.BootloaderSystemdBoot:
		if err := c.InstallSystemdBoot(ctx); err != nil {
			return err
		}
	default:
		return errors.New("unsupported bootloader " + cfg.Bootloader)
	}

	return c.EnableServices(ctx, cfg.Services...)
}
