// Package chroot runs configuration commands inside the installed system
// with arch-chroot.
package chroot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/retrixe/glassarch/internal/cmd"
)

// Chroot runs commands with Root as the root directory.
type Chroot struct {
	Runner cmd.Runner
	Root   string
}

// New returns a Chroot for the system mounted at root.
func New(runner cmd.Runner, root string) *Chroot {
	return &Chroot{Runner: runner, Root: root}
}

// Run runs args inside the chroot.
func (c *Chroot) Run(ctx context.Context, args ...string) (string, error) {
	return c.Runner.Run(ctx, "arch-chroot", append([]string{c.Root}, args...)...)
}

// RunWithStdin runs args inside the chroot with stdin attached.
func (c *Chroot) RunWithStdin(ctx context.Context, stdin io.Reader, args ...string) (string, error) {
	return c.Runner.RunWithStdin(ctx, stdin, "arch-chroot", append([]string{c.Root}, args...)...)
}

// SetTimezone links /etc/localtime to the zoneinfo file of tz and sets the
// hardware clock from the system clock.
func (c *Chroot) SetTimezone(ctx context.Context, tz string) error {
	zoneinfo := path.Join("/usr/share/zoneinfo", tz)

	if _, err := c.Run(ctx, "ln", "-sf", zoneinfo, "/etc/localtime"); err != nil {
		return fmt.Errorf("failed to set timezone: %w", err)
	}

	if _, err := c.Run(ctx, "hwclock", "--systohc"); err != nil {
		return fmt.Errorf("failed to set hardware clock: %w", err)
	}

	return nil
}

// GenerateLocales runs locale-gen.
func (c *Chroot) GenerateLocales(ctx context.Context) error {
	if _, err := c.Run(ctx, "locale-gen"); err != nil {
		return fmt.Errorf("failed to generate locales: %w", err)
	}
	return nil
}

// BuildInitramfs regenerates the initramfs of every installed kernel.
func (c *Chroot) BuildInitramfs(ctx context.Context) error {
	if _, err := c.Run(ctx, "mkinitcpio", "-P"); err != nil {
		return fmt.Errorf("failed to build initramfs: %w", err)
	}
	return nil
}

// SetPassword sets the password of user. The password is passed on stdin.
func (c *Chroot) SetPassword(ctx context.Context, user, password string) error {
	if user == "" || strings.ContainsAny(user, ":\n") {
		return fmt.Errorf("invalid user name %q", user)
	}
	if password == "" {
		return errors.New("password must not be empty")
	}
	if strings.Contains(password, "\n") {
		return errors.New("password must not contain newlines")
	}

	if _, err := c.RunWithStdin(ctx, strings.NewReader(user+":"+password+"\n"), "chpasswd"); err != nil {
		return fmt.Errorf("failed to set password for %s: %w", user, err)
	}

	return nil
}

// AddUser creates name with a home directory as a member of wheel.
func (c *Chroot) AddUser(ctx context.Context, name string) error {
	if _, err := c.Run(ctx, "useradd", "-m", "-G", "wheel", "-s", "/bin/bash", name); err != nil {
		return fmt.Errorf("failed to create user %s: %w", name, err)
	}
	return nil
}

// EnableServices enables systemd units.
func (c *Chroot) EnableServices(ctx context.Context, units ...string) error {
	if len(units) == 0 {
		return nil
	}

	if _, err := c.Run(ctx, append([]string{"systemctl", "enable"}, units...)...); err != nil {
		return fmt.Errorf("failed to enable services: %w", err)
	}

	return nil
}

// InstallSystemdBoot installs systemd-boot to the EFI system partition.
func (c *Chroot) InstallSystemdBoot(ctx context.Context) error {
	if _, err := c.Run(ctx, "bootctl", "install"); err != nil {
		return fmt.Errorf("failed to install systemd-boot: %w", err)
	}
	return nil
}

// InstallGrub installs GRUB to the EFI system partition mounted at /boot and
// generates its configuration.
func (c *Chroot) InstallGrub(ctx context.Context) error {
	if _, err := c.Run(ctx, "grub-install", "--target=x86_64-efi", "--efi-directory=/boot", "--bootloader-id=GRUB"); err != nil {
		return fmt.Errorf("failed to install GRUB: %w", err)
	}

	if _, err := c.Run(ctx, "grub-mkconfig", "-o", "/boot/grub/grub.cfg"); err != nil {
		return fmt.Errorf("failed to generate GRUB configuration: %w", err)
	}

	return nil
}
