package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/retrixe/imprint/imaging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/retrixe/glassarch/internal/config"
	"github.com/retrixe/glassarch/internal/disk"
	"github.com/retrixe/glassarch/internal/install"
)

// addConfigFlags registers flags for the configuration keys that can be set
// on the command line. Secrets are only accepted from files, the environment
// or stdin so they never appear in the process list.
func addConfigFlags(flags *pflag.FlagSet) {
	d := config.Defaults()

	flags.StringP("disk", "d", "", "Whole disk to install to, e.g. /dev/sda or /dev/nvme0n1")
	flags.String("hostname", d["hostname"].(string), "Hostname of the installed system")
	flags.String("timezone", d["timezone"].(string), "Timezone, relative to /usr/share/zoneinfo")
	flags.String("locale", d["locale"].(string), "System locale")
	flags.String("keymap", d["keymap"].(string), "Console keymap")
	flags.String("filesystem", d["filesystem"].(string), "Root filesystem: ext4, btrfs or xfs")
	flags.String("esp-size", d["esp-size"].(string), "Size of the EFI system partition")
	flags.String("bootloader", d["bootloader"].(string), "Boot loader: systemd-boot or grub")
	flags.String("kernel", d["kernel"].(string), "Kernel package")
	flags.String("microcode", d["microcode"].(string), "CPU microcode: auto, intel, amd or none")
	flags.StringSlice("packages", nil, "Extra packages to install")
	flags.StringSlice("services", nil, "Systemd units to enable")
	flags.Bool("encrypt", false, "Encrypt the root partition with LUKS2")
	flags.String("passphrase-file", "", "File containing the encryption passphrase, - for stdin")
	flags.String("mapper-name", d["mapper-name"].(string), "Device-mapper name of the encrypted root")
	flags.String("user", "", "Create a user in the wheel group")
	flags.String("mirror-country", "", "Download a mirrorlist for this two letter country code first")
	flags.String("mount-point", d["mount-point"].(string), "Where the target is mounted during installation")
	flags.Bool("dry-run", false, "Print the commands instead of running them")
	flags.BoolP("yes", "y", false, "Do not ask for confirmation before erasing the disk")
}

func (a *app) installCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install Arch Linux to a disk.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			fmt.Fprint(cmd.OutOrStdout(), summary(cfg))

			if !cfg.Yes && !cfg.DryRun {
				if err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), cfg.Disk); err != nil {
					return err
				}
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			return install.New(cfg, a.log).Run(ctx)
		},
	}

	addConfigFlags(cmd.Flags())

	return cmd
}

func summary(cfg *config.Config) string {
	var s strings.Builder

	fmt.Fprintf(&s, "Target disk:  %s\n", cfg.Disk)
	if size, err := disk.Size(cfg.Disk); err == nil {
		fmt.Fprintf(&s, "Disk size:    %s\n", imaging.BytesToString(int(size), true))
	}
	fmt.Fprintf(&s, "Hostname:     %s\n", cfg.Hostname)
	fmt.Fprintf(&s, "Filesystem:   %s\n", cfg.Filesystem)
	fmt.Fprintf(&s, "Boot loader:  %s\n", cfg.Bootloader)
	if cfg.Encrypt {
		fmt.Fprintf(&s, "Encryption:   LUKS2 (%s, /dev/mapper/%s)\n", cfg.LUKS.Cipher, cfg.MapperName)
	} else {
		fmt.Fprintf(&s, "Encryption:   none\n")
	}
	if cfg.User != "" {
		fmt.Fprintf(&s, "User:         %s\n", cfg.User)
	}
	if cfg.DryRun {
		fmt.Fprintf(&s, "Dry run:      commands are printed, nothing is changed\n")
	}

	return s.String()
}

var errAborted = errors.New("installation aborted")

// confirm asks the user to type the disk path before it is erased.
func confirm(in io.Reader, out io.Writer, disk string) error {
	if f, ok := in.(*os.File); ok && !isTerminal(f) {
		return errors.New("refusing to erase the disk without confirmation, pass --yes to run non-interactively")
	}

	fmt.Fprintf(out, "\nWarning: All data on %s will be ERASED!\nType the disk path to continue: ", disk)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	if strings.TrimSpace(line) != disk {
		return errAborted
	}

	return nil
}
