package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ncruces/zenity"
	"github.com/retrixe/imprint/imaging"
	"github.com/spf13/cobra"

	"github.com/retrixe/glassarch/internal/config"
	"github.com/retrixe/glassarch/internal/install"
)

const wizardTitle = "glassArch Installation Wizard"

type deviceChoice struct {
	Path  string
	Label string
}

// listDevices returns the disks shown by the wizard and the TUI.
func listDevices() ([]deviceChoice, error) {
	devices, err := imaging.GetDevices(imaging.SystemPlatform)
	if err != nil {
		return nil, err
	}

	choices := make([]deviceChoice, len(devices))
	for index, device := range devices {
		label := device.Name + " (" + device.Size + ")"
		if device.Model != "" {
			label = device.Name + " (" + device.Model + ", " + device.Size + ")"
		}
		choices[index] = deviceChoice{Path: device.Name, Label: label}
	}

	return choices, nil
}

func (a *app) wizardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wizard",
		Short: "Start the GUI wizard for installing Arch Linux.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			return a.runWizard(cmd, cfg)
		},
	}

	addConfigFlags(cmd.Flags())

	return cmd
}

func (a *app) runWizard(cmd *cobra.Command, cfg *config.Config) error {
	var dlg zenity.ProgressDialog

	logError := func(format string, v ...any) error {
		err := fmt.Errorf(format, v...)
		zenity.Error(imaging.CapitalizeString(err.Error()),
			zenity.Width(640),
			zenity.WindowIcon(zenity.ErrorIcon),
			zenity.Title(wizardTitle),
			zenity.Icon(zenity.ErrorIcon),
			zenity.OKLabel("Exit"))
		a.log.Error(err)
		return &silentError{err}
	}

	err := zenity.Question(`This wizard will guide you through installing Arch Linux.

You will choose the disk to install to, a hostname and whether the system should be encrypted.

⚠️ Warning: All data on the disk you select will be ERASED!`,
		zenity.Width(640),
		zenity.Height(480),
		zenity.WindowIcon(zenity.InfoIcon),
		zenity.Title(wizardTitle),
		zenity.Icon(zenity.InfoIcon),
		zenity.CancelLabel("Exit"),
		zenity.OKLabel("Continue"))
	if err != nil {
		return fmt.Errorf("failed to continue with wizard: %w", err)
	}

	var device string
	for {
		devices, err := listDevices()
		if err != nil {
			return logError("failed to get connected drives: %w", err)
		} else if len(devices) == 0 {
			err = zenity.Error("Failed to find any disks connected to your computer.\n\n"+
				"Please connect a disk and try again.",
				zenity.Width(640),
				zenity.WindowIcon(zenity.ErrorIcon),
				zenity.Title("glassArch - Select target disk"),
				zenity.Icon(zenity.ErrorIcon),
				zenity.OKLabel("Exit"),
				zenity.ExtraButton("Rescan devices"))
			if err == nil {
				return errors.New("no disks connected, exiting...")
			} else if !errors.Is(err, zenity.ErrExtraButton) {
				return fmt.Errorf("failed to continue with wizard: %w", err)
			}
			continue
		}

		labels := make([]string, len(devices))
		for index, d := range devices {
			labels[index] = d.Label
		}
		selected, err := zenity.List("Select the disk to install Arch Linux to:\n\n"+
			"⚠️ Warning: All data on the disk you select will be ERASED!",
			labels,
			zenity.Width(640),
			zenity.Height(480),
			zenity.WindowIcon(zenity.QuestionIcon),
			zenity.Title("glassArch - Select target disk"),
			zenity.DisallowEmpty(),
			zenity.RadioList(),
			zenity.OKLabel("Continue"),
			zenity.ExtraButton("Rescan devices"),
		)
		if errors.Is(err, zenity.ErrExtraButton) {
			continue
		} else if err != nil {
			return fmt.Errorf("failed to continue with wizard: %w", err)
		}
		for _, d := range devices {
			if d.Label == selected {
				device = d.Path
			}
		}
		if device != "" {
			break
		}
	}
	cfg.Disk = device

	hostname, err := zenity.Entry("Hostname of the installed system:",
		zenity.Width(640),
		zenity.Title("glassArch - Hostname"),
		zenity.EntryText(cfg.Hostname),
		zenity.OKLabel("Continue"))
	if err != nil {
		return fmt.Errorf("failed to continue with wizard: %w", err)
	}
	cfg.Hostname = strings.TrimSpace(hostname)

	err = zenity.Question("Encrypt the root partition with LUKS2?\n\n"+
		"You will have to enter the passphrase every time the system boots.",
		zenity.Width(640),
		zenity.WindowIcon(zenity.QuestionIcon),
		zenity.Title("glassArch - Encryption"),
		zenity.Icon(zenity.QuestionIcon),
		zenity.OKLabel("Encrypt"),
		zenity.ExtraButton("Don't encrypt"))
	switch {
	case err == nil:
		cfg.Encrypt = true
	case errors.Is(err, zenity.ErrExtraButton):
		cfg.Encrypt = false
	default:
		return fmt.Errorf("failed to continue with wizard: %w", err)
	}

	for cfg.Encrypt {
		_, passphrase, err := zenity.Password(
			zenity.Title("glassArch - Enter encryption passphrase"),
			zenity.OKLabel("Continue"))
		if err != nil {
			return fmt.Errorf("failed to continue with wizard: %w", err)
		}
		_, repeated, err := zenity.Password(
			zenity.Title("glassArch - Repeat encryption passphrase"),
			zenity.OKLabel("Continue"))
		if err != nil {
			return fmt.Errorf("failed to continue with wizard: %w", err)
		}
		if msg := checkPassphrase(passphrase, repeated); msg != "" {
			zenity.Warning(msg,
				zenity.Width(640),
				zenity.WindowIcon(zenity.WarningIcon),
				zenity.Title("glassArch - Encryption"),
				zenity.Icon(zenity.WarningIcon),
				zenity.OKLabel("Try again"))
			continue
		}
		cfg.Passphrase = passphrase
		break
	}

	if err := cfg.Validate(); err != nil {
		return logError("invalid configuration: %w", err)
	}

	err = zenity.Question(`Arch Linux will be installed with the following settings:

`+summary(cfg)+`
⚠️ Warning: All data on `+cfg.Disk+` will be ERASED! If you have any files stored on the disk, cancel here and back them up before proceeding!`,
		zenity.Width(640),
		zenity.Height(480),
		zenity.WindowIcon(zenity.InfoIcon),
		zenity.Title("glassArch - Confirm Installation and Data Wipe"),
		zenity.Icon(zenity.InfoIcon),
		zenity.CancelLabel("Exit"),
		zenity.OKLabel("Install"))
	if err != nil {
		return fmt.Errorf("failed to continue with wizard: %w", err)
	}

	dlg, err = zenity.Progress(
		zenity.Width(640),
		zenity.WindowIcon(zenity.InfoIcon),
		zenity.Title(wizardTitle),
		zenity.Icon(zenity.NoIcon),
		zenity.Pulsate(),
		zenity.NoCancel(),
		zenity.OKLabel("Finish"))
	if err != nil {
		return fmt.Errorf("failed to continue with wizard: %w", err)
	}
	defer dlg.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	installer := install.New(cfg, a.log)
	installer.OnPhase = func(p install.Phase) {
		dlg.Text(p.String())
	}
	if err := installer.Run(ctx); err != nil {
		dlg.Close()
		return logError("installation failed: %w", err)
	}

	if err := dlg.Complete(); err != nil {
		return fmt.Errorf("failed to complete progress dialog: %w", err)
	}
	<-dlg.Done()

	return nil
}

// checkPassphrase returns why a passphrase pair is unacceptable, or an empty
// string if it is fine.
func checkPassphrase(passphrase, repeated string) string {
	switch {
	case passphrase == "":
		return "The passphrase must not be empty."
	case passphrase != repeated:
		return "The passphrases do not match."
	case strings.ContainsAny(passphrase, "\r\n"):
		return "The passphrase must not contain line breaks."
	}
	return ""
}
