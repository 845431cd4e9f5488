package sysconf

import (
	"strings"

	vfs "github.com/twpayne/go-vfs"
)

const MkinitcpioPath = "/etc/mkinitcpio.conf"

var defaultHooks = []string{
	"base", "udev", "autodetect", "microcode", "modconf", "kms",
	"keyboard", "keymap", "consolefont", "block", "filesystems", "fsck",
}

// Hooks returns the mkinitcpio hooks. The encrypt hook prompts for the
// passphrase, so it runs after the keyboard and keymap hooks and before the
// root filesystem is mounted.
func Hooks(encrypt bool) []string {
	hooks := make([]string, 0, len(defaultHooks)+1)
	for _, hook := range defaultHooks {
		if encrypt && hook == "filesystems" {
			hooks = append(hooks, "encrypt")
		}
		hooks = append(hooks, hook)
	}
	return hooks
}

// ConfigureMkinitcpio replaces the HOOKS array of /etc/mkinitcpio.conf.
func ConfigureMkinitcpio(fsys vfs.FS, encrypt bool) error {
	hooks := "HOOKS=(" + strings.Join(Hooks(encrypt), " ") + ")"

	return editLines(fsys, MkinitcpioPath, func(line string) (string, bool) {
		if strings.HasPrefix(strings.TrimSpace(line), "HOOKS=") {
			return hooks, true
		}
		return line, false
	}, "")
}
