package sysconf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-vfs/vfst"

	"github.com/retrixe/glassarch/internal/sysconf"
)

func newFS(t *testing.T, root map[string]interface{}) *vfst.TestFS {
	t.Helper()

	fs, cleanup, err := vfst.NewTestFS(root)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	return fs
}

const hostsHeader = "# Static table lookup for hostnames.\n# See hosts(5) for details.\n"

func TestSimpleFiles(t *testing.T) {
	fs := newFS(t, map[string]interface{}{
		"/etc/hosts": hostsHeader,
		"/etc/fstab": "# Static information about the filesystems.\n",
	})

	require.NoError(t, sysconf.WriteHostname(fs, "glass"))
	require.NoError(t, sysconf.WriteHosts(fs, "glass"))
	require.NoError(t, sysconf.WriteLocaleConf(fs, "de_DE.UTF-8"))
	require.NoError(t, sysconf.WriteVConsole(fs, "de-latin1"))
	require.NoError(t, sysconf.WriteFstab(fs, "# /dev/sda2\nUUID=abcd / ext4 rw,relatime 0 1"))

	vfst.RunTests(t, fs, "",
		vfst.TestPath("/etc/hostname", vfst.TestModeIsRegular, vfst.TestContentsString("glass\n")),
		vfst.TestPath("/etc/hosts", vfst.TestContentsString(hostsHeader+
			"127.0.0.1 localhost\n::1 localhost\n127.0.1.1 glass.localdomain glass\n")),
		vfst.TestPath("/etc/locale.conf", vfst.TestContentsString("LANG=de_DE.UTF-8\n")),
		vfst.TestPath("/etc/vconsole.conf", vfst.TestContentsString("KEYMAP=de-latin1\n")),
		vfst.TestPath("/etc/fstab", vfst.TestContentsString(
			"# Static information about the filesystems.\n# /dev/sda2\nUUID=abcd / ext4 rw,relatime 0 1\n")),
	)
}

func TestWriteFstabEmpty(t *testing.T) {
	fs := newFS(t, map[string]interface{}{"/etc": &vfst.Dir{Perm: 0o755}})

	require.Error(t, sysconf.WriteFstab(fs, "  \n"))
}

func TestEnableWheelSudo(t *testing.T) {
	fs := newFS(t, map[string]interface{}{"/etc": &vfst.Dir{Perm: 0o755}})

	require.NoError(t, sysconf.EnableWheelSudo(fs))

	vfst.RunTests(t, fs, "",
		vfst.TestPath("/etc/sudoers.d/10-wheel",
			vfst.TestModePerm(0o440),
			vfst.TestContentsString("%wheel ALL=(ALL:ALL) ALL\n")),
	)
}

const localeGen = `# Configuration file for locale-gen
#
#  en_US.UTF-8 UTF-8
#
#de_DE.UTF-8 UTF-8
#de_DE ISO-8859-1
#en_US.UTF-8 UTF-8
#en_US ISO-8859-1
`

func TestEnableLocale(t *testing.T) {
	tests := map[string]struct {
		locale string
		want   string
	}{
		"utf-8": {
			locale: "en_US.UTF-8",
			want: `# Configuration file for locale-gen
#
#  en_US.UTF-8 UTF-8
#
#de_DE.UTF-8 UTF-8
#de_DE ISO-8859-1
en_US.UTF-8 UTF-8
#en_US ISO-8859-1
`,
		},
		"legacy charset": {
			locale: "de_DE",
			want: `# Configuration file for locale-gen
#
#  en_US.UTF-8 UTF-8
#
#de_DE.UTF-8 UTF-8
de_DE ISO-8859-1
#en_US.UTF-8 UTF-8
#en_US ISO-8859-1
`,
		},
		"missing": {
			locale: "eo.UTF-8",
			want:   localeGen + "eo.UTF-8 UTF-8\n",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			fs := newFS(t, map[string]interface{}{"/etc/locale.gen": localeGen})

			require.NoError(t, sysconf.EnableLocale(fs, tt.locale))

			data, err := fs.ReadFile("/etc/locale.gen")
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestLocaleGenEntry(t *testing.T) {
	assert.Equal(t, "en_US.UTF-8 UTF-8", sysconf.LocaleGenEntry("en_US.UTF-8"))
	assert.Equal(t, "de_DE ISO-8859-1", sysconf.LocaleGenEntry("de_DE"))
	assert.Equal(t, "be_BY.UTF-8@latin UTF-8", sysconf.LocaleGenEntry("be_BY.UTF-8@latin"))
}

const mkinitcpioConf = `# vim:set ft=sh
MODULES=()
BINARIES=()
FILES=()
#    HOOKS=(base udev autodetect)
HOOKS=(base udev autodetect microcode modconf kms keyboard keymap consolefont block filesystems fsck)
#COMPRESSION="zstd"
`

func TestConfigureMkinitcpio(t *testing.T) {
	tests := map[string]struct {
		encrypt bool
		hooks   string
	}{
		"plain":     {false, "HOOKS=(base udev autodetect microcode modconf kms keyboard keymap consolefont block filesystems fsck)"},
		"encrypted": {true, "HOOKS=(base udev autodetect microcode modconf kms keyboard keymap consolefont block encrypt filesystems fsck)"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			fs := newFS(t, map[string]interface{}{"/etc/mkinitcpio.conf": mkinitcpioConf})

			require.NoError(t, sysconf.ConfigureMkinitcpio(fs, tt.encrypt))

			data, err := fs.ReadFile("/etc/mkinitcpio.conf")
			require.NoError(t, err)
			assert.Equal(t, `# vim:set ft=sh
MODULES=()
BINARIES=()
FILES=()
#    HOOKS=(base udev autodetect)
`+tt.hooks+`
#COMPRESSION="zstd"
`, string(data))
		})
	}
}

func TestConfigureMkinitcpioMissing(t *testing.T) {
	fs := newFS(t, map[string]interface{}{"/etc": &vfst.Dir{Perm: 0o755}})
	require.Error(t, sysconf.ConfigureMkinitcpio(fs, true))

	fs = newFS(t, map[string]interface{}{"/etc/mkinitcpio.conf": "MODULES=()\n"})
	require.Error(t, sysconf.ConfigureMkinitcpio(fs, true))
}

func TestHooksOrder(t *testing.T) {
	hooks := sysconf.Hooks(true)

	index := func(name string) int {
		for i, hook := range hooks {
			if hook == name {
				return i
			}
		}
		return -1
	}

	assert.Greater(t, index("encrypt"), index("keyboard"))
	assert.Greater(t, index("encrypt"), index("keymap"))
	assert.Less(t, index("encrypt"), index("filesystems"))

	hooks = sysconf.Hooks(false)
	assert.Equal(t, -1, index("encrypt"))
}
