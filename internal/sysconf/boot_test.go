package sysconf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-vfs/vfst"

	"github.com/retrixe/glassarch/internal/sysconf"
)

const rootGUID = "5A0B6C3E-0D43-4B8B-9F3F-1D2C3B4A5968"

func TestKernelCmdline(t *testing.T) {
	tests := map[string]struct {
		opts sysconf.CmdlineOptions
		want string
	}{
		"plain": {
			opts: sysconf.CmdlineOptions{RootPARTUUID: rootGUID},
			want: "root=PARTUUID=5a0b6c3e-0d43-4b8b-9f3f-1d2c3b4a5968 rw",
		},
		"encrypted": {
			opts: sysconf.CmdlineOptions{RootPARTUUID: rootGUID, MapperName: "cryptroot"},
			want: "cryptdevice=PARTUUID=5a0b6c3e-0d43-4b8b-9f3f-1d2c3b4a5968:cryptroot root=/dev/mapper/cryptroot rw",
		},
		"extra": {
			opts: sysconf.CmdlineOptions{RootPARTUUID: rootGUID, Extra: []string{"quiet"}},
			want: "root=PARTUUID=5a0b6c3e-0d43-4b8b-9f3f-1d2c3b4a5968 rw quiet",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cmdline, err := sysconf.KernelCmdline(tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmdline.String())
		})
	}
}

func TestWriteSystemdBoot(t *testing.T) {
	fs := newFS(t, map[string]interface{}{"/boot": &vfst.Dir{Perm: 0o755}})

	require.NoError(t, sysconf.WriteSystemdBoot(fs, "linux-lts", "root=PARTUUID=abc rw"))

	vfst.RunTests(t, fs, "",
		vfst.TestPath("/boot/loader/loader.conf",
			vfst.TestContentsString("default arch.conf\ntimeout 3\nconsole-mode max\neditor no\n")),
		vfst.TestPath("/boot/loader/entries/arch.conf", vfst.TestContentsString(
			"title   Arch Linux\n"+
				"linux   /vmlinuz-linux-lts\n"+
				"initrd  /initramfs-linux-lts.img\n"+
				"options root=PARTUUID=abc rw\n")),
		vfst.TestPath("/boot/loader/entries/arch-fallback.conf", vfst.TestContentsString(
			"title   Arch Linux (fallback initramfs)\n"+
				"linux   /vmlinuz-linux-lts\n"+
				"initrd  /initramfs-linux-lts-fallback.img\n"+
				"options root=PARTUUID=abc rw\n")),
	)
}

const grubDefaults = `# GRUB boot loader configuration

GRUB_DEFAULT=0
GRUB_TIMEOUT=5
GRUB_CMDLINE_LINUX_DEFAULT="loglevel=3 quiet"
GRUB_CMDLINE_LINUX=""

# Uncomment to enable booting from LUKS encrypted devices
#GRUB_ENABLE_CRYPTODISK=y
`

func TestConfigureGrub(t *testing.T) {
	cmdline := "cryptdevice=PARTUUID=abc:cryptroot root=/dev/mapper/cryptroot rw"

	tests := map[string]struct {
		encrypt bool
		want    string
	}{
		"plain": {false, `# GRUB boot loader configuration

GRUB_DEFAULT=0
GRUB_TIMEOUT=5
GRUB_CMDLINE_LINUX_DEFAULT="loglevel=3 quiet"
GRUB_CMDLINE_LINUX="` + cmdline + `"

# Uncomment to enable booting from LUKS encrypted devices
#GRUB_ENABLE_CRYPTODISK=y
`},
		"encrypted": {true, `# GRUB boot loader configuration

GRUB_DEFAULT=0
GRUB_TIMEOUT=5
GRUB_CMDLINE_LINUX_DEFAULT="loglevel=3 quiet"
GRUB_CMDLINE_LINUX="` + cmdline + `"

# Uncomment to enable booting from LUKS encrypted devices
GRUB_ENABLE_CRYPTODISK=y
`},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			fs := newFS(t, map[string]interface{}{"/etc/default/grub": grubDefaults})

			require.NoError(t, sysconf.ConfigureGrub(fs, cmdline, tt.encrypt))

			data, err := fs.ReadFile("/etc/default/grub")
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestConfigureGrubAppends(t *testing.T) {
	fs := newFS(t, map[string]interface{}{"/etc/default/grub": "GRUB_TIMEOUT=5\n"})

	require.NoError(t, sysconf.ConfigureGrub(fs, "root=PARTUUID=abc rw", true))

	data, err := fs.ReadFile("/etc/default/grub")
	require.NoError(t, err)
	assert.Equal(t, "GRUB_TIMEOUT=5\nGRUB_CMDLINE_LINUX=\"root=PARTUUID=abc rw\"\nGRUB_ENABLE_CRYPTODISK=y\n", string(data))
}
