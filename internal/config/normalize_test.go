package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStdinPassphrase(t *testing.T) {
	c := &Config{
		Disk:           " /dev/sdb ",
		Filesystem:     " XFS",
		Bootloader:     "GRUB",
		Packages:       []string{"vim git", "", "  htop "},
		PassphraseFile: "-",
		MountPoint:     "/mnt/",
	}

	require.NoError(t, c.normalize(strings.NewReader("from stdin\r\n")))

	assert.Equal(t, "/dev/sdb", c.Disk)
	assert.Equal(t, FilesystemXFS, c.Filesystem)
	assert.Equal(t, BootloaderGrub, c.Bootloader)
	assert.Equal(t, []string{"vim", "git", "htop"}, c.Packages)
	assert.Equal(t, "from stdin", c.Passphrase)
	assert.Equal(t, "/mnt", c.MountPoint)
}

func TestNormalizeKeepsExplicitPassphrase(t *testing.T) {
	c := &Config{Passphrase: "explicit", PassphraseFile: "/nonexistent"}

	require.NoError(t, c.normalize(strings.NewReader("")))
	assert.Equal(t, "explicit", c.Passphrase)
}

func TestParseCPUVendor(t *testing.T) {
	cpuinfo := `processor	: 0
vendor_id	: GenuineIntel
cpu family	: 6
`
	assert.Equal(t, "GenuineIntel", parseCPUVendor(strings.NewReader(cpuinfo)))
	assert.Equal(t, "", parseCPUVendor(strings.NewReader("processor : 0\n")))
}
