package config

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// PackageSet returns the package set passed to pacstrap. vendor is the CPU
// vendor id from /proc/cpuinfo and is only consulted for microcode=auto.
func (c *Config) PackageSet(vendor string) []string {
	pkgs := []string{"base", c.Kernel, "linux-firmware", "dosfstools"}

	switch c.Filesystem {
	case FilesystemBtrfs:
		pkgs = append(pkgs, "btrfs-progs")
	case FilesystemXFS:
		pkgs = append(pkgs, "xfsprogs")
	default:
		pkgs = append(pkgs, "e2fsprogs")
	}

	if c.Encrypt {
		pkgs = append(pkgs, "cryptsetup")
	}

	if c.Bootloader == BootloaderGrub {
		pkgs = append(pkgs, "grub", "efibootmgr")
	}

	if c.User != "" {
		pkgs = append(pkgs, "sudo")
	}

	if ucode := c.MicrocodePackage(vendor); ucode != "" {
		pkgs = append(pkgs, ucode)
	}

	pkgs = append(pkgs, c.Packages...)

	return dedupe(pkgs)
}

// MicrocodePackage returns the microcode package to install, if any.
func (c *Config) MicrocodePackage(vendor string) string {
	switch c.Microcode {
	case MicrocodeIntel:
		return "intel-ucode"
	case MicrocodeAMD:
		return "amd-ucode"
	case MicrocodeAuto:
		switch vendor {
		case "GenuineIntel":
			return "intel-ucode"
		case "AuthenticAMD":
			return "amd-ucode"
		}
	}
	return ""
}

// CPUVendor returns the vendor_id of the first CPU in /proc/cpuinfo, or an
// empty string if it cannot be determined.
func CPUVendor() string {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return ""
	}
	defer f.Close()
	return parseCPUVendor(f)
}

func parseCPUVendor(r io.Reader) string {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if ok && strings.TrimSpace(key) == "vendor_id" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
