// Package sysconf writes the configuration files of the installed system.
//
// All paths are absolute paths inside the target root. Callers pass a
// filesystem rooted at the mount point of the target, usually a vfs.PathFS.
package sysconf

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	vfs "github.com/twpayne/go-vfs"
)

const (
	FstabPath       = "/etc/fstab"
	HostnamePath    = "/etc/hostname"
	HostsPath       = "/etc/hosts"
	LocaleGenPath   = "/etc/locale.gen"
	LocaleConfPath  = "/etc/locale.conf"
	VConsolePath    = "/etc/vconsole.conf"
	SudoersDropIn   = "/etc/sudoers.d/10-wheel"
	defaultFileMode = 0o644
)

// NewTargetFS returns a filesystem rooted at the mount point of the target.
func NewTargetFS(root string) *vfs.PathFS {
	return vfs.NewPathFS(vfs.OSFS, root)
}

func writeFile(fsys vfs.FS, name string, data []byte, perm os.FileMode) error {
	if err := vfs.MkdirAll(fsys, path.Dir(name), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", path.Dir(name), err)
	}
	if err := fsys.WriteFile(name, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func appendFile(fsys vfs.FS, name string, data []byte) error {
	if err := vfs.MkdirAll(fsys, path.Dir(name), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", path.Dir(name), err)
	}

	f, err := fsys.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, defaultFileMode)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("failed to write %s: %w", name, err)
	}

	return f.Close()
}

// editLines rewrites name line by line. edit returns the replacement for a
// line and whether it matched. When nothing matched, missing is appended.
func editLines(fsys vfs.FS, name string, edit func(line string) (string, bool), missing string) error {
	data, err := fsys.ReadFile(name)
	if err != nil && !(errors.Is(err, fs.ErrNotExist) && missing != "") {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}

	var (
		out     bytes.Buffer
		matched bool
	)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line, ok := edit(scanner.Text())
		matched = matched || ok
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}

	if !matched {
		if missing == "" {
			return fmt.Errorf("no line to change found in %s", name)
		}
		out.WriteString(missing)
		out.WriteByte('\n')
	}

	perm := os.FileMode(defaultFileMode)
	if info, err := fsys.Stat(name); err == nil {
		perm = info.Mode().Perm()
	}

	return writeFile(fsys, name, out.Bytes(), perm)
}

// WriteFstab appends the output of genfstab to /etc/fstab.
func WriteFstab(fsys vfs.FS, genfstab string) error {
	if strings.TrimSpace(genfstab) == "" {
		return errors.New("genfstab produced no entries")
	}
	if !strings.HasSuffix(genfstab, "\n") {
		genfstab += "\n"
	}
	return appendFile(fsys, FstabPath, []byte(genfstab))
}

// WriteHostname writes /etc/hostname.
func WriteHostname(fsys vfs.FS, hostname string) error {
	return writeFile(fsys, HostnamePath, []byte(hostname+"\n"), defaultFileMode)
}

// WriteHosts adds the loopback entries for hostname to /etc/hosts.
func WriteHosts(fsys vfs.FS, hostname string) error {
	hosts := fmt.Sprintf("127.0.0.1 localhost\n::1 localhost\n127.0.1.1 %s.localdomain %s\n", hostname, hostname)
	return appendFile(fsys, HostsPath, []byte(hosts))
}

// LocaleGenEntry returns the /etc/locale.gen line for locale, e.g.
// "en_US.UTF-8 UTF-8". Locales without a charset use ISO-8859-1.
func LocaleGenEntry(locale string) string {
	charset := "ISO-8859-1"
	if _, cs, ok := strings.Cut(locale, "."); ok {
		charset = strings.SplitN(cs, "@", 2)[0]
	}
	return locale + " " + charset
}

// EnableLocale uncomments locale in /etc/locale.gen, adding it when the file
// has no entry for it.
func EnableLocale(fsys vfs.FS, locale string) error {
	return editLines(fsys, LocaleGenPath, func(line string) (string, bool) {
		entry := strings.TrimPrefix(strings.TrimSpace(line), "#")
		// "#  en_US.UTF-8 UTF-8" in the header is an example, not an entry
		if strings.HasPrefix(entry, " ") || strings.HasPrefix(entry, "\t") {
			return line, false
		}

		fields := strings.Fields(entry)
		if len(fields) != 2 || fields[0] != locale {
			return line, false
		}
		return fields[0] + " " + fields[1], true
	}, LocaleGenEntry(locale))
}

// WriteLocaleConf writes /etc/locale.conf.
func WriteLocaleConf(fsys vfs.FS, locale string) error {
	return writeFile(fsys, LocaleConfPath, []byte("LANG="+locale+"\n"), defaultFileMode)
}

// WriteVConsole writes /etc/vconsole.conf.
func WriteVConsole(fsys vfs.FS, keymap string) error {
	return writeFile(fsys, VConsolePath, []byte("KEYMAP="+keymap+"\n"), defaultFileMode)
}

// EnableWheelSudo lets members of the wheel group use sudo.
func EnableWheelSudo(fsys vfs.FS) error {
	if err := vfs.MkdirAll(fsys, path.Dir(SudoersDropIn), 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", path.Dir(SudoersDropIn), err)
	}
	return writeFile(fsys, SudoersDropIn, []byte("%wheel ALL=(ALL:ALL) ALL\n"), 0o440)
}
