// Package config reads and validates the installer configuration.
//
// Values come from built-in defaults, an optional config file, an optional
// env file of KEY=VALUE lines, GLASSARCH_* environment variables and flags,
// in increasing order of precedence.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by the installer.
const EnvPrefix = "GLASSARCH"

const (
	FilesystemExt4  = "ext4"
	FilesystemBtrfs = "btrfs"
	FilesystemXFS   = "xfs"

	BootloaderSystemdBoot = "systemd-boot"
	BootloaderGrub        = "grub"

	MicrocodeAuto  = "auto"
	MicrocodeIntel = "intel"
	MicrocodeAMD   = "amd"
	MicrocodeNone  = "none"
)

// MinRootSize is the smallest root partition the installer will create.
const MinRootSize = 2 * GiB

// LUKS holds the parameters passed to cryptsetup luksFormat.
type LUKS struct {
	Cipher   string `mapstructure:"cipher" yaml:"cipher"`
	KeySize  int    `mapstructure:"key-size" yaml:"key-size"`
	Hash     string `mapstructure:"hash" yaml:"hash"`
	PBKDF    string `mapstructure:"pbkdf" yaml:"pbkdf"`
	IterTime int    `mapstructure:"iter-time" yaml:"iter-time"`
}

// Config is the complete installer configuration.
type Config struct {
	Disk       string   `mapstructure:"disk" yaml:"disk"`
	Hostname   string   `mapstructure:"hostname" yaml:"hostname"`
	Timezone   string   `mapstructure:"timezone" yaml:"timezone"`
	Locale     string   `mapstructure:"locale" yaml:"locale"`
	Keymap     string   `mapstructure:"keymap" yaml:"keymap"`
	Filesystem string   `mapstructure:"filesystem" yaml:"filesystem"`
	ESPSize    string   `mapstructure:"esp-size" yaml:"esp-size"`
	Bootloader string   `mapstructure:"bootloader" yaml:"bootloader"`
	Kernel     string   `mapstructure:"kernel" yaml:"kernel"`
	Microcode  string   `mapstructure:"microcode" yaml:"microcode"`
	Packages   []string `mapstructure:"packages" yaml:"packages"`
	Services   []string `mapstructure:"services" yaml:"services"`

	Encrypt        bool   `mapstructure:"encrypt" yaml:"encrypt"`
	Passphrase     string `mapstructure:"passphrase" yaml:"passphrase"`
	PassphraseFile string `mapstructure:"passphrase-file" yaml:"passphrase-file"`
	MapperName     string `mapstructure:"mapper-name" yaml:"mapper-name"`
	LUKS           LUKS   `mapstructure:"luks" yaml:"luks"`

	RootPassword string `mapstructure:"root-password" yaml:"root-password"`
	User         string `mapstructure:"user" yaml:"user"`
	UserPassword string `mapstructure:"user-password" yaml:"user-password"`

	MirrorCountry string `mapstructure:"mirror-country" yaml:"mirror-country"`
	MountPoint    string `mapstructure:"mount-point" yaml:"mount-point"`

	DryRun bool `mapstructure:"dry-run" yaml:"dry-run"`
	Yes    bool `mapstructure:"yes" yaml:"yes"`
}

// Defaults returns the built-in default values keyed by config key.
func Defaults() map[string]any {
	return map[string]any{
		"disk":            "",
		"hostname":        "archlinux",
		"timezone":        "UTC",
		"locale":          "en_US.UTF-8",
		"keymap":          "us",
		"filesystem":      FilesystemExt4,
		"esp-size":        "512MiB",
		"bootloader":      BootloaderSystemdBoot,
		"kernel":          "linux",
		"microcode":       MicrocodeAuto,
		"packages":        []string{},
		"services":        []string{},
		"encrypt":         false,
		"passphrase":      "",
		"passphrase-file": "",
		"mapper-name":     "cryptroot",
		"luks.cipher":     "aes-xts-plain64",
		"luks.key-size":   512,
		"luks.hash":       "sha512",
		"luks.pbkdf":      "argon2id",
		"luks.iter-time":  5000,
		"root-password":   "",
		"user":            "",
		"user-password":   "",
		"mirror-country":  "",
		"mount-point":     "/mnt",
		"dry-run":         false,
		"yes":             false,
	}
}

// NewViper returns a viper instance with defaults and environment binding set up.
func NewViper() *viper.Viper {
	v := viper.New()

	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}

// LoadFiles reads the optional env file and config file into v. Variables
// from the env file never override ones already present in the environment.
func LoadFiles(v *viper.Viper, configFile, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to read env file: %w", err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return nil
}

// Load decodes the configuration held by v and normalises it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.normalize(os.Stdin); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) normalize(stdin io.Reader) error {
	c.Disk = strings.TrimSpace(c.Disk)
	c.Hostname = strings.TrimSpace(c.Hostname)
	c.Filesystem = strings.ToLower(strings.TrimSpace(c.Filesystem))
	c.Bootloader = strings.ToLower(strings.TrimSpace(c.Bootloader))
	c.Microcode = strings.ToLower(strings.TrimSpace(c.Microcode))
	c.MirrorCountry = strings.ToUpper(strings.TrimSpace(c.MirrorCountry))
	c.Packages = cleanList(c.Packages)
	c.Services = cleanList(c.Services)
	if c.MountPoint != "" {
		c.MountPoint = path.Clean(c.MountPoint)
	}

	if c.Passphrase == "" && c.PassphraseFile != "" {
		pw, err := readPassphrase(c.PassphraseFile, stdin)
		if err != nil {
			return fmt.Errorf("failed to read passphrase file: %w", err)
		}
		c.Passphrase = pw
	}

	return nil
}

func readPassphrase(file string, stdin io.Reader) (string, error) {
	r := stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}

	return strings.TrimRight(line, "\r\n"), nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.Fields(s)...)
	}
	return out
}

var hostnameRegexp = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

var userRegexp = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

// unsafeRune reports runes that cannot appear in values written to /etc files.
func unsafeRune(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsControl(r)
}

// Validate checks the configuration, reporting every problem found.
func (c *Config) Validate() error {
	var result *multierror.Error

	fail := func(format string, v ...any) {
		result = multierror.Append(result, fmt.Errorf(format, v...))
	}

	if c.Disk == "" {
		fail("no target disk specified")
	}

	if !hostnameRegexp.MatchString(c.Hostname) {
		fail("invalid hostname %q", c.Hostname)
	}

	switch c.Filesystem {
	case FilesystemExt4, FilesystemBtrfs, FilesystemXFS:
	default:
		fail("unsupported filesystem %q (available options: ext4, btrfs, xfs)", c.Filesystem)
	}

	switch c.Bootloader {
	case BootloaderSystemdBoot, BootloaderGrub:
	default:
		fail("unsupported bootloader %q (available options: systemd-boot, grub)", c.Bootloader)
	}

	switch c.Microcode {
	case MicrocodeAuto, MicrocodeIntel, MicrocodeAMD, MicrocodeNone:
	default:
		fail("unsupported microcode %q (available options: auto, intel, amd, none)", c.Microcode)
	}

	if c.Kernel == "" {
		fail("no kernel package specified")
	}

	if c.Timezone == "" || strings.Contains(c.Timezone, "..") || strings.HasPrefix(c.Timezone, "/") {
		fail("invalid timezone %q", c.Timezone)
	}

	if c.Locale == "" || strings.ContainsFunc(c.Locale, unsafeRune) {
		fail("invalid locale %q", c.Locale)
	}

	if strings.ContainsFunc(c.Keymap, unsafeRune) {
		fail("invalid keymap %q", c.Keymap)
	}

	if size, err := ParseSize(c.ESPSize); err != nil {
		fail("invalid esp-size: %v", err)
	} else if size < 32*MiB {
		fail("esp-size %s is smaller than 32MiB", c.ESPSize)
	}

	if c.Encrypt {
		if c.Passphrase == "" {
			fail("encryption requested but no passphrase given")
		} else if strings.ContainsAny(c.Passphrase, "\r\n") {
			fail("passphrase must not contain line breaks")
		}
		if c.MapperName == "" || strings.Contains(c.MapperName, "/") {
			fail("invalid mapper-name %q", c.MapperName)
		}
		if c.LUKS.KeySize <= 0 || c.LUKS.KeySize%8 != 0 {
			fail("invalid luks key-size %d", c.LUKS.KeySize)
		}
		if c.LUKS.IterTime <= 0 {
			fail("invalid luks iter-time %d", c.LUKS.IterTime)
		}
	}

	if c.User != "" && !userRegexp.MatchString(c.User) {
		fail("invalid user name %q", c.User)
	}

	if c.User == "" && c.UserPassword != "" {
		fail("user-password given without user")
	}

	if c.MirrorCountry != "" && len(c.MirrorCountry) != 2 {
		fail("mirror-country must be a two letter country code, got %q", c.MirrorCountry)
	}

	if !path.IsAbs(c.MountPoint) || c.MountPoint == "/" {
		fail("invalid mount-point %q", c.MountPoint)
	}

	return result.ErrorOrNil()
}

// ESPBytes returns the EFI system partition size in bytes.
func (c *Config) ESPBytes() int64 {
	size, _ := ParseSize(c.ESPSize)
	return size
}

// Redacted returns a copy of the configuration with secrets masked.
func (c *Config) Redacted() *Config {
	r := *c
	r.Packages = append([]string(nil), c.Packages...)
	r.Services = append([]string(nil), c.Services...)

	for _, s := range []*string{&r.Passphrase, &r.RootPassword, &r.UserPassword} {
		if *s != "" {
			*s = "********"
		}
	}

	return &r
}
