// Package luks sets up LUKS2 encryption of the root partition with cryptsetup.
//
// Passphrases are always written to cryptsetup's stdin (--key-file -) so they
// never show up in the process list or in logged command lines.
package luks

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/retrixe/glassarch/internal/cmd"
)

// MapperDir is where device-mapper exposes opened volumes.
const MapperDir = "/dev/mapper"

// ErrEmptyPassphrase is returned when formatting or opening without a passphrase.
var ErrEmptyPassphrase = errors.New("passphrase must not be empty")

// Params are the luksFormat parameters.
type Params struct {
	Cipher   string
	KeySize  int
	Hash     string
	PBKDF    string
	IterTime int
}

func (p Params) args() []string {
	var args []string

	if p.Cipher != "" {
		args = append(args, "--cipher", p.Cipher)
	}
	if p.KeySize > 0 {
		args = append(args, "--key-size", strconv.Itoa(p.KeySize))
	}
	if p.Hash != "" {
		args = append(args, "--hash", p.Hash)
	}
	if p.PBKDF != "" {
		args = append(args, "--pbkdf", p.PBKDF)
	}
	if p.IterTime > 0 {
		args = append(args, "--iter-time", strconv.Itoa(p.IterTime))
	}

	return args
}

// MapperPath returns the path of the opened volume called name.
func MapperPath(name string) string {
	return path.Join(MapperDir, name)
}

// Format creates a LUKS2 header on device, destroying its contents.
func Format(ctx context.Context, runner cmd.Runner, device, passphrase string, params Params) error {
	if passphrase == "" {
		return ErrEmptyPassphrase
	}

	args := []string{"luksFormat", "--type", "luks2", "--batch-mode"}
	args = append(args, params.args()...)
	args = append(args, "--key-file", "-", device)

	if _, err := runner.RunWithStdin(ctx, strings.NewReader(passphrase), "cryptsetup", args...); err != nil {
		return fmt.Errorf("failed to format LUKS volume: %w", err)
	}

	return nil
}

// Open unlocks device and maps it as /dev/mapper/<name>.
func Open(ctx context.Context, runner cmd.Runner, device, name, passphrase string) (string, error) {
	if passphrase == "" {
		return "", ErrEmptyPassphrase
	}

	_, err := runner.RunWithStdin(ctx, strings.NewReader(passphrase),
		"cryptsetup", "open", "--type", "luks2", "--key-file", "-", device, name)
	if err != nil {
		return "", fmt.Errorf("failed to open LUKS volume: %w", err)
	}

	return MapperPath(name), nil
}

// Close removes the mapping called name.
func Close(ctx context.Context, runner cmd.Runner, name string) error {
	if _, err := runner.Run(ctx, "cryptsetup", "close", name); err != nil {
		return fmt.Errorf("failed to close LUKS volume: %w", err)
	}

	return nil
}

// UUID returns the UUID stored in the LUKS header of device.
func UUID(ctx context.Context, runner cmd.Runner, device string) (string, error) {
	out, err := runner.Run(ctx, "cryptsetup", "luksUUID", device)
	if err != nil {
		return "", fmt.Errorf("failed to read LUKS UUID: %w", err)
	}

	return strings.TrimSpace(out), nil
}
