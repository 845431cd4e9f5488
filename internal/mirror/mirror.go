// Package mirror downloads a pacman mirrorlist for a country.
package mirror

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cavaliergopher/grab/v3"
	"github.com/sirupsen/logrus"
	vfs "github.com/twpayne/go-vfs"
)

// DefaultURL is the Arch Linux mirrorlist generator.
const DefaultURL = "https://archlinux.org/mirrorlist/"

// DefaultPath is the mirrorlist pacman and pacstrap read on the live system.
const DefaultPath = "/etc/pacman.d/mirrorlist"

// ErrNoServers is returned when a downloaded mirrorlist contains no servers.
var ErrNoServers = errors.New("mirrorlist contains no servers")

// Fetcher downloads mirrorlists.
type Fetcher struct {
	// URL of the mirrorlist generator, DefaultURL if empty.
	URL    string
	Client *grab.Client
	// FS the mirrorlist is written to.
	FS  vfs.FS
	Log logrus.FieldLogger
}

// URL returns the generator URL listing HTTPS mirrors of country with an
// up-to-date mirror status.
func URL(base, country string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid mirrorlist URL: %w", err)
	}

	q := url.Values{}
	q.Set("country", strings.ToUpper(country))
	q.Set("protocol", "https")
	q.Set("use_mirror_status", "on")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Fetch downloads the mirrorlist for country, enables every server in it and
// writes it to dest. It returns the number of servers.
func (f *Fetcher) Fetch(ctx context.Context, country, dest string) (int, error) {
	base := f.URL
	if base == "" {
		base = DefaultURL
	}

	src, err := URL(base, country)
	if err != nil {
		return 0, err
	}

	tmp, err := os.MkdirTemp("", "glassarch-mirrorlist-")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(tmp) //nolint:errcheck

	req, err := grab.NewRequest(filepath.Join(tmp, "mirrorlist"), src)
	if err != nil {
		return 0, fmt.Errorf("failed to create mirrorlist request: %w", err)
	}
	req = req.WithContext(ctx)
	req.NoResume = true

	client := f.Client
	if client == nil {
		client = grab.NewClient()
	}

	if f.Log != nil {
		f.Log.WithField("url", src).Debug("downloading mirrorlist")
	}

	resp := client.Do(req)
	if err := resp.Err(); err != nil {
		return 0, fmt.Errorf("failed to download mirrorlist: %w", err)
	}

	raw, err := os.ReadFile(resp.Filename)
	if err != nil {
		return 0, fmt.Errorf("failed to read mirrorlist: %w", err)
	}

	list, servers, err := Enable(raw)
	if err != nil {
		return 0, err
	}
	if servers == 0 {
		return 0, fmt.Errorf("no mirrors found for country %q: %w", country, ErrNoServers)
	}

	if err := vfs.MkdirAll(f.FS, path.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path.Dir(dest), err)
	}
	if err := f.FS.WriteFile(dest, list, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write mirrorlist: %w", err)
	}

	return servers, nil
}

// Enable uncomments the commented out Server lines of a generated mirrorlist
// and returns the result with the number of enabled servers.
func Enable(raw []byte) ([]byte, int, error) {
	var (
		out     bytes.Buffer
		servers int
	)

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()

		trimmed := strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(trimmed, "#"); ok && isServer(rest) {
			line = strings.TrimSpace(rest)
		}

		if isServer(strings.TrimSpace(line)) {
			servers++
		}

		out.WriteString(line)
		out.WriteByte('\n')
	}

	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to parse mirrorlist: %w", err)
	}

	return out.Bytes(), servers, nil
}

func isServer(line string) bool {
	key, _, ok := strings.Cut(line, "=")
	return ok && strings.TrimSpace(key) == "Server"
}
