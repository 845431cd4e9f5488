package mirror_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-vfs/vfst"

	"github.com/retrixe/glassarch/internal/mirror"
)

const generated = `##
## Arch Linux repository mirrorlist
## Filtered by mirror score from mirror status page
## Generated on 2026-10-19
##

## Germany
#Server = https://mirror.example.de/archlinux/$repo/os/$arch
#Server = https://ftp.example.org/pub/archlinux/$repo/os/$arch
## Germany
#Server=https://arch.example.net/$repo/os/$arch
`

func TestEnable(t *testing.T) {
	out, servers, err := mirror.Enable([]byte(generated))
	require.NoError(t, err)

	assert.Equal(t, 3, servers)
	assert.Contains(t, string(out), "\nServer = https://mirror.example.de/archlinux/$repo/os/$arch\n")
	assert.Contains(t, string(out), "\nServer=https://arch.example.net/$repo/os/$arch\n")
	assert.Contains(t, string(out), "## Arch Linux repository mirrorlist\n")
	assert.NotContains(t, string(out), "#Server")
}

func TestEnableNoServers(t *testing.T) {
	_, servers, err := mirror.Enable([]byte("## no results\n# comment = yes\n"))
	require.NoError(t, err)
	assert.Zero(t, servers)
}

func TestURL(t *testing.T) {
	u, err := mirror.URL(mirror.DefaultURL, "de")
	require.NoError(t, err)
	assert.Equal(t, "https://archlinux.org/mirrorlist/?country=DE&protocol=https&use_mirror_status=on", u)
}

func newServer(t *testing.T, body string, status int) (*httptest.Server, *[]string) {
	t.Helper()

	var queries []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		w.WriteHeader(status)
		w.Write([]byte(body)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	return srv, &queries
}

func TestFetch(t *testing.T) {
	srv, queries := newServer(t, generated, http.StatusOK)

	fs, cleanup, err := vfst.NewTestFS(map[string]interface{}{
		"/etc/pacman.d/mirrorlist": "Server = https://old.example.com/$repo/os/$arch\n",
	})
	require.NoError(t, err)
	defer cleanup()

	f := &mirror.Fetcher{URL: srv.URL + "/mirrorlist/", FS: fs}

	servers, err := f.Fetch(context.Background(), "de", mirror.DefaultPath)
	require.NoError(t, err)
	assert.Equal(t, 3, servers)
	assert.Contains(t, *queries, "country=DE&protocol=https&use_mirror_status=on")

	data, err := fs.ReadFile(mirror.DefaultPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "old.example.com")
	assert.Contains(t, string(data), "Server = https://ftp.example.org/pub/archlinux/$repo/os/$arch")
}

func TestFetchNoServers(t *testing.T) {
	srv, _ := newServer(t, "## nothing here\n", http.StatusOK)

	fs, cleanup, err := vfst.NewTestFS(map[string]interface{}{})
	require.NoError(t, err)
	defer cleanup()

	f := &mirror.Fetcher{URL: srv.URL + "/mirrorlist/", FS: fs}

	_, err = f.Fetch(context.Background(), "XX", mirror.DefaultPath)
	require.ErrorIs(t, err, mirror.ErrNoServers)

	_, err = fs.Stat(mirror.DefaultPath)
	assert.Error(t, err)
}

func TestFetchBadStatus(t *testing.T) {
	srv, _ := newServer(t, "oops", http.StatusInternalServerError)

	fs, cleanup, err := vfst.NewTestFS(map[string]interface{}{})
	require.NoError(t, err)
	defer cleanup()

	f := &mirror.Fetcher{URL: srv.URL + "/mirrorlist/", FS: fs}

	_, err = f.Fetch(context.Background(), "DE", mirror.DefaultPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to download mirrorlist")
}
