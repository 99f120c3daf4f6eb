package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("WATCHD_TEST_DIR", "/srv/media")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"tilde", "~/music", filepath.Join(home, "music")},
		{"bare tilde", "~", home},
		{"env var", "$WATCHD_TEST_DIR/flac", "/srv/media/flac"},
		{"absolute", "/a/b/../c", "/a/c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real")
	require.NoError(t, os.Mkdir(real, 0755))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(real, link))

	same, err := ComparePaths(real, link)
	require.NoError(t, err)
	assert.True(t, same)

	missing, err := Normalize(filepath.Join(dir, "nope", ".."))
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(dir), filepath.Clean(missing))
}

func TestIsWithin(t *testing.T) {
	tests := []struct {
		root, path string
		want       bool
	}{
		{"/music", "/music", true},
		{"/music", "/music/a/b.flac", true},
		{"/music", "/musicbox/a.flac", false},
		{"/music", "/", false},
		{"/music", "/music/../etc", false},
		{"/music", "/music/..hidden", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsWithin(tt.root, filepath.Clean(tt.path)), "%s in %s", tt.path, tt.root)
	}
}
