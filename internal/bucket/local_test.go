package bucket

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func TestExtractZip(t *testing.T) {
	zp := makeZip(t, map[string]string{
		"landcover_2020.nc":     "raster",
		"meta/landcover_cl.csv": "code,label\n1,Forest\n",
	})
	dir := t.TempDir()
	require.NoError(t, ExtractZip(zp, dir))

	raw, err := os.ReadFile(filepath.Join(dir, "landcover_2020.nc"))
	require.NoError(t, err)
	assert.Equal(t, "raster", string(raw))

	raw, err = os.ReadFile(filepath.Join(dir, "meta", "landcover_cl.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Forest")
}

func TestExtractZipRejectsEscape(t *testing.T) {
	zp := makeZip(t, map[string]string{"../evil.txt": "nope"})
	err := ExtractZip(zp, t.TempDir())
	assert.Error(t, err)
}

func TestFindByExtension(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "grid.NC"), nil, 0o644))

	got, err := FindByExtension(dir, ".nc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nested", "grid.NC"), got)

	_, err = FindByExtension(dir, ".csv")
	assert.Error(t, err)
}
