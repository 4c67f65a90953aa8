package utils

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range files {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "series.zip")
	writeZip(t, src, map[string]string{
		"1-1.dcm":     "a",
		"sub/1-2.dcm": "b",
	})

	dst := filepath.Join(dir, "out")
	count, err := ExtractZip(src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, "b", ReadFileAsString(filepath.Join(dst, "sub", "1-2.dcm")))
}

func TestExtractZipRejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "evil.zip")
	writeZip(t, src, map[string]string{"../escape.txt": "x"})

	_, err := ExtractZip(src, filepath.Join(dir, "out"))
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "escape.txt"))
}

func TestWalkFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b/D1-0002.json", "a/D1-0001.JSON", ".DS_Store", "a/.hidden.json", "notes.txt"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("[]"), 0644))
	}

	files, err := WalkFiles(dir, ".json")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a", "D1-0001.JSON"),
		filepath.Join(dir, "b", "D1-0002.json"),
	}, files)

	_, err = WalkFiles(filepath.Join(dir, "missing"), ".json")
	assert.Error(t, err)
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abc")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0644))

	sum, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp(-1, 0, 4))
	assert.Equal(t, 4, Clamp(9, 0, 4))
	assert.Equal(t, 2, Clamp(2, 0, 4))
}

func TestFindInSlice(t *testing.T) {
	i, found := FindInSlice([]string{"a", "b"}, "b")
	assert.True(t, found)
	assert.Equal(t, 1, i)

	_, found = FindInSlice(nil, "a")
	assert.False(t, found)
}
