package patient

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0644))
}

func TestBuildIndex(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "1234567_a.json"))
	touch(t, filepath.Join(root, "nested", "1234567_b.json"))
	touch(t, filepath.Join(root, "9999999.json"))
	touch(t, filepath.Join(root, ".DS_Store"))
	touch(t, filepath.Join(root, ".1234567_hidden.json"))
	touch(t, filepath.Join(root, "1234567_notes.txt"))

	index, err := BuildIndex(root)
	require.NoError(t, err)

	assert.Len(t, index, 2)
	assert.Equal(t, []string{
		filepath.Join(root, "1234567_a.json"),
		filepath.Join(root, "nested", "1234567_b.json"),
	}, index["1234567"])
	assert.Equal(t, []string{filepath.Join(root, "9999999.json")}, index["9999999"])
	assert.Equal(t, []string{"1234567", "9999999"}, index.PatientIDs())
	assert.Len(t, index.Files("1234567"), 2)
	assert.Empty(t, index.Files("0000000"))
}

func TestBuildIndexEmptyAndMissing(t *testing.T) {
	index, err := BuildIndex(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, index)
	assert.Empty(t, index.PatientIDs())

	_, err = BuildIndex(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestIDFromFilename(t *testing.T) {
	assert.Equal(t, "D1-0001", IDFromFilename("/a/b/D1-0001_L_MLO.json"))
	assert.Equal(t, "abc.jso", IDFromFilename("abc.json"))
	assert.Equal(t, "ab.json", IDFromFilename("ab.json"))
	assert.Equal(t, "abc", IDFromFilename("abc"))
}

func TestMatchAnnotation(t *testing.T) {
	files := []string{"/x/D1-0001_R_MLO.json", "/x/D1-0001_L_MLO.json"}

	assert.Equal(t, "/x/D1-0001_L_MLO.json", MatchAnnotation(files, "L"))
	assert.Equal(t, "/x/D1-0001_R_MLO.json", MatchAnnotation(files, "R"))
	assert.Equal(t, "/x/D1-0001_R_MLO.json", MatchAnnotation(files, ""))
	assert.Equal(t, "/x/D1-0001.json", MatchAnnotation([]string{"/x/D1-0001.json"}, "L"))
	assert.Equal(t, "", MatchAnnotation(nil, "L"))
}

func TestFileLaterality(t *testing.T) {
	assert.Equal(t, "L", fileLaterality("D1-0001_L.json"))
	assert.Equal(t, "R", fileLaterality("D1-0001-right-mlo.json"))
	assert.Equal(t, "", fileLaterality("D1-0001_MLO.json"))
	assert.Equal(t, "", fileLaterality("D1-0001.json"))
}
