package inputs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	return path
}

func TestExpandPlainFiles(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "a.pdf")
	b := touch(t, dir, "b.PDF")

	got, err := Expand([]string{a, b}, nil, testLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, got)
}

func TestExpandDirectory(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "a.pdf")
	b := touch(t, dir, "b.pdf")
	touch(t, dir, "notes.txt")
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	touch(t, sub, "nested.pdf")

	got, err := Expand([]string{dir}, nil, testLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, got, "directory expansion is non-recursive and PDF-only")
}

func TestExpandGlob(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "scan1.pdf")
	b := touch(t, dir, "scan2.pdf")
	touch(t, dir, "other.pdf")

	got, err := Expand([]string{filepath.Join(dir, "scan*.pdf")}, nil, testLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, got)
}

func TestExpandNoMatchIsError(t *testing.T) {
	dir := t.TempDir()
	_, err := Expand([]string{filepath.Join(dir, "missing*.pdf")}, nil, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files match")
}

func TestExpandStdin(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "a.pdf")
	b := touch(t, dir, "b.pdf")
	txt := touch(t, dir, "ignored.txt")
	stdin := strings.NewReader(a + "\n\n" + b + "\n" + txt + "\n")

	got, err := Expand([]string{"-"}, stdin, testLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, got)
}

func TestExpandStdinGlobs(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "scan1.pdf")
	b := touch(t, dir, "scan2.pdf")
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	c := touch(t, sub, "nested.pdf")
	stdin := strings.NewReader(filepath.Join(dir, "scan*.pdf") + "\n" + sub + "\n")

	got, err := Expand([]string{"-"}, stdin, testLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{a, b, c}, got, "stdin lines expand like positional arguments")

	stdin = strings.NewReader(filepath.Join(dir, "missing*.pdf") + "\n")
	_, err = Expand([]string{"-"}, stdin, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files match")
}

func TestExpandEnvVar(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "a.pdf")
	t.Setenv("BATCHOCR_TEST_DIR", dir)

	got, err := Expand([]string{filepath.Join("$BATCHOCR_TEST_DIR", "a.pdf")}, nil, testLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{a}, got)
}

func TestExpandDeduplicates(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "a.pdf")

	got, err := Expand([]string{a, a, filepath.Join(dir, "*.pdf")}, nil, testLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{a}, got)
}

func TestExpandSkipsNonPDFFile(t *testing.T) {
	dir := t.TempDir()
	txt := touch(t, dir, "notes.txt")

	got, err := Expand([]string{txt}, nil, testLogger())
	require.NoError(t, err)
	assert.Empty(t, got)
}
