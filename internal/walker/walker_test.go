package walker_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphling/graphling/internal/walker"
)

func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()

	full := filepath.Join(root, filepath.FromSlash(relPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
}

func TestWalk_BasicDiscovery(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, root, "pkg/util.go", "package pkg\n")

	descs, err := walker.Walk(root, walker.Options{})
	require.NoError(t, err)
	require.Len(t, descs, 2)

	paths := []string{descs[0].Path, descs[1].Path}
	assert.Contains(t, paths, "main.go")
	assert.Contains(t, paths, "pkg/util.go")
}

func TestWalk_ExcludesGitDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, ".git/HEAD", "ref: refs/heads/main\n")
	writeFile(t, root, "main.go", "package main\n")

	descs, err := walker.Walk(root, walker.Options{})
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "main.go", descs[0].Path)
}

func TestWalk_RespectsGitignore(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, ".gitignore", "vendor/\n*.log\n")
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "vendor/dep.go", "package dep\n")
	writeFile(t, root, "debug.log", "log line\n")

	descs, err := walker.Walk(root, walker.Options{})
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "main.go", descs[0].Path)
}

func TestWalk_GitignoreNegation(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.go\n!keep.go\n")
	writeFile(t, root, "drop.go", "package drop\n")
	writeFile(t, root, "keep.go", "package keep\n")

	descs, err := walker.Walk(root, walker.Options{})
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "keep.go", descs[0].Path)
}

func TestWalk_NestedGitignore(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "sub/.gitignore", "ignored.go\n")
	writeFile(t, root, "sub/ignored.go", "package sub\n")
	writeFile(t, root, "sub/kept.go", "package sub\n")
	writeFile(t, root, "ignored.go", "package root\n") // Not ignored at root level.

	descs, err := walker.Walk(root, walker.Options{})
	require.NoError(t, err)

	paths := make([]string, 0, len(descs))
	for _, d := range descs {
		paths = append(paths, d.Path)
	}

	assert.Contains(t, paths, "sub/kept.go")
	assert.Contains(t, paths, "ignored.go")
	assert.NotContains(t, paths, "sub/ignored.go")
}

func TestWalk_ExcludesBinary(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "data.bin", "binary\x00data\x00here")
	writeFile(t, root, "main.go", "package main\n")

	descs, err := walker.Walk(root, walker.Options{})
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "main.go", descs[0].Path)
}

func TestWalk_ExcludesOversizedFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "small.go", "package main\n")
	writeFile(t, root, "huge.go", string(make([]byte, 100)))

	descs, err := walker.Walk(root, walker.Options{MaxFileBytes: 50})
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "small.go", descs[0].Path)
}

func TestWalk_ExcludesUnknownLanguage(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "mystery.xyzabc", "")

	descs, err := walker.Walk(root, walker.Options{})
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "main.go", descs[0].Path)
}

func TestWalk_PriorityOrdering(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "regular.go", "package regular\n")
	writeFile(t, root, "api.go", "package api\n")
	writeFile(t, root, "main.go", "package main\n")

	descs, err := walker.Walk(root, walker.Options{})
	require.NoError(t, err)
	require.Len(t, descs, 3)

	// main.go is an entry point (matches main.* pattern), should sort first.
	assert.Equal(t, "main.go", descs[0].Path)
	assert.Equal(t, walker.PriorityEntryPoint, descs[0].Priority)
}

func TestClassify_EntryPoint(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "foo/foo.go", "package foo\n")
	writeFile(t, root, "__init__.py", "")

	descs, err := walker.Walk(root, walker.Options{})
	require.NoError(t, err)

	byPath := make(map[string]walker.FileDescriptor, len(descs))
	for _, d := range descs {
		byPath[d.Path] = d
	}

	assert.Equal(t, walker.PriorityEntryPoint, byPath["foo/foo.go"].Priority)
	assert.Equal(t, walker.PriorityEntryPoint, byPath["__init__.py"].Priority)
}

func TestClassify_ExportAPI(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "lib/exports.js", "module.exports = {}\n")
	writeFile(t, root, "lib/types.d.ts", "export {}\n")

	descs, err := walker.Walk(root, walker.Options{})
	require.NoError(t, err)

	byPath := make(map[string]walker.FileDescriptor, len(descs))
	for _, d := range descs {
		byPath[d.Path] = d
	}

	assert.Equal(t, walker.PriorityExportAPI, byPath["lib/exports.js"].Priority)
	assert.Equal(t, walker.PriorityExportAPI, byPath["lib/types.d.ts"].Priority)
}

func TestClassify_RootFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "config.yaml", "key: value\n")

	descs, err := walker.Walk(root, walker.Options{})
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, walker.PriorityRootFile, descs[0].Priority)
}

func TestPriority_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "entry_point", walker.PriorityEntryPoint.String())
	assert.Equal(t, "export_api", walker.PriorityExportAPI.String())
	assert.Equal(t, "root_file", walker.PriorityRootFile.String())
	assert.Equal(t, "regular", walker.PriorityRegular.String())
}
