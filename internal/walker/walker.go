// Package walker discovers analyzable source files under a project root,
// filtering out ignored, binary, oversized, and unrecognized files, and
// classifying the rest by processing priority.
package walker

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/graphling/graphling/internal/langdetect"
)

// Priority orders files for the work queue; a smaller value is processed
// first.
type Priority int

// Priority levels, most urgent first.
const (
	PriorityEntryPoint Priority = iota + 1
	PriorityExportAPI
	PriorityRootFile
	PriorityRegular
)

// String renders the priority level for logs and diagnostics.
func (p Priority) String() string {
	switch p {
	case PriorityEntryPoint:
		return "entry_point"
	case PriorityExportAPI:
		return "export_api"
	case PriorityRootFile:
		return "root_file"
	case PriorityRegular:
		return "regular"
	default:
		return "unknown"
	}
}

// DefaultMaxFileBytes is the default size cutoff beyond which a file is
// skipped regardless of language.
const DefaultMaxFileBytes = 2 << 20 // 2 MiB.

// sniffBytes is how much of a file's head is inspected for a NUL byte to
// classify it as binary.
const sniffBytes = 8192

// FileDescriptor describes one file selected for analysis.
type FileDescriptor struct {
	// Path is slash-separated and relative to the walk root.
	Path     string
	Size     int64
	Language string
	Priority Priority
}

var (
	exportAPIPattern = regexp.MustCompile(`^exports?\.(js|ts)$`)
	mainPattern      = regexp.MustCompile(`^main\.`)
)

// entryPointNames are exact basenames that are language-idiomatic entry
// points regardless of the enclosing directory.
var entryPointNames = map[string]bool{
	"__init__.py": true,
	"index.js":    true,
	"index.ts":    true,
	"mod.rs":      true,
}

// Options configures a Walk call.
type Options struct {
	// MaxFileBytes rejects files larger than this. Zero uses DefaultMaxFileBytes.
	MaxFileBytes int64
}

// Walk discovers files under rootPath, applying .gitignore semantics at
// every directory level, then binary/size/unknown-language filters, and
// returns the survivors ordered by ascending priority (ties broken by path,
// for determinism). The repo's own .git directory is always excluded.
func Walk(rootPath string, opts Options) ([]FileDescriptor, error) {
	maxBytes := opts.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}

	ignores := newIgnoreSet()

	var descriptors []FileDescriptor

	walkErr := filepath.WalkDir(rootPath, func(absPath string, entry fs.DirEntry, err error) error {
		return visit(rootPath, absPath, entry, err, ignores, maxBytes, &descriptors)
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk %s: %w", rootPath, walkErr)
	}

	sort.SliceStable(descriptors, func(i, j int) bool {
		if descriptors[i].Priority != descriptors[j].Priority {
			return descriptors[i].Priority < descriptors[j].Priority
		}

		return descriptors[i].Path < descriptors[j].Path
	})

	return descriptors, nil
}

func visit(
	rootPath, absPath string,
	entry fs.DirEntry,
	walkErr error,
	ignores *ignoreSet,
	maxBytes int64,
	descriptors *[]FileDescriptor,
) error {
	if walkErr != nil {
		if os.IsPermission(walkErr) || os.IsNotExist(walkErr) {
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		return walkErr
	}

	if entry == nil {
		return nil
	}

	relPath, err := filepath.Rel(rootPath, absPath)
	if err != nil {
		return fmt.Errorf("rel %s: %w", absPath, err)
	}

	relPath = filepath.ToSlash(relPath)

	if entry.IsDir() {
		return visitDir(rootPath, relPath, entry, ignores)
	}

	if relPath == "." {
		return nil
	}

	if ignores.matches(relPath, false) {
		return nil
	}

	desc, ok, err := describeFile(rootPath, relPath, entry, maxBytes)
	if err != nil {
		if os.IsPermission(err) || os.IsNotExist(err) {
			return nil
		}

		return err
	}

	if ok {
		*descriptors = append(*descriptors, desc)
	}

	return nil
}

func visitDir(rootPath, relPath string, entry fs.DirEntry, ignores *ignoreSet) error {
	if entry.Name() == ".git" {
		return filepath.SkipDir
	}

	if relPath != "." && ignores.matches(relPath, true) {
		return filepath.SkipDir
	}

	if err := ignores.loadDir(rootPath, relPath); err != nil {
		return err
	}

	return nil
}

// describeFile applies the binary, size, and language filters to a single
// file and, if it survives, returns its descriptor.
func describeFile(rootPath, relPath string, entry fs.DirEntry, maxBytes int64) (FileDescriptor, bool, error) {
	info, err := entry.Info()
	if err != nil {
		return FileDescriptor{}, false, fmt.Errorf("stat %s: %w", relPath, err)
	}

	if info.Size() > maxBytes {
		return FileDescriptor{}, false, nil
	}

	absPath := filepath.Join(rootPath, filepath.FromSlash(relPath))

	head, isBinary, err := sniffHead(absPath)
	if err != nil {
		return FileDescriptor{}, false, err
	}

	if isBinary {
		return FileDescriptor{}, false, nil
	}

	lang := langdetect.Detect(relPath, head)
	if lang == langdetect.Unknown {
		return FileDescriptor{}, false, nil
	}

	return FileDescriptor{
		Path:     relPath,
		Size:     info.Size(),
		Language: lang,
		Priority: classify(relPath),
	}, true, nil
}

// sniffHead reads up to sniffBytes from path and reports whether it
// contains a NUL byte, the heuristic for "this is a binary file".
func sniffHead(absPath string) (head []byte, isBinary bool, err error) {
	f, err := os.Open(absPath) //nolint:gosec // path comes from a walked directory tree under the caller-supplied root.
	if err != nil {
		return nil, false, fmt.Errorf("open %s: %w", absPath, err)
	}
	defer f.Close()

	buf := make([]byte, sniffBytes)

	n, readErr := f.Read(buf)
	if readErr != nil && n == 0 {
		return nil, false, nil // Empty file; not binary.
	}

	buf = buf[:n]

	return buf, bytes.IndexByte(buf, 0) >= 0, nil
}

// classify assigns a processing Priority to relPath per the entry-point >
// export-API > root-file > regular ordering.
func classify(relPath string) Priority {
	base := path.Base(relPath)
	dir := path.Dir(relPath)
	stem := strings.TrimSuffix(base, path.Ext(base))

	if entryPointNames[base] || mainPattern.MatchString(base) || stem == path.Base(dir) {
		return PriorityEntryPoint
	}

	if exportAPIPattern.MatchString(base) ||
		strings.HasPrefix(base, "public.") ||
		strings.Contains(base, "api") ||
		strings.HasSuffix(base, ".d.ts") {
		return PriorityExportAPI
	}

	if dir == "." {
		return PriorityRootFile
	}

	return PriorityRegular
}
