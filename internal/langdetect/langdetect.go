// Package langdetect maps a file path (and, when necessary, its content) to
// the programming language used to pick an LSP server for it.
package langdetect

import (
	"bufio"
	"bytes"
	"path"
	"strings"

	"github.com/src-d/enry/v2"
)

// Unknown is returned when no language can be determined and the walker
// should exclude the file from analysis.
const Unknown = ""

// filenameToLanguage maps exact, case-sensitive basenames to a language.
// Consulted before the extension table since these names carry no useful
// extension of their own (Dockerfile) or their extension is ambiguous
// without the exact name (mod.rs is Rust, but so is any other .rs file —
// the entries here exist for names whose extension alone is misleading,
// e.g. "__init__.py" still resolves correctly through the extension table
// so it is omitted; package.json is kept to classify it as config metadata
// rather than application JavaScript).
var filenameToLanguage = map[string]string{
	"Dockerfile":     "Dockerfile",
	"Makefile":       "Makefile",
	"makefile":       "Makefile",
	"GNUmakefile":    "Makefile",
	"package.json":   "JSON",
	"go.mod":         "Go Module",
	"go.sum":         "Go Checksums",
	"Gemfile":        "Ruby",
	"Rakefile":       "Ruby",
	"CMakeLists.txt": "CMake",
}

// extensionToLanguage maps common file extensions to their programming
// languages, providing O(1) lookup for unambiguous extensions and avoiding
// expensive content analysis for the overwhelming majority of source files.
//
//nolint:gochecknoglobals // package-level lookup table for performance.
var extensionToLanguage = map[string]string{
	// Go
	".go": "Go",
	// Python
	".py":   "Python",
	".pyw":  "Python",
	".pyi":  "Python",
	".pyx":  "Python",
	".pxd":  "Python",
	// JavaScript
	".js":     "JavaScript",
	".mjs":    "JavaScript",
	".cjs":    "JavaScript",
	".jsx":    "JavaScript",
	".vue":    "Vue",
	".svelte": "Svelte",
	// TypeScript
	".ts":  "TypeScript",
	".mts": "TypeScript",
	".cts": "TypeScript",
	".tsx": "TSX",
	// Rust
	".rs": "Rust",
	// Java
	".java": "Java",
	// Kotlin
	".kt":  "Kotlin",
	".kts": "Kotlin",
	// Scala
	".scala": "Scala",
	".sc":    "Scala",
	// C
	".c": "C",
	".h": "C",
	// C++
	".cpp": "C++",
	".hpp": "C++",
	".cc":  "C++",
	".cxx": "C++",
	".hxx": "C++",
	".hh":  "C++",
	// C#
	".cs":  "C#",
	".csx": "C#",
	// Ruby
	".rb":      "Ruby",
	".rake":    "Ruby",
	".gemspec": "Ruby",
	// PHP
	".php": "PHP",
	// Shell
	".sh":   "Shell",
	".bash": "Shell",
	".zsh":  "Shell",
	// Swift
	".swift": "Swift",
	// Dart
	".dart": "Dart",
	// Elixir
	".ex":  "Elixir",
	".exs": "Elixir",
	// Haskell
	".hs":  "Haskell",
	".lhs": "Haskell",
	// Protocol Buffers
	".proto": "Protocol Buffer",
	// Data/config formats. The walker keeps them like any other recognized
	// language, though they have no corresponding LSP server.
	".json": "JSON",
	".yaml": "YAML",
	".yml":  "YAML",
	".toml": "TOML",
	".md":   "Markdown",
}

// shebangToLanguage maps an interpreter path's trailing component to a
// language, consulted only when a file has no extension.
var shebangToLanguage = map[string]string{
	"python":  "Python",
	"python3": "Python",
	"python2": "Python",
	"bash":    "Shell",
	"sh":      "Shell",
	"zsh":     "Shell",
	"node":    "JavaScript",
	"ruby":    "Ruby",
	"perl":    "Perl",
}

// maxShebangScanBytes bounds how much of a file is read to look for a
// shebang line, avoiding a full read of large extensionless binaries.
const maxShebangScanBytes = 256

// Detect returns the language for name given its content, or Unknown if no
// language could be determined (the walker should then exclude the file).
// It checks, in order: (1) the exact-basename table, (2) the extension
// table, (3) for extensionless files, a "#!" shebang line, and finally (4)
// enry's content-based classifier as a slow-path fallback.
func Detect(name string, content []byte) string {
	base := path.Base(name)

	if lang, ok := filenameToLanguage[base]; ok {
		return lang
	}

	ext := strings.ToLower(path.Ext(name))
	if ext != "" {
		if lang, ok := extensionToLanguage[ext]; ok {
			return lang
		}
	} else if lang := detectShebang(content); lang != "" {
		return lang
	}

	if enry.IsBinary(content) {
		return Unknown
	}

	return enry.GetLanguage(base, content)
}

// detectShebang inspects the first line of content for a "#!" interpreter
// directive and maps the interpreter's basename to a language.
func detectShebang(content []byte) string {
	if !bytes.HasPrefix(content, []byte("#!")) {
		return ""
	}

	scanner := bufio.NewScanner(bytes.NewReader(content[:min(len(content), maxShebangScanBytes)]))
	if !scanner.Scan() {
		return ""
	}

	line := strings.TrimPrefix(scanner.Text(), "#!")
	fields := strings.Fields(line)

	if len(fields) == 0 {
		return ""
	}

	interpreter := path.Base(fields[0])

	// Handle "#!/usr/bin/env python3" style shebangs.
	if interpreter == "env" && len(fields) > 1 {
		interpreter = fields[1]
	}

	return shebangToLanguage[interpreter]
}
