package walker

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ignoreRule is one parsed line of a .gitignore file.
type ignoreRule struct {
	// base is the slash-separated path (relative to the walk root) of the
	// directory containing the .gitignore this rule came from.
	base string

	pattern  string
	negate   bool
	dirOnly  bool
	anchored bool
}

// ignoreSet accumulates gitignore rules discovered at every directory level
// visited so far, keyed by the directory (relative to root) they apply
// from. Combination is bottom-up: when testing a path, rules from the
// path's own directory and every ancestor are considered in root-to-leaf
// order, with the last matching rule (negation included) winning — this
// mirrors real gitignore precedence where deeper files override shallower
// ones.
type ignoreSet struct {
	rulesByDir map[string][]ignoreRule
}

func newIgnoreSet() *ignoreSet {
	return &ignoreSet{rulesByDir: make(map[string][]ignoreRule)}
}

// loadDir parses relDir's .gitignore (if any) and records its rules.
// relDir is "." for the walk root.
func (s *ignoreSet) loadDir(rootPath, relDir string) error {
	gitignorePath := path.Join(rootPath, relDir, ".gitignore")

	f, err := os.Open(gitignorePath) //nolint:gosec // path is constructed from a walked directory tree.
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("open %s: %w", gitignorePath, err)
	}
	defer f.Close()

	var rules []ignoreRule

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rules = append(rules, parseIgnoreLine(relDir, line))
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", gitignorePath, err)
	}

	if len(rules) > 0 {
		s.rulesByDir[relDir] = rules
	}

	return nil
}

func parseIgnoreLine(base, line string) ignoreRule {
	rule := ignoreRule{base: base}

	if strings.HasPrefix(line, "!") {
		rule.negate = true
		line = line[1:]
	}

	if strings.HasSuffix(line, "/") {
		rule.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}

	if strings.HasPrefix(line, "/") {
		rule.anchored = true
		line = line[1:]
	}

	// A pattern with no interior slash matches at any depth under base;
	// doublestar needs an explicit "**/" prefix to express that.
	if !rule.anchored && !strings.Contains(line, "/") {
		line = "**/" + line
	}

	rule.pattern = line

	return rule
}

// matches reports whether relPath (slash-separated, relative to root) is
// ignored, consulting every ancestor directory's rules in root-to-leaf
// order so the deepest matching rule decides.
func (s *ignoreSet) matches(relPath string, isDir bool) bool {
	ignored := false

	for _, dir := range ancestry(path.Dir(relPath)) {
		for _, rule := range s.rulesByDir[dir] {
			if rule.dirOnly && !isDir {
				continue
			}

			candidate := relPath
			if rule.base != "." {
				trimmed := strings.TrimPrefix(relPath, rule.base+"/")
				if trimmed == relPath {
					continue // relPath isn't under this rule's base at all.
				}

				candidate = trimmed
			}

			ok, err := doublestar.Match(rule.pattern, candidate)
			if err != nil || !ok {
				continue
			}

			ignored = !rule.negate
		}
	}

	return ignored
}

// ancestry returns dir and every one of its ancestors up to and including
// ".", root-to-leaf ordered (so later entries take precedence on replay).
func ancestry(dir string) []string {
	if dir == "." || dir == "" {
		return []string{"."}
	}

	var dirs []string

	for d := dir; ; {
		dirs = append(dirs, d)

		if d == "." {
			break
		}

		parent := path.Dir(d)
		if parent == d {
			break
		}

		d = parent
	}

	// Reverse into root-to-leaf order.
	for i, j := 0, len(dirs)-1; i < j; i, j = i+1, j-1 {
		dirs[i], dirs[j] = dirs[j], dirs[i]
	}

	return dirs
}
