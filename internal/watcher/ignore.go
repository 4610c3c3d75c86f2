package watcher

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// IgnoreSet holds compiled glob patterns used to exclude paths from
// watching and scanning. Patterns match against the slash-separated
// relative path and against the base name, so "*.tmp" excludes any
// temp file and "node_modules/**" excludes a whole subtree.
type IgnoreSet struct {
	globs []glob.Glob
}

// builtinIgnores are always excluded regardless of configuration.
// The coordinator's own data directory must never feed back into the
// pipeline it drives.
var builtinIgnores = []string{".git", ".cocowatch"}

func NewIgnoreSet(patterns []string) *IgnoreSet {
	s := &IgnoreSet{}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			slog.Warn("skipping invalid ignore pattern",
				slog.String("pattern", p),
				slog.String("error", err.Error()))
			continue
		}
		s.globs = append(s.globs, g)
	}
	return s
}

// Match reports whether the relative path is excluded.
func (s *IgnoreSet) Match(relPath string) bool {
	if relPath == "." || relPath == "" {
		return false
	}
	relPath = filepath.ToSlash(relPath)

	first := relPath
	if i := strings.Index(relPath, "/"); i >= 0 {
		first = relPath[:i]
	}
	for _, b := range builtinIgnores {
		if first == b {
			return true
		}
	}

	base := relPath
	if i := strings.LastIndex(relPath, "/"); i >= 0 {
		base = relPath[i+1:]
	}
	for _, g := range s.globs {
		if g.Match(relPath) || g.Match(base) {
			return true
		}
	}
	return false
}
