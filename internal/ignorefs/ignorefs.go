// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package ignorefs implements gitignore-style filtering for the Manifest
// Engine (spec.md §4.3 step 2), replacing the teacher's LevelDB-backed
// ignore package with a from-scratch matcher over gobwas/glob — the
// teacher's own choice of pattern-matching library (go.mod, including its
// `=> github.com/calmh/glob` replace fixing multi-`**` patterns).
package ignorefs

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// rule is one compiled gitignore line, anchored to the directory (posix,
// relative to the sync root) of the .gitignore file it came from.
type rule struct {
	negate    bool
	dirOnly   bool
	anchored  bool // pattern began with '/'
	anchorDir string
	g         glob.Glob
}

// Matcher answers whether a relative path is ignored, given every
// .gitignore found under a root at load time.
type Matcher struct {
	rules []rule // in discovery + in-file order; later rules can override earlier ones
}

// Load walks root looking for .gitignore files at every directory level
// and compiles their patterns, each anchored to its containing directory.
func Load(root string) (*Matcher, error) {
	m := &Matcher{}
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if filepath.Base(p) != ".gitignore" {
			return nil
		}
		relDir, err := filepath.Rel(root, filepath.Dir(p))
		if err != nil {
			return nil
		}
		relDir = filepath.ToSlash(relDir)
		if relDir == "." {
			relDir = ""
		}
		rules, err := parseFile(p, relDir)
		if err != nil {
			return nil
		}
		m.rules = append(m.rules, rules...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func parseFile(p, anchorDir string) ([]rule, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rules []rule
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r, ok := compileLine(line, anchorDir)
		if ok {
			rules = append(rules, r)
		}
	}
	return rules, sc.Err()
}

func compileLine(line, anchorDir string) (rule, bool) {
	negate := false
	if strings.HasPrefix(line, "!") {
		negate = true
		line = line[1:]
	}
	dirOnly := false
	if strings.HasSuffix(line, "/") && len(line) > 1 {
		dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}

	anchored := strings.HasPrefix(line, "/")
	pattern := strings.TrimPrefix(line, "/")
	if pattern == "" {
		return rule{}, false
	}

	// gobwas/glob (via the teacher's calmh/glob replace) treats a run of
	// consecutive '*' as matching across path separators, so "**" works
	// as the gitignore spec requires without special-casing here.
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return rule{}, false
	}
	return rule{negate: negate, dirOnly: dirOnly, anchored: anchored, anchorDir: anchorDir, g: g}, true
}

// Match reports whether relPath (posix, relative to the sync root) is
// ignored. isDir indicates whether the entry is a directory. Patterns
// are evaluated in discovery order (root-level gitignore first, deeper
// ones after) and in file order within one gitignore; a later match
// overrides an earlier one, so a trailing "!keep.log" can resurrect a
// file an earlier "*.log" excluded. Match looks at relPath alone and
// does not consult the rules for its parent directories; files inside
// an excluded directory stay out of a manifest because the scanner
// skips that directory without descending into it.
func (m *Matcher) Match(relPath string, isDir bool) bool {
	if m == nil {
		return false
	}
	relPath = filepath.ToSlash(relPath)

	ignored := false
	dir := path.Dir(relPath)
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		if r.anchorDir != "" && !withinDir(relPath, r.anchorDir) {
			continue
		}
		sub := stripAnchor(relPath, r.anchorDir)

		var matched bool
		if r.anchored {
			matched = r.g.Match(sub)
		} else {
			// Unanchored: tried against the basename and against the
			// whole path relative to the rule's directory.
			matched = r.g.Match(path.Base(sub)) || r.g.Match(sub)
		}
		if matched {
			ignored = !r.negate
		}
	}
	_ = dir
	return ignored
}

func withinDir(relPath, dir string) bool {
	return relPath == dir || strings.HasPrefix(relPath, dir+"/")
}

func stripAnchor(relPath, dir string) string {
	if dir == "" {
		return relPath
	}
	return strings.TrimPrefix(strings.TrimPrefix(relPath, dir), "/")
}
