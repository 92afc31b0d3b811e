// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package manifest

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/nullmodem/serialsync/internal/ignorefs"
)

// hashChunkSize is the streaming read size for MD5 hashing (spec.md
// §4.3 step 6: "streamed in 8 KiB chunks").
const hashChunkSize = 8 * 1024

// defaultCacheSize bounds the in-memory warm cache a Scanner keeps
// across back-to-back rounds in one process lifetime (spec.md
// SPEC_FULL §11.4).
const defaultCacheSize = 100_000

// Options configures one manifest generation run.
type Options struct {
	RespectGitignore  bool
	QuickMode         bool
	PriorManifestPath string
	PersistPath       string
	// HashWorkers overrides the hash worker pool size; 0 selects
	// max(2, runtime.NumCPU()) (spec.md §4.3 step 6).
	HashWorkers int
}

// Scanner generates manifests, keeping a bounded LRU of recently seen
// (path -> FileRecord) pairs hot across rounds so a second scan of an
// unchanged tree within the same process doesn't need to re-read the
// JSON cache file.
type Scanner struct {
	cache *lru.Cache[string, FileRecord]
}

// NewScanner constructs a Scanner with the default warm-cache size.
func NewScanner() *Scanner {
	c, _ := lru.New[string, FileRecord](defaultCacheSize)
	return &Scanner{cache: c}
}

// Generate implements spec.md §4.3's generate_manifest algorithm.
func (s *Scanner) Generate(root string, opts Options) (*Manifest, error) {
	var prior *Manifest
	if opts.PriorManifestPath != "" {
		p, err := LoadJSON(opts.PriorManifestPath)
		if err != nil {
			return nil, err
		}
		prior = p
	}

	var matcher *ignorefs.Matcher
	if opts.RespectGitignore {
		m, err := ignorefs.Load(root)
		if err != nil {
			return nil, errors.Wrap(err, "manifest: load gitignore")
		}
		matcher = m
	}

	workers := opts.HashWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers < 2 {
			workers = 2
		}
	}

	var (
		mu          sync.Mutex
		files       = make(map[string]FileRecord)
		dirChildren = make(map[string]bool) // dir -> has any visible child
		hashErrs    *multierror.Error
	)
	dirChildren[""] = false

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	markParents := func(relPath string) {
		d := filepath.ToSlash(filepath.Dir(relPath))
		if d == "." {
			d = ""
		}
		for {
			dirChildren[d] = true
			if d == "" {
				break
			}
			next := filepath.ToSlash(filepath.Dir(d))
			if next == "." {
				next = ""
			}
			d = next
		}
	}

	walkErr := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			// A file that disappears mid-scan is silently dropped
			// (spec.md §4.3 Failure modes); other stat errors are
			// likewise skipped rather than aborting the whole walk.
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if isHidden(info) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			if matcher != nil && matcher.Match(rel, true) {
				return filepath.SkipDir
			}
			mu.Lock()
			if _, ok := dirChildren[rel]; !ok {
				dirChildren[rel] = false
			}
			mu.Unlock()
			markParentVisible(dirChildren, rel)
			return nil
		}

		if strings.EqualFold(filepath.Base(rel), ".gitignore") && opts.RespectGitignore {
			return nil
		}
		if matcher != nil && matcher.Match(rel, false) {
			return nil
		}

		size := info.Size()
		modMs := info.ModTime().UnixMilli()

		mu.Lock()
		markParents(rel)
		mu.Unlock()

		if prior != nil {
			if pr, ok := prior.Files[rel]; ok && pr.HasDigest && pr.Size == size && pr.ModifiedTime == modMs {
				mu.Lock()
				files[rel] = FileRecord{Path: rel, Size: size, ModifiedTime: modMs, Digest: pr.Digest, HasDigest: true}
				mu.Unlock()
				return nil
			}
		}
		if cached, ok := s.cache.Get(rel); ok && cached.HasDigest && cached.Size == size && cached.ModifiedTime == modMs {
			mu.Lock()
			files[rel] = cached
			mu.Unlock()
			return nil
		}

		if opts.QuickMode {
			mu.Lock()
			files[rel] = FileRecord{Path: rel, Size: size, ModifiedTime: modMs}
			mu.Unlock()
			return nil
		}

		fullPath := filepath.Join(root, rel)
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			digest, err := hashFile(fullPath)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				hashErrs = multierror.Append(hashErrs, errors.Wrapf(err, "manifest: hash %s", rel))
				return
			}
			rec := FileRecord{Path: rel, Size: size, ModifiedTime: modMs, Digest: digest, HasDigest: true}
			files[rel] = rec
		}()
		return nil
	})
	wg.Wait()

	if walkErr != nil {
		return nil, errors.Wrap(walkErr, "manifest: walk")
	}
	if hashErrs != nil {
		return nil, hashErrs.ErrorOrNil()
	}

	m := New()
	m.Files = files
	for d, hasChild := range dirChildren {
		// The sync root itself is never an empty-dir entry: it always
		// exists as the sync folder, so "creating" or "deleting" it is
		// meaningless (spec.md §3's empty_dirs describes paths within
		// the tree, not the root).
		if d == "" {
			continue
		}
		if !hasChild {
			m.EmptyDirs[d] = struct{}{}
		}
	}
	// A directory with a recorded child directory that is itself empty
	// still counts as having a child per spec.md §4.3 step 7 ("no
	// recorded child file and no recorded child dir"); dirChildren
	// already reflects that via markParents/markParentVisible setting
	// the parent's flag true whenever any descendant (file or dir) was
	// recorded.

	for path, rec := range m.Files {
		s.cache.Add(path, rec)
	}

	if opts.PersistPath != "" {
		if err := PersistJSON(m, opts.PersistPath); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func markParentVisible(dirChildren map[string]bool, rel string) {
	d := filepath.ToSlash(filepath.Dir(rel))
	if d == "." {
		d = ""
	}
	if d == rel {
		return
	}
	dirChildren[d] = true
}

func hashFile(fullPath string) (string, error) {
	f, err := os.Open(fullPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	buf := make([]byte, hashChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
