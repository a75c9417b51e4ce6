// Copyright 2024 The Vaultar Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pathsec

import (
	"os"
	"path/filepath"
	"strings"
)

// Cache is the validated-path cache: the set of absolute paths already
// known to consist entirely of real directories and in-bounds symlinks,
// so repeated extraction under a shared parent does not re-walk and
// re-stat it for every entry. It is not safe for concurrent use; an
// extractor owns exactly one Cache for the lifetime of one Extract call.
type Cache struct {
	root  string
	valid map[string]bool
}

// NewCache returns an empty Cache scoped to root, which must already be
// an absolute, cleaned path.
func NewCache(root string) *Cache {
	return &Cache{root: root, valid: make(map[string]bool)}
}

func (c *Cache) key(absPath string) string {
	return CaseFold(Normalize(absPath))
}

// markSafe records absPath as validated.
func (c *Cache) markSafe(absPath string) { c.valid[c.key(absPath)] = true }

func (c *Cache) isSafe(absPath string) bool { return c.valid[c.key(absPath)] }

// MarkSafe records absPath — just materialized as a real directory by
// the caller — as validated, so later entries nested under it skip the
// parent-chain walk.
func (c *Cache) MarkSafe(absPath string) { c.markSafe(absPath) }

// Invalidate removes absPath from the cache, or — on platforms whose
// filesystem normalizes paths aggressively enough that one path's safety
// says nothing reliable about a lexically-different one — clears the
// whole cache. Called after every symlink creation, since a symlink can
// replace a directory that earlier entries already proved safe.
func (c *Cache) Invalidate(absPath string) {
	if aggressivePathNormalization {
		c.valid = make(map[string]bool)
		return
	}
	delete(c.valid, c.key(absPath))
}

// ValidateParentChain walks each component of path, relative to the
// cache's root, from the root down, ensuring every one is either already
// validated, nonexistent (will be created later), a real directory, or a
// symlink whose target resolves back within root. It returns
// BoundsViolation for a symlink whose target resolves outside root,
// InvalidDirectoryComponent on the first component that is none of
// those, and caches every component it proves safe along the way.
func (c *Cache) ValidateParentChain(path string) error {
	rel, err := filepath.Rel(c.root, path)
	if err != nil {
		return withCode(ErrBounds, "BoundsViolation")
	}
	if rel == "." {
		return nil
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	cur := c.root
	for _, part := range parts {
		cur = filepath.Join(cur, part)
		if c.isSafe(cur) {
			continue
		}
		if err := c.validateOne(cur); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) validateOne(path string) error {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) || os.IsPermission(err) {
		c.markSafe(path) // will be created later by the caller
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		c.markSafe(path)
		return nil
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(path)
		if err != nil {
			return withCode(ErrInvalidComponent, "InvalidDirectoryComponent")
		}
		if !WithinRoot(c.root, target) {
			return withCode(ErrBounds, "BoundsViolation")
		}
		c.markSafe(path)
		return nil
	}
	return withCode(ErrInvalidComponent, "InvalidDirectoryComponent")
}
