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

// Package extractor materializes a decoded tar entry stream onto the
// local filesystem under a destination root, hardened against
// path-traversal, symlink redirection, hardlink-through-symlink, and
// Unicode-normalization cache-bypass attacks. See extractor/pathsec for
// the validated-path cache and bounds checks this package builds on.
package extractor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vaultar/vaultar/extractor/pathsec"
	"github.com/vaultar/vaultar/tar"
)

const defaultMaxDepth = 1024

// Config configures a call to Extract.
type Config struct {
	// Destination is the root directory entries are extracted under. It
	// is created if it does not already exist.
	Destination string

	// DirMode and FileMode override the permission bits used for
	// directories and regular files, respectively. Zero means "use the
	// entry's own Mode, falling back to the package default".
	DirMode, FileMode os.FileMode

	// SkipSymlinkValidation disables the bounds check normally applied to
	// a symlink's resolved target before it is created. Leave false
	// unless the destination tree is fully trusted.
	SkipSymlinkValidation bool

	// MaxDepth caps the number of path components an entry's name may
	// have after normalization. Zero means the package default (1024);
	// negative means unlimited.
	MaxDepth int

	// Logger receives Debug records for ignored best-effort failures and
	// Warn records for skipped unsupported entries. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

func (c Config) maxDepth() int {
	if c.MaxDepth == 0 {
		return defaultMaxDepth
	}
	return c.MaxDepth
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Source is satisfied by *tar.Reader and *tar.TransformedReader: anything
// that yields a sequence of (header, body) pairs the way this package's
// consumer loop expects.
type Source interface {
	io.Reader
	Next() (*tar.Header, error)
}

// Extract consumes every entry of src and materializes it under
// cfg.Destination, enforcing the bounds, depth, and symlink/hardlink
// defenses described in the package doc. It stops at the first error;
// partially-written files are left in place.
func Extract(ctx context.Context, src Source, cfg Config) error {
	root, err := filepath.Abs(cfg.Destination)
	if err != nil {
		return fmt.Errorf("extractor: resolving destination: %w", err)
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("extractor: creating destination: %w", err)
	}

	cache := pathsec.NewCache(root)
	log := cfg.logger()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		h, err := src.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := extractOne(src, cache, root, h, cfg, log); err != nil {
			return fmt.Errorf("extractor: %s: %w", h.Name, err)
		}
	}
}

func extractOne(body io.Reader, cache *pathsec.Cache, root string, h *tar.Header, cfg Config, log *slog.Logger) error {
	relName, err := pathsec.CleanEntryName(h.Name, cfg.maxDepth())
	if err != nil {
		return err
	}
	if relName == "" {
		return nil // the root itself; nothing to do
	}
	if pathsec.HasReservedComponent(relName) {
		return withCode(fmt.Errorf("%q has a reserved path component: %w", relName, pathsec.ErrInvalidComponent), "InvalidDirectoryComponent")
	}

	outPath, err := pathsec.JoinWithinRoot(root, relName)
	if err != nil {
		return err
	}
	parent := filepath.Dir(outPath)
	if err := cache.ValidateParentChain(parent); err != nil {
		return err
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}

	switch h.Type {
	case tar.TypeDir:
		if err := os.MkdirAll(outPath, dirMode(cfg, h)); err != nil {
			return err
		}
		cache.MarkSafe(outPath)

	case tar.TypeReg:
		if err := writeFile(body, outPath, fileMode(cfg, h), h.Size); err != nil {
			return err
		}

	case tar.TypeSymlink:
		if err := createSymlink(cache, root, outPath, h, cfg); err != nil {
			return err
		}

	case tar.TypeLink:
		if err := createHardlink(cache, root, outPath, h, cfg); err != nil {
			return err
		}

	default:
		log.Warn("skipping unsupported entry type", "name", h.Name, "type", h.Type.String())
		return nil
	}

	applyModTime(outPath, h, log)
	return nil
}

func dirMode(cfg Config, h *tar.Header) os.FileMode {
	if cfg.DirMode != 0 {
		return cfg.DirMode
	}
	if h.Mode != 0 {
		return os.FileMode(h.Mode) & os.ModePerm
	}
	return 0o755
}

func fileMode(cfg Config, h *tar.Header) os.FileMode {
	if cfg.FileMode != 0 {
		return cfg.FileMode
	}
	if h.Mode != 0 {
		return os.FileMode(h.Mode) & os.ModePerm
	}
	return 0o644
}

func writeFile(body io.Reader, outPath string, mode os.FileMode, size int64) error {
	f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	_, err = io.CopyN(f, body, size)
	closeErr := f.Close()
	if err != nil && err != io.EOF {
		return err
	}
	return closeErr
}

// createSymlink materializes a symlink entry. When validation is enabled,
// the target is resolved relative to outPath's
// directory and bounds-checked before the link is created, so an archive
// cannot point a symlink at an arbitrary out-of-tree path and later write
// through it. The cache is always invalidated afterward, since a symlink
// just replaced whatever validateOne last proved about this path.
func createSymlink(cache *pathsec.Cache, root, outPath string, h *tar.Header, cfg Config) error {
	if !cfg.SkipSymlinkValidation {
		resolved := h.Linkname
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(filepath.Dir(outPath), resolved)
		}
		resolved = filepath.Clean(resolved)
		if !pathsec.WithinRoot(root, resolved) {
			return withCode(fmt.Errorf("symlink target %q escapes destination: %w", h.Linkname, pathsec.ErrBounds), "BoundsViolation")
		}
	}
	_ = os.Remove(outPath) // idempotent re-extraction of the same archive
	if err := os.Symlink(h.Linkname, outPath); err != nil {
		return err
	}
	cache.Invalidate(outPath)
	return nil
}

// createHardlink materializes a hardlink entry. The link source is
// resolved and bounds-checked the same way a regular entry's
// path is, and its own parent chain is validated against the cache
// before linking, which is what prevents an earlier symlink entry from
// having redirected the source outside the destination root.
func createHardlink(cache *pathsec.Cache, root, outPath string, h *tar.Header, cfg Config) error {
	if filepath.IsAbs(h.Linkname) {
		return withCode(fmt.Errorf("hardlink target %q is absolute: %w", h.Linkname, pathsec.ErrAbsolutePath), "AbsolutePathDenied")
	}
	relLink, err := pathsec.CleanEntryName(h.Linkname, cfg.maxDepth())
	if err != nil {
		return err
	}
	resolvedLink, err := pathsec.JoinWithinRoot(root, relLink)
	if err != nil {
		return err
	}
	if err := cache.ValidateParentChain(filepath.Dir(resolvedLink)); err != nil {
		return err
	}
	_ = os.Remove(outPath)
	return os.Link(resolvedLink, outPath)
}

// applyModTime is best-effort: a failure to set a timestamp never fails
// the extraction, only logs at Debug.
func applyModTime(outPath string, h *tar.Header, log *slog.Logger) {
	if h.ModTime.IsZero() {
		return
	}
	if h.Type == tar.TypeSymlink {
		// os.Chtimes follows symlinks on every platform Go supports
		// without a syscall-level lutimes wrapper; skip rather than
		// silently retime the link's target.
		log.Debug("skipping symlink mtime: no portable lutimes", "path", outPath)
		return
	}
	if err := os.Chtimes(outPath, h.ModTime, h.ModTime); err != nil {
		log.Debug("failed to apply mtime", "path", outPath, "err", err)
	}
}
