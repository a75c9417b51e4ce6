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

// Package pathsec sanitizes and validates archive entry paths against a
// destination root, the way a safe extractor must: purely lexically where
// possible, and by walking the real filesystem where a symlink could be
// lying about its own safety.
package pathsec

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Sentinel errors, inspectable with errors.Is. The errors this package
// returns wrap one of these and implement Coder, so callers can recover a
// stable machine-readable error code.
var (
	ErrAbsolutePath     = errors.New("pathsec: absolute path denied")
	ErrBounds           = errors.New("pathsec: path escapes destination root")
	ErrInvalidComponent = errors.New("pathsec: invalid directory component")
	ErrDepthExceeded    = errors.New("pathsec: path depth exceeds limit")
)

// Coder is implemented by errors returned from this package, giving
// callers a stable string to switch on instead of matching Error() text.
type Coder interface {
	Code() string
}

type codedError struct {
	code string
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }
func (e *codedError) Code() string  { return e.code }

func withCode(err error, code string) error { return &codedError{code: code, err: err} }

// Normalize applies the extractor's single chosen Unicode normalization
// form (NFKD) to a path string. Every path compared, cached, or joined
// against the destination root must go through Normalize first, or a
// visually-identical differently-encoded name can slip past the cache.
func Normalize(s string) string { return norm.NFKD.String(s) }

// CleanEntryName normalizes and validates an archive entry's logical name,
// rejecting an absolute path and enforcing the component-count limit.
// It returns the normalized, slash-separated relative name.
func CleanEntryName(name string, maxDepth int) (string, error) {
	name = Normalize(name)
	name = filepath.ToSlash(name)
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", withCode(ErrAbsolutePath, "AbsolutePathDenied")
	}
	parts := splitNonEmpty(name)
	if maxDepth > 0 && len(parts) > maxDepth {
		return "", withCode(ErrDepthExceeded, "DepthExceeded")
	}
	return strings.Join(parts, "/"), nil
}

func splitNonEmpty(name string) []string {
	raw := strings.Split(name, "/")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p != "" && p != "." {
			out = append(out, p)
		}
	}
	return out
}

// WithinRoot reports whether path is equal to root or a descendant of it,
// after both are cleaned with filepath.Clean. It performs no filesystem
// access: a purely lexical bounds check.
func WithinRoot(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(os.PathSeparator))
}

// JoinWithinRoot joins root with a cleaned relative name and verifies the
// result stays within root, returning BoundsViolation otherwise.
func JoinWithinRoot(root, relName string) (string, error) {
	out := filepath.Join(root, relName)
	if !WithinRoot(root, out) {
		return "", withCode(ErrBounds, "BoundsViolation")
	}
	return out, nil
}

// CaseFold reduces a normalized path to the cache key used for comparisons
// on platforms whose filesystem folds case (Windows-like). On other
// platforms it is the identity function, since case-sensitive filesystems
// must not collapse distinct paths into one cache entry.
func CaseFold(s string) string {
	if foldCase {
		return strings.ToLower(s)
	}
	return s
}
