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

package tar

import (
	"io"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// TransformOption configures a TransformedReader built by Transform.
// Options are always applied strip → filter → map, regardless of the
// order they are passed in.
type TransformOption func(*transformConfig)

type transformConfig struct {
	strip  int
	filter func(*Header) bool
	mapFn  func(*Header) *Header
}

// StripComponents discards the leading n path components of every entry's
// Name (and, for links, of Linkname when it is absolute). An entry whose
// Name becomes empty after stripping is dropped and its body discarded.
// A negative n fails Transform's first Next call with ErrInvalidStrip.
func StripComponents(n int) TransformOption {
	return func(c *transformConfig) { c.strip = n }
}

// FilterGlob keeps only entries whose Name matches the doublestar glob
// pattern (supporting "**"), dropping (and draining) everything else.
func FilterGlob(pattern string) TransformOption {
	return func(c *transformConfig) {
		c.filter = func(h *Header) bool {
			ok, _ := doublestar.Match(pattern, strings.TrimSuffix(h.Name, "/"))
			return ok
		}
	}
}

// Filter keeps only entries for which keep returns true.
func Filter(keep func(*Header) bool) TransformOption {
	return func(c *transformConfig) { c.filter = keep }
}

// MapHeader rewrites each surviving entry's Header with fn before it is
// returned from Next. fn may return a different *Header or mutate and
// return h.
func MapHeader(fn func(h *Header) *Header) TransformOption {
	return func(c *transformConfig) { c.mapFn = fn }
}

// TransformedReader applies strip/filter/map to the entries of an
// underlying Reader.
type TransformedReader struct {
	r   *Reader
	cfg transformConfig
	err error
}

// Transform wraps r with the given options, applied strip → filter → map.
func Transform(r *Reader, opts ...TransformOption) *TransformedReader {
	tr := &TransformedReader{r: r}
	for _, o := range opts {
		o(&tr.cfg)
	}
	return tr
}

// Next returns the next surviving entry, draining and skipping any
// entries dropped by stripping to empty or failing the filter.
func (t *TransformedReader) Next() (*Header, error) {
	if t.err != nil {
		return nil, t.err
	}
	if t.cfg.strip < 0 {
		t.err = code(ErrInvalidStrip, "InvalidStrip")
		return nil, t.err
	}
	for {
		h, err := t.r.Next()
		if err != nil {
			t.err = err
			return nil, err
		}

		stripped, ok := stripName(h.Name, t.cfg.strip)
		if !ok {
			continue // dropped by stripping; Next() already discards its body
		}
		h2 := *h
		h2.Name = stripped
		if h2.Type == TypeDir && !hasTrailingSlash(h2.Name) {
			h2.Name += "/"
		}
		if (h2.Type == TypeSymlink || h2.Type == TypeLink) && strings.HasPrefix(h.Linkname, "/") {
			if s, ok := stripName(h.Linkname, t.cfg.strip); ok {
				h2.Linkname = "/" + s
			} else {
				h2.Linkname = "/"
			}
		}

		if t.cfg.filter != nil && !t.cfg.filter(&h2) {
			continue
		}
		if t.cfg.mapFn != nil {
			mapped := t.cfg.mapFn(&h2)
			return mapped, nil
		}
		return &h2, nil
	}
}

// Read streams the current entry's body, delegating to the underlying
// Reader.
func (t *TransformedReader) Read(p []byte) (int, error) { return t.r.Read(p) }

// stripName splits name on '/', discards empty components, and drops the
// first n remaining components.
// ok is false when the result is empty (the entry should be dropped).
func stripName(name string, n int) (result string, ok bool) {
	trailingSlash := strings.HasSuffix(name, "/")
	parts := strings.Split(name, "/")
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	if n >= len(kept) {
		return "", false
	}
	kept = kept[n:]
	if len(kept) == 0 {
		return "", false
	}
	out := strings.Join(kept, "/")
	if trailingSlash {
		out += "/"
	}
	return out, true
}

var _ io.Reader = (*TransformedReader)(nil)
