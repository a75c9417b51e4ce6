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
	"strings"
	"time"
)

// isASCII reports whether s contains only 7-bit ASCII bytes, a precondition
// for splitting a long name into USTAR's prefix/name pair.
func isASCII(s string) bool {
	for _, c := range []byte(s) {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

// splitUSTARPath finds the rightmost '/' such that the prefix fits in 155
// bytes and the suffix fits in 100.
func splitUSTARPath(name string) (prefix, suffix string, ok bool) {
	if len(name) <= nameSize || !isASCII(name) {
		return "", "", false
	}
	length := len(name)
	if length > prefixSize+1 {
		length = prefixSize + 1
	}
	i := strings.LastIndexByte(name[:length], '/')
	if i <= 0 {
		return "", "", false
	}
	nlen, plen := len(name)-i-1, i
	if nlen > nameSize || nlen == 0 || plen > prefixSize {
		return "", "", false
	}
	return name[:i], name[i+1:], true
}

func isUSTARSplittable(name string) bool {
	_, _, ok := splitUSTARPath(name)
	return ok
}

// encodeHeaderBlocks renders h as the sequence of 512-byte blocks that
// precede its body: an optional PAX-local preamble, followed by the main
// USTAR block. It never emits GNU long-name/long-link preambles on write;
// PAX is this codec's only long-name extension mechanism on encode (GNU
// long-name/long-link are supported for decoding archives produced by
// other tools).
func encodeHeaderBlocks(h *Header) ([]byte, error) {
	var out []byte

	name := h.Name
	linkname := h.Linkname
	mode := h.Mode
	if mode == 0 {
		mode = h.defaultMode()
	}
	modTime := h.ModTime
	if modTime.IsZero() {
		modTime = time.Now()
	}

	pax := paxOverridesFromHeader(h)
	if len(pax) > 0 {
		paxName := "PaxHeader/" + truncate(baseName(name), nameSize)
		payload := encodePAXRecords(pax)
		blk, err := encodeMainBlock(&Header{
			Name: paxName,
			Size: int64(len(payload)),
			Mode: 0o644,
			Type: typePAXLocal,
		}, "", 0o644, time.Now())
		if err != nil {
			return nil, err
		}
		out = append(out, blk[:]...)
		out = append(out, payload...)
		out = append(out, make([]byte, blockPadding(int64(len(payload))))...)
	}

	blk, err := encodeMainBlock(h, linkname, mode, modTime)
	if err != nil {
		return nil, err
	}
	out = append(out, blk[:]...)
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func baseName(name string) string {
	name = strings.TrimSuffix(name, "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// encodeMainBlock writes the single USTAR block for h, applying the
// prefix/name-splitting algorithm and truncating fields that a PAX record
// already carries in full.
func encodeMainBlock(h *Header, linkname string, mode int64, modTime time.Time) (block, error) {
	var b block
	var f formatter

	name := h.Name
	var prefix string
	if len(name) > nameSize {
		if p, s, ok := splitUSTARPath(name); ok {
			prefix, name = p, s
		} else {
			// Not splittable: a PAX path record already carries the full
			// name; truncate the USTAR field to a recognizable prefix for
			// tools that don't understand PAX.
			name = truncate(name, nameSize)
		}
	}

	f.formatString(b.name(), name)
	f.formatString(b.prefix(), prefix)
	f.formatString(b.linkname(), truncate(linkname, nameSize))
	f.formatNumeric(b.mode(), mode)
	f.formatNumeric(b.uid(), int64(h.Uid))
	f.formatNumeric(b.gid(), int64(h.Gid))
	f.formatNumeric(b.size(), sizeForTypeflag(h))
	f.formatNumeric(b.modTime(), modTime.Unix())
	f.formatString(b.uname(), truncate(h.Uname, 32))
	f.formatString(b.gname(), truncate(h.Gname, 32))
	b.typeflag()[0] = entryTypeToTypeflag(h.Type)
	b.setUSTARMagic()
	b.setChecksum()

	if f.err != nil {
		return block{}, f.err
	}
	return b, nil
}

// sizeForTypeflag returns 0 for entry types that never carry a body,
// regardless of what the caller populated Size with.
func sizeForTypeflag(h *Header) int64 {
	switch h.Type {
	case TypeDir, TypeSymlink, TypeLink:
		return 0
	default:
		return h.Size
	}
}
