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
)

// Writer sequences encoded entries into a tar byte stream. It is not safe
// for concurrent use; exactly one entry may be open at a time.
type Writer struct {
	w   io.Writer
	err error

	// curr tracks the in-progress entry, if any.
	haveCurr  bool
	size      int64 // declared body size of the open entry
	remaining int64 // bytes still expected for the open entry's body
}

// NewWriter returns a Writer that writes a tar archive to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader begins a new entry, writing its header block(s) immediately
// and returning once the caller may start writing the body via Write. It
// is an error to call WriteHeader before the previous entry has been
// closed with CloseEntry (ErrOverlappingEntry).
func (tw *Writer) WriteHeader(h *Header) error {
	if tw.err != nil {
		return tw.err
	}
	if tw.haveCurr {
		return tw.fail(code(ErrOverlappingEntry, "OverlappingEntry"))
	}
	hdr := *h
	if hdr.Type == TypeDir && !hasTrailingSlash(hdr.Name) {
		hdr.Name += "/"
	}
	if hdr.Type == TypeDir || hdr.Type == TypeSymlink || hdr.Type == TypeLink {
		hdr.Size = 0
	}

	blocks, err := encodeHeaderBlocks(&hdr)
	if err != nil {
		return tw.fail(err)
	}
	if _, err := tw.w.Write(blocks); err != nil {
		return tw.fail(err)
	}

	tw.haveCurr = true
	tw.size = hdr.Size
	tw.remaining = hdr.Size
	return nil
}

func hasTrailingSlash(s string) bool {
	return len(s) > 0 && s[len(s)-1] == '/'
}

// Write writes to the body of the entry most recently begun with
// WriteHeader. Writing more bytes than the header's declared Size fails
// with ErrWriteTooLong.
func (tw *Writer) Write(p []byte) (int, error) {
	if tw.err != nil {
		return 0, tw.err
	}
	if !tw.haveCurr {
		return 0, tw.fail(ErrWriteAfterClose)
	}
	if int64(len(p)) > tw.remaining {
		tw.haveCurr = false // the entry is poisoned; caller must abandon the Writer
		return 0, tw.fail(code(ErrWriteTooLong, "SizeOverflow"))
	}
	n, err := tw.w.Write(p)
	tw.remaining -= int64(n)
	if err != nil {
		return n, tw.fail(err)
	}
	return n, nil
}

// CloseEntry pads the current entry's body to the next 512-byte boundary
// and makes the Writer ready to accept the next WriteHeader call. Closing
// with fewer bytes than declared fails with ErrSizeUnderflow.
func (tw *Writer) CloseEntry() error {
	if tw.err != nil {
		return tw.err
	}
	if !tw.haveCurr {
		return nil
	}
	if tw.remaining != 0 {
		tw.haveCurr = false
		return tw.fail(code(ErrSizeUnderflow, "SizeUnderflow"))
	}
	if pad := blockPadding(tw.size); pad > 0 {
		if _, err := tw.w.Write(make([]byte, pad)); err != nil {
			return tw.fail(err)
		}
	}
	tw.haveCurr = false
	return nil
}

// Close finalizes the archive: it writes the two-block end-of-archive
// marker and returns an error if an entry is still open or under-written.
func (tw *Writer) Close() error {
	if tw.err != nil {
		return tw.err
	}
	if tw.haveCurr {
		return tw.fail(code(ErrSizeUnderflow, "SizeUnderflow"))
	}
	if _, err := tw.w.Write(zeroBlock[:]); err != nil {
		return tw.fail(err)
	}
	if _, err := tw.w.Write(zeroBlock[:]); err != nil {
		return tw.fail(err)
	}
	tw.err = ErrWriteAfterClose
	return nil
}

func (tw *Writer) fail(err error) error {
	tw.err = err
	return err
}
