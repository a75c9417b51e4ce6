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
	"bufio"
	"io"
	"strings"
	"time"
)

// readerState names the states of the decoder's state machine. It exists
// purely for documentation and diagnostics; the control flow below is
// implemented as an ordinary pull-based loop rather than an explicit state
// variable, since Go's io.Reader model already suspends (blocks) exactly at
// the points the state machine names.
type readerState int

const (
	stateExpectHeader readerState = iota
	stateReadBody
	stateReadPadding
	stateEndOfArchive
)

// Reader consumes a tar byte stream and exposes a sequence of entries.
// Next advances to the next regular entry, resolving USTAR prefixes and
// any PAX/GNU extension
// headers that precede it; Read streams that entry's body. Exactly one
// body is live at a time — it must be fully drained or discarded (by
// calling Next again) before the next entry appears. Reader is not safe
// for concurrent use.
type Reader struct {
	br     *bufio.Reader
	strict bool

	state readerState
	err   error

	remaining int64 // unread body bytes of the current entry
	pad       int64 // unread padding bytes after the current entry's body

	globalOverrides  map[string]string
	pendingOverrides map[string]string
	pendingName      string
	pendingLinkname  string
}

// ReaderOption configures a Reader constructed by NewReader.
type ReaderOption func(*Reader)

// Strict puts the Reader in strict mode: checksum mismatches, malformed
// zero blocks, and truncation all become errors instead of being
// tolerated. Default is lenient.
func Strict() ReaderOption { return func(r *Reader) { r.strict = true } }

// NewReader returns a Reader that reads a tar archive from r.
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	tr := &Reader{br: bufio.NewReaderSize(r, 4*blockSize), state: stateExpectHeader}
	for _, o := range opts {
		o(tr)
	}
	return tr
}

// Next advances to the next entry in the archive. Any unread body bytes
// and padding from the previous entry are discarded automatically.
// io.EOF is returned once the end-of-archive marker is reached.
func (tr *Reader) Next() (*Header, error) {
	if tr.err != nil {
		return nil, tr.err
	}
	if err := tr.skipUnread(); err != nil {
		return nil, tr.fail(err)
	}

	for {
		var blk block
		n, err := io.ReadFull(tr.br, blk[:])
		if n < blockSize {
			if tr.strict && n > 0 {
				return nil, tr.fail(code(ErrTruncated, "Truncated"))
			}
			tr.state = stateEndOfArchive
			return nil, tr.fail(io.EOF)
		}
		if err != nil {
			return nil, tr.fail(err)
		}

		if blk.isZero() {
			peek, perr := tr.br.Peek(blockSize)
			if perr == nil && allZero(peek) {
				tr.state = stateEndOfArchive
				return nil, tr.fail(io.EOF)
			}
			if tr.strict {
				return nil, tr.fail(code(ErrInvalidZeroBlock, "InvalidZeroBlock"))
			}
			if perr != nil {
				// lenient: a single trailing zero block ends the archive
				tr.state = stateEndOfArchive
				return nil, tr.fail(io.EOF)
			}
			continue // lenient: skip the stray zero block
		}

		if !blk.verifyChecksum() && tr.strict {
			return nil, tr.fail(code(ErrBadChecksum, "BadChecksum"))
		}

		raw, err := tr.parseRawHeader(&blk)
		if err != nil {
			if tr.strict {
				return nil, tr.fail(err)
			}
			continue
		}

		if isMetaTypeflag(raw.typeflag) {
			if err := tr.consumeMeta(raw); err != nil {
				return nil, tr.fail(err)
			}
			continue
		}

		hdr, err := tr.buildHeader(raw)
		if err != nil {
			return nil, tr.fail(err)
		}

		tr.remaining = hdr.Size
		tr.pad = blockPadding(hdr.Size)
		if hdr.Size == 0 {
			tr.state = stateReadPadding
		} else {
			tr.state = stateReadBody
		}
		return hdr, nil
	}
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// rawHeader is the USTAR block decoded into Go values, before PAX/GNU
// overrides and prefix-joining are applied.
type rawHeader struct {
	name, linkname       string
	size, mode           int64
	uid, gid             int64
	modTime              int64
	uname, gname, prefix string
	typeflag             byte
	magicUSTAR           bool
}

func (tr *Reader) parseRawHeader(blk *block) (*rawHeader, error) {
	var p parser
	raw := &rawHeader{
		name:     p.parseString(blk.name()),
		linkname: p.parseString(blk.linkname()),
		size:     p.parseNumeric(blk.size()),
		mode:     p.parseNumeric(blk.mode()),
		uid:      p.parseNumeric(blk.uid()),
		gid:      p.parseNumeric(blk.gid()),
		modTime:  p.parseNumeric(blk.modTime()),
		typeflag: blk.typeflag()[0],
	}
	if string(blk.magic()) == magicUSTAR {
		raw.magicUSTAR = true
		raw.uname = p.parseString(blk.uname())
		raw.gname = p.parseString(blk.gname())
		raw.prefix = p.parseString(blk.prefix())
	}
	if p.err != nil {
		return nil, ErrHeader
	}
	return raw, nil
}

// consumeMeta reads a meta-entry's payload and merges it into whichever
// pending state it affects.
func (tr *Reader) consumeMeta(raw *rawHeader) error {
	switch raw.typeflag {
	case 'g':
		records, err := tr.readPayloadRecords(raw.size)
		if err != nil {
			return err
		}
		if tr.globalOverrides == nil {
			tr.globalOverrides = make(map[string]string)
		}
		for k, v := range records {
			tr.globalOverrides[k] = v
		}
	case 'x':
		records, err := tr.readPayloadRecords(raw.size)
		if err != nil {
			return err
		}
		if tr.pendingOverrides == nil {
			tr.pendingOverrides = make(map[string]string)
		}
		for k, v := range records {
			tr.pendingOverrides[k] = v
		}
	case 'L':
		payload, err := tr.readPayload(raw.size)
		if err != nil {
			return err
		}
		tr.pendingName = trimNUL(payload)
	case 'K':
		payload, err := tr.readPayload(raw.size)
		if err != nil {
			return err
		}
		tr.pendingLinkname = trimNUL(payload)
	}
	return nil
}

func trimNUL(b []byte) string {
	if i := indexNUL(b); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// maxMetaPayloadSize bounds how much a single PAX ('g'/'x') or GNU
// long-name/long-link ('L'/'K') meta-entry payload may claim to be. These
// payloads are always fully buffered before use, so an attacker-controlled
// size field must not reach make() unchecked: a negative base-256-encoded
// size panics on make, and an unbounded positive one OOMs the process.
// 1MiB comfortably exceeds any real PAX record set or long name.
const maxMetaPayloadSize = 1 << 20

func (tr *Reader) readPayload(size int64) ([]byte, error) {
	if size < 0 || size > maxMetaPayloadSize {
		return nil, ErrHeader
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(tr.br, buf); err != nil {
		return nil, tr.truncationError(err)
	}
	if pad := blockPadding(size); pad > 0 {
		if _, err := io.CopyN(io.Discard, tr.br, pad); err != nil {
			return nil, tr.truncationError(err)
		}
	}
	return buf, nil
}

func (tr *Reader) readPayloadRecords(size int64) (map[string]string, error) {
	buf, err := tr.readPayload(size)
	if err != nil {
		return nil, err
	}
	records, err := decodePAXRecords(buf)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (tr *Reader) truncationError(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return code(ErrTruncated, "Truncated")
	}
	return err
}

// buildHeader composes the effective Header for a regular entry: USTAR
// prefix join, then global overrides, then pending local overrides.
// Local overrides always win over global ones when both set a field.
func (tr *Reader) buildHeader(raw *rawHeader) (*Header, error) {
	name := raw.name
	hasNameOverride := tr.globalOverrides[paxPath] != "" || tr.pendingOverrides[paxPath] != "" || tr.pendingName != ""
	if raw.magicUSTAR && raw.prefix != "" && !hasNameOverride {
		name = raw.prefix + "/" + name
	}

	typ := typeflagToEntryType(raw.typeflag)
	if raw.typeflag == 0 {
		if strings.HasSuffix(name, "/") {
			typ = TypeDir
		} else {
			typ = TypeReg
		}
	}

	h := &Header{
		Name:     name,
		Linkname: raw.linkname,
		Size:     raw.size,
		Mode:     raw.mode,
		ModTime:  time.Unix(raw.modTime, 0),
		Type:     typ,
		Uid:      int(raw.uid),
		Gid:      int(raw.gid),
		Uname:    raw.uname,
		Gname:    raw.gname,
		Format:   FormatUSTAR,
	}

	if err := applyPAXOverrides(h, tr.globalOverrides); err != nil {
		return nil, err
	}
	if len(tr.pendingOverrides) > 0 {
		if err := applyPAXOverrides(h, tr.pendingOverrides); err != nil {
			return nil, err
		}
		h.Format = FormatPAX
	}
	if tr.pendingName != "" {
		h.Name = tr.pendingName
		h.Format = FormatGNU
	}
	if tr.pendingLinkname != "" {
		h.Linkname = tr.pendingLinkname
		h.Format = FormatGNU
	}
	tr.pendingOverrides = nil
	tr.pendingName = ""
	tr.pendingLinkname = ""

	if typ == TypeDir || typ == TypeSymlink || typ == TypeLink {
		h.Size = 0
	}
	if typ == TypeDir && !hasTrailingSlash(h.Name) {
		h.Name += "/"
	}
	return h, nil
}

// Read reads from the body of the entry most recently returned by Next.
// It returns (0, io.EOF) once Size bytes have been read.
func (tr *Reader) Read(p []byte) (int, error) {
	if tr.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > tr.remaining {
		p = p[:tr.remaining]
	}
	n, err := tr.br.Read(p)
	tr.remaining -= int64(n)
	if tr.remaining == 0 {
		tr.state = stateReadPadding
	}
	if err == io.EOF && tr.remaining > 0 {
		if tr.strict {
			return n, code(ErrTruncated, "Truncated")
		}
		tr.remaining = 0
		tr.pad = 0
		return n, io.EOF
	}
	return n, err
}

// skipUnread discards any unread body bytes and padding left over from
// the previous entry, so Next can be called without draining the body.
func (tr *Reader) skipUnread() error {
	if tr.remaining > 0 {
		if _, err := io.CopyN(io.Discard, tr.br, tr.remaining); err != nil {
			tr.remaining, tr.pad = 0, 0
			if tr.strict {
				return code(ErrTruncated, "Truncated")
			}
			return nil
		}
		tr.remaining = 0
	}
	if tr.pad > 0 {
		if _, err := io.CopyN(io.Discard, tr.br, tr.pad); err != nil {
			tr.pad = 0
			if tr.strict {
				return code(ErrTruncated, "Truncated")
			}
			return nil
		}
		tr.pad = 0
	}
	return nil
}

func (tr *Reader) fail(err error) error {
	if err != io.EOF {
		tr.err = err
	} else {
		tr.err = io.EOF
	}
	return err
}
