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
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func mustWriteAll(t *testing.T, entries []Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteAll(&buf, entries); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	return buf.Bytes()
}

var ignoreVolatile = cmpopts.IgnoreFields(Header{}, "ModTime", "Format", "PAXRecords")

// Scenario 1: single-file round trip.
func TestSingleFileRoundTrip(t *testing.T) {
	h := &Header{
		Name: "hello.txt", Size: 12, Mode: 0o644,
		Uid: 501, Gid: 20, Uname: "maf", Gname: "staff",
		ModTime: time.Unix(1387580181, 0),
	}
	raw := mustWriteAll(t, []Entry{{Header: h, Body: []byte("hello world\n")}})

	got, err := ReadAll(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}
	if diff := cmp.Diff(h, got[0].Header, ignoreVolatile); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	if string(got[0].Data) != "hello world\n" {
		t.Errorf("body = %q", got[0].Data)
	}
	if got[0].Header.ModTime.Unix() != 1387580181 {
		t.Errorf("ModTime = %v", got[0].Header.ModTime)
	}
}

// Scenario 2: multi-file archive preserves order and sizes.
func TestMultiFile(t *testing.T) {
	raw := mustWriteAll(t, []Entry{
		{Header: &Header{Name: "file-1.txt", Size: 12}, Body: []byte("i am file-1\n")},
		{Header: &Header{Name: "file-2.txt", Size: 12}, Body: []byte("i am file-2\n")},
	})
	got, err := ReadAll(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].Header.Name != "file-1.txt" || got[1].Header.Name != "file-2.txt" {
		t.Errorf("unexpected order: %q, %q", got[0].Header.Name, got[1].Header.Name)
	}
	for i, e := range got {
		if len(e.Data) != 12 {
			t.Errorf("entry %d: len(Data) = %d, want 12", i, len(e.Data))
		}
	}
}

// Scenario 3: a name splittable via the USTAR prefix round-trips without PAX.
func TestUSTARPrefixSplit(t *testing.T) {
	prefix := strings.Repeat("a", 150)
	suffix := strings.Repeat("b", 50)
	name := prefix + "/" + suffix

	var buf bytes.Buffer
	tw := NewWriter(&buf)
	if err := tw.WriteHeader(&Header{Name: name}); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if err := tw.CloseEntry(); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	var blk block
	copy(blk[:], buf.Bytes()[:blockSize])
	var p parser
	gotName := p.parseString(blk.name())
	gotPrefix := p.parseString(blk.prefix())
	if gotName != suffix {
		t.Errorf("block name = %q, want %q", gotName, suffix)
	}
	if gotPrefix != prefix {
		t.Errorf("block prefix = %q, want %q", gotPrefix, prefix)
	}
	if blk.typeflag()[0] == 'x' {
		t.Error("expected a direct split with no PAX preamble, got one")
	}

	got, err := ReadAll(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if got[0].Header.Name != name {
		t.Errorf("decoded name = %q, want %q", got[0].Header.Name, name)
	}
}

// Scenario 4: a name too long to split emits a PAX local header.
func TestPAXLongPath(t *testing.T) {
	name := strings.Repeat("n", 200) // no '/' anywhere, so no prefix/name split exists
	raw := mustWriteAll(t, []Entry{{Header: &Header{Name: name}}})
	var blk block
	copy(blk[:], raw[:blockSize])
	if blk.typeflag()[0] != 'x' {
		t.Errorf("first block typeflag = %q, want 'x'", blk.typeflag()[0])
	}

	got, err := ReadAll(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if got[0].Header.Name != name {
		t.Errorf("decoded name = %q, want %q", got[0].Header.Name, name)
	}
	if got[0].Header.PAXRecords[paxPath] != name {
		t.Errorf("pax.path = %q, want %q", got[0].Header.PAXRecords[paxPath], name)
	}
}

func TestDirectoryEntryGetsTrailingSlash(t *testing.T) {
	raw := mustWriteAll(t, []Entry{{Header: &Header{Name: "a/b", Type: TypeDir}}})
	got, err := ReadAll(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Header.Name != "a/b/" {
		t.Errorf("Name = %q, want trailing slash", got[0].Header.Name)
	}
	if got[0].Header.Size != 0 {
		t.Errorf("Size = %d, want 0", got[0].Header.Size)
	}
}

func TestSymlinkRoundTrip(t *testing.T) {
	raw := mustWriteAll(t, []Entry{
		{Header: &Header{Name: "link", Type: TypeSymlink, Linkname: "target"}},
	})
	got, err := ReadAll(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Header.Linkname != "target" {
		t.Errorf("Linkname = %q", got[0].Header.Linkname)
	}
	if got[0].Header.Size != 0 {
		t.Errorf("Size = %d, want 0", got[0].Header.Size)
	}
}

func TestGlobalAndLocalPAXOverrideOrdering(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf)

	globalPayload := encodePAXRecords(map[string]string{paxUname: "global-user"})
	writeRawMeta(t, tw, 'g', "globalhdr", globalPayload)

	localPayload := encodePAXRecords(map[string]string{paxUname: "local-user", paxGname: "local-group"})
	writeRawMeta(t, tw, 'x', "PaxHeader/entry", localPayload)

	if err := tw.WriteHeader(&Header{Name: "entry", Size: 3}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	if err := tw.CloseEntry(); err != nil {
		t.Fatal(err)
	}

	if err := tw.WriteHeader(&Header{Name: "entry2", Size: 0, Uname: "literal"}); err != nil {
		t.Fatal(err)
	}
	if err := tw.CloseEntry(); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := ReadAll(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].Header.Uname != "local-user" || got[0].Header.Gname != "local-group" {
		t.Errorf("entry1 overrides = %+v, want local-user/local-group", got[0].Header)
	}
	// Local overrides must not leak to the next entry; global ones persist.
	if got[1].Header.Uname != "global-user" {
		t.Errorf("entry2.Uname = %q, want global override global-user", got[1].Header.Uname)
	}
	if got[1].Header.Gname != "" {
		t.Errorf("entry2.Gname = %q, want empty (local override must not leak)", got[1].Header.Gname)
	}
}

// writeRawMeta hand-writes a meta-entry block + payload, bypassing the
// Writer's own encoder (which never emits 'g'/'x' on its own), to exercise
// the decoder's meta-entry handling in isolation.
func writeRawMeta(t *testing.T, tw *Writer, typ byte, name string, payload []byte) {
	t.Helper()
	var b block
	var f formatter
	f.formatString(b.name(), name)
	f.formatNumeric(b.size(), int64(len(payload)))
	b.typeflag()[0] = typ
	b.setUSTARMagic()
	b.setChecksum()
	if f.err != nil {
		t.Fatalf("formatter: %v", f.err)
	}
	if _, err := tw.w.Write(b[:]); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.w.Write(payload); err != nil {
		t.Fatal(err)
	}
	if pad := blockPadding(int64(len(payload))); pad > 0 {
		if _, err := tw.w.Write(make([]byte, pad)); err != nil {
			t.Fatal(err)
		}
	}
}

// TestPAXRecordLengthPrefixBoundary exercises inner lengths that cross a
// power-of-ten digit boundary, where a naive length-prefix computation
// double-counts digits and emits a declared length longer than the actual
// record.
func TestPAXRecordLengthPrefixBoundary(t *testing.T) {
	for _, inner := range []int{9, 98, 99, 997, 998, 999} {
		key := "k"
		// padding = len(" =\n") = 3, so value length = inner - len(key) - 3.
		value := strings.Repeat("v", inner-len(key)-3)
		record := formatPAXRecord(key, value)
		sp := strings.IndexByte(record, ' ')
		declared, err := strconv.Atoi(record[:sp])
		if err != nil {
			t.Fatalf("inner=%d: bad length prefix %q", inner, record[:sp])
		}
		if declared != len(record) {
			t.Errorf("inner=%d: declared length %d, actual record length %d (%q)", inner, declared, len(record), record)
		}
		if _, _, _, err := parsePAXRecord(record); err != nil {
			t.Errorf("inner=%d: parsePAXRecord(%q): %v", inner, record, err)
		}
	}
}

// TestPAXRecordsRoundTripAtBoundary checks the reported failure directly:
// an entry whose PAXRecords key+value length triggers the boundary bug
// must still decode after being encoded.
func TestPAXRecordsRoundTripAtBoundary(t *testing.T) {
	raw := mustWriteAll(t, []Entry{
		{Header: &Header{Name: "entry", PAXRecords: map[string]string{"foo": "bar"}}},
	})
	got, err := ReadAll(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}
	if got[0].Header.PAXRecords["foo"] != "bar" {
		t.Errorf("PAXRecords[foo] = %q, want %q", got[0].Header.PAXRecords["foo"], "bar")
	}
}

// TestMetaEntrySizeBoundsChecked ensures a PAX/GNU meta-entry with a
// negative declared payload size (reachable through a base-256 field with
// its sign bit set) or an oversized one fails cleanly with ErrHeader
// instead of panicking on make or buffering an unbounded allocation.
func TestMetaEntrySizeBoundsChecked(t *testing.T) {
	sizes := []int64{-1, maxMetaPayloadSize + 1}
	for _, size := range sizes {
		var buf bytes.Buffer
		var b block
		var f formatter
		f.formatString(b.name(), "PaxHeader/entry")
		f.formatNumeric(b.size(), size)
		b.typeflag()[0] = 'x'
		b.setUSTARMagic()
		b.setChecksum()
		if f.err != nil {
			t.Fatalf("formatter: %v", f.err)
		}
		buf.Write(b[:])
		buf.Write(make([]byte, 2*blockSize)) // end-of-archive marker

		if _, err := ReadAll(&buf); !errors.Is(err, ErrHeader) {
			t.Errorf("size=%d: err = %v, want ErrHeader", size, err)
		}
	}
}

func TestChecksumMismatchStrict(t *testing.T) {
	raw := mustWriteAll(t, []Entry{{Header: &Header{Name: "a", Size: 1}, Body: []byte("x")}})
	raw[0] ^= 0xFF // corrupt the first byte of the name field, invalidating the checksum

	tr := NewReader(bytes.NewReader(raw), Strict())
	_, err := tr.Next()
	if !errors.Is(err, ErrBadChecksum) {
		t.Fatalf("err = %v, want ErrBadChecksum", err)
	}
}

func TestLenientAcceptsSingleTrailingZeroBlock(t *testing.T) {
	raw := mustWriteAll(t, []Entry{{Header: &Header{Name: "a"}}})
	raw = raw[:len(raw)-blockSize] // drop the second end-of-archive block

	tr := NewReader(bytes.NewReader(raw))
	if _, err := tr.Next(); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Next(); err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestWriterRejectsOverlongWrite(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf)
	if err := tw.WriteHeader(&Header{Name: "a", Size: 2}); err != nil {
		t.Fatal(err)
	}
	_, err := tw.Write([]byte("abc"))
	if !errors.Is(err, ErrWriteTooLong) {
		t.Fatalf("err = %v, want ErrWriteTooLong", err)
	}
}

func TestWriterRejectsShortClose(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf)
	if err := tw.WriteHeader(&Header{Name: "a", Size: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := tw.CloseEntry(); !errors.Is(err, ErrSizeUnderflow) {
		t.Fatalf("err = %v, want ErrSizeUnderflow", err)
	}
}

func TestWriterRejectsOverlappingEntry(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf)
	if err := tw.WriteHeader(&Header{Name: "a", Size: 0}); err != nil {
		t.Fatal(err)
	}
	err := tw.WriteHeader(&Header{Name: "b", Size: 0})
	if !errors.Is(err, ErrOverlappingEntry) {
		t.Fatalf("err = %v, want ErrOverlappingEntry", err)
	}
}

func TestStripZeroIsIdentity(t *testing.T) {
	raw := mustWriteAll(t, []Entry{{Header: &Header{Name: "a/b/c.txt"}}})
	got, err := ReadAllTransformed(Transform(NewReader(bytes.NewReader(raw)), StripComponents(0)))
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Header.Name != "a/b/c.txt" {
		t.Errorf("Name = %q", got[0].Header.Name)
	}
}

func TestStripComponents(t *testing.T) {
	raw := mustWriteAll(t, []Entry{{Header: &Header{Name: "a/b/c.txt"}}})
	got, err := ReadAllTransformed(Transform(NewReader(bytes.NewReader(raw)), StripComponents(2)))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Header.Name != "c.txt" {
		t.Fatalf("got %+v", got)
	}
}

func TestStripBeyondDepthDropsEntry(t *testing.T) {
	raw := mustWriteAll(t, []Entry{{Header: &Header{Name: "a/b.txt"}}})
	got, err := ReadAllTransformed(Transform(NewReader(bytes.NewReader(raw)), StripComponents(5)))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d entries, want 0", len(got))
	}
}

func TestFilterGlob(t *testing.T) {
	raw := mustWriteAll(t, []Entry{
		{Header: &Header{Name: "src/main.go"}},
		{Header: &Header{Name: "README.md"}},
	})
	got, err := ReadAllTransformed(Transform(NewReader(bytes.NewReader(raw)), FilterGlob("**/*.go")))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Header.Name != "src/main.go" {
		t.Fatalf("got %+v", got)
	}
}

func TestMapIdentity(t *testing.T) {
	raw := mustWriteAll(t, []Entry{{Header: &Header{Name: "a.txt"}}})
	got, err := ReadAllTransformed(Transform(NewReader(bytes.NewReader(raw)), MapHeader(func(h *Header) *Header { return h })))
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Header.Name != "a.txt" {
		t.Errorf("Name = %q", got[0].Header.Name)
	}
}

func TestNegativeStripFails(t *testing.T) {
	raw := mustWriteAll(t, []Entry{{Header: &Header{Name: "a.txt"}}})
	_, err := ReadAllTransformed(Transform(NewReader(bytes.NewReader(raw)), StripComponents(-1)))
	if !errors.Is(err, ErrInvalidStrip) {
		t.Fatalf("err = %v, want ErrInvalidStrip", err)
	}
}

func TestPAXTimeRoundTrip(t *testing.T) {
	mt := time.Unix(1700000000, 123456789)
	raw := mustWriteAll(t, []Entry{{Header: &Header{Name: "a", ModTime: mt}}})
	got, err := ReadAll(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Header.ModTime.UnixNano() != mt.UnixNano() {
		t.Errorf("ModTime = %v, want %v", got[0].Header.ModTime, mt)
	}
}
