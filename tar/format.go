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

// Package tar implements a streaming USTAR/PAX/GNU-extended tar codec.
//
// Bytes flow in fixed 512-byte blocks. A Writer sequences encoded entries
// into a byte stream; a Reader consumes a chunked byte stream and emits a
// lazy sequence of entries, never buffering the whole archive.
//
// Sparse files and multi-volume GNU archives are not supported.
package tar

import "strings"

// Format represents the tar archive format used to encode a Header.
type Format int

const (
	// FormatUnknown indicates that the format could not be determined.
	FormatUnknown Format = 0
	// FormatUSTAR is the POSIX.1-1988 USTAR header format.
	FormatUSTAR Format = 1 << iota
	// FormatPAX is the POSIX.1-2001 PAX extension format.
	FormatPAX
	// FormatGNU is the GNU long-name/long-link extension format.
	FormatGNU
)

func (f Format) has(f2 Format) bool { return f&f2 != 0 }

var formatNames = map[Format]string{
	FormatUSTAR: "USTAR", FormatPAX: "PAX", FormatGNU: "GNU",
}

func (f Format) String() string {
	if f == FormatUnknown {
		return "<unknown>"
	}
	var ss []string
	for _, f2 := range []Format{FormatUSTAR, FormatPAX, FormatGNU} {
		if f.has(f2) {
			ss = append(ss, formatNames[f2])
		}
	}
	return strings.Join(ss, "|")
}

// Magic values used to identify the USTAR family of formats.
const (
	magicUSTAR, versionUSTAR = "ustar\x00", "00"
)

// Size constants from the USTAR specification.
const (
	blockSize  = 512 // size of each block in a tar stream
	nameSize   = 100 // max length of the name field in a USTAR block
	prefixSize = 155 // max length of the prefix field in a USTAR block
)

// blockPadding computes the number of bytes needed to pad offset up to the
// nearest block boundary, where 0 <= n < blockSize.
func blockPadding(offset int64) (n int64) {
	return -offset & (blockSize - 1)
}

var zeroBlock block

// block is the raw, fixed-width on-wire representation of one 512-byte tar
// header. Field offsets match the USTAR standard layout.
type block [blockSize]byte

func (b *block) isZero() bool {
	return *b == zeroBlock
}

// Field accessors, offsets per the USTAR standard block layout.
func (b *block) name() []byte     { return b[0:][:100] }
func (b *block) mode() []byte     { return b[100:][:8] }
func (b *block) uid() []byte      { return b[108:][:8] }
func (b *block) gid() []byte      { return b[116:][:8] }
func (b *block) size() []byte     { return b[124:][:12] }
func (b *block) modTime() []byte  { return b[136:][:12] }
func (b *block) chksum() []byte   { return b[148:][:8] }
func (b *block) typeflag() []byte { return b[156:][:1] }
func (b *block) linkname() []byte { return b[157:][:100] }
func (b *block) magic() []byte    { return b[257:][:6] }
func (b *block) version() []byte  { return b[263:][:2] }
func (b *block) uname() []byte    { return b[265:][:32] }
func (b *block) gname() []byte    { return b[297:][:32] }
func (b *block) prefix() []byte   { return b[345:][:155] }

// computeChecksum sums the unsigned byte values of the block with the
// checksum field itself treated as eight ASCII spaces.
func (b *block) computeChecksum() int64 {
	var sum int64
	for i, c := range b {
		if 148 <= i && i < 156 {
			c = ' '
		}
		sum += int64(c)
	}
	return sum
}

// setChecksum recomputes and writes the checksum field: six octal digits,
// a NUL, and a space, per the historical USTAR quirk.
func (b *block) setChecksum() {
	var f formatter
	field := b.chksum()
	sum := b.computeChecksum()
	f.formatOctal(field[:7], sum) // six digits, formatOctal supplies the NUL at field[6]
	field[7] = ' '
}

// verifyChecksum recomputes the checksum and compares it to the stored
// value, which was computed with the checksum field blanked out the same
// way when it was written.
func (b *block) verifyChecksum() bool {
	var p parser
	stored := p.parseOctal(b.chksum())
	return p.err == nil && stored == b.computeChecksum()
}

// setUSTARMagic writes the USTAR magic/version fields.
func (b *block) setUSTARMagic() {
	copy(b.magic(), magicUSTAR)
	copy(b.version(), versionUSTAR)
}

// typeflagToEntryType maps a raw typeflag byte to an EntryType.
func typeflagToEntryType(tf byte) EntryType {
	switch tf {
	case '0', 0:
		return TypeReg
	case '1':
		return TypeLink
	case '2':
		return TypeSymlink
	case '5':
		return TypeDir
	case 'x':
		return typePAXLocal
	case 'g':
		return typePAXGlobal
	case 'L':
		return typeGNULongName
	case 'K':
		return typeGNULongLink
	default:
		return TypeUnsupported
	}
}

func entryTypeToTypeflag(t EntryType) byte {
	switch t {
	case TypeReg:
		return '0'
	case TypeLink:
		return '1'
	case TypeSymlink:
		return '2'
	case TypeDir:
		return '5'
	case typePAXLocal:
		return 'x'
	case typePAXGlobal:
		return 'g'
	case typeGNULongName:
		return 'L'
	case typeGNULongLink:
		return 'K'
	default:
		return '0'
	}
}

// isMetaTypeflag reports whether tf identifies a meta-entry: one that carries
// extension data for the following regular entry rather than being
// materialized itself.
func isMetaTypeflag(tf byte) bool {
	switch tf {
	case 'x', 'g', 'L', 'K':
		return true
	default:
		return false
	}
}
