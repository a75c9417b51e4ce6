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

// DecodedEntry pairs a decoded Header with its fully-drained body.
type DecodedEntry struct {
	Header *Header
	Data   []byte
}

// ReadAll decodes every entry of r into memory. It is meant for tests and
// small archives; production consumers should use NewReader and Transform
// directly to avoid buffering entire entries.
func ReadAll(r io.Reader, opts ...ReaderOption) ([]DecodedEntry, error) {
	tr := NewReader(r, opts...)
	return readAllFrom(tr)
}

// nextReader is satisfied by both *Reader and *TransformedReader.
type nextReader interface {
	io.Reader
	Next() (*Header, error)
}

func readAllFrom(nr nextReader) ([]DecodedEntry, error) {
	var out []DecodedEntry
	for {
		h, err := nr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		data, err := io.ReadAll(nr)
		if err != nil {
			return out, err
		}
		out = append(out, DecodedEntry{Header: h, Data: data})
	}
}

// ReadAllTransformed decodes every surviving entry of t into memory.
func ReadAllTransformed(t *TransformedReader) ([]DecodedEntry, error) {
	return readAllFrom(t)
}
