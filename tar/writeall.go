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

import "io"

// Entry pairs a Header with its body, for use with WriteAll.
type Entry struct {
	Header *Header
	Body   []byte
}

// WriteAll encodes a finite, ordered sequence of entries into w.
func WriteAll(w io.Writer, entries []Entry) error {
	tw := NewWriter(w)
	for _, e := range entries {
		if err := tw.WriteHeader(e.Header); err != nil {
			return err
		}
		if len(e.Body) > 0 {
			if _, err := tw.Write(e.Body); err != nil {
				return err
			}
		}
		if err := tw.CloseEntry(); err != nil {
			return err
		}
	}
	return tw.Close()
}
