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

package extractor

import "errors"

// Sentinel errors specific to materializing entries on disk. Path
// validation errors (AbsolutePathDenied, BoundsViolation,
// InvalidDirectoryComponent, DepthExceeded) are declared in pathsec and
// returned wrapped with the entry name, inspectable with errors.Is against
// pathsec's sentinels.
var (
	// ErrUnsupportedType is not returned by Extract itself (device, fifo,
	// and other non-regular types are skipped with a warning log, not an
	// error); it is exported for callers building their own stricter
	// entry-type checks on top of Source.
	ErrUnsupportedType = errors.New("extractor: unsupported entry type")
)

type codedError struct {
	code string
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }
func (e *codedError) Code() string  { return e.code }

func withCode(err error, code string) error { return &codedError{code: code, err: err} }
