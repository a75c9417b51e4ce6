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

package pathsec

import (
	"regexp"
	"strings"
)

var shortFilenamePattern = regexp.MustCompile(`~\d+\.?`)

// HasReservedComponent reports whether any component of name, once split
// on '/', is a Windows reserved device name or looks like a Windows short
// filename. On non-Windows builds it always returns false: those names
// are ordinary files elsewhere and rejecting them would only surprise
// callers extracting archives for inspection rather than execution.
func HasReservedComponent(name string) bool {
	if !windowsReservedNamesApply {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" {
			continue
		}
		if shortFilenamePattern.MatchString(part) {
			return true
		}
		base, _, _ := strings.Cut(part, ".")
		if isReservedDeviceName(base) {
			return true
		}
	}
	return false
}

// isReservedDeviceName reports if name is a Windows reserved device name
// or console handle, ignoring any extension (callers pass the base
// already stripped of one). Adapted from the long-standing Go standard
// library table of MS-DOS device names, trimmed to what actually still
// matters on modern Windows.
func isReservedDeviceName(name string) bool {
	if len(name) < 3 {
		return false
	}
	switch strings.ToUpper(name[:3]) {
	case "CON", "PRN", "AUX", "NUL":
		return len(name) == 3
	case "COM", "LPT":
		if len(name) != 4 {
			return false
		}
		c := name[3]
		return c >= '1' && c <= '9'
	}
	return false
}
