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

//go:build windows

package pathsec

// foldCase is true on platforms whose filesystem treats paths
// case-insensitively, requiring the validated-path cache to fold case too.
const foldCase = true

// aggressivePathNormalization is true on platforms where the filesystem's
// own path normalization (case folding, short names) can make a path
// compare equal to a previously-cached one by surprise, requiring a
// symlink creation to invalidate the *entire* validated-path cache rather
// than just the one entry.
const aggressivePathNormalization = true
