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
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCleanEntryNameRejectsAbsolute(t *testing.T) {
	for _, in := range []string{"/etc/passwd", "//etc/passwd"} {
		_, err := CleanEntryName(in, 1024)
		if !errors.Is(err, ErrAbsolutePath) {
			t.Errorf("CleanEntryName(%q) err = %v, want ErrAbsolutePath", in, err)
		}
	}
}

func TestCleanEntryNameDropsDotComponents(t *testing.T) {
	got, err := CleanEntryName("a/./b/", 1024)
	if err != nil {
		t.Fatal(err)
	}
	if got != "a/b" {
		t.Errorf("got %q, want %q", got, "a/b")
	}
}

func TestCleanEntryNameEnforcesDepth(t *testing.T) {
	_, err := CleanEntryName("a/b/c/d", 3)
	if !errors.Is(err, ErrDepthExceeded) {
		t.Fatalf("err = %v, want ErrDepthExceeded", err)
	}
	if _, err := CleanEntryName("a/b/c", 3); err != nil {
		t.Fatalf("unexpected err at the limit: %v", err)
	}
}

func TestWithinRoot(t *testing.T) {
	tests := []struct {
		root, path string
		want       bool
	}{
		{"/dest", "/dest", true},
		{"/dest", "/dest/a/b", true},
		{"/dest", "/destination-other", false},
		{"/dest", "/other", false},
		{"/dest", "/", false},
	}
	for _, tc := range tests {
		if got := WithinRoot(tc.root, tc.path); got != tc.want {
			t.Errorf("WithinRoot(%q, %q) = %v, want %v", tc.root, tc.path, got, tc.want)
		}
	}
}

// Scenario: path-traversal via "../evil.txt" must be rejected in bounds.
func TestJoinWithinRootRejectsTraversal(t *testing.T) {
	rel, err := CleanEntryName("../evil.txt", 1024)
	if err != nil {
		t.Fatalf("CleanEntryName: %v", err)
	}
	_, err = JoinWithinRoot("/tmp/out", rel)
	if !errors.Is(err, ErrBounds) {
		t.Fatalf("err = %v, want ErrBounds", err)
	}
}

func TestJoinWithinRootAcceptsNestedPath(t *testing.T) {
	rel, err := CleanEntryName("a/b/c.txt", 1024)
	if err != nil {
		t.Fatal(err)
	}
	got, err := JoinWithinRoot("/tmp/out", rel)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join("/tmp/out", "a/b/c.txt")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeCollapsesNFCAndNFKD(t *testing.T) {
	nfc := "café"       // é as one codepoint
	nfkd := "café"     // e + combining acute
	if Normalize(nfc) != Normalize(nfkd) {
		t.Errorf("Normalize(%q) = %q, Normalize(%q) = %q, want equal", nfc, Normalize(nfc), nfkd, Normalize(nfkd))
	}
}

func TestValidateParentChainAllowsFreshTree(t *testing.T) {
	root := t.TempDir()
	c := NewCache(root)
	if err := c.ValidateParentChain(filepath.Join(root, "a/b/c")); err != nil {
		t.Fatalf("ValidateParentChain: %v", err)
	}
}

func TestValidateParentChainRejectsFileComponent(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "notadir"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := NewCache(root)
	err := c.ValidateParentChain(filepath.Join(root, "notadir", "child"))
	if !errors.Is(err, ErrInvalidComponent) {
		t.Fatalf("err = %v, want ErrInvalidComponent", err)
	}
}

func TestValidateParentChainFollowsInBoundsSymlink(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "real"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "link")); err != nil {
		t.Fatal(err)
	}
	c := NewCache(root)
	if err := c.ValidateParentChain(filepath.Join(root, "link", "child")); err != nil {
		t.Fatalf("ValidateParentChain: %v", err)
	}
}

func TestValidateParentChainRejectsOutOfBoundsSymlink(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "escape")); err != nil {
		t.Fatal(err)
	}
	c := NewCache(root)
	err := c.ValidateParentChain(filepath.Join(root, "escape", "child"))
	if !errors.Is(err, ErrBounds) {
		t.Fatalf("err = %v, want ErrBounds", err)
	}
}

func TestCacheInvalidateRemovesEntry(t *testing.T) {
	root := t.TempDir()
	c := NewCache(root)
	p := filepath.Join(root, "a")
	c.markSafe(p)
	if !c.isSafe(p) {
		t.Fatal("expected p to be cached safe")
	}
	c.Invalidate(p)
	if c.isSafe(p) && !aggressivePathNormalization {
		t.Fatal("expected p to be invalidated")
	}
}
