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

package main

import (
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vaultar/vaultar/tar"
)

func runPack(args []string) error {
	flags := flag.NewFlagSet("pack", flag.ExitOnError)
	out := flags.String("o", "", "output archive path (required)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *out == "" || flags.NArg() == 0 {
		flags.Usage()
		return fmt.Errorf("pack: -o and at least one path are required")
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("pack: %w", err)
	}
	defer f.Close()

	tw := tar.NewWriter(f)
	for _, root := range flags.Args() {
		if err := addPath(tw, root); err != nil {
			return fmt.Errorf("pack: %s: %w", root, err)
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("pack: %w", err)
	}
	slog.Info("archive written", "path", *out)
	return nil
}

// addPath walks root and writes one entry per file, directory, and
// symlink found under it. Archive names are relative to root's parent
// directory (so each begins with root's own base name) and always
// forward-slash separated, regardless of the host path separator.
func addPath(tw *tar.Writer, root string) error {
	base := filepath.Dir(root)
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		hdr := &tar.Header{
			Name:    name,
			Mode:    int64(info.Mode().Perm()),
			ModTime: info.ModTime(),
		}
		switch {
		case d.IsDir():
			hdr.Type = tar.TypeDir
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			hdr.Type = tar.TypeSymlink
			hdr.Linkname = target
		case info.Mode().IsRegular():
			hdr.Type = tar.TypeReg
			hdr.Size = info.Size()
		default:
			slog.Warn("skipping non-regular file", "path", path)
			return nil
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if hdr.Type == tar.TypeReg {
			body, err := os.Open(path)
			if err != nil {
				return err
			}
			_, err = io.Copy(tw, body)
			closeErr := body.Close()
			if err != nil {
				return err
			}
			if closeErr != nil {
				return closeErr
			}
		}
		return tw.CloseEntry()
	})
}
