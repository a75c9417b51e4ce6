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
	"log/slog"
	"os"

	"github.com/vaultar/vaultar/extractor"
	"github.com/vaultar/vaultar/tar"
)

func runExtract(args []string) error {
	flags := flag.NewFlagSet("extract", flag.ExitOnError)
	dest := flags.String("C", ".", "destination directory")
	strict := flags.Bool("strict", false, "fail on checksum errors, truncation, and malformed end markers")
	maxDepth := flags.Int("max-depth", 0, "maximum path component depth (0 = package default)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return fmt.Errorf("extract: exactly one archive path is required")
	}

	f, err := os.Open(flags.Arg(0))
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	defer f.Close()

	var opts []tar.ReaderOption
	if *strict {
		opts = append(opts, tar.Strict())
	}

	ctx, cancel := ctxWithInterrupt()
	defer cancel()

	err = extractor.Extract(ctx, tar.NewReader(f, opts...), extractor.Config{
		Destination: *dest,
		MaxDepth:    *maxDepth,
	})
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	slog.Info("archive extracted", "destination", *dest)
	return nil
}
