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

// Command vaultar packs and extracts USTAR/PAX/GNU tar archives.
//
//	vaultar pack -o out.tar path [path ...]
//	vaultar extract -C destdir [-strict] [-max-depth N] in.tar
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "pack":
		err = runPack(os.Args[2:])
	case "extract":
		err = runExtract(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  vaultar pack -o out.tar path [path ...]")
	fmt.Fprintln(os.Stderr, "  vaultar extract -C destdir [-strict] [-max-depth N] in.tar")
}

// ctxWithInterrupt returns a context canceled on Ctrl-C or SIGTERM. The
// extract subcommand passes it to extractor.Extract, which checks it
// before each entry; the pack subcommand does not use it.
func ctxWithInterrupt() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
