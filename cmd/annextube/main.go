// SPDX-License-Identifier: MIT

// Command annextube archives YouTube channels and playlists into a
// git-annex repository.
package main

import (
	"os"

	"github.com/con-org/annextube-sub000/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
