// Command ck3ls is the Jomini language server for Crusader Kings III
// mods. Run "serve" to speak LSP over stdio, or "scan" to run a one-shot
// workspace analysis and print diagnostics; with no subcommand it prints
// usage.
package main

import (
	"os"

	"github.com/jomini-lang/ck3lsp/cmd/ck3ls/internal/cli"
)

func main() {
	if err := cli.Root().Execute(); err != nil {
		os.Exit(1)
	}
}
