// Command odoorpc reads, snapshots, and updates Odoo records over JSON-RPC.
package main

import (
	"os"

	"github.com/roach88/odoorpc/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:], os.Stdout, os.Stderr))
}
