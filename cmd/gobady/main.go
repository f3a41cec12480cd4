// Command gobady is the operator CLI: serve, migrate, seed, quote and run workers.
package main

import (
	"os"

	"github.com/Additional-Code/gobady/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
