// Package main is the entrypoint for the generals simulator. The same
// binary is the launcher (`generals run N`) and every general it spawns.
package main

import "github.com/quorum-sim/generals/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
