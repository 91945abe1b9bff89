// Command fogtrail is the CLI entrypoint: import, render, serve, and stats
// subcommands wired through internal/cmd.
package main

import "github.com/MeKo-Tech/fogtrail/internal/cmd"

func main() {
	cmd.Execute()
}
