// Command forq is the CLI for the forq job queue: enqueue shell commands,
// run workers, inspect state, and manage the dead letter queue. All
// subcommands operate on the store named by the config file, so enqueue
// and worker can run as separate processes against the same queue.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "forq:", err)
		os.Exit(1)
	}
}
