// Command blockctl administers blocks on a blockd cluster from the
// command line, talking to a manager's admin RPC listener.
package main

import (
	"fmt"
	"os"

	"github.com/blockd/blockd/cmd/blockctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
