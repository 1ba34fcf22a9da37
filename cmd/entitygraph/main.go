// Command entitygraph serves and maintains the normalized entity graph.
package main

import (
	"context"
	"fmt"
	"os"

	"entitygraph/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "entitygraph:", err)
		os.Exit(1)
	}
}
