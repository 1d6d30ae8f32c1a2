// Command gqlplan serves GraphQL queries compiled into data source pushdowns and
// in-memory service passes, and prints the plans it compiles.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
