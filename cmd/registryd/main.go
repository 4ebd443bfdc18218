// Command registryd is the process entrypoint: it wires the registry
// core (C1-C11) into a running HTTP server, per spec.md §6's exit-code
// contract (0 normal, 1 on fatal init failure).
package main

import (
	"fmt"
	"os"

	"github.com/ipregistry/ociregistry/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "registryd: %v\n", err)
		os.Exit(1)
	}
}
