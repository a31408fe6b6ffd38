// certswap is the command-line interface for the certswap credential server.
//
// It runs a gRPC server whose TLS material hot-reloads when the backing ssl
// bundle changes, and provides utilities for validating configuration:
//
//	certswap serve --config certswap.yaml
//	certswap check-config --config certswap.yaml
//	certswap --help
package main

import (
	"fmt"
	"os"

	"github.com/sufield/certswap/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
