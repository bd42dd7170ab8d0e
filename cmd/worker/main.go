// Package main provides the entry point for the worker binary.
package main

import (
	"fmt"
	"os"

	"github.com/cloud-shuttle/parallel-coordinator/internal/worker"
)

func main() {
	cli := worker.NewCLI()
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
