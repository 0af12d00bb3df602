package main

import (
	"fmt"
	"os"

	"github.com/danmuck/rootio/internal/logging"
)

func main() {
	logging.ConfigureRuntime()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rootls: %v\n", err)
		os.Exit(1)
	}
}
