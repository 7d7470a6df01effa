package main

import (
	"os"

	"github.com/aiden-platform/aiden-watch/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
