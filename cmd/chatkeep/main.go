package main

import (
	"os"

	"github.com/chatkeep/chatkeep/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
