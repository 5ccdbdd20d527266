package main

import (
	"os"

	"github.com/specdrive/specdrive/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
