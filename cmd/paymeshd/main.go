package main

import (
	"os"

	"github.com/hupe1980/paymesh/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
