package main

import (
	"os"

	"github.com/solatis/intervalq/cmd/intervalq/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
