package main

import (
	"os"

	"github.com/rustyeddy/fract/cmd/fract/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
