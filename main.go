package main

import (
	"os"

	"github.com/coopco/telebox/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
