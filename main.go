package main

import (
	"os"

	"github.com/kyleking/askdb/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
