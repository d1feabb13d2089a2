package main

import (
	"os"

	glassboxcmder "github.com/papercomputeco/glassbox/cmd/glassbox"
)

func main() {
	cmd := glassboxcmder.NewGlassboxCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
