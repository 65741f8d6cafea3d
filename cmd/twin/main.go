package main

import (
	"os"

	"github.com/go-go-golems/twin/cmd/twin/cmds"
)

func main() {
	if err := cmds.Execute(); err != nil {
		os.Exit(1)
	}
}
