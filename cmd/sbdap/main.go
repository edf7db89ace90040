package main

import (
	"os"

	"github.com/go-delve/sbdap/cmd/sbdap/cmds"
)

func main() {
	if err := cmds.New().Execute(); err != nil {
		os.Exit(2)
	}
}
