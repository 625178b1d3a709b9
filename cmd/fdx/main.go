package main

import (
	"fmt"
	"os"

	"filedex/internal/fdxcli"
)

func main() {
	if err := fdxcli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fdx:", err)
		os.Exit(1)
	}
}
