package main

import (
	"os"

	hmlrcmder "github.com/bridgeware/hmlr/cmd/hmlr"
)

func main() {
	cmd := hmlrcmder.NewHMLRCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
