package main

import (
	"fmt"
	"os"

	"github.com/tonoapp/tono-server/cmd"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if err := cmd.Execute(version, buildTime); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
