package main

import (
	"os"

	"github.com/arion/zmqjob/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
