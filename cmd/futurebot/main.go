package main

import (
	"os"

	"github.com/dgnernvsinjsbt/futurebot/cmd/futurebot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
