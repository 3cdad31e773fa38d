package main

import (
	"os"

	"magabot/cmd/magactl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
