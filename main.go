package main

import (
	"os"

	"github.com/CodeMonkeyCybersecurity/domainrisk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
