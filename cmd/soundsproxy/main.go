// Package main is the entry point for the soundsproxy application.
package main

import (
	"os"

	"soundsproxy/cmd/soundsproxy/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
