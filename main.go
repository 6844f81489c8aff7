package main

import (
	"os"

	"github.com/TomkerDev/Al-Moussaid/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
