package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"swapd/cmd"
)

func main() {
	// A .env file is optional; environment variables and the config
	// file cover the same settings.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
