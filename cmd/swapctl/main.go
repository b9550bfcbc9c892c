package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/hxuan190/swap-engine/internal/cli"
)

func main() {
	// Load .env file if it exists (ignore errors if it doesn't)
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
