package main

import (
	"os"

	"github.com/couchcryptid/air-quality-etl/cmd/aqi/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
