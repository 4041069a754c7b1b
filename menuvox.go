package main

import (
	_ "embed"
	"fmt"
	"os"

	cli "github.com/menuvox/menuvox/cmd/menuvox"
	"github.com/menuvox/menuvox/internal/config"

	"github.com/joho/godotenv"
)

//go:embed etc/menuvox.yaml
var embeddedConfig []byte

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// User config over the built-in defaults; an unreadable config.yaml
	// falls back to the embedded baseline instead of refusing to start.
	c, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config.yaml unreadable, using built-in defaults: %v\n", err)
		c, err = config.LoadFromBytes(embeddedConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load embedded config: %v\n", err)
			os.Exit(1)
		}
	}

	if err := cli.SetupRootCmd(c).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
