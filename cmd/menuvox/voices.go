package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/menuvox/menuvox/internal/speech"
)

// VoicesCmd creates the voices command
func VoicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List available speech synthesizer voices",
		Long: `List the voices the platform synthesizer offers. Pick one in config.yaml:

speech:
  voice: <name>`,
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			voices, err := speech.ListVoices(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if len(voices) == 0 {
				fmt.Println("No voices reported by the synthesizer.")
				return
			}

			current := DaemonConfig.Speech.Voice
			for _, v := range voices {
				if v == current {
					fmt.Printf("\033[32m* %s\033[0m\n", v)
				} else {
					fmt.Printf("  %s\n", v)
				}
			}
			fmt.Printf("\n%d voices\n", len(voices))
		},
	}
}
