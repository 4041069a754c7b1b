package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/menuvox/menuvox/internal/defaults"
)

// ResetCmd creates the reset command
func ResetCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Restore the bundled config and profiles",
		Long: `Overwrite config.yaml and the bundled profiles in the data directory with
the versions shipped in this binary. The history database and logs are kept.`,
		Run: func(cmd *cobra.Command, args []string) {
			dir := DaemonConfig.DataDir

			if !force {
				fmt.Printf("This overwrites config.yaml and bundled profiles in %s. Continue? [y/N] ", dir)
				line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
				if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
					fmt.Println("Aborted.")
					return
				}
			}

			if err := os.MkdirAll(dir, 0755); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if err := defaults.Reset(dir); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("\033[32m✓\033[0m Restored defaults in %s\n", dir)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the confirmation prompt")

	return cmd
}
