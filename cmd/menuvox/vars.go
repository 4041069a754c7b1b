package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menuvox/menuvox/internal/config"
)

// Version is the menuvox release version.
const Version = "0.1.0"

// Shared CLI flags (used across multiple command files)
var (
	cfgFile     string
	profileFlag string
	verbose     bool
	noSpeech    bool
	noPointer   bool
)

// DaemonConfig holds the loaded daemon configuration (set by main)
var DaemonConfig *config.Config

// SetupRootCmd configures the root command with all subcommands and flags
func SetupRootCmd(c *config.Config) *cobra.Command {
	DaemonConfig = c

	rootCmd := &cobra.Command{
		Use:     "menuvox",
		Version: Version,
		Short:   "Menuvox - spoken menu navigation",
		Long: `Menuvox watches the screen for menus described in a profile, keeps a
navigation position inside the active menu, and announces each focused item
through the platform speech synthesizer.

Just type 'menuvox' to start the daemon. Hotkey tools and the profile editor
talk to it over the local control API.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile == "" {
				return nil
			}
			loaded, err := config.LoadFrom(cfgFile)
			if err != nil {
				return fmt.Errorf("load config %s: %w", cfgFile, err)
			}
			*DaemonConfig = *loaded
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			RunDaemon()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: platform data directory)")
	rootCmd.PersistentFlags().StringVarP(&profileFlag, "profile", "p", "", "menu profile JSON (default: from config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Root-only flags
	rootCmd.Flags().BoolVar(&noSpeech, "no-speech", false, "run silent, never speak announcements")
	rootCmd.Flags().BoolVar(&noPointer, "no-pointer", false, "never move or click the pointer")

	// Add commands
	rootCmd.AddCommand(DoctorCmd())
	rootCmd.AddCommand(ProfileCmd())
	rootCmd.AddCommand(VoicesCmd())
	rootCmd.AddCommand(StatusCmd())
	rootCmd.AddCommand(ResetCmd())

	return rootCmd
}
