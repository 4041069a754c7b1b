package cli

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/menuvox/menuvox/internal/capture"
	"github.com/menuvox/menuvox/internal/overlay"
	"github.com/menuvox/menuvox/internal/profile"
)

// ProfileCmd creates the profile command group
func ProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect and debug menu profiles",
		Long: `Work with menu profile files without starting the daemon.

Examples:
  menuvox profile validate            # Check the configured profile
  menuvox profile validate game.json  # Check a specific file
  menuvox profile show                # Print menus, groups and items
  menuvox profile snapshot -m main    # Capture the screen with menu geometry drawn on top`,
	}

	cmd.AddCommand(profileValidateCmd())
	cmd.AddCommand(profileShowCmd())
	cmd.AddCommand(profileSnapshotCmd())

	return cmd
}

// profileArg resolves the optional path argument against the configured
// profile path.
func profileArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return DaemonConfig.ProfilePath()
}

func profileValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Load a profile and check its structure",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			path := profileArg(args)

			p, err := profile.Load(path)
			if err != nil {
				fmt.Printf("\033[31m✗\033[0m %s: %v\n", path, err)
				os.Exit(1)
			}
			if err := p.Validate(); err != nil {
				fmt.Printf("\033[31m✗\033[0m %s: %v\n", path, err)
				os.Exit(1)
			}

			items := 0
			for _, m := range p {
				items += len(m.Items)
			}
			fmt.Printf("\033[32m✓\033[0m %s: %d menus, %d items\n", path, len(p), items)
		},
	}
}

func profileShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [path]",
		Short: "Print menus, groups and items in navigation order",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			path := profileArg(args)

			p, err := profile.Load(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			for _, id := range p.MenuIDs() {
				printMenu(id, p[id])
			}
		},
	}
}

func printMenu(id string, m *profile.Menu) {
	header := fmt.Sprintf("\033[1m%s\033[0m", id)
	var traits []string
	if m.IsManual {
		traits = append(traits, "manual")
	}
	if len(m.Conditions) > 0 {
		traits = append(traits, fmt.Sprintf("%d conditions", len(m.Conditions)))
	}
	if !m.ResetIndex {
		traits = append(traits, "keeps position")
	}
	if len(traits) > 0 {
		header += " \033[2m(" + strings.Join(traits, ", ") + ")\033[0m"
	}
	fmt.Println(header)

	for _, group := range m.SortedGroups() {
		fmt.Printf("  [%s]\n", group)
		for n, idx := range m.GroupItemIndices(group) {
			el := &m.Items[idx]
			line := fmt.Sprintf("    %d. %s", n+1, el.Name)
			if el.Type != "" {
				line += fmt.Sprintf(" (%s)", el.Type)
			}
			line += fmt.Sprintf(" at %d,%d", el.Coordinates.X, el.Coordinates.Y)
			if el.SubmenuID != "" {
				line += " \033[36m→ " + el.SubmenuID + "\033[0m"
			}
			if el.HasConditions() {
				line += " \033[2m[conditional]\033[0m"
			}
			if el.HasOcrRegions() {
				line += " \033[2m[ocr]\033[0m"
			}
			fmt.Println(line)
		}
	}
	fmt.Println()
}

func profileSnapshotCmd() *cobra.Command {
	var menuID string
	var outFile string
	var raw bool

	cmd := &cobra.Command{
		Use:   "snapshot [path]",
		Short: "Capture the screen with a menu's geometry drawn on top",
		Long: `Capture one frame through the daemon's backend chain and draw the menu's
condition probes, item markers and OCR regions onto it. Useful for checking
that profile coordinates line up with what is actually on screen.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := runSnapshot(profileArg(args), menuID, outFile, raw); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&menuID, "menu", "m", "", "menu to draw (default: first menu)")
	cmd.Flags().StringVarP(&outFile, "out", "o", "snapshot.png", "output PNG path")
	cmd.Flags().BoolVar(&raw, "raw", false, "skip the overlay, save the bare capture")

	return cmd
}

func runSnapshot(path, menuID, outFile string, raw bool) error {
	frame, err := capture.NewService().NewHandle().Frame()
	if err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}
	img := image.Image(frame.Image)

	if !raw {
		p, err := profile.Load(path)
		if err != nil {
			return err
		}
		if menuID == "" {
			ids := p.MenuIDs()
			if len(ids) == 0 {
				return fmt.Errorf("profile %s has no menus", path)
			}
			menuID = ids[0]
		}
		m := p.Menu(menuID)
		if m == nil {
			return fmt.Errorf("menu %q not found in %s", menuID, path)
		}
		img = overlay.Render(img, m, -1)
	}

	f, err := os.Create(outFile)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode %s: %w", outFile, err)
	}
	fmt.Printf("\033[32m✓\033[0m Wrote %s\n", outFile)
	return nil
}
