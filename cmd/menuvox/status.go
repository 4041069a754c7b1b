package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// StatusCmd creates the status command that queries the running daemon
func StatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's state",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runStatus(asJSON); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status JSON")

	return cmd
}

func runStatus(asJSON bool) error {
	addr := DaemonConfig.ListenAddr()
	client := &http.Client{Timeout: 3 * time.Second}

	resp, err := client.Get(fmt.Sprintf("http://%s/api/v1/status", addr))
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s (start with 'menuvox')", addr)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status request failed: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if asJSON {
		var out bytes.Buffer
		if err := json.Indent(&out, body, "", "  "); err != nil {
			return err
		}
		fmt.Println(out.String())
		return nil
	}

	var st struct {
		Detecting       bool     `json:"detecting"`
		ActiveMenu      string   `json:"active_menu"`
		MenuStack       []string `json:"menu_stack"`
		Group           string   `json:"group"`
		Position        int      `json:"position"`
		PendingCommands int      `json:"pending_commands"`
		PendingSpeech   int      `json:"pending_speech"`
		OCRState        string   `json:"ocr_state"`
		PointerBackend  string   `json:"pointer_backend"`
		SpeechEngine    string   `json:"speech_engine"`
		FeedClients     int      `json:"feed_clients"`
	}
	if err := json.Unmarshal(body, &st); err != nil {
		return fmt.Errorf("parse status: %w", err)
	}

	detecting := "no"
	if st.Detecting {
		detecting = "yes"
	}
	active := st.ActiveMenu
	if active == "" {
		active = "none"
	}

	fmt.Printf("Detecting:    %s\n", detecting)
	fmt.Printf("Active menu:  %s\n", active)
	if len(st.MenuStack) > 1 {
		fmt.Printf("Menu stack:   %s\n", strings.Join(st.MenuStack, " > "))
	}
	if st.ActiveMenu != "" {
		fmt.Printf("Focus:        %s[%d]\n", st.Group, st.Position)
	}
	fmt.Printf("Pending:      %d commands, %d utterances\n", st.PendingCommands, st.PendingSpeech)
	fmt.Printf("OCR:          %s\n", st.OCRState)
	if st.SpeechEngine != "" {
		fmt.Printf("Speech:       %s\n", st.SpeechEngine)
	}
	if st.PointerBackend != "" {
		fmt.Printf("Pointer:      %s\n", st.PointerBackend)
	}
	fmt.Printf("Feed clients: %d\n", st.FeedClients)
	return nil
}
