package main

import (
	"fmt"
	"os"

	"github.com/Station-Manager/serialshare"
	"github.com/charmbracelet/lipgloss"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List the serial ports available for sharing",
	Long:  `List the serial ports on this machine. com0com endpoints (CNCA*/CNCB*) are hidden.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := serialshare.AvailablePorts()
		if err != nil {
			return fmt.Errorf("listing ports: %w", err)
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(ports)
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found.")
			return nil
		}

		nameStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Width(16)
		fmt.Println(headerStyle.Render(fmt.Sprintf("Serial ports (%d)", len(ports))))
		for _, p := range ports {
			fmt.Println("  " + nameStyle.Render(p.Name) + dimStyle.Render(p.Product))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().Bool("json", false, "print ports as JSON")
}
