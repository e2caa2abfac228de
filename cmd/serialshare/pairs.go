package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/Station-Manager/serialshare/com0com"
	"github.com/charmbracelet/lipgloss"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	cellStyle   = lipgloss.NewStyle().PaddingRight(2)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var pairsCmd = &cobra.Command{
	Use:   "pairs",
	Short: "Manage com0com virtual port pairs",
}

var pairsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed port pairs",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newManager()
		if err != nil {
			return err
		}
		ctx, cancel := driverContext(cmd.Context())
		defer cancel()

		pairs, err := mgr.ListPairs(ctx)
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(pairs)
		}
		printPairs(pairs)
		return nil
	},
}

var pairsCreateCmd = &cobra.Command{
	Use:   "create [name-a] [name-b]",
	Short: "Create a port pair",
	Long: `Create a port pair. Side A defaults to the next free COM number, side B
keeps its CNCB name unless a name is given.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		nameA, nameB := "-", "-"
		if len(args) > 0 {
			nameA = args[0]
		}
		if len(args) > 1 {
			nameB = args[1]
		}

		mgr, err := newManager()
		if err != nil {
			return err
		}
		ctx, cancel := driverContext(cmd.Context())
		defer cancel()

		pair, err := mgr.CreatePair(ctx, nameA, nameB)
		if err != nil {
			return err
		}
		fmt.Printf("Created pair %d: %s <-> %s\n", pair.PairID, pair.PortA, pair.PortB)
		return nil
	},
}

var pairsRenameCmd = &cobra.Command{
	Use:   "rename <id> <name-a> <name-b>",
	Short: "Rename both sides of a port pair",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parsePairID(args[0])
		if err != nil {
			return err
		}
		mgr, err := newManager()
		if err != nil {
			return err
		}
		ctx, cancel := driverContext(cmd.Context())
		defer cancel()

		if err := mgr.RenamePair(ctx, id, args[1], args[2]); err != nil {
			return err
		}
		fmt.Printf("Renamed pair %d: %s <-> %s\n", id, args[1], args[2])
		return nil
	},
}

var pairsRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a port pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parsePairID(args[0])
		if err != nil {
			return err
		}
		mgr, err := newManager()
		if err != nil {
			return err
		}
		ctx, cancel := driverContext(cmd.Context())
		defer cancel()

		if err := mgr.RemovePair(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Removed pair %d\n", id)
		return nil
	},
}

var pairsRemoveAllCmd = &cobra.Command{
	Use:   "remove-all",
	Short: "Remove every port pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newManager()
		if err != nil {
			return err
		}
		ctx, cancel := driverContext(cmd.Context())
		defer cancel()

		if err := mgr.RemoveAll(ctx); err != nil {
			return err
		}
		fmt.Println("Removed all pairs")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pairsCmd)
	pairsCmd.AddCommand(pairsListCmd, pairsCreateCmd, pairsRenameCmd, pairsRemoveCmd, pairsRemoveAllCmd)

	pairsListCmd.Flags().Bool("json", false, "print pairs as JSON")
}

func parsePairID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid pair id %q", s)
	}
	return uint32(id), nil
}

func printPairs(pairs []com0com.PortPair) {
	if len(pairs) == 0 {
		fmt.Println(dimStyle.Render("No port pairs installed."))
		return
	}

	fmt.Println(lipgloss.JoinHorizontal(lipgloss.Top,
		cellStyle.Width(6).Render(headerStyle.Render("ID")),
		cellStyle.Width(14).Render(headerStyle.Render("Port A")),
		headerStyle.Render("Port B"),
	))
	for _, p := range pairs {
		fmt.Println(lipgloss.JoinHorizontal(lipgloss.Top,
			cellStyle.Width(6).Render(strconv.FormatUint(uint64(p.PairID), 10)),
			cellStyle.Width(14).Render(p.PortA),
			p.PortB,
		))
	}
}
