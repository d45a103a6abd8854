package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var swapsLimit int

var swapsCmd = &cobra.Command{
	Use:     "swaps <wallet>",
	Aliases: []string{"history"},
	Short:   "List a wallet's swap history",
	Long: `List the swaps recorded for a wallet, newest first.

Examples:
  swapd swaps <wallet>
  swapd swaps <wallet> --limit 5`,
	Args: cobra.ExactArgs(1),
	Run:  runSwaps,
}

func init() {
	rootCmd.AddCommand(swapsCmd)

	swapsCmd.Flags().IntVar(&swapsLimit, "limit", 20, "Maximum number of swaps to show (0 for all)")
}

func runSwaps(cmd *cobra.Command, args []string) {
	wallet := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	eng, err := newEngine(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer eng.orch.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	swaps, err := eng.orch.ListSwaps(ctx, wallet, swapsLimit)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(swaps, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	if len(swaps) == 0 {
		fmt.Println("\nNo swaps found for this wallet.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                                 SWAP HISTORY")
	fmt.Println(strings.Repeat("=", 90))

	for _, swap := range swaps {
		fmt.Printf("\n  %s  %s\n", color.CyanString(swap.ID), coloredSwapStatus(swap.Status))
		fmt.Printf("    %s -> %s %s via %s\n",
			swap.Params.SourceToken, swap.DestAmount, swap.Params.DestToken, swap.Provider)
		fmt.Printf("    %s\n", color.HiBlackString(swap.CreatedAt.Format("2006-01-02 15:04:05")))
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d swap(s)\n\n", len(swaps))
}
