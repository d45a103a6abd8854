package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <swap-id>",
	Short: "Check the status of a swap",
	Long: `Check the execution status of a swap by its id. When no monitor is
running for the swap (for example after a restart), the status is
refreshed from the bridge provider.

Examples:
  swapd status 4f8a...
  swapd status 4f8a... --watch
  swapd status 4f8a... --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates continuously")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	swapID := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	eng, err := newEngine(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer eng.orch.Shutdown()

	if watchStatus {
		watchSwapStatus(eng, swapID, jsonOutput)
	} else {
		checkSwapStatus(eng, swapID, jsonOutput)
	}
}

func checkSwapStatus(eng *engine, swapID string, jsonOutput bool) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking swap status..."
		s.Start()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	swap, err := eng.orch.GetStatus(ctx, swapID)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(swap, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displaySwap(swap)
	}
}

func watchSwapStatus(eng *engine, swapID string, jsonOutput bool) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	fmt.Printf("\nWatching swap %s\n", color.CyanString(swapID))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	// Check immediately first
	if checkAndDisplayStatus(eng, swapID) {
		return
	}

	// Then check periodically until the swap settles
	for range ticker.C {
		if checkAndDisplayStatus(eng, swapID) {
			return
		}
	}
}

func checkAndDisplayStatus(eng *engine, swapID string) (done bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	swap, err := eng.orch.GetStatus(ctx, swapID)
	if err != nil {
		color.Red("Error: %v", err)
		return false
	}

	displaySwap(swap)
	return swap.Status.IsTerminal()
}
