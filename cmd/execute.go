package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"swapd/pkg/types"
)

var executeWait bool

var executeCmd = &cobra.Command{
	Use:   "execute <swap-id> <signed-tx>",
	Short: "Submit a signed swap transaction",
	Long: `Submit the user-signed transaction for a prepared swap. The signed
transaction may be given as a base64 string or as a path to a file
containing one.

Examples:
  swapd execute 4f8a... AQABAw...
  swapd execute 4f8a... ./signed.b64 --wait`,
	Args: cobra.ExactArgs(2),
	Run:  runExecute,
}

func init() {
	rootCmd.AddCommand(executeCmd)

	executeCmd.Flags().BoolVar(&executeWait, "wait", false, "Wait for the bridge transfer to finish")
}

func runExecute(cmd *cobra.Command, args []string) {
	swapID := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	signedTx, err := readSignedTx(args[1])
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	eng, err := newEngine(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer eng.orch.Shutdown()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Submitting transaction..."
		s.Start()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	swap, err := eng.orch.ExecuteSwap(ctx, swapID, signedTx)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if executeWait {
		swap = waitForCompletion(eng, swap, jsonOutput)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(swap, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	displaySwap(swap)
	if !swap.Status.IsTerminal() {
		fmt.Printf("Track progress with: swapd status %s --watch\n\n", swap.ID)
	}
}

// readSignedTx accepts either a base64 literal or a path to a file
// holding one.
func readSignedTx(arg string) (string, error) {
	if _, err := os.Stat(arg); err == nil {
		data, err := os.ReadFile(arg)
		if err != nil {
			return "", fmt.Errorf("failed to read signed transaction file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return arg, nil
}

// waitForCompletion polls until the swap reaches a terminal status or
// the deadline passes.
func waitForCompletion(eng *engine, swap *types.Swap, jsonOutput bool) *types.Swap {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Waiting for the bridge transfer..."
		s.Start()
		defer s.Stop()
	}

	deadline := time.Now().Add(15 * time.Minute)
	for time.Now().Before(deadline) {
		time.Sleep(5 * time.Second)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		updated, err := eng.orch.GetStatus(ctx, swap.ID)
		cancel()
		if err != nil {
			continue
		}
		swap = updated
		if swap.Status.IsTerminal() {
			break
		}
	}
	return swap
}

func displaySwap(swap *types.Swap) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                           SWAP")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Swap ID:     %s\n", color.CyanString(swap.ID))
	fmt.Printf("  Provider:    %s\n", swap.Provider)
	fmt.Printf("  Status:      %s\n", coloredSwapStatus(swap.Status))
	fmt.Printf("  Receiving:   %s %s\n", swap.DestAmount, swap.Params.DestToken)
	if swap.Fee != nil {
		fmt.Printf("  Fee paid:    %d %s (%s USD)\n", swap.Fee.Amount, swap.Fee.Token, swap.Fee.ValueUSD)
	}
	if swap.SourceTx != "" {
		fmt.Printf("  Source Tx:   %s\n", color.HiBlackString(swap.SourceTx))
	}
	if swap.DestTx != "" {
		fmt.Printf("  Dest Tx:     %s\n", color.HiBlackString(swap.DestTx))
	}
	if swap.Error != "" {
		fmt.Printf("  Error:       %s\n", color.RedString(swap.Error))
	}
	fmt.Printf("  Updated:     %s\n", swap.UpdatedAt.Format("2006-01-02 15:04:05"))

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func coloredSwapStatus(status types.SwapStatus) string {
	text := strings.ToUpper(string(status))

	switch status {
	case types.StatusCompleted:
		return color.GreenString(text)
	case types.StatusSubmitted, types.StatusBridging, types.StatusAwaitingSignature, types.StatusPreparing, types.StatusQuoted:
		return color.YellowString(text)
	case types.StatusFailed, types.StatusExpired:
		return color.RedString(text)
	default:
		return text
	}
}
