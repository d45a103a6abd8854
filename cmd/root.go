package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "swapd",
	Short: "Sponsored cross-chain swaps from Solana",
	Long: `swapd quotes, prepares and executes cross-chain swaps where a sponsor
pays the source-chain transaction costs and recoups them through a user
fee injected into the same transaction.

Examples:
  swapd quote 100 USDC to ETH on ethereum --user <wallet> --dest-wallet 0x...
  swapd prepare 100 USDC to ETH on ethereum --user <wallet> --dest-wallet 0x... --fee-token USDC
  swapd execute <swap-id> <signed-tx-base64>
  swapd status <swap-id> --watch
  swapd swaps <wallet>
  swapd list-tokens --chain solana`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
