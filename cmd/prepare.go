package cmd

import (
	"context"
	"encoding/base64"
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

var (
	prepareProvider string
	prepareFeeToken string
)

var prepareCmd = &cobra.Command{
	Use:   "prepare <amount> <token> to <token> [on <chain>]",
	Short: "Build an unsigned swap transaction",
	Long: `Fetch quotes for a route, pick a provider, and build the unsigned
transaction for the user to sign.

With --fee-token USDC the transaction is sponsored: the sponsor pays the
source-chain costs and a USDC fee transfer to the sponsor is injected
ahead of the bridge instructions. With --fee-token SOL the user pays the
source-chain costs directly.

Examples:
  swapd prepare 100 USDC to ETH on ethereum --user <wallet> --dest-wallet 0x1234...abcd
  swapd prepare 100 USDC to ETH on ethereum --user <wallet> --dest-wallet 0x1234...abcd --provider allbridge --fee-token SOL`,
	Args: cobra.MinimumNArgs(3),
	Run:  runPrepare,
}

func init() {
	rootCmd.AddCommand(prepareCmd)

	prepareCmd.Flags().StringVar(&quoteUser, "user", "", "Source-chain wallet that will sign (required)")
	prepareCmd.Flags().StringVar(&quoteDestWallet, "dest-wallet", "", "Destination wallet address (required)")
	prepareCmd.Flags().StringVar(&quoteDestChain, "dest-chain", "", "Destination chain (if not given in the route)")
	prepareCmd.Flags().StringVar(&quoteSourceMint, "source-mint", "", "Source token mint (defaults to the token symbol)")
	prepareCmd.Flags().IntVar(&quoteDecimals, "decimals", 6, "Source token decimals")
	prepareCmd.Flags().StringVar(&prepareProvider, "provider", "", "Bridge provider to use (defaults to the recommended quote)")
	prepareCmd.Flags().StringVar(&prepareFeeToken, "fee-token", "USDC", "Fee denomination: SOL or USDC")
	_ = prepareCmd.MarkFlagRequired("user")
	_ = prepareCmd.MarkFlagRequired("dest-wallet")
}

func runPrepare(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	params, err := routeParams(args)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	feeToken := types.FeeToken(strings.ToUpper(prepareFeeToken))
	if feeToken != types.FeeTokenSOL && feeToken != types.FeeTokenUSDC {
		printError(fmt.Errorf("unsupported fee token %q, expected SOL or USDC", prepareFeeToken))
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
		s.Suffix = " Fetching quotes..."
		s.Start()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	agg, err := eng.orch.GetQuotes(ctx, params)
	if err != nil {
		if !jsonOutput {
			s.Stop()
		}
		printError(err)
		os.Exit(1)
	}

	quote := agg.Recommended
	if prepareProvider != "" {
		quote = nil
		for _, q := range agg.Quotes {
			if strings.EqualFold(q.Provider, prepareProvider) {
				quote = q
				break
			}
		}
		if quote == nil {
			if !jsonOutput {
				s.Stop()
			}
			printError(fmt.Errorf("provider %q returned no quote for this route", prepareProvider))
			os.Exit(1)
		}
	}

	if !jsonOutput {
		s.Suffix = fmt.Sprintf(" Building transaction via %s...", quote.Provider)
	}

	prepared, err := eng.orch.PrepareSwap(ctx, quote, params.UserWallet, feeToken)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(prepared, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	displayPrepared(prepared)
}

func displayPrepared(prepared *types.PreparedSwap) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                      TRANSACTION PREPARED")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Swap ID:       %s\n", color.CyanString(prepared.SwapID))
	fmt.Printf("  Provider:      %s\n", prepared.Quote.Provider)
	fmt.Printf("  You receive:   %s %s\n", prepared.Quote.DestAmount, prepared.Quote.Params.DestToken)

	if prepared.Sponsored {
		fmt.Printf("  Mode:          %s\n", color.GreenString("sponsored"))
		fmt.Printf("  Your fee:      %d %s (%s USD)\n", prepared.Fee.Amount, prepared.Fee.Token, prepared.Fee.ValueUSD)
	} else {
		fmt.Printf("  Mode:          direct (you pay network fees)\n")
	}
	fmt.Printf("  Sign before:   %s\n", prepared.ExpiresAt.Format("15:04:05"))

	fmt.Printf("\n  Unsigned transaction (base64):\n")
	fmt.Printf("  %s\n", color.HiBlackString(base64.StdEncoding.EncodeToString(prepared.UnsignedTx)))

	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Printf("\nSign the transaction with your wallet, then run:\n")
	fmt.Printf("  swapd execute %s <signed-tx-base64>\n\n", prepared.SwapID)
}
