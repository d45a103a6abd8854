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

	"swapd/pkg/parser"
	"swapd/pkg/types"
)

var (
	quoteUser       string
	quoteDestWallet string
	quoteDestChain  string
	quoteSourceMint string
	quoteDecimals   int
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <token> to <token> [on <chain>]",
	Short: "Compare quotes from all bridge providers",
	Long: `Fetch quotes for a route from every registered bridge provider,
ranked by the amount that actually arrives after destination fees.

Examples:
  swapd quote 100 USDC to ETH on ethereum --user <wallet> --dest-wallet 0x1234...abcd
  swapd quote 1.5 SOL to USDC on arbitrum --user <wallet> --dest-wallet 0x1234...abcd --decimals 9`,
	Args: cobra.MinimumNArgs(3),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().StringVar(&quoteUser, "user", "", "Source-chain wallet that will sign (required)")
	quoteCmd.Flags().StringVar(&quoteDestWallet, "dest-wallet", "", "Destination wallet address (required)")
	quoteCmd.Flags().StringVar(&quoteDestChain, "dest-chain", "", "Destination chain (if not given in the route)")
	quoteCmd.Flags().StringVar(&quoteSourceMint, "source-mint", "", "Source token mint (defaults to the token symbol)")
	quoteCmd.Flags().IntVar(&quoteDecimals, "decimals", 6, "Source token decimals")
	_ = quoteCmd.MarkFlagRequired("user")
	_ = quoteCmd.MarkFlagRequired("dest-wallet")
}

// routeParams turns the positional route text and flags into quote
// parameters shared by the quote and prepare commands.
func routeParams(args []string) (types.QuoteParams, error) {
	route, err := parser.ParseRoute(strings.Join(args, " "))
	if err != nil {
		return types.QuoteParams{}, err
	}

	destChain := route.DestChain
	if quoteDestChain != "" {
		destChain = quoteDestChain
	}
	if destChain == "" {
		return types.QuoteParams{}, fmt.Errorf("destination chain is required: add 'on <chain>' to the route or pass --dest-chain")
	}

	amount, err := parser.BaseUnits(route.Amount, quoteDecimals)
	if err != nil {
		return types.QuoteParams{}, err
	}

	sourceToken := parser.NormalizeTokenSymbol(route.SourceToken)
	if quoteSourceMint != "" {
		sourceToken = quoteSourceMint
	}

	return types.QuoteParams{
		SourceChain: "solana",
		SourceToken: sourceToken,
		Amount:      amount,
		DestChain:   destChain,
		DestToken:   parser.NormalizeTokenSymbol(route.DestToken),
		DestWallet:  quoteDestWallet,
		UserWallet:  quoteUser,
	}, nil
}

func runQuote(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	params, err := routeParams(args)
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
		s.Suffix = " Fetching quotes..."
		s.Start()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	agg, err := eng.orch.GetQuotes(ctx, params)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(agg, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	displayQuotes(agg)
}

func displayQuotes(agg *types.AggregatedQuotes) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        AVAILABLE QUOTES")
	fmt.Println(strings.Repeat("=", 70))

	for i, quote := range agg.Quotes {
		marker := "  "
		if quote == agg.Recommended {
			marker = color.GreenString("* ")
		}

		fmt.Printf("\n%s%d. %s\n", marker, i+1, color.CyanString(quote.Provider))
		fmt.Printf("    You receive:   %s %s\n", quote.DestAmount, quote.Params.DestToken)
		if quote.DestFees != "" && quote.DestFees != "0" {
			fmt.Printf("    Bridge fees:   %s\n", quote.DestFees)
		}
		fmt.Printf("    Est. duration: %s\n", formatDuration(quote.DurationSec))
		fmt.Printf("    Valid until:   %s\n", quote.ValidUntil.Format("15:04:05"))
	}

	var failures []string
	for _, res := range agg.Results {
		if res.Outcome != types.OutcomeSuccess {
			failures = append(failures, fmt.Sprintf("%s (%s)", res.Provider, res.Outcome))
		}
	}
	if len(failures) > 0 {
		fmt.Printf("\n  Unavailable: %s\n", color.HiBlackString(strings.Join(failures, ", ")))
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Printf("\n%s = recommended (best value/speed balance)\n", color.GreenString("*"))
	fmt.Printf("Run 'swapd prepare' with the same route to build the transaction.\n\n")
}

func formatDuration(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	d := time.Duration(seconds) * time.Second
	return d.Round(time.Second).String()
}
