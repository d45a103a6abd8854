package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"go.uber.org/zap"

	"swapd/pkg/chainrpc"
	"swapd/pkg/resilience"
	"swapd/pkg/swaperr"
	"swapd/pkg/types"
)

const (
	nearIntentsName     = "nearintents"
	intentsQuoteTTL     = 2 * time.Minute
	intentsDeadline     = 24 * time.Hour
	tokenCacheTTL       = 5 * time.Minute
	nativeMint          = "So11111111111111111111111111111111111111112"
	priorityFeeLamports = 10000
	sponsoredSignatures = 2 // sponsor + user
)

// DepositNotifier is implemented by providers that want to be told the
// source-chain transaction hash after submission.
type DepositNotifier interface {
	NotifyDeposit(ctx context.Context, depositAddress, txHash string) error
}

// intentsPayload is the opaque quote payload this provider round-trips
// between GetQuote and BuildTransaction.
type intentsPayload struct {
	DepositAddress string `json:"deposit_address"`
	Memo           string `json:"memo,omitempty"`
}

// NearIntents bridges through the NEAR Intents 1Click API. The API
// hands out a deposit address per quote; the transaction this provider
// builds is the user's transfer into that address.
type NearIntents struct {
	client   *oneclick.APIClient
	authCtx  context.Context
	chain    chainrpc.Client
	log      *zap.Logger
	breakers *resilience.Breakers
	retryCfg resilience.RetryConfig

	tokenMu  sync.Mutex
	tokens   []oneclick.TokenResponse
	tokensAt time.Time
}

// NewNearIntents creates the NEAR Intents provider. An empty baseURL
// keeps the SDK's default server.
func NewNearIntents(jwtToken, baseURL string, chain chainrpc.Client, log *zap.Logger, breakers *resilience.Breakers) *NearIntents {
	cfg := oneclick.NewConfiguration()
	if baseURL != "" {
		cfg.Servers = oneclick.ServerConfigurations{
			{URL: strings.TrimRight(baseURL, "/")},
		}
	}
	authCtx := context.WithValue(context.Background(), oneclick.ContextAccessToken, jwtToken)

	return &NearIntents{
		client:   oneclick.NewAPIClient(cfg),
		authCtx:  authCtx,
		chain:    chain,
		log:      log,
		breakers: breakers,
		retryCfg: resilience.DefaultRetryConfig(),
	}
}

// Name implements Provider.
func (p *NearIntents) Name() string { return nearIntentsName }

func (p *NearIntents) call(ctx context.Context, op string, fn func() error) error {
	key := "api:" + nearIntentsName
	return resilience.Retry(ctx, p.log, key+":"+op, p.retryCfg, func() error {
		return p.breakers.Do(key, fn)
	})
}

// supportedTokens returns the provider token list, cached briefly.
func (p *NearIntents) supportedTokens(ctx context.Context) ([]oneclick.TokenResponse, error) {
	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()

	if p.tokens != nil && time.Since(p.tokensAt) < tokenCacheTTL {
		return p.tokens, nil
	}

	var tokens []oneclick.TokenResponse
	err := p.call(ctx, "tokens", func() error {
		resp, httpResp, err := p.client.OneClickAPI.GetTokens(p.authCtx).Execute()
		if err != nil {
			return fmt.Errorf("failed to get tokens: %w", err)
		}
		defer httpResp.Body.Close()
		if httpResp.StatusCode != 200 {
			return fmt.Errorf("API returned status code %d", httpResp.StatusCode)
		}
		tokens = resp
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.tokens = tokens
	p.tokensAt = time.Now()
	return tokens, nil
}

// findToken matches a token by chain plus asset id or symbol.
func (p *NearIntents) findToken(ctx context.Context, chain, tokenID string) (*oneclick.TokenResponse, error) {
	tokens, err := p.supportedTokens(ctx)
	if err != nil {
		return nil, err
	}

	for i := range tokens {
		t := &tokens[i]
		if !strings.EqualFold(t.GetBlockchain(), chain) {
			continue
		}
		if t.GetAssetId() == tokenID || strings.EqualFold(t.GetSymbol(), tokenID) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("token %q not found on chain %q", tokenID, chain)
}

// SupportsRoute implements Provider.
func (p *NearIntents) SupportsRoute(ctx context.Context, params types.QuoteParams) (bool, error) {
	if _, err := p.findToken(ctx, params.SourceChain, params.SourceToken); err != nil {
		return false, nil
	}
	if _, err := p.findToken(ctx, params.DestChain, params.DestToken); err != nil {
		return false, nil
	}
	return true, nil
}

// GetQuote implements Provider.
func (p *NearIntents) GetQuote(ctx context.Context, params types.QuoteParams) (*types.BridgeQuote, error) {
	return p.getQuote(ctx, params, false)
}

// ValidateQuote implements Provider: a fresh dry re-quote of the same
// route for drift measurement.
func (p *NearIntents) ValidateQuote(ctx context.Context, quote *types.BridgeQuote) (*types.BridgeQuote, error) {
	return p.getQuote(ctx, quote.Params, true)
}

func (p *NearIntents) getQuote(ctx context.Context, params types.QuoteParams, dry bool) (*types.BridgeQuote, error) {
	sourceToken, err := p.findToken(ctx, params.SourceChain, params.SourceToken)
	if err != nil {
		return nil, swaperr.FromProvider(nearIntentsName, err, "source token error")
	}
	destToken, err := p.findToken(ctx, params.DestChain, params.DestToken)
	if err != nil {
		return nil, swaperr.FromProvider(nearIntentsName, err, "destination token error")
	}

	if params.DestWallet == "" {
		return nil, swaperr.New(swaperr.CodeValidation, "destination wallet is required")
	}
	refundTo := params.UserWallet
	if refundTo == "" {
		refundTo = params.DestWallet
	}

	deadline := time.Now().Add(intentsDeadline)
	quoteReq := oneclick.NewQuoteRequest(
		dry,
		"EXACT_INPUT",
		100, // slippage tolerance, 1%
		sourceToken.GetAssetId(),
		"ORIGIN_CHAIN",
		destToken.GetAssetId(),
		strconv.FormatUint(params.Amount, 10),
		refundTo,
		"ORIGIN_CHAIN",
		params.DestWallet,
		"DESTINATION_CHAIN",
		deadline,
	)

	var resp *oneclick.QuoteResponse
	err = p.call(ctx, "quote", func() error {
		out, httpResp, err := p.client.OneClickAPI.GetQuote(p.authCtx).QuoteRequest(*quoteReq).Execute()
		if err != nil {
			return apiError(httpResp, err)
		}
		defer httpResp.Body.Close()
		if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
			return fmt.Errorf("API returned status code %d", httpResp.StatusCode)
		}
		if out == nil {
			return fmt.Errorf("empty quote response")
		}
		resp = out
		return nil
	})
	if err != nil {
		return nil, swaperr.FromProvider(nearIntentsName, err, "failed to get quote")
	}

	quoteDetails := resp.GetQuote()
	payload, err := json.Marshal(intentsPayload{
		DepositAddress: quoteDetails.GetDepositAddress(),
		Memo:           quoteDetails.GetDepositMemo(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode quote payload: %w", err)
	}

	return &types.BridgeQuote{
		Provider:     nearIntentsName,
		QuoteID:      quoteDetails.GetDepositAddress(),
		Params:       params,
		SourceAmount: params.Amount,
		DestAmount:   quoteDetails.GetAmountOutFormatted(),
		DestFees:     "0", // intents quotes are net of fees
		DurationSec:  int(quoteDetails.GetTimeEstimate()),
		ValidUntil:   time.Now().Add(intentsQuoteTTL),
		Route:        fmt.Sprintf("%s -> intents -> %s", params.SourceChain, params.DestChain),
		Payload:      payload,
	}, nil
}

// BuildTransaction implements Provider: an unsigned source-chain
// transfer of the swap amount into the quote's deposit address.
func (p *NearIntents) BuildTransaction(ctx context.Context, quote *types.BridgeQuote, userWallet string) ([]byte, error) {
	var payload intentsPayload
	if err := json.Unmarshal(quote.Payload, &payload); err != nil {
		return nil, swaperr.FromProvider(nearIntentsName, err, "malformed quote payload")
	}
	if payload.DepositAddress == "" {
		return nil, swaperr.New(swaperr.CodeValidation, "quote has no deposit address; re-quote without dry run")
	}

	user, err := solana.PublicKeyFromBase58(userWallet)
	if err != nil {
		return nil, swaperr.New(swaperr.CodeValidation, "invalid user wallet: %v", err)
	}
	depositAddr, err := solana.PublicKeyFromBase58(payload.DepositAddress)
	if err != nil {
		return nil, swaperr.FromProvider(nearIntentsName, err, "invalid deposit address")
	}

	var instructions []solana.Instruction
	if quote.Params.SourceToken == nativeMint || strings.EqualFold(quote.Params.SourceToken, "SOL") {
		instructions = append(instructions, system.NewTransferInstruction(
			quote.SourceAmount,
			user,
			depositAddr,
		).Build())
	} else {
		mint, err := solana.PublicKeyFromBase58(quote.Params.SourceToken)
		if err != nil {
			return nil, swaperr.New(swaperr.CodeValidation, "invalid source token mint: %v", err)
		}

		sourceATA, _, err := solana.FindAssociatedTokenAddress(user, mint)
		if err != nil {
			return nil, fmt.Errorf("failed to derive source token account: %w", err)
		}
		destATA, _, err := solana.FindAssociatedTokenAddress(depositAddr, mint)
		if err != nil {
			return nil, fmt.Errorf("failed to derive deposit token account: %w", err)
		}

		exists, err := p.chain.AccountExists(ctx, destATA)
		if err != nil {
			return nil, fmt.Errorf("failed to check deposit token account: %w", err)
		}
		if !exists {
			instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(
				user,
				depositAddr,
				mint,
			).Build())
		}

		instructions = append(instructions, token.NewTransferInstruction(
			quote.SourceAmount,
			sourceATA,
			destATA,
			user,
			[]solana.PublicKey{},
		).Build())
	}

	blockhash, err := p.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(user))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return raw, nil
}

// GetStatus implements Provider.
func (p *NearIntents) GetStatus(ctx context.Context, swap *types.Swap) (*types.ExecutionStatus, error) {
	var resp *oneclick.GetExecutionStatusResponse
	err := p.call(ctx, "status", func() error {
		out, httpResp, err := p.client.OneClickAPI.GetExecutionStatus(p.authCtx).DepositAddress(swap.QuoteID).Execute()
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}
		defer httpResp.Body.Close()
		if httpResp.StatusCode != 200 {
			return fmt.Errorf("API returned status code %d", httpResp.StatusCode)
		}
		resp = out
		return nil
	})
	if err != nil {
		return nil, swaperr.FromProvider(nearIntentsName, err, "status query failed")
	}

	status := &types.ExecutionStatus{
		Status: normalizeIntentsStatus(resp.GetStatus()),
	}

	details := resp.GetSwapDetails()
	for _, tx := range details.GetOriginChainTxHashes() {
		if tx.GetHash() != "" {
			status.SourceTx = tx.GetHash()
			break
		}
	}
	for _, tx := range details.GetDestinationChainTxHashes() {
		if tx.GetHash() != "" {
			status.DestTx = tx.GetHash()
			break
		}
	}
	if status.Status == types.BridgeFailed {
		status.Error = resp.GetStatus()
	}
	return status, nil
}

func normalizeIntentsStatus(status string) types.BridgeStatus {
	switch strings.ToUpper(status) {
	case "PENDING_DEPOSIT":
		return types.BridgePending
	case "KNOWN_DEPOSIT_TX", "INCOMPLETE_DEPOSIT":
		return types.BridgeProcessing
	case "PROCESSING":
		return types.BridgeBridging
	case "SUCCESS", "COMPLETED":
		return types.BridgeCompleted
	case "REFUNDED":
		return types.BridgeRefunded
	case "FAILED":
		return types.BridgeFailed
	default:
		return types.BridgeProcessing
	}
}

// NotifyDeposit implements DepositNotifier: reports the source-chain
// transaction hash so the API does not wait for chain discovery.
func (p *NearIntents) NotifyDeposit(ctx context.Context, depositAddress, txHash string) error {
	req := oneclick.NewSubmitDepositTxRequest(depositAddress, txHash)
	return p.call(ctx, "submitDeposit", func() error {
		_, httpResp, err := p.client.OneClickAPI.SubmitDepositTx(p.authCtx).SubmitDepositTxRequest(*req).Execute()
		if err != nil {
			return fmt.Errorf("failed to submit deposit: %w", err)
		}
		defer httpResp.Body.Close()
		if httpResp.StatusCode != 200 && httpResp.StatusCode != 201 {
			return fmt.Errorf("API returned status code %d", httpResp.StatusCode)
		}
		return nil
	})
}

// EstimateCosts implements Provider.
func (p *NearIntents) EstimateCosts(ctx context.Context, quote *types.BridgeQuote) (*types.CostBreakdown, error) {
	costs := &types.CostBreakdown{
		GasLamports:         sponsoredSignatures * 5000,
		PriorityFeeLamports: priorityFeeLamports,
		BridgeFeeLamports:   0, // bridge fee is taken on the destination side
	}
	costs.Normalize()
	return costs, nil
}

// Tokens implements Provider.
func (p *NearIntents) Tokens(ctx context.Context) ([]types.Token, error) {
	tokens, err := p.supportedTokens(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]types.Token, 0, len(tokens))
	for i := range tokens {
		t := &tokens[i]
		out = append(out, types.Token{
			Symbol:   t.GetSymbol(),
			Chain:    t.GetBlockchain(),
			Address:  t.GetAssetId(),
			Decimals: int(t.GetDecimals()),
		})
	}
	return out, nil
}

// apiError extracts the actual error message from an API response body.
func apiError(httpResp *http.Response, err error) error {
	if httpResp == nil {
		return fmt.Errorf("failed to get quote from API: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, readErr := io.ReadAll(httpResp.Body)
	if readErr != nil || len(bodyBytes) == 0 {
		return fmt.Errorf("failed to get quote from API (status %d): %w", httpResp.StatusCode, err)
	}

	var errorResp map[string]interface{}
	if jsonErr := json.Unmarshal(bodyBytes, &errorResp); jsonErr == nil {
		if message, ok := errorResp["message"].(string); ok {
			return fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, message)
		}
		if errs, ok := errorResp["errors"]; ok {
			return fmt.Errorf("API error (status %d): %v", httpResp.StatusCode, errs)
		}
	}
	return fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, string(bodyBytes))
}
