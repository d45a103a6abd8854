package bridge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swapd/pkg/resilience"
	"swapd/pkg/swaperr"
	"swapd/pkg/types"
)

const allbridgeName = "allbridge"

// evmChains are destination chains whose wallet addresses are EVM hex
// addresses.
var evmChains = map[string]bool{
	"eth":       true,
	"ethereum":  true,
	"bsc":       true,
	"polygon":   true,
	"arbitrum":  true,
	"base":      true,
	"optimism":  true,
	"avalanche": true,
}

// Allbridge bridges through the Allbridge Core REST API. Unlike the
// intents flow, this API returns a fully-formed serialized source-chain
// transaction that must be passed through byte-for-byte.
type Allbridge struct {
	baseURL  string
	http     *http.Client
	log      *zap.Logger
	breakers *resilience.Breakers
	retryCfg resilience.RetryConfig

	tokenMu  sync.Mutex
	tokens   []types.Token
	tokensAt time.Time
}

// allbridgeQuote is the API's quote response, round-tripped as the
// opaque payload.
type allbridgeQuote struct {
	QuoteID     string `json:"quoteId"`
	AmountOut   string `json:"amountOut"`
	TotalFees   string `json:"totalFees"`
	DurationSec int    `json:"durationSec"`
	ExpiresAt   int64  `json:"expiresAt"`
	Route       string `json:"route"`
	GasLamports uint64 `json:"gasLamports"`
	BridgeFee   uint64 `json:"bridgeFeeLamports"`
}

type allbridgeToken struct {
	Symbol   string `json:"symbol"`
	Chain    string `json:"chainSymbol"`
	Address  string `json:"tokenAddress"`
	Decimals int    `json:"decimals"`
}

// NewAllbridge creates the Allbridge provider.
func NewAllbridge(baseURL string, log *zap.Logger, breakers *resilience.Breakers) *Allbridge {
	return &Allbridge{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 15 * time.Second},
		log:      log,
		breakers: breakers,
		retryCfg: resilience.DefaultRetryConfig(),
	}
}

// Name implements Provider.
func (p *Allbridge) Name() string { return allbridgeName }

// doJSON performs one HTTP exchange and decodes the JSON response.
func (p *Allbridge) doJSON(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := p.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Message string `json:"message"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil && errResp.Message != "" {
			err = fmt.Errorf("API error (status %d): %s", resp.StatusCode, errResp.Message)
		} else {
			err = fmt.Errorf("API returned status code %d", resp.StatusCode)
		}
		// 4xx responses are not transient; do not burn retries on them.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != 429 {
			return resilience.Permanent(err)
		}
		return err
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// call wraps an API exchange in retry and the provider breaker.
func (p *Allbridge) call(ctx context.Context, op string, fn func() error) error {
	key := "api:" + allbridgeName
	return resilience.Retry(ctx, p.log, key+":"+op, p.retryCfg, func() error {
		return p.breakers.Do(key, fn)
	})
}

// supportedTokens fetches and caches the bridgeable token list.
func (p *Allbridge) supportedTokens(ctx context.Context) ([]types.Token, error) {
	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()

	if p.tokens != nil && time.Since(p.tokensAt) < tokenCacheTTL {
		return p.tokens, nil
	}

	var resp struct {
		Tokens []allbridgeToken `json:"tokens"`
	}
	err := p.call(ctx, "tokens", func() error {
		return p.doJSON(ctx, http.MethodGet, "/tokens", nil, nil, &resp)
	})
	if err != nil {
		return nil, swaperr.FromProvider(allbridgeName, err, "token list fetch failed")
	}

	out := make([]types.Token, 0, len(resp.Tokens))
	for _, t := range resp.Tokens {
		out = append(out, types.Token{
			Symbol:   t.Symbol,
			Chain:    strings.ToLower(t.Chain),
			Address:  t.Address,
			Decimals: t.Decimals,
		})
	}

	p.tokens = out
	p.tokensAt = time.Now()
	return out, nil
}

func (p *Allbridge) hasToken(tokens []types.Token, chain, address string) bool {
	for _, t := range tokens {
		if strings.EqualFold(t.Chain, chain) &&
			(t.Address == address || strings.EqualFold(t.Symbol, address)) {
			return true
		}
	}
	return false
}

// SupportsRoute implements Provider.
func (p *Allbridge) SupportsRoute(ctx context.Context, params types.QuoteParams) (bool, error) {
	if evmChains[strings.ToLower(params.DestChain)] && !common.IsHexAddress(params.DestWallet) {
		return false, nil
	}

	tokens, err := p.supportedTokens(ctx)
	if err != nil {
		return false, err
	}
	return p.hasToken(tokens, params.SourceChain, params.SourceToken) &&
		p.hasToken(tokens, params.DestChain, params.DestToken), nil
}

// GetQuote implements Provider.
func (p *Allbridge) GetQuote(ctx context.Context, params types.QuoteParams) (*types.BridgeQuote, error) {
	if evmChains[strings.ToLower(params.DestChain)] && !common.IsHexAddress(params.DestWallet) {
		return nil, swaperr.New(swaperr.CodeValidation,
			"destination wallet %q is not a valid address for chain %s", params.DestWallet, params.DestChain)
	}

	reqBody := map[string]string{
		"sourceChain": params.SourceChain,
		"sourceToken": params.SourceToken,
		"amount":      strconv.FormatUint(params.Amount, 10),
		"destChain":   params.DestChain,
		"destToken":   params.DestToken,
		"recipient":   params.DestWallet,
		"sender":      params.UserWallet,
	}

	var quote allbridgeQuote
	err := p.call(ctx, "quote", func() error {
		return p.doJSON(ctx, http.MethodPost, "/quote", nil, reqBody, &quote)
	})
	if err != nil {
		return nil, swaperr.FromProvider(allbridgeName, err, "failed to get quote")
	}

	payload, err := json.Marshal(quote)
	if err != nil {
		return nil, fmt.Errorf("failed to encode quote payload: %w", err)
	}

	return &types.BridgeQuote{
		Provider:     allbridgeName,
		QuoteID:      quote.QuoteID,
		Params:       params,
		SourceAmount: params.Amount,
		DestAmount:   quote.AmountOut,
		DestFees:     quote.TotalFees,
		DurationSec:  quote.DurationSec,
		ValidUntil:   time.Unix(quote.ExpiresAt, 0),
		Route:        quote.Route,
		Payload:      payload,
	}, nil
}

// ValidateQuote implements Provider.
func (p *Allbridge) ValidateQuote(ctx context.Context, quote *types.BridgeQuote) (*types.BridgeQuote, error) {
	return p.GetQuote(ctx, quote.Params)
}

// BuildTransaction implements Provider. The API may mint a new internal
// order id on each call, so this is deliberately not wrapped in retry.
func (p *Allbridge) BuildTransaction(ctx context.Context, quote *types.BridgeQuote, userWallet string) ([]byte, error) {
	var payload allbridgeQuote
	if err := json.Unmarshal(quote.Payload, &payload); err != nil {
		return nil, swaperr.FromProvider(allbridgeName, err, "malformed quote payload")
	}

	reqBody := map[string]string{
		"quoteId": payload.QuoteID,
		"sender":  userWallet,
	}

	var resp struct {
		Transaction string `json:"transaction"` // base64 serialized tx
	}
	err := p.breakers.Do("api:"+allbridgeName, func() error {
		return p.doJSON(ctx, http.MethodPost, "/raw/swap", nil, reqBody, &resp)
	})
	if err != nil {
		return nil, swaperr.FromProvider(allbridgeName, err, "failed to build transaction")
	}
	if resp.Transaction == "" {
		return nil, swaperr.FromProvider(allbridgeName, nil, "API returned an empty transaction")
	}

	raw, err := base64.StdEncoding.DecodeString(resp.Transaction)
	if err != nil {
		return nil, swaperr.FromProvider(allbridgeName, err, "transaction is not valid base64")
	}
	return raw, nil
}

// GetStatus implements Provider.
func (p *Allbridge) GetStatus(ctx context.Context, swap *types.Swap) (*types.ExecutionStatus, error) {
	query := url.Values{}
	if swap.SourceTx != "" {
		query.Set("txId", swap.SourceTx)
	} else {
		query.Set("quoteId", swap.QuoteID)
	}

	var resp struct {
		Status   string `json:"status"`
		SourceTx string `json:"sourceTx"`
		DestTx   string `json:"destTx"`
		Error    string `json:"error"`
	}
	err := p.call(ctx, "status", func() error {
		return p.doJSON(ctx, http.MethodGet, "/status", query, nil, &resp)
	})
	if err != nil {
		return nil, swaperr.FromProvider(allbridgeName, err, "status query failed")
	}

	return &types.ExecutionStatus{
		Status:   normalizeAllbridgeStatus(resp.Status),
		SourceTx: resp.SourceTx,
		DestTx:   resp.DestTx,
		Error:    resp.Error,
	}, nil
}

func normalizeAllbridgeStatus(status string) types.BridgeStatus {
	switch strings.ToLower(status) {
	case "pending":
		return types.BridgePending
	case "received", "confirming":
		return types.BridgeProcessing
	case "bridging", "sending":
		return types.BridgeBridging
	case "done", "completed", "success":
		return types.BridgeCompleted
	case "refunded":
		return types.BridgeRefunded
	case "failed", "error":
		return types.BridgeFailed
	default:
		return types.BridgeProcessing
	}
}

// EstimateCosts implements Provider, using the API's quoted gas and
// bridge fee when present.
func (p *Allbridge) EstimateCosts(ctx context.Context, quote *types.BridgeQuote) (*types.CostBreakdown, error) {
	var payload allbridgeQuote
	if err := json.Unmarshal(quote.Payload, &payload); err != nil {
		return nil, swaperr.FromProvider(allbridgeName, err, "malformed quote payload")
	}

	gas := payload.GasLamports
	if gas == 0 {
		gas = sponsoredSignatures * 5000
	}
	costs := &types.CostBreakdown{
		GasLamports:         gas,
		PriorityFeeLamports: priorityFeeLamports,
		BridgeFeeLamports:   payload.BridgeFee,
	}
	costs.Normalize()
	return costs, nil
}

// Tokens implements Provider.
func (p *Allbridge) Tokens(ctx context.Context) ([]types.Token, error) {
	return p.supportedTokens(ctx)
}
