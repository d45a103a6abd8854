package chainrpc

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	addresslookuptable "github.com/gagliardetto/solana-go/programs/address-lookup-table"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"swapd/pkg/resilience"
)

// Client is the facade over source-chain RPC used by the rest of the
// engine. Implementations return typed results or errors; callers treat
// the chain as a black box.
type Client interface {
	GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	GetTokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error)
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
	AccountExists(ctx context.Context, account solana.PublicKey) (bool, error)
	GetLookupTable(ctx context.Context, table solana.PublicKey) (solana.PublicKeySlice, error)
	SimulateTransaction(ctx context.Context, tx *solana.Transaction) error
	SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error)
}

// SolanaClient implements Client over a solana-go RPC client with
// per-call retry and a circuit breaker keyed per RPC method.
type SolanaClient struct {
	rpc        *rpc.Client
	log        *zap.Logger
	breakers   *resilience.Breakers
	retryCfg   resilience.RetryConfig
	commitment rpc.CommitmentType
}

// NewSolanaClient creates a Client backed by the given RPC endpoint.
func NewSolanaClient(rpcURL, commitment string, log *zap.Logger, breakers *resilience.Breakers) *SolanaClient {
	return &SolanaClient{
		rpc:        rpc.New(rpcURL),
		log:        log,
		breakers:   breakers,
		retryCfg:   resilience.DefaultRetryConfig(),
		commitment: parseCommitment(commitment),
	}
}

func parseCommitment(commitment string) rpc.CommitmentType {
	switch strings.ToLower(commitment) {
	case "finalized":
		return rpc.CommitmentFinalized
	case "confirmed":
		return rpc.CommitmentConfirmed
	case "processed":
		return rpc.CommitmentProcessed
	default:
		return rpc.CommitmentConfirmed
	}
}

// call wraps an RPC invocation in retry and the per-method breaker.
func (c *SolanaClient) call(ctx context.Context, method string, fn func() error) error {
	key := "rpc:" + method
	return resilience.Retry(ctx, c.log, key, c.retryCfg, func() error {
		return c.breakers.Do(key, fn)
	})
}

// GetBalance returns the lamport balance of an account.
func (c *SolanaClient) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	var balance uint64
	err := c.call(ctx, "getBalance", func() error {
		out, err := c.rpc.GetBalance(ctx, account, c.commitment)
		if err != nil {
			return err
		}
		balance = out.Value
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// GetTokenBalance returns the raw token balance of a token account.
func (c *SolanaClient) GetTokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error) {
	var amount uint64
	err := c.call(ctx, "getTokenAccountBalance", func() error {
		out, err := c.rpc.GetTokenAccountBalance(ctx, tokenAccount, c.commitment)
		if err != nil {
			return err
		}
		parsed, err := strconv.ParseUint(out.Value.Amount, 10, 64)
		if err != nil {
			return resilience.Permanent(fmt.Errorf("failed to parse token balance: %w", err))
		}
		amount = parsed
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get token balance: %w", err)
	}
	return amount, nil
}

// GetLatestBlockhash returns a fresh recency token.
func (c *SolanaClient) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var hash solana.Hash
	err := c.call(ctx, "getLatestBlockhash", func() error {
		out, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
		if err != nil {
			return err
		}
		hash = out.Value.Blockhash
		return nil
	})
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	return hash, nil
}

// GetAccountData returns the raw account data, or an error if the
// account does not exist.
func (c *SolanaClient) GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	var data []byte
	err := c.call(ctx, "getAccountInfo", func() error {
		out, err := c.rpc.GetAccountInfo(ctx, account)
		if err != nil {
			return err
		}
		if out.Value == nil {
			return resilience.Permanent(fmt.Errorf("account %s not found", account))
		}
		data = out.Value.Data.GetBinary()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// AccountExists checks whether an account exists on-chain.
func (c *SolanaClient) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	var exists bool
	err := c.call(ctx, "getAccountInfo", func() error {
		out, err := c.rpc.GetAccountInfo(ctx, account)
		if err != nil {
			if strings.Contains(err.Error(), "not found") {
				exists = false
				return nil
			}
			return err
		}
		exists = out.Value != nil
		return nil
	})
	if err != nil {
		return false, err
	}
	return exists, nil
}

// GetLookupTable fetches and decodes an address lookup table account.
func (c *SolanaClient) GetLookupTable(ctx context.Context, table solana.PublicKey) (solana.PublicKeySlice, error) {
	data, err := c.GetAccountData(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lookup table %s: %w", table, err)
	}

	state, err := addresslookuptable.DecodeAddressLookupTableState(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode lookup table %s: %w", table, err)
	}

	return state.Addresses, nil
}

// SimulateTransaction dry-runs a transaction and maps chain errors to
// actionable messages where possible.
func (c *SolanaClient) SimulateTransaction(ctx context.Context, tx *solana.Transaction) error {
	var simErr error
	err := c.call(ctx, "simulateTransaction", func() error {
		out, err := c.rpc.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
			SigVerify:              false,
			ReplaceRecentBlockhash: true,
			Commitment:             c.commitment,
		})
		if err != nil {
			return err
		}
		if out.Value != nil && out.Value.Err != nil {
			simErr = mapSimulationError(out.Value.Err, out.Value.Logs)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("simulation request failed: %w", err)
	}
	return simErr
}

// mapSimulationError distinguishes actionable failures from opaque ones.
func mapSimulationError(chainErr interface{}, logs []string) error {
	text := fmt.Sprintf("%v", chainErr)
	joined := strings.ToLower(strings.Join(logs, " "))

	if strings.Contains(joined, "insufficient lamports") ||
		strings.Contains(joined, "insufficient funds") ||
		strings.Contains(text, "InsufficientFundsForFee") {
		return fmt.Errorf("simulation failed: insufficient balance: %s", text)
	}
	if strings.Contains(text, "BlockhashNotFound") {
		return fmt.Errorf("simulation failed: stale blockhash: %s", text)
	}
	return fmt.Errorf("simulation failed: %s", text)
}

// SendRawTransaction submits already-serialized transaction bytes.
// Submission is a single attempt behind the breaker; a blind retry
// could double-spend.
func (c *SolanaClient) SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	var sig solana.Signature
	err := c.breakers.Do("rpc:sendTransaction", func() error {
		out, err := c.rpc.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: c.commitment,
		})
		if err != nil {
			return err
		}
		sig = out
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}
