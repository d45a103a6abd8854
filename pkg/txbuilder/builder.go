package txbuilder

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"go.uber.org/zap"

	"swapd/pkg/chainrpc"
	"swapd/pkg/fees"
	"swapd/pkg/swaperr"
	"swapd/pkg/txcodec"
	"swapd/pkg/types"
)

// tokenAccountRent is the rent-exempt balance of an SPL token account.
const tokenAccountRent = 2039280

// BuildResult is a rebuilt transaction in both forms. Raw is what gets
// cached, shown for signature, and eventually submitted.
type BuildResult struct {
	Raw          []byte
	Tx           *solana.Transaction
	RentLamports uint64
}

// Builder assembles and validates sponsored swap transactions. It works
// on serialized bytes where provider-supplied content must pass through
// intact, and on decompiled instructions where the fee leg is injected.
type Builder struct {
	chain    chainrpc.Client
	sponsor  solana.PrivateKey
	usdcMint solana.PublicKey
	log      *zap.Logger
}

// New creates a Builder. The sponsor key signs its slot of every
// sponsored transaction and pays rent for any account creation.
func New(chain chainrpc.Client, sponsor solana.PrivateKey, usdcMint solana.PublicKey, log *zap.Logger) *Builder {
	return &Builder{
		chain:    chain,
		sponsor:  sponsor,
		usdcMint: usdcMint,
		log:      log,
	}
}

// Sponsor returns the sponsor's public key.
func (b *Builder) Sponsor() solana.PublicKey {
	return b.sponsor.PublicKey()
}

// USDCMint returns the configured fee token mint.
func (b *Builder) USDCMint() solana.PublicKey {
	return b.usdcMint
}

// DecodeTransaction parses serialized transaction bytes.
func DecodeTransaction(raw []byte) (*solana.Transaction, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return tx, nil
}

// fetchLookupTables loads every address lookup table a message
// references, so table-relative account indexes can be resolved to full
// addresses before decompiling.
func (b *Builder) fetchLookupTables(ctx context.Context, msg *solana.Message) (map[solana.PublicKey]solana.PublicKeySlice, error) {
	tables := make(map[solana.PublicKey]solana.PublicKeySlice)
	for _, lookup := range msg.AddressTableLookups {
		if _, done := tables[lookup.AccountKey]; done {
			continue
		}
		addresses, err := b.chain.GetLookupTable(ctx, lookup.AccountKey)
		if err != nil {
			return nil, err
		}
		tables[lookup.AccountKey] = addresses
	}
	return tables, nil
}

// ReplaceBlockhash refreshes the recency token of a provider
// transaction in place, leaving every other byte untouched.
func (b *Builder) ReplaceBlockhash(ctx context.Context, raw []byte) ([]byte, error) {
	oldHash, err := txcodec.ExtractBlockhash(raw)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.CodeTxValidation, err, "cannot locate recency token")
	}

	newHash, err := b.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	out, err := txcodec.ReplaceBlockhash(raw, oldHash, newHash)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.CodeTxValidation, err, "recency token replacement failed")
	}
	return out, nil
}

// feeInstructions builds the fee-collection leg: a native transfer for
// SOL fees, or an associated-account creation (sponsor pays the rent)
// plus token transfer for USDC fees. The user is the authorizing party
// and signs later, externally.
func (b *Builder) feeInstructions(ctx context.Context, user solana.PublicKey, fee *types.UserFee) ([]solana.Instruction, uint64, error) {
	sponsor := b.sponsor.PublicKey()

	switch fee.Token {
	case types.FeeTokenSOL:
		ix := system.NewTransferInstruction(fee.Amount, user, sponsor).Build()
		return []solana.Instruction{ix}, 0, nil

	case types.FeeTokenUSDC:
		userATA, _, err := solana.FindAssociatedTokenAddress(user, b.usdcMint)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to derive user token account: %w", err)
		}
		sponsorATA, _, err := solana.FindAssociatedTokenAddress(sponsor, b.usdcMint)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to derive sponsor token account: %w", err)
		}

		var instructions []solana.Instruction
		var rent uint64

		exists, err := b.chain.AccountExists(ctx, sponsorATA)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to check sponsor token account: %w", err)
		}
		if !exists {
			instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(
				sponsor,
				sponsor,
				b.usdcMint,
			).Build())
			rent = tokenAccountRent
		}

		instructions = append(instructions, token.NewTransferInstruction(
			fee.Amount,
			userATA,
			sponsorATA,
			user,
			[]solana.PublicKey{},
		).Build())
		return instructions, rent, nil

	default:
		return nil, 0, swaperr.New(swaperr.CodeValidation, "unsupported fee token %q", fee.Token)
	}
}

// EstimateFeeRent predicts the rent the sponsor will pay for fee-leg
// account creation, so the cost breakdown can include it before the
// minimum fee is computed.
func (b *Builder) EstimateFeeRent(ctx context.Context, feeToken types.FeeToken) (uint64, error) {
	if feeToken != types.FeeTokenUSDC {
		return 0, nil
	}
	sponsorATA, _, err := solana.FindAssociatedTokenAddress(b.sponsor.PublicKey(), b.usdcMint)
	if err != nil {
		return 0, fmt.Errorf("failed to derive sponsor token account: %w", err)
	}
	exists, err := b.chain.AccountExists(ctx, sponsorATA)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, nil
	}
	return tokenAccountRent, nil
}

// BuildSponsored rebuilds a provider transaction as a sponsored one:
// [optional sponsor advance] + [fee instructions] + [bridge
// instructions], sponsor as fee payer with a fresh recency token,
// partially signed by the sponsor with the user's slot left open.
func (b *Builder) BuildSponsored(ctx context.Context, providerTx []byte, user solana.PublicKey, fee *types.UserFee, advanceLamports uint64) (*BuildResult, error) {
	parsed, err := DecodeTransaction(providerTx)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.CodeTxValidation, err, "provider transaction is malformed")
	}

	tables, err := b.fetchLookupTables(ctx, &parsed.Message)
	if err != nil {
		return nil, err
	}

	bridgeIxs, err := DecompileInstructions(&parsed.Message, tables)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.CodeTxValidation, err, "failed to decompile provider instructions")
	}

	feeIxs, rent, err := b.feeInstructions(ctx, user, fee)
	if err != nil {
		return nil, err
	}

	sponsor := b.sponsor.PublicKey()
	var instructions []solana.Instruction
	if advanceLamports > 0 {
		instructions = append(instructions, system.NewTransferInstruction(
			advanceLamports,
			sponsor,
			user,
		).Build())
	}
	instructions = append(instructions, feeIxs...)
	instructions = append(instructions, bridgeIxs...)

	blockhash, err := b.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(sponsor))
	if err != nil {
		return nil, fmt.Errorf("failed to assemble sponsored transaction: %w", err)
	}

	// Sponsor signs its slot now; the user signature slot stays open
	// until the wallet returns the signed bytes.
	_, err = tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(sponsor) {
			return &b.sponsor
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sponsor signing failed: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize sponsored transaction: %w", err)
	}

	if err := b.ValidateNoLeak(raw, &sponsor); err != nil {
		return nil, err
	}
	if err := txcodec.CheckSize(raw); err != nil {
		return nil, swaperr.Wrap(swaperr.CodeTxValidation, err, "sponsored transaction too large")
	}

	return &BuildResult{Raw: raw, Tx: tx, RentLamports: rent}, nil
}

// BuildDirect rebuilds a provider transaction with the user as fee
// payer and no fee instructions, for users paying source-chain costs
// directly instead of via a sponsor fee.
func (b *Builder) BuildDirect(ctx context.Context, providerTx []byte, user solana.PublicKey) (*BuildResult, error) {
	parsed, err := DecodeTransaction(providerTx)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.CodeTxValidation, err, "provider transaction is malformed")
	}

	tables, err := b.fetchLookupTables(ctx, &parsed.Message)
	if err != nil {
		return nil, err
	}

	bridgeIxs, err := DecompileInstructions(&parsed.Message, tables)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.CodeTxValidation, err, "failed to decompile provider instructions")
	}

	blockhash, err := b.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := solana.NewTransaction(bridgeIxs, blockhash, solana.TransactionPayer(user))
	if err != nil {
		return nil, fmt.Errorf("failed to assemble direct transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize direct transaction: %w", err)
	}
	if err := txcodec.CheckSize(raw); err != nil {
		return nil, swaperr.Wrap(swaperr.CodeTxValidation, err, "direct transaction too large")
	}

	return &BuildResult{Raw: raw, Tx: tx}, nil
}

// DecodedInstructions returns the shape-validator view of a serialized
// transaction's instruction list. Program ids always come from the
// static key section, so no table resolution is needed here.
func DecodedInstructions(raw []byte) ([]fees.DecodedInstruction, error) {
	tx, err := DecodeTransaction(raw)
	if err != nil {
		return nil, err
	}

	msg := &tx.Message
	out := make([]fees.DecodedInstruction, 0, len(msg.Instructions))
	for i, compiled := range msg.Instructions {
		if int(compiled.ProgramIDIndex) >= len(msg.AccountKeys) {
			return nil, fmt.Errorf("instruction %d: program id index out of range", i)
		}
		var accounts []solana.PublicKey
		for _, idx := range compiled.Accounts {
			if int(idx) < len(msg.AccountKeys) {
				accounts = append(accounts, msg.AccountKeys[idx])
			}
		}
		out = append(out, fees.DecodedInstruction{
			ProgramID: msg.AccountKeys[compiled.ProgramIDIndex],
			Accounts:  accounts,
			Data:      []byte(compiled.Data),
		})
	}
	return out, nil
}

// ValidateNoLeak is the last line of defense before a transaction is
// shown to the user for signature and again before submission: the
// sponsor must be the fee payer (account index 0) when supplied, at
// least two instructions must exist, and the first must target a
// fee-transfer-capable program.
func (b *Builder) ValidateNoLeak(raw []byte, sponsor *solana.PublicKey) error {
	tx, err := DecodeTransaction(raw)
	if err != nil {
		return swaperr.Wrap(swaperr.CodeTxValidation, err, "cannot decode transaction for leak validation")
	}
	msg := &tx.Message

	if sponsor != nil {
		if len(msg.AccountKeys) == 0 || !msg.AccountKeys[0].Equals(*sponsor) {
			return swaperr.New(swaperr.CodeTxValidation,
				"FUND LEAK BLOCKED: sponsor %s is not the fee payer", sponsor)
		}
	}

	if len(msg.Instructions) < 2 {
		return swaperr.New(swaperr.CodeTxValidation,
			"FUND LEAK BLOCKED: transaction has %d instruction(s), expected fee + bridge", len(msg.Instructions))
	}

	first := msg.Instructions[0]
	if int(first.ProgramIDIndex) >= len(msg.AccountKeys) {
		return swaperr.New(swaperr.CodeTxValidation, "first instruction has invalid program index")
	}
	program := msg.AccountKeys[first.ProgramIDIndex]
	if !fees.IsFeeTransferProgram(program) {
		return swaperr.New(swaperr.CodeTxValidation,
			"FUND LEAK BLOCKED: first instruction targets %s, not a fee-transfer program", program)
	}

	return nil
}

// Simulate dry-runs a serialized transaction on the source chain.
func (b *Builder) Simulate(ctx context.Context, raw []byte) error {
	tx, err := DecodeTransaction(raw)
	if err != nil {
		return swaperr.Wrap(swaperr.CodeTxValidation, err, "cannot decode transaction for simulation")
	}
	return b.chain.SimulateTransaction(ctx, tx)
}

// AdjustCostsForSignatures recomputes the gas component of a cost
// breakdown from a transaction's required signature count plus any
// signers the rebuild will add on top (the sponsor, typically).
func AdjustCostsForSignatures(costs *types.CostBreakdown, raw []byte, extraSigners int) error {
	sigs, err := txcodec.RequiredSignatures(raw)
	if err != nil {
		return err
	}
	costs.GasLamports = uint64(sigs+extraSigners) * fees.LamportsPerSignature
	costs.Normalize()
	return nil
}
