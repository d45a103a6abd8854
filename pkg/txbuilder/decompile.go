package txbuilder

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// resolvedKey is one entry of a message's full account list after
// address lookup tables are applied.
type resolvedKey struct {
	key      solana.PublicKey
	signer   bool
	writable bool
}

// resolveAccountKeys builds the full ordered account list of a message:
// static keys first, then table-loaded writable keys, then table-loaded
// readonly keys. Signer and writable flags follow the message header.
func resolveAccountKeys(msg *solana.Message, tables map[solana.PublicKey]solana.PublicKeySlice) ([]resolvedKey, error) {
	numRequired := int(msg.Header.NumRequiredSignatures)
	numReadonlySigned := int(msg.Header.NumReadonlySignedAccounts)
	numReadonlyUnsigned := int(msg.Header.NumReadonlyUnsignedAccounts)
	static := msg.AccountKeys

	if numRequired > len(static) {
		return nil, fmt.Errorf("message header requires %d signatures but has %d static keys", numRequired, len(static))
	}

	keys := make([]resolvedKey, 0, len(static))
	for i, key := range static {
		signer := i < numRequired
		var writable bool
		if signer {
			writable = i < numRequired-numReadonlySigned
		} else {
			writable = i < len(static)-numReadonlyUnsigned
		}
		keys = append(keys, resolvedKey{key: key, signer: signer, writable: writable})
	}

	// Loaded addresses: all writable sections in table order, then all
	// readonly sections in table order.
	for _, lookup := range msg.AddressTableLookups {
		table, ok := tables[lookup.AccountKey]
		if !ok {
			return nil, fmt.Errorf("lookup table %s not resolved", lookup.AccountKey)
		}
		for _, idx := range lookup.WritableIndexes {
			if int(idx) >= len(table) {
				return nil, fmt.Errorf("lookup table %s index %d out of range (%d addresses)", lookup.AccountKey, idx, len(table))
			}
			keys = append(keys, resolvedKey{key: table[idx], writable: true})
		}
	}
	for _, lookup := range msg.AddressTableLookups {
		table, ok := tables[lookup.AccountKey]
		if !ok {
			return nil, fmt.Errorf("lookup table %s not resolved", lookup.AccountKey)
		}
		for _, idx := range lookup.ReadonlyIndexes {
			if int(idx) >= len(table) {
				return nil, fmt.Errorf("lookup table %s index %d out of range (%d addresses)", lookup.AccountKey, idx, len(table))
			}
			keys = append(keys, resolvedKey{key: table[idx]})
		}
	}

	return keys, nil
}

// DecompileInstructions converts a message's compiled instructions back
// into buildable instructions, preserving account ordering and signer
// roles. Referenced lookup tables must already be fetched into tables;
// a legacy message needs none.
func DecompileInstructions(msg *solana.Message, tables map[solana.PublicKey]solana.PublicKeySlice) ([]solana.Instruction, error) {
	keys, err := resolveAccountKeys(msg, tables)
	if err != nil {
		return nil, err
	}

	out := make([]solana.Instruction, 0, len(msg.Instructions))
	for i, compiled := range msg.Instructions {
		// Program ids always live in the static key section.
		if int(compiled.ProgramIDIndex) >= len(msg.AccountKeys) {
			return nil, fmt.Errorf("instruction %d: program id index %d out of static range", i, compiled.ProgramIDIndex)
		}
		programID := msg.AccountKeys[compiled.ProgramIDIndex]

		metas := make(solana.AccountMetaSlice, 0, len(compiled.Accounts))
		for _, accIdx := range compiled.Accounts {
			if int(accIdx) >= len(keys) {
				return nil, fmt.Errorf("instruction %d: account index %d out of range (%d keys)", i, accIdx, len(keys))
			}
			k := keys[accIdx]
			metas = append(metas, &solana.AccountMeta{
				PublicKey:  k.key,
				IsSigner:   k.signer,
				IsWritable: k.writable,
			})
		}

		out = append(out, solana.NewInstruction(programID, metas, []byte(compiled.Data)))
	}
	return out, nil
}
