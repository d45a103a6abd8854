package txcodec

import (
	"bytes"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHash(fill byte) solana.Hash {
	var h solana.Hash
	for i := range h {
		h[i] = fill
	}
	return h
}

// buildSignedTx serializes a real single-signer transfer transaction so
// the offset arithmetic is exercised against genuine wire bytes, not
// hand-assembled ones.
func buildSignedTx(t *testing.T, versioned bool, blockhash solana.Hash) []byte {
	t.Helper()

	payer := solana.NewWallet()
	recipient := solana.NewWallet()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(1_000_000, payer.PublicKey(), recipient.PublicKey()).Build(),
		},
		blockhash,
		solana.TransactionPayer(payer.PublicKey()),
	)
	require.NoError(t, err)

	if versioned {
		tx.Message.SetVersion(solana.MessageVersionV0)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer.PublicKey()) {
			return &payer.PrivateKey
		}
		return nil
	})
	require.NoError(t, err)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw
}

func TestCountSignatures(t *testing.T) {
	raw := buildSignedTx(t, false, testHash(0xaa))

	count, err := CountSignatures(raw)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCountSignaturesCompactU16(t *testing.T) {
	count, err := CountSignatures([]byte{0x03})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Two-byte encoding: 0x80 0x02 decodes to 256.
	count, err = CountSignatures([]byte{0x80, 0x02})
	require.NoError(t, err)
	assert.Equal(t, 256, count)

	_, err = CountSignatures(nil)
	assert.Error(t, err)

	_, err = CountSignatures([]byte{0x80})
	assert.Error(t, err)
}

func TestIsVersioned(t *testing.T) {
	legacy := buildSignedTx(t, false, testHash(0xaa))
	v0 := buildSignedTx(t, true, testHash(0xaa))

	got, err := IsVersioned(legacy)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = IsVersioned(v0)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestRequiredSignatures(t *testing.T) {
	for _, versioned := range []bool{false, true} {
		raw := buildSignedTx(t, versioned, testHash(0xaa))
		sigs, err := RequiredSignatures(raw)
		require.NoError(t, err)
		assert.Equal(t, 1, sigs)
	}
}

func TestExtractBlockhash(t *testing.T) {
	want := testHash(0xaa)
	for _, versioned := range []bool{false, true} {
		raw := buildSignedTx(t, versioned, want)
		got, err := ExtractBlockhash(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestReplaceBlockhash(t *testing.T) {
	oldHash := testHash(0xaa)
	newHash := testHash(0xbb)

	for _, versioned := range []bool{false, true} {
		raw := buildSignedTx(t, versioned, oldHash)
		before := make([]byte, len(raw))
		copy(before, raw)

		out, err := ReplaceBlockhash(raw, oldHash, newHash)
		require.NoError(t, err)

		// Input untouched, output carries the new token.
		assert.Equal(t, before, raw)
		got, err := ExtractBlockhash(out)
		require.NoError(t, err)
		assert.Equal(t, newHash, got)

		// Everything except the 32 patched bytes is byte-identical.
		offset, err := BlockhashOffset(raw)
		require.NoError(t, err)
		assert.Equal(t, raw[:offset], out[:offset])
		assert.Equal(t, raw[offset+HashSize:], out[offset+HashSize:])

		// The patched bytes still parse as a valid transaction.
		tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(out))
		require.NoError(t, err)
		assert.Equal(t, newHash, tx.Message.RecentBlockhash)
	}
}

func TestReplaceBlockhashSameHashIsIdentity(t *testing.T) {
	hash := testHash(0xaa)
	raw := buildSignedTx(t, false, hash)

	out, err := ReplaceBlockhash(raw, hash, hash)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(raw, out))
}

func TestReplaceBlockhashMismatch(t *testing.T) {
	raw := buildSignedTx(t, false, testHash(0xaa))

	_, err := ReplaceBlockhash(raw, testHash(0xcc), testHash(0xbb))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestBlockhashOffsetTruncated(t *testing.T) {
	raw := buildSignedTx(t, false, testHash(0xaa))
	offset, err := BlockhashOffset(raw)
	require.NoError(t, err)

	_, err = BlockhashOffset(raw[:offset+10])
	assert.Error(t, err)
}

func TestCheckSize(t *testing.T) {
	assert.NoError(t, CheckSize(make([]byte, MaxTransactionSize)))
	assert.Error(t, CheckSize(make([]byte, MaxTransactionSize+1)))
}
