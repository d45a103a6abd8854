// Package txcodec manipulates serialized source-chain transactions at
// the byte level. The wire layout is
//
//	[compact-u16 signature count][signatures x 64][message]
//
// where the message is either legacy
//
//	[header 3 bytes][compact-u16 account count][accounts x 32][blockhash 32][instructions...]
//
// or versioned, distinguished by the high bit of its first byte
//
//	[0x80|version][header 3 bytes][compact-u16 account count][accounts x 32][blockhash 32][instructions...][table lookups...]
//
// Opaque provider-supplied transactions must pass through with their
// address-table references, account ordering and signer roles intact,
// so the offset arithmetic here never re-encodes the message; it only
// locates and patches fixed-width fields in place.
package txcodec

import (
	"bytes"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	// HashSize is the width of the recency token (blockhash).
	HashSize = 32

	// SignatureSize is the width of one ed25519 signature.
	SignatureSize = 64

	// MaxTransactionSize is the serialized size limit imposed by the
	// source chain's packet layer.
	MaxTransactionSize = 1232

	versionPrefixMask = 0x80
	messageHeaderSize = 3
)

// readCompactU16 decodes the chain's compact-u16 length prefix starting
// at pos. Returns the value and the number of bytes consumed.
func readCompactU16(data []byte, pos int) (int, int, error) {
	value := 0
	shift := 0
	for i := 0; i < 3; i++ {
		if pos+i >= len(data) {
			return 0, 0, fmt.Errorf("truncated compact-u16 at offset %d", pos)
		}
		b := data[pos+i]
		value |= int(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("malformed compact-u16 at offset %d", pos)
}

// CountSignatures returns the number of signature slots in the
// serialized transaction.
func CountSignatures(raw []byte) (int, error) {
	count, _, err := readCompactU16(raw, 0)
	return count, err
}

// messageStart returns the byte offset where the message begins.
func messageStart(raw []byte) (int, error) {
	sigCount, prefixLen, err := readCompactU16(raw, 0)
	if err != nil {
		return 0, err
	}
	start := prefixLen + sigCount*SignatureSize
	if start >= len(raw) {
		return 0, fmt.Errorf("transaction truncated: %d signatures do not fit in %d bytes", sigCount, len(raw))
	}
	return start, nil
}

// IsVersioned reports whether the serialized transaction carries a
// versioned message.
func IsVersioned(raw []byte) (bool, error) {
	start, err := messageStart(raw)
	if err != nil {
		return false, err
	}
	return raw[start]&versionPrefixMask != 0, nil
}

// RequiredSignatures returns the message header's required signature
// count. Sponsor-side cost estimation depends on this, not on the
// signature slots actually present.
func RequiredSignatures(raw []byte) (int, error) {
	start, err := messageStart(raw)
	if err != nil {
		return 0, err
	}
	headerPos := start
	if raw[start]&versionPrefixMask != 0 {
		version := raw[start] & 0x7f
		if version != 0 {
			return 0, fmt.Errorf("unsupported message version %d", version)
		}
		headerPos++
	}
	if headerPos >= len(raw) {
		return 0, fmt.Errorf("transaction truncated before message header")
	}
	return int(raw[headerPos]), nil
}

// BlockhashOffset computes the exact byte offset of the 32-byte recency
// token from the signature count and static account count. Handles both
// legacy and versioned message layouts.
func BlockhashOffset(raw []byte) (int, error) {
	pos, err := messageStart(raw)
	if err != nil {
		return 0, err
	}

	if raw[pos]&versionPrefixMask != 0 {
		version := raw[pos] & 0x7f
		if version != 0 {
			return 0, fmt.Errorf("unsupported message version %d", version)
		}
		pos++ // version prefix byte
	}

	pos += messageHeaderSize

	accountCount, n, err := readCompactU16(raw, pos)
	if err != nil {
		return 0, err
	}
	pos += n + accountCount*solana.PublicKeyLength

	if pos+HashSize > len(raw) {
		return 0, fmt.Errorf("transaction truncated: blockhash at offset %d does not fit in %d bytes", pos, len(raw))
	}
	return pos, nil
}

// ReplaceBlockhash overwrites the recency token in a serialized
// transaction, returning a new byte slice. The bytes at the computed
// offset must equal oldHash; a mismatch aborts with an error rather
// than corrupting an unrelated byte range. Replacing a hash with itself
// yields byte-identical output.
func ReplaceBlockhash(raw []byte, oldHash, newHash solana.Hash) ([]byte, error) {
	offset, err := BlockhashOffset(raw)
	if err != nil {
		return nil, err
	}

	if !bytes.Equal(raw[offset:offset+HashSize], oldHash[:]) {
		return nil, fmt.Errorf("blockhash mismatch at offset %d: transaction does not contain the expected recency token", offset)
	}

	out := make([]byte, len(raw))
	copy(out, raw)
	copy(out[offset:], newHash[:])
	return out, nil
}

// ExtractBlockhash returns the recency token currently embedded in the
// serialized transaction.
func ExtractBlockhash(raw []byte) (solana.Hash, error) {
	offset, err := BlockhashOffset(raw)
	if err != nil {
		return solana.Hash{}, err
	}
	var h solana.Hash
	copy(h[:], raw[offset:offset+HashSize])
	return h, nil
}

// CheckSize enforces the serialized size limit.
func CheckSize(raw []byte) error {
	if len(raw) > MaxTransactionSize {
		return fmt.Errorf("transaction is %d bytes, exceeds the %d byte limit", len(raw), MaxTransactionSize)
	}
	return nil
}
