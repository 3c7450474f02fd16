package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Commitment is a binding commitment value: a raw SHA-256 digest.
type Commitment [sha256.Size]byte

// Hex returns the lowercase hex encoding of the commitment.
func (c Commitment) Hex() string {
	return hex.EncodeToString(c[:])
}

// ParseCommitment decodes a lowercase/uppercase hex commitment string.
func ParseCommitment(s string) (Commitment, error) {
	var c Commitment
	b, err := hex.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("decode commitment hex: %w", err)
	}
	if len(b) != sha256.Size {
		return c, fmt.Errorf("invalid commitment length: expected %d bytes, got %d", sha256.Size, len(b))
	}
	copy(c[:], b)
	return c, nil
}

// CommitHash computes the binding commitment for a bid. Bidders compute the
// same value off-system before committing, so the exact byte layout is a wire
// contract and must never change:
//
//	SHA256(secret || amount_be64 || lot_id_be64 || bidder)
//
// where amount_be64 and lot_id_be64 are the low-order 64 bits of the numeric
// values encoded big-endian, secret is hashed at full length, and bidder is
// the raw identity bytes.
func CommitHash(secret []byte, amount, lotID uint64, bidder Identity) Commitment {
	data := make([]byte, 0, len(secret)+16+len(bidder))
	data = append(data, secret...)
	data = binary.BigEndian.AppendUint64(data, amount)
	data = binary.BigEndian.AppendUint64(data, lotID)
	data = append(data, []byte(bidder)...)
	return sha256.Sum256(data)
}

// PreviewHash computes the non-binding preview hash shown to a bidder before
// a real commit is sent:
//
//	SHA256(amount_be64 || secret)
//
// The field order and field set differ from CommitHash on purpose: a preview
// value must never be accepted as a binding commitment, and the distinct
// layout guarantees the two derivations cannot collide for the same inputs.
func PreviewHash(amount uint64, secret []byte) Commitment {
	data := make([]byte, 0, 8+len(secret))
	data = binary.BigEndian.AppendUint64(data, amount)
	data = append(data, secret...)
	return sha256.Sum256(data)
}
