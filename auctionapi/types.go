// Package auctionapi holds the JSON wire types exchanged between the auction
// engine's HTTP surface and its clients. The engine itself never depends on
// this package; it is the transport-facing twin of the core types.
package auctionapi

import (
	"encoding/base64"
	"fmt"

	"github.com/agrilot/sealedlot/core"
)

// ProofBase64 carries an opaque proof payload (a COSE envelope or whatever
// the configured verifier expects) as base64 for JSON transport.
type ProofBase64 string

// Decode returns the raw proof bytes.
func (p ProofBase64) Decode() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(string(p))
	if err != nil {
		return nil, fmt.Errorf("decode proof base64: %w", err)
	}
	return raw, nil
}

// EncodeProof wraps raw proof bytes for JSON transport.
func EncodeProof(raw []byte) ProofBase64 {
	return ProofBase64(base64.StdEncoding.EncodeToString(raw))
}

// CreateLotRequest creates a new lot. Only the authority identity may send it.
type CreateLotRequest struct {
	LotID         uint64 `json:"lot_id"`
	Producer      string `json:"producer"`
	BreedTag      string `json:"breed_tag"`
	InitialWeight uint64 `json:"initial_weight"`
	UnitCount     uint64 `json:"unit_count"`
	MetadataURI   string `json:"metadata_uri"`
	Duration      uint64 `json:"duration"`
}

// Params converts the request into engine lot parameters.
func (r *CreateLotRequest) Params() core.LotParams {
	return core.LotParams{
		LotID:         r.LotID,
		Producer:      core.Identity(r.Producer),
		BreedTag:      r.BreedTag,
		InitialWeight: r.InitialWeight,
		UnitCount:     r.UnitCount,
		MetadataURI:   r.MetadataURI,
		Duration:      r.Duration,
	}
}

// CommitBidRequest stores a hex-encoded commitment on a lot.
type CommitBidRequest struct {
	Commitment string `json:"commitment"`
}

// RevealBidRequest discloses the plaintext bid behind a commitment.
// Secret is base64 so that binary secrets survive JSON transport intact;
// the commitment binds the exact secret bytes.
type RevealBidRequest struct {
	Amount uint64 `json:"amount"`
	Secret string `json:"secret"`
}

// SecretBytes returns the raw secret.
func (r *RevealBidRequest) SecretBytes() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(r.Secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret base64: %w", err)
	}
	return raw, nil
}

// FinalizeProofRequest finalizes a lot from an externally verified selection
// proof. The declared winner/amount override any local reveal state once the
// proof is accepted.
type FinalizeProofRequest struct {
	DeclaredWinner string      `json:"declared_winner"`
	DeclaredAmount uint64      `json:"declared_amount"`
	Proof          ProofBase64 `json:"proof"`
}

// PaymentRequest submits a payment proof for the lot's recorded winner.
type PaymentRequest struct {
	Proof ProofBase64 `json:"proof"`
}

// PreviewRequest computes the non-binding preview hash for UI display.
type PreviewRequest struct {
	Amount uint64 `json:"amount"`
	Secret string `json:"secret"`
}

// LotResponse is the queryable snapshot of a lot.
type LotResponse struct {
	core.Lot
	State core.LotState `json:"state"`
	Paid  bool          `json:"paid"`
}

// WinnerResponse reports the winner record with its display-only price
// breakdown. Winner is null when the lot finalized without revealed bids or
// has not finalized.
type WinnerResponse struct {
	LotID  uint64             `json:"lot_id"`
	Winner *core.WinnerRecord `json:"winner"`
	Quote  *core.HammerQuote  `json:"quote,omitempty"`
}

// ErrorResponse carries the engine error kind alongside a human-readable message.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
