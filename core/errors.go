package core

import "errors"

// Engine error kinds. All are terminal: the engine never retries internally,
// and every failure leaves durable state unchanged.
var (
	// ErrUnauthorized: the caller is not permitted to perform the operation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrLotExists: a lot with the given id already exists.
	ErrLotExists = errors.New("lot already exists")
	// ErrLotNotFound: no lot with the given id.
	ErrLotNotFound = errors.New("lot not found")
	// ErrAlreadyFinalized: the lot has already been finalized.
	ErrAlreadyFinalized = errors.New("lot already finalized")
	// ErrNotFinalized: the operation requires a finalized lot.
	ErrNotFinalized = errors.New("lot not finalized")
	// ErrWindowClosed: the bidding window has ended.
	ErrWindowClosed = errors.New("bidding window closed")
	// ErrNoCommitment: the bidder has no stored commitment for the lot.
	ErrNoCommitment = errors.New("no commitment for bidder")
	// ErrCommitmentMismatch: the revealed values do not reproduce the stored commitment.
	ErrCommitmentMismatch = errors.New("commitment mismatch")
	// ErrAlreadyPaid: the lot's payment flag is already set.
	ErrAlreadyPaid = errors.New("payment already verified")
	// ErrVerifierNotConfigured: no verifier gateway configured for the required circuit.
	ErrVerifierNotConfigured = errors.New("verifier not configured")
	// ErrProofRejected: the verifier gateway rejected the proof.
	ErrProofRejected = errors.New("proof rejected")
)

// kinds lists every engine error kind with its stable wire name.
var kinds = []struct {
	err  error
	name string
}{
	{ErrUnauthorized, "unauthorized"},
	{ErrLotExists, "lot_exists"},
	{ErrLotNotFound, "lot_not_found"},
	{ErrAlreadyFinalized, "already_finalized"},
	{ErrNotFinalized, "not_finalized"},
	{ErrWindowClosed, "window_closed"},
	{ErrNoCommitment, "no_commitment"},
	{ErrCommitmentMismatch, "commitment_mismatch"},
	{ErrAlreadyPaid, "already_paid"},
	{ErrVerifierNotConfigured, "verifier_not_configured"},
	{ErrProofRejected, "proof_rejected"},
}

// KindOf returns the stable wire name of an engine error kind, or "" when the
// error is not one of the engine's kinds (callers should treat that as an
// internal error).
func KindOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}
