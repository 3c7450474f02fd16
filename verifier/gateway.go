// Package verifier defines the gateway contract the auction engine uses to
// check externally generated proofs, plus a production COSE-backed
// implementation and a static test double. The proof's internal structure is
// opaque to the engine: the gateway either accepts or rejects, nothing else.
package verifier

import "errors"

// Circuit selects which external verifier a proof is checked against.
type Circuit string

const (
	// CircuitSelection verifies that a declared winner/amount is correct
	// without revealing all bids.
	CircuitSelection Circuit = "selection"
	// CircuitPayment verifies that the winner satisfied a payment obligation.
	CircuitPayment Circuit = "payment"
)

// ErrVerificationFailed is returned (possibly wrapped) by gateways when a
// proof does not verify. Any non-nil error from Verify means rejection; the
// engine never distinguishes failure causes.
var ErrVerificationFailed = errors.New("verification failed")

// Gateway is the engine's view of an external proof verifier. Verify is a
// synchronous round-trip with no retry or partial-success state; retries, if
// any, belong to the calling client.
type Gateway interface {
	Verify(circuit Circuit, proof []byte) error
}

// StaticGateway is a Gateway returning a fixed outcome, used in tests to
// exercise both accept and reject paths. It records every call it receives.
type StaticGateway struct {
	// Err is returned from every Verify call. nil means accept.
	Err error

	Calls []StaticCall
}

// StaticCall records one Verify invocation.
type StaticCall struct {
	Circuit Circuit
	Proof   []byte
}

// Verify implements Gateway.
func (g *StaticGateway) Verify(circuit Circuit, proof []byte) error {
	g.Calls = append(g.Calls, StaticCall{Circuit: circuit, Proof: proof})
	return g.Err
}
