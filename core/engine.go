package core

import (
	"fmt"
	"log"
	"sync"

	"github.com/agrilot/sealedlot/verifier"
)

// Engine is the sealed-bid commit/reveal auction state machine. Every public
// operation executes atomically with respect to lot state: it either fully
// commits or fully fails, and no operation observes a partially-applied
// mutation from another in-flight operation.
//
// The engine never reads a clock. Operations that depend on the bidding
// window take the current time (seconds) as an argument, supplied by the
// host, which keeps every transition deterministic and testable.
type Engine struct {
	mu        sync.Mutex
	authority Identity
	store     *LotStore
	sink      EventSink
	verifiers map[verifier.Circuit]verifier.Gateway
}

// NewEngine creates an engine with a fixed authority identity. The authority
// is the single identity permitted to create lots, finalize auctions and
// configure verifiers; it is set at construction and never changes.
// A nil store or sink defaults to a fresh in-memory one.
func NewEngine(authority Identity, store *LotStore, sink EventSink) *Engine {
	if store == nil {
		store = NewLotStore()
	}
	if sink == nil {
		sink = NewMemorySink()
	}
	return &Engine{
		authority: authority,
		store:     store,
		sink:      sink,
		verifiers: make(map[verifier.Circuit]verifier.Gateway),
	}
}

// SetVerifier configures the gateway for a circuit. Gated the same way as
// CreateLot: only the authority may call it. Reconfiguring a circuit replaces
// the previous gateway.
func (e *Engine) SetVerifier(caller Identity, circuit verifier.Circuit, gw verifier.Gateway) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.authority {
		return fmt.Errorf("set verifier for %s: %w", circuit, ErrUnauthorized)
	}
	e.verifiers[circuit] = gw
	return nil
}

// CreateLot creates a new lot in the Open state with start_time = now.
// Only the authority may create lots; lot ids are caller-chosen, unique and
// never reused.
func (e *Engine) CreateLot(caller Identity, now uint64, p LotParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.authority {
		return fmt.Errorf("create lot %d: %w", p.LotID, ErrUnauthorized)
	}
	lot := &Lot{
		LotID:         p.LotID,
		Producer:      p.Producer,
		BreedTag:      p.BreedTag,
		InitialWeight: p.InitialWeight,
		UnitCount:     p.UnitCount,
		MetadataURI:   p.MetadataURI,
		StartTime:     now,
		Duration:      p.Duration,
	}
	return e.store.InsertLot(lot)
}

// CommitBid stores the caller's commitment on an open lot and enrolls the
// caller in the lot's bidder roster. A repeat commit by the same bidder
// before reveal overwrites the previous commitment; roster membership is
// idempotent.
func (e *Engine) CommitBid(caller Identity, now uint64, lotID uint64, c Commitment) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	lot, err := e.store.Lot(lotID)
	if err != nil {
		return err
	}
	if lot.Finalized {
		return fmt.Errorf("commit on lot %d: %w", lotID, ErrAlreadyFinalized)
	}
	if lot.WindowClosed(now) {
		return fmt.Errorf("commit on lot %d: %w", lotID, ErrWindowClosed)
	}
	e.store.PutCommitment(caller, lotID, c)
	e.store.AppendBidder(lotID, caller)
	return nil
}

// RevealBid discloses the plaintext bid behind the caller's commitment. The
// engine recomputes CommitHash(secret, amount, lotID, caller) and rejects the
// reveal unless it reproduces the stored value. On success, if amount beats
// the current best, best_amount/best_bidder are updated in one step; a tie
// never reassigns the incumbent (first revealer wins on ties).
func (e *Engine) RevealBid(caller Identity, now uint64, lotID, amount uint64, secret []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	lot, err := e.store.Lot(lotID)
	if err != nil {
		return err
	}
	if lot.Finalized {
		return fmt.Errorf("reveal on lot %d: %w", lotID, ErrAlreadyFinalized)
	}
	if lot.WindowClosed(now) {
		return fmt.Errorf("reveal on lot %d: %w", lotID, ErrWindowClosed)
	}
	stored, ok := e.store.Commitment(caller, lotID)
	if !ok {
		return fmt.Errorf("reveal on lot %d: %w", lotID, ErrNoCommitment)
	}
	if CommitHash(secret, amount, lotID, caller) != stored {
		return fmt.Errorf("reveal on lot %d: %w", lotID, ErrCommitmentMismatch)
	}
	if amount > lot.BestAmount {
		lot.BestAmount = amount
		lot.BestBidder = caller
	}
	return nil
}

// FinalizePlain finalizes a lot from locally accumulated reveal state. If a
// best bidder exists, the winner record is written and a Finalized event is
// emitted; a lot with no revealed bids finalizes with no winner record.
//
// The plain path does not check the bidding window: the authority may
// finalize before window_end. This mirrors the source contract; see the open
// question in DESIGN.md.
func (e *Engine) FinalizePlain(caller Identity, lotID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.authority {
		return fmt.Errorf("finalize lot %d: %w", lotID, ErrUnauthorized)
	}
	lot, err := e.store.Lot(lotID)
	if err != nil {
		return err
	}
	if lot.Finalized {
		return fmt.Errorf("finalize lot %d: %w", lotID, ErrAlreadyFinalized)
	}
	lot.Finalized = true
	if lot.BestBidder.None() {
		return nil
	}
	rec := WinnerRecord{Winner: lot.BestBidder, Amount: lot.BestAmount}
	if err := e.store.PutWinner(lotID, rec); err != nil {
		return err
	}
	e.emit(newEvent(EventFinalized, lotID, rec.Winner, rec.Amount))
	return nil
}

// FinalizeWithProof finalizes a lot from an externally verified selection
// proof. The verifier call happens before any mutation: a rejected proof
// fails with ProofRejected and leaves the lot untouched. On acceptance the
// declared winner and amount override any locally accumulated reveal state;
// the proof, not the reveal history, is the source of truth on this path.
func (e *Engine) FinalizeWithProof(caller Identity, lotID uint64, declaredWinner Identity, declaredAmount uint64, proof []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.authority {
		return fmt.Errorf("finalize lot %d with proof: %w", lotID, ErrUnauthorized)
	}
	lot, err := e.store.Lot(lotID)
	if err != nil {
		return err
	}
	if lot.Finalized {
		return fmt.Errorf("finalize lot %d with proof: %w", lotID, ErrAlreadyFinalized)
	}
	gw, ok := e.verifiers[verifier.CircuitSelection]
	if !ok {
		return fmt.Errorf("finalize lot %d with proof: %w", lotID, ErrVerifierNotConfigured)
	}
	if err := gw.Verify(verifier.CircuitSelection, proof); err != nil {
		return fmt.Errorf("finalize lot %d: %w: %v", lotID, ErrProofRejected, err)
	}
	lot.Finalized = true
	lot.BestBidder = declaredWinner
	lot.BestAmount = declaredAmount
	rec := WinnerRecord{Winner: declaredWinner, Amount: declaredAmount}
	if err := e.store.PutWinner(lotID, rec); err != nil {
		return err
	}
	e.emit(newEvent(EventFinalized, lotID, rec.Winner, rec.Amount))
	return nil
}

// VerifyPayment checks a payment proof for the lot's recorded winner and
// flips the one-way settlement flag. The flag transition is compare-and-set:
// under concurrent duplicate submissions exactly one call succeeds and every
// other fails with AlreadyPaid. A second call after success always fails with
// AlreadyPaid without re-verifying.
func (e *Engine) VerifyPayment(caller Identity, lotID uint64, proof []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	lot, err := e.store.Lot(lotID)
	if err != nil {
		return err
	}
	if !lot.Finalized {
		return fmt.Errorf("payment on lot %d: %w", lotID, ErrNotFinalized)
	}
	rec, ok := e.store.Winner(lotID)
	if !ok || caller != rec.Winner {
		return fmt.Errorf("payment on lot %d: %w", lotID, ErrUnauthorized)
	}
	if e.store.IsPaid(lotID) {
		return fmt.Errorf("payment on lot %d: %w", lotID, ErrAlreadyPaid)
	}
	gw, ok := e.verifiers[verifier.CircuitPayment]
	if !ok {
		return fmt.Errorf("payment on lot %d: %w", lotID, ErrVerifierNotConfigured)
	}
	if err := gw.Verify(verifier.CircuitPayment, proof); err != nil {
		return fmt.Errorf("payment on lot %d: %w: %v", lotID, ErrProofRejected, err)
	}
	if !e.store.SetPaid(lotID) {
		return fmt.Errorf("payment on lot %d: %w", lotID, ErrAlreadyPaid)
	}
	e.emit(newEvent(EventPaymentVerified, lotID, rec.Winner, 0))
	return nil
}

// emit appends an event to the sink. The sink is an observer: a failed append
// is logged but never rolls back the state transition that produced it
// (settlement in particular must stay exactly-once even if the log is down).
func (e *Engine) emit(ev Event) {
	if err := e.sink.Append(ev); err != nil {
		log.Printf("ERROR: Failed to append %s event for lot %d: %v", ev.Kind, ev.LotID, err)
	}
}

// GetLot returns a snapshot of the lot record.
func (e *Engine) GetLot(lotID uint64) (Lot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	lot, err := e.store.Lot(lotID)
	if err != nil {
		return Lot{}, err
	}
	return *lot, nil
}

// GetWinner returns the lot's winner record, or nil when the lot finalized
// with no revealed bids (or has not finalized yet).
func (e *Engine) GetWinner(lotID uint64) (*WinnerRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.store.Lot(lotID); err != nil {
		return nil, err
	}
	rec, ok := e.store.Winner(lotID)
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// IsPaid returns the lot's settlement flag.
func (e *Engine) IsPaid(lotID uint64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.store.Lot(lotID); err != nil {
		return false, err
	}
	return e.store.IsPaid(lotID), nil
}

// BidderCount returns the number of distinct bidders that have committed on the lot.
func (e *Engine) BidderCount(lotID uint64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.store.Lot(lotID); err != nil {
		return 0, err
	}
	return e.store.BidderCount(lotID), nil
}

// BidderAt returns the i-th bidder in roster insertion order.
func (e *Engine) BidderAt(lotID uint64, i int) (Identity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.store.Lot(lotID); err != nil {
		return "", err
	}
	return e.store.BidderAt(lotID, i)
}

// EventsByLot returns the sink's records for a lot in append order.
func (e *Engine) EventsByLot(lotID uint64) ([]Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sink.ByLot(lotID)
}

// RevealDiagnostic is the result of DebugReveal.
type RevealDiagnostic struct {
	Computed      string `json:"computed"`
	Stored        string `json:"stored,omitempty"`
	HasCommitment bool   `json:"has_commitment"`
	Match         bool   `json:"match"`
}

// DebugReveal recomputes the commitment hash for the given plaintext and
// compares it against the stored value, without mutating anything. It is a
// diagnostic aid only and must never feed an authorization decision.
func (e *Engine) DebugReveal(caller Identity, lotID, amount uint64, secret []byte) (RevealDiagnostic, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.store.Lot(lotID); err != nil {
		return RevealDiagnostic{}, err
	}
	computed := CommitHash(secret, amount, lotID, caller)
	diag := RevealDiagnostic{Computed: computed.Hex()}
	stored, ok := e.store.Commitment(caller, lotID)
	if !ok {
		return diag, nil
	}
	diag.HasCommitment = true
	diag.Stored = stored.Hex()
	diag.Match = computed == stored
	return diag, nil
}

// LotState returns the lifecycle state of the lot at the given time.
func (e *Engine) LotState(lotID uint64, now uint64) (LotState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	lot, err := e.store.Lot(lotID)
	if err != nil {
		return "", err
	}
	return lot.StateAt(now, e.store.IsPaid(lotID)), nil
}
