package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/agrilot/sealedlot/verifier"
)

const authority = Identity("authority")

func newTestEngine(t *testing.T) (*Engine, *MemorySink) {
	t.Helper()
	sink := NewMemorySink()
	return NewEngine(authority, NewLotStore(), sink), sink
}

func mustCreateLot(t *testing.T, e *Engine, lotID, now, duration uint64) {
	t.Helper()
	err := e.CreateLot(authority, now, LotParams{
		LotID:         lotID,
		Producer:      "producer-1",
		BreedTag:      "angus",
		InitialWeight: 4200,
		UnitCount:     12,
		MetadataURI:   "ipfs://lot-meta",
		Duration:      duration,
	})
	assert.NoError(t, err)
}

// commitAndReveal runs the commit/reveal pair for one bidder.
func commitAndReveal(t *testing.T, e *Engine, bidder Identity, lotID, now, amount uint64, secret []byte) {
	t.Helper()
	assert.NoError(t, e.CommitBid(bidder, now, lotID, CommitHash(secret, amount, lotID, bidder)))
	assert.NoError(t, e.RevealBid(bidder, now, lotID, amount, secret))
}

func TestCreateLot(t *testing.T) {
	e, _ := newTestEngine(t)
	mustCreateLot(t, e, 1, 1000, 100)

	lot, err := e.GetLot(1)
	check.NoError(t, err)
	check.Equal(t, uint64(1000), lot.StartTime)
	check.Equal(t, uint64(1100), lot.WindowEnd())
	check.Equal(t, Identity("producer-1"), lot.Producer)
	check.False(t, lot.Finalized)
	check.Equal(t, uint64(0), lot.BestAmount)
	check.True(t, lot.BestBidder.None())
}

func TestCreateLot_Unauthorized(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.CreateLot("not-authority", 0, LotParams{LotID: 1, Duration: 100})
	check.True(t, errors.Is(err, ErrUnauthorized))

	_, err = e.GetLot(1)
	check.True(t, errors.Is(err, ErrLotNotFound))
}

func TestCreateLot_DuplicateID(t *testing.T) {
	e, _ := newTestEngine(t)
	mustCreateLot(t, e, 1, 0, 100)

	err := e.CreateLot(authority, 5, LotParams{LotID: 1, Duration: 50})
	check.True(t, errors.Is(err, ErrLotExists))

	// Original lot untouched.
	lot, err := e.GetLot(1)
	check.NoError(t, err)
	check.Equal(t, uint64(0), lot.StartTime)
	check.Equal(t, uint64(100), lot.Duration)
}

// Scenario A: create lot 1 with duration 100; bidder X commits
// CommitHash(7, 50, 1, X); reveals (50, 7) → best_amount=50, best_bidder=X.
func TestRevealBid_UpdatesBest(t *testing.T) {
	e, _ := newTestEngine(t)
	mustCreateLot(t, e, 1, 0, 100)

	commitAndReveal(t, e, "bidder-x", 1, 10, 50, []byte{7})

	lot, err := e.GetLot(1)
	check.NoError(t, err)
	check.Equal(t, uint64(50), lot.BestAmount)
	check.Equal(t, Identity("bidder-x"), lot.BestBidder)
}

// Scenario B: a second bidder revealing the same amount with a different
// secret does not displace the incumbent: first revealer wins on ties.
func TestRevealBid_TieKeepsFirstRevealer(t *testing.T) {
	e, _ := newTestEngine(t)
	mustCreateLot(t, e, 1, 0, 100)

	commitAndReveal(t, e, "bidder-x", 1, 10, 50, []byte{7})
	commitAndReveal(t, e, "bidder-y", 1, 20, 50, []byte{9})

	lot, err := e.GetLot(1)
	check.NoError(t, err)
	check.Equal(t, uint64(50), lot.BestAmount)
	check.Equal(t, Identity("bidder-x"), lot.BestBidder)
}

func TestRevealBid_BestAmountMonotone(t *testing.T) {
	e, _ := newTestEngine(t)
	mustCreateLot(t, e, 1, 0, 100)

	commitAndReveal(t, e, "bidder-a", 1, 10, 40, []byte{1})
	commitAndReveal(t, e, "bidder-b", 1, 11, 70, []byte{2})
	commitAndReveal(t, e, "bidder-c", 1, 12, 55, []byte{3})

	// Max revealed amount wins, lower later reveals never regress it.
	lot, err := e.GetLot(1)
	check.NoError(t, err)
	check.Equal(t, uint64(70), lot.BestAmount)
	check.Equal(t, Identity("bidder-b"), lot.BestBidder)
}

// Scenario C: reveal after window_end fails WindowClosed.
func TestRevealBid_WindowClosed(t *testing.T) {
	e, _ := newTestEngine(t)
	mustCreateLot(t, e, 1, 0, 100)

	secret := []byte{7}
	assert.NoError(t, e.CommitBid("bidder-x", 10, 1, CommitHash(secret, 50, 1, "bidder-x")))

	err := e.RevealBid("bidder-x", 100, 1, 50, secret) // now == window_end
	check.True(t, errors.Is(err, ErrWindowClosed))

	lot, getErr := e.GetLot(1)
	check.NoError(t, getErr)
	check.Equal(t, uint64(0), lot.BestAmount)
}

func TestCommitBid_WindowClosed(t *testing.T) {
	e, _ := newTestEngine(t)
	mustCreateLot(t, e, 1, 0, 100)

	err := e.CommitBid("bidder-x", 150, 1, CommitHash([]byte{7}, 50, 1, "bidder-x"))
	check.True(t, errors.Is(err, ErrWindowClosed))

	n, countErr := e.BidderCount(1)
	check.NoError(t, countErr)
	check.Equal(t, 0, n)
}

func TestRevealBid_NoCommitment(t *testing.T) {
	e, _ := newTestEngine(t)
	mustCreateLot(t, e, 1, 0, 100)

	err := e.RevealBid("bidder-x", 10, 1, 50, []byte{7})
	check.True(t, errors.Is(err, ErrNoCommitment))
}

func TestRevealBid_CommitmentMismatch(t *testing.T) {
	e, _ := newTestEngine(t)
	mustCreateLot(t, e, 1, 0, 100)

	assert.NoError(t, e.CommitBid("bidder-x", 5, 1, CommitHash([]byte{7}, 50, 1, "bidder-x")))

	// Wrong amount.
	err := e.RevealBid("bidder-x", 10, 1, 51, []byte{7})
	check.True(t, errors.Is(err, ErrCommitmentMismatch))

	// Wrong secret.
	err = e.RevealBid("bidder-x", 10, 1, 50, []byte{8})
	check.True(t, errors.Is(err, ErrCommitmentMismatch))

	// A preview hash stored as a commitment can never be revealed.
	assert.NoError(t, e.CommitBid("bidder-y", 5, 1, PreviewHash(50, []byte{7})))
	err = e.RevealBid("bidder-y", 10, 1, 50, []byte{7})
	check.True(t, errors.Is(err, ErrCommitmentMismatch))

	lot, getErr := e.GetLot(1)
	check.NoError(t, getErr)
	check.Equal(t, uint64(0), lot.BestAmount)
}

func TestCommitBid_RecommitOverwrites(t *testing.T) {
	e, _ := newTestEngine(t)
	mustCreateLot(t, e, 1, 0, 100)

	first := CommitHash([]byte{7}, 50, 1, "bidder-x")
	second := CommitHash([]byte{8}, 60, 1, "bidder-x")
	assert.NoError(t, e.CommitBid("bidder-x", 5, 1, first))
	assert.NoError(t, e.CommitBid("bidder-x", 6, 1, second))

	// Only the latest commitment is revealable.
	err := e.RevealBid("bidder-x", 10, 1, 50, []byte{7})
	check.True(t, errors.Is(err, ErrCommitmentMismatch))
	check.NoError(t, e.RevealBid("bidder-x", 10, 1, 60, []byte{8}))

	// Roster membership stays idempotent across re-commits.
	n, err := e.BidderCount(1)
	check.NoError(t, err)
	check.Equal(t, 1, n)
}

func TestBidderRoster_OrderAndDistinctness(t *testing.T) {
	e, _ := newTestEngine(t)
	mustCreateLot(t, e, 1, 0, 100)

	for _, b := range []Identity{"bidder-c", "bidder-a", "bidder-c", "bidder-b"} {
		assert.NoError(t, e.CommitBid(b, 5, 1, CommitHash([]byte{1}, 10, 1, b)))
	}

	n, err := e.BidderCount(1)
	check.NoError(t, err)
	check.Equal(t, 3, n)

	want := []Identity{"bidder-c", "bidder-a", "bidder-b"}
	for i, w := range want {
		got, err := e.BidderAt(1, i)
		check.NoError(t, err)
		check.Equal(t, w, got)
	}

	_, err = e.BidderAt(1, 3)
	check.Error(t, err)
}

func TestFinalizePlain(t *testing.T) {
	e, sink := newTestEngine(t)
	mustCreateLot(t, e, 1, 0, 100)
	commitAndReveal(t, e, "bidder-x", 1, 10, 50, []byte{7})

	assert.NoError(t, e.FinalizePlain(authority, 1))

	lot, err := e.GetLot(1)
	check.NoError(t, err)
	check.True(t, lot.Finalized)

	rec, err := e.GetWinner(1)
	check.NoError(t, err)
	assert.NotNil(t, rec)
	check.Equal(t, Identity("bidder-x"), rec.Winner)
	check.Equal(t, uint64(50), rec.Amount)

	events := sink.All()
	assert.Equal(t, 1, len(events))
	check.Equal(t, EventFinalized, events[0].Kind)
	check.Equal(t, uint64(1), events[0].LotID)
	check.Equal(t, Identity("bidder-x"), events[0].Winner)
	check.Equal(t, uint64(50), events[0].Amount)
}

func TestFinalizePlain_NoBids(t *testing.T) {
	e, sink := newTestEngine(t)
	mustCreateLot(t, e, 1, 0, 100)

	// Finalizing with no revealed bids is legal: no winner record, no event.
	assert.NoError(t, e.FinalizePlain(authority, 1))

	rec, err := e.GetWinner(1)
	check.NoError(t, err)
	check.Nil(t, rec)
	check.Equal(t, 0, len(sink.All()))
}

func TestFinalizePlain_BeforeWindowEnd(t *testing.T) {
	e, _ := newTestEngine(t)
	mustCreateLot(t, e, 1, 0, 100)
	commitAndReveal(t, e, "bidder-x", 1, 10, 50, []byte{7})

	// The plain path has no window check: the authority may finalize while
	// bidding is still open. Mirrors the source contract.
	check.NoError(t, e.FinalizePlain(authority, 1))
}

func TestFinalizePlain_Unauthorized(t *testing.T) {
	e, _ := newTestEngine(t)
	mustCreateLot(t, e, 1, 0, 100)

	err := e.FinalizePlain("bidder-x", 1)
	check.True(t, errors.Is(err, ErrUnauthorized))

	lot, getErr := e.GetLot(1)
	check.NoError(t, getErr)
	check.False(t, lot.Finalized)
}

func TestFinalize_MutuallyExclusive(t *testing.T) {
	e, _ := newTestEngine(t)
	gw := &verifier.StaticGateway{}
	assert.NoError(t, e.SetVerifier(authority, verifier.CircuitSelection, gw))

	mustCreateLot(t, e, 1, 0, 100)
	commitAndReveal(t, e, "bidder-x", 1, 10, 50, []byte{7})

	assert.NoError(t, e.FinalizePlain(authority, 1))

	// Second finalize always fails AlreadyFinalized, whichever path.
	err := e.FinalizePlain(authority, 1)
	check.True(t, errors.Is(err, ErrAlreadyFinalized))
	err = e.FinalizeWithProof(authority, 1, "bidder-y", 99, []byte("proof"))
	check.True(t, errors.Is(err, ErrAlreadyFinalized))

	// The rejected proof path never reached the gateway.
	check.Equal(t, 0, len(gw.Calls))

	rec, err := e.GetWinner(1)
	check.NoError(t, err)
	assert.NotNil(t, rec)
	check.Equal(t, Identity("bidder-x"), rec.Winner)
}

func TestFinalizeWithProof_DeclaredValuesOverrideReveals(t *testing.T) {
	e, sink := newTestEngine(t)
	assert.NoError(t, e.SetVerifier(authority, verifier.CircuitSelection, &verifier.StaticGateway{}))

	mustCreateLot(t, e, 1, 0, 100)
	commitAndReveal(t, e, "bidder-x", 1, 10, 50, []byte{7})

	// The accepted proof attests a different winner than the reveal history;
	// the declared values win on this path.
	assert.NoError(t, e.FinalizeWithProof(authority, 1, "bidder-z", 80, []byte("proof")))

	lot, err := e.GetLot(1)
	check.NoError(t, err)
	check.True(t, lot.Finalized)
	check.Equal(t, Identity("bidder-z"), lot.BestBidder)
	check.Equal(t, uint64(80), lot.BestAmount)

	rec, err := e.GetWinner(1)
	check.NoError(t, err)
	assert.NotNil(t, rec)
	check.Equal(t, WinnerRecord{Winner: "bidder-z", Amount: 80}, *rec)

	events := sink.All()
	assert.Equal(t, 1, len(events))
	check.Equal(t, EventFinalized, events[0].Kind)
	check.Equal(t, Identity("bidder-z"), events[0].Winner)
}

// Scenario D: a rejected selection proof leaves the lot untouched.
func TestFinalizeWithProof_Rejected(t *testing.T) {
	e, sink := newTestEngine(t)
	gw := &verifier.StaticGateway{Err: verifier.ErrVerificationFailed}
	assert.NoError(t, e.SetVerifier(authority, verifier.CircuitSelection, gw))

	mustCreateLot(t, e, 1, 0, 100)
	commitAndReveal(t, e, "bidder-x", 1, 10, 50, []byte{7})

	err := e.FinalizeWithProof(authority, 1, "bidder-z", 80, []byte("bad-proof"))
	check.True(t, errors.Is(err, ErrProofRejected))

	// All-or-nothing: no state mutation.
	lot, getErr := e.GetLot(1)
	check.NoError(t, getErr)
	check.False(t, lot.Finalized)
	check.Equal(t, Identity("bidder-x"), lot.BestBidder)
	check.Equal(t, uint64(50), lot.BestAmount)

	rec, getErr := e.GetWinner(1)
	check.NoError(t, getErr)
	check.Nil(t, rec)
	check.Equal(t, 0, len(sink.All()))

	// And the lot can still finalize normally afterwards.
	check.NoError(t, e.FinalizePlain(authority, 1))
}

func TestFinalizeWithProof_VerifierNotConfigured(t *testing.T) {
	e, _ := newTestEngine(t)
	mustCreateLot(t, e, 1, 0, 100)

	err := e.FinalizeWithProof(authority, 1, "bidder-z", 80, []byte("proof"))
	check.True(t, errors.Is(err, ErrVerifierNotConfigured))
}

func TestSetVerifier_Unauthorized(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.SetVerifier("bidder-x", verifier.CircuitSelection, &verifier.StaticGateway{})
	check.True(t, errors.Is(err, ErrUnauthorized))
}

// finalizedLot builds a lot finalized with bidder-x as winner at amount 50
// and a payment gateway installed.
func finalizedLot(t *testing.T, gw verifier.Gateway) (*Engine, *MemorySink) {
	t.Helper()
	e, sink := newTestEngine(t)
	assert.NoError(t, e.SetVerifier(authority, verifier.CircuitPayment, gw))
	mustCreateLot(t, e, 1, 0, 100)
	commitAndReveal(t, e, "bidder-x", 1, 10, 50, []byte{7})
	assert.NoError(t, e.FinalizePlain(authority, 1))
	return e, sink
}

// Scenario E: first accepted payment proof settles; the second always fails
// AlreadyPaid without re-verifying.
func TestVerifyPayment(t *testing.T) {
	gw := &verifier.StaticGateway{}
	e, sink := finalizedLot(t, gw)

	assert.NoError(t, e.VerifyPayment("bidder-x", 1, []byte("payment-proof")))

	paid, err := e.IsPaid(1)
	check.NoError(t, err)
	check.True(t, paid)

	err = e.VerifyPayment("bidder-x", 1, []byte("payment-proof"))
	check.True(t, errors.Is(err, ErrAlreadyPaid))

	// The duplicate never reached the gateway.
	check.Equal(t, 1, len(gw.Calls))
	check.Equal(t, verifier.CircuitPayment, gw.Calls[0].Circuit)

	events := sink.All()
	assert.Equal(t, 2, len(events))
	check.Equal(t, EventPaymentVerified, events[1].Kind)
	check.Equal(t, Identity("bidder-x"), events[1].Winner)
}

func TestVerifyPayment_Rejected(t *testing.T) {
	gw := &verifier.StaticGateway{Err: verifier.ErrVerificationFailed}
	e, sink := finalizedLot(t, gw)

	err := e.VerifyPayment("bidder-x", 1, []byte("bad"))
	check.True(t, errors.Is(err, ErrProofRejected))

	paid, getErr := e.IsPaid(1)
	check.NoError(t, getErr)
	check.False(t, paid)
	check.Equal(t, 1, len(sink.All())) // only the finalization event
}

func TestVerifyPayment_NotWinner(t *testing.T) {
	gw := &verifier.StaticGateway{}
	e, _ := finalizedLot(t, gw)

	err := e.VerifyPayment("bidder-y", 1, []byte("proof"))
	check.True(t, errors.Is(err, ErrUnauthorized))
	check.Equal(t, 0, len(gw.Calls))
}

func TestVerifyPayment_NotFinalized(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.NoError(t, e.SetVerifier(authority, verifier.CircuitPayment, &verifier.StaticGateway{}))
	mustCreateLot(t, e, 1, 0, 100)

	err := e.VerifyPayment("bidder-x", 1, []byte("proof"))
	check.True(t, errors.Is(err, ErrNotFinalized))
}

func TestVerifyPayment_NoWinnerRecorded(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.NoError(t, e.SetVerifier(authority, verifier.CircuitPayment, &verifier.StaticGateway{}))
	mustCreateLot(t, e, 1, 0, 100)
	assert.NoError(t, e.FinalizePlain(authority, 1)) // no bids, no winner

	// Nobody can match an absent winner record.
	err := e.VerifyPayment(authority, 1, []byte("proof"))
	check.True(t, errors.Is(err, ErrUnauthorized))
}

func TestVerifyPayment_ConcurrentDuplicates(t *testing.T) {
	gw := &verifier.StaticGateway{}
	e, _ := finalizedLot(t, gw)

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- e.VerifyPayment("bidder-x", 1, []byte("payment-proof"))
		}()
	}
	wg.Wait()
	close(results)

	// Exactly one acceptance; every other attempt fails AlreadyPaid.
	accepted, alreadyPaid := 0, 0
	for err := range results {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, ErrAlreadyPaid):
			alreadyPaid++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	check.Equal(t, 1, accepted)
	check.Equal(t, attempts-1, alreadyPaid)
}

func TestCommitAndReveal_AfterFinalize(t *testing.T) {
	e, _ := newTestEngine(t)
	mustCreateLot(t, e, 1, 0, 100)
	commitAndReveal(t, e, "bidder-x", 1, 10, 50, []byte{7})
	assert.NoError(t, e.FinalizePlain(authority, 1))

	err := e.CommitBid("bidder-y", 20, 1, CommitHash([]byte{9}, 60, 1, "bidder-y"))
	check.True(t, errors.Is(err, ErrAlreadyFinalized))

	// Even a valid pending commitment cannot be revealed post-finalize.
	err = e.RevealBid("bidder-x", 20, 1, 50, []byte{7})
	check.True(t, errors.Is(err, ErrAlreadyFinalized))
}

func TestLotState_Lifecycle(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.NoError(t, e.SetVerifier(authority, verifier.CircuitPayment, &verifier.StaticGateway{}))
	mustCreateLot(t, e, 1, 0, 100)

	state, err := e.LotState(1, 10)
	check.NoError(t, err)
	check.Equal(t, StateOpen, state)

	state, err = e.LotState(1, 100)
	check.NoError(t, err)
	check.Equal(t, StateClosed, state)

	commitAndReveal(t, e, "bidder-x", 1, 10, 50, []byte{7})
	assert.NoError(t, e.FinalizePlain(authority, 1))
	state, err = e.LotState(1, 200)
	check.NoError(t, err)
	check.Equal(t, StateFinalized, state)

	assert.NoError(t, e.VerifyPayment("bidder-x", 1, []byte("proof")))
	state, err = e.LotState(1, 300)
	check.NoError(t, err)
	check.Equal(t, StateSettled, state)
}

func TestDebugReveal(t *testing.T) {
	e, _ := newTestEngine(t)
	mustCreateLot(t, e, 1, 0, 100)

	secret := []byte{7}
	assert.NoError(t, e.CommitBid("bidder-x", 5, 1, CommitHash(secret, 50, 1, "bidder-x")))

	diag, err := e.DebugReveal("bidder-x", 1, 50, secret)
	check.NoError(t, err)
	check.True(t, diag.HasCommitment)
	check.True(t, diag.Match)
	check.Equal(t, diag.Computed, diag.Stored)

	diag, err = e.DebugReveal("bidder-x", 1, 51, secret)
	check.NoError(t, err)
	check.True(t, diag.HasCommitment)
	check.False(t, diag.Match)

	diag, err = e.DebugReveal("bidder-y", 1, 50, secret)
	check.NoError(t, err)
	check.False(t, diag.HasCommitment)

	// Pure read: nothing moved.
	lot, err := e.GetLot(1)
	check.NoError(t, err)
	check.Equal(t, uint64(0), lot.BestAmount)
}

func TestQueries_Idempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	mustCreateLot(t, e, 1, 0, 100)
	commitAndReveal(t, e, "bidder-x", 1, 10, 50, []byte{7})

	for i := 0; i < 3; i++ {
		lot, err := e.GetLot(1)
		check.NoError(t, err)
		check.Equal(t, uint64(50), lot.BestAmount)

		n, err := e.BidderCount(1)
		check.NoError(t, err)
		check.Equal(t, 1, n)

		paid, err := e.IsPaid(1)
		check.NoError(t, err)
		check.False(t, paid)
	}
}

func TestOperations_LotNotFound(t *testing.T) {
	e, _ := newTestEngine(t)

	check.True(t, errors.Is(e.CommitBid("b", 0, 9, Commitment{}), ErrLotNotFound))
	check.True(t, errors.Is(e.RevealBid("b", 0, 9, 1, []byte{1}), ErrLotNotFound))
	check.True(t, errors.Is(e.FinalizePlain(authority, 9), ErrLotNotFound))
	check.True(t, errors.Is(e.VerifyPayment("b", 9, nil), ErrLotNotFound))

	_, err := e.GetLot(9)
	check.True(t, errors.Is(err, ErrLotNotFound))
	_, err = e.GetWinner(9)
	check.True(t, errors.Is(err, ErrLotNotFound))
	_, err = e.IsPaid(9)
	check.True(t, errors.Is(err, ErrLotNotFound))
}

func TestCrossLot_Independence(t *testing.T) {
	e, _ := newTestEngine(t)
	mustCreateLot(t, e, 1, 0, 100)
	mustCreateLot(t, e, 2, 0, 100)

	commitAndReveal(t, e, "bidder-x", 1, 10, 50, []byte{7})
	commitAndReveal(t, e, "bidder-y", 2, 10, 90, []byte{8})

	assert.NoError(t, e.FinalizePlain(authority, 1))

	lot2, err := e.GetLot(2)
	check.NoError(t, err)
	check.False(t, lot2.Finalized)
	check.Equal(t, uint64(90), lot2.BestAmount)
	check.Equal(t, Identity("bidder-y"), lot2.BestBidder)
}
