package core

import "fmt"

// commitKey addresses a commitment by (bidder, lot).
type commitKey struct {
	bidder Identity
	lotID  uint64
}

// LotStore owns the durable state of every lot: the lot records, the
// commitment map, the per-lot bidder roster, the winner records and the
// payment flags. No business rules live here; the store only enforces
// storage-level invariants (no duplicate lot id, append-only roster,
// write-once winner record, compare-and-set payment flag).
//
// The store is not internally synchronized; the engine serializes access.
type LotStore struct {
	lots        map[uint64]*Lot
	commitments map[commitKey]Commitment
	rosters     map[uint64][]Identity
	rosterSeen  map[uint64]map[Identity]struct{}
	winners     map[uint64]WinnerRecord
	paid        map[uint64]bool
}

// NewLotStore creates an empty store.
func NewLotStore() *LotStore {
	return &LotStore{
		lots:        make(map[uint64]*Lot),
		commitments: make(map[commitKey]Commitment),
		rosters:     make(map[uint64][]Identity),
		rosterSeen:  make(map[uint64]map[Identity]struct{}),
		winners:     make(map[uint64]WinnerRecord),
		paid:        make(map[uint64]bool),
	}
}

// InsertLot stores a new lot record. Fails with ErrLotExists if the id is
// already present. Lot ids are never reused: there is no delete operation.
func (s *LotStore) InsertLot(lot *Lot) error {
	if _, exists := s.lots[lot.LotID]; exists {
		return fmt.Errorf("lot %d: %w", lot.LotID, ErrLotExists)
	}
	s.lots[lot.LotID] = lot
	return nil
}

// Lot returns the lot record for id, or ErrLotNotFound.
// The returned pointer is the live record; mutations through it are how the
// engine applies reveal and finalize updates.
func (s *LotStore) Lot(id uint64) (*Lot, error) {
	lot, ok := s.lots[id]
	if !ok {
		return nil, fmt.Errorf("lot %d: %w", id, ErrLotNotFound)
	}
	return lot, nil
}

// PutCommitment stores or overwrites the commitment for (bidder, lot).
// Re-commit by the same bidder on the same lot intentionally replaces the
// previous value; see the re-commit note in DESIGN.md.
func (s *LotStore) PutCommitment(bidder Identity, lotID uint64, c Commitment) {
	s.commitments[commitKey{bidder, lotID}] = c
}

// Commitment returns the stored commitment for (bidder, lot) and whether one exists.
func (s *LotStore) Commitment(bidder Identity, lotID uint64) (Commitment, bool) {
	c, ok := s.commitments[commitKey{bidder, lotID}]
	return c, ok
}

// AppendBidder adds bidder to the lot's roster if not already present.
// Membership is idempotent; insertion order is preserved and entries are
// never removed.
func (s *LotStore) AppendBidder(lotID uint64, bidder Identity) {
	seen := s.rosterSeen[lotID]
	if seen == nil {
		seen = make(map[Identity]struct{})
		s.rosterSeen[lotID] = seen
	}
	if _, ok := seen[bidder]; ok {
		return
	}
	seen[bidder] = struct{}{}
	s.rosters[lotID] = append(s.rosters[lotID], bidder)
}

// BidderCount returns the number of distinct bidders that have committed on the lot.
func (s *LotStore) BidderCount(lotID uint64) int {
	return len(s.rosters[lotID])
}

// BidderAt returns the i-th bidder in roster insertion order.
func (s *LotStore) BidderAt(lotID uint64, i int) (Identity, error) {
	roster := s.rosters[lotID]
	if i < 0 || i >= len(roster) {
		return "", fmt.Errorf("bidder index %d out of range for lot %d (have %d)", i, lotID, len(roster))
	}
	return roster[i], nil
}

// PutWinner writes the winner record for a lot. The record is write-once: a
// second write is a storage invariant violation, not a recoverable error,
// because the engine only calls this while flipping finalized false→true.
func (s *LotStore) PutWinner(lotID uint64, rec WinnerRecord) error {
	if _, exists := s.winners[lotID]; exists {
		return fmt.Errorf("winner record for lot %d already written", lotID)
	}
	s.winners[lotID] = rec
	return nil
}

// Winner returns the winner record for a lot and whether one was written.
func (s *LotStore) Winner(lotID uint64) (WinnerRecord, bool) {
	rec, ok := s.winners[lotID]
	return rec, ok
}

// SetPaid flips the payment flag false→true in one step. Returns false when
// the flag was already set, so duplicate settlement attempts resolve to
// exactly one acceptance.
func (s *LotStore) SetPaid(lotID uint64) bool {
	if s.paid[lotID] {
		return false
	}
	s.paid[lotID] = true
	return true
}

// IsPaid returns the lot's payment flag.
func (s *LotStore) IsPaid(lotID uint64) bool {
	return s.paid[lotID]
}
