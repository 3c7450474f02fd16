package core

import (
	"github.com/google/uuid"
)

// EventKind distinguishes the two record types the engine emits.
type EventKind string

const (
	// EventFinalized is emitted when a finalize path records a winner.
	EventFinalized EventKind = "finalized"
	// EventPaymentVerified is emitted when a payment proof is accepted.
	EventPaymentVerified EventKind = "payment_verified"
)

// Event is one append-only record of a finalization or payment outcome.
// ID is assigned by the engine; Seq is assigned by the sink and is strictly
// increasing in append order.
type Event struct {
	ID     string    `json:"id"`
	Seq    uint64    `json:"seq"`
	Kind   EventKind `json:"kind"`
	LotID  uint64    `json:"lot_id"`
	Winner Identity  `json:"winner"`
	Amount uint64    `json:"amount,omitempty"`
}

// EventSink is the append-only, ordered, queryable-by-lot log of engine
// outcomes, consumed by external observers (UI, indexers). There is no
// retraction operation.
type EventSink interface {
	// Append records the event and assigns its sequence number.
	Append(ev Event) error
	// ByLot returns all events for a lot in append order.
	ByLot(lotID uint64) ([]Event, error)
}

// newEvent builds an engine event with a fresh record ID.
func newEvent(kind EventKind, lotID uint64, winner Identity, amount uint64) Event {
	return Event{
		ID:     uuid.NewString(),
		Kind:   kind,
		LotID:  lotID,
		Winner: winner,
		Amount: amount,
	}
}

// MemorySink is the in-process EventSink. Appends never fail.
//
// The sink is not internally synchronized; the engine serializes appends, and
// readers that share a sink with a live engine should route queries through
// the engine's lock (the HTTP layer does).
type MemorySink struct {
	events []Event
	byLot  map[uint64][]int
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{byLot: make(map[uint64][]int)}
}

// Append implements EventSink.
func (s *MemorySink) Append(ev Event) error {
	ev.Seq = uint64(len(s.events) + 1)
	s.byLot[ev.LotID] = append(s.byLot[ev.LotID], len(s.events))
	s.events = append(s.events, ev)
	return nil
}

// ByLot implements EventSink.
func (s *MemorySink) ByLot(lotID uint64) ([]Event, error) {
	idxs := s.byLot[lotID]
	out := make([]Event, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, s.events[i])
	}
	return out, nil
}

// All returns every event in append order.
func (s *MemorySink) All() []Event {
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
