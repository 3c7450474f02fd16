package core

// Identity is an opaque, comparable caller identity token supplied by the
// external account layer. The engine never derives or validates identities;
// it only compares them for equality.
type Identity string

// None reports whether the identity is the zero value (no identity recorded).
func (id Identity) None() bool {
	return id == ""
}

// Lot represents a single auction lot. A lot is immutable once created except
// for the fields mutated by reveal (BestAmount, BestBidder) and finalize
// (Finalized).
type Lot struct {
	LotID         uint64   `json:"lot_id"`
	Producer      Identity `json:"producer"`
	BreedTag      string   `json:"breed_tag"`
	InitialWeight uint64   `json:"initial_weight"`
	UnitCount     uint64   `json:"unit_count"`
	MetadataURI   string   `json:"metadata_uri"`
	StartTime     uint64   `json:"start_time"`
	Duration      uint64   `json:"duration"`
	Finalized     bool     `json:"finalized"`

	// BestAmount is monotonically non-decreasing once reveals start.
	// BestBidder stays empty until a reveal beats the current best.
	BestAmount uint64   `json:"best_amount"`
	BestBidder Identity `json:"best_bidder,omitempty"`
}

// WindowEnd returns the end of the bidding window.
func (l *Lot) WindowEnd() uint64 {
	return l.StartTime + l.Duration
}

// WindowClosed reports whether the bidding window has closed at the given time.
func (l *Lot) WindowClosed(now uint64) bool {
	return now >= l.WindowEnd()
}

// LotState is the coarse lifecycle state of a lot.
type LotState string

const (
	// StateOpen: the bidding window is open and the lot is not finalized.
	StateOpen LotState = "open"
	// StateClosed: the window has ended but no finalize has happened yet.
	StateClosed LotState = "closed"
	// StateFinalized: a finalize path succeeded, payment not yet verified.
	StateFinalized LotState = "finalized"
	// StateSettled: the payment proof was accepted.
	StateSettled LotState = "settled"
)

// StateAt returns the lifecycle state of the lot at the given time.
// paid is the lot's payment flag from the store.
func (l *Lot) StateAt(now uint64, paid bool) LotState {
	switch {
	case l.Finalized && paid:
		return StateSettled
	case l.Finalized:
		return StateFinalized
	case l.WindowClosed(now):
		return StateClosed
	default:
		return StateOpen
	}
}

// WinnerRecord is the per-lot winner pair, written exactly once when a lot
// transitions into finalized and never mutated afterward.
type WinnerRecord struct {
	Winner Identity `json:"winner"`
	Amount uint64   `json:"amount"`
}

// LotParams carries the caller-supplied attributes for lot creation.
type LotParams struct {
	LotID         uint64
	Producer      Identity
	BreedTag      string
	InitialWeight uint64
	UnitCount     uint64
	MetadataURI   string
	Duration      uint64
}
