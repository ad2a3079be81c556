package core

import "time"

// EventKind names an observation emitted to indexers and front-ends.
type EventKind string

const (
	EventAuctionCreated     EventKind = "AuctionCreated"
	EventBidPlaced          EventKind = "BidPlaced"
	EventAuctionEnded       EventKind = "AuctionEnded"
	EventRefundClaimed      EventKind = "RefundClaimed"
	EventProceedsWithdrawn  EventKind = "ProceedsWithdrawn"
	EventFeesWithdrawn      EventKind = "FeesWithdrawn"
	EventPlatformFeeUpdated EventKind = "PlatformFeeUpdated"
)

// Event is one entry of the append-only observation log.
type Event struct {
	Seq          uint64    `json:"seq"`
	Kind         EventKind `json:"kind"`
	AuctionID    AuctionID `json:"auction_id,omitempty"`
	Actor        Address   `json:"actor,omitempty"`
	Counterparty Address   `json:"counterparty,omitempty"` // winner for AuctionEnded
	Amount       Amount    `json:"amount"`
	Currency     Currency  `json:"currency,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	Time         time.Time `json:"time"`
	PrevHash     string    `json:"prev_hash"`
	Hash         string    `json:"hash"`
}

// eventLog is append-only. emit appends immediately, so every operation
// emits as its final step, after the last call that can fail.
type eventLog struct {
	events []Event
	head   string
}

func newEventLog() *eventLog {
	return &eventLog{head: GenesisEventHash}
}

func (l *eventLog) append(e Event) Event {
	e.Seq = uint64(len(l.events)) + 1
	e.PrevHash = l.head
	e.Hash = ComputeEventHash(l.head, e)
	l.events = append(l.events, e)
	l.head = e.Hash
	return e
}

// since returns a copy of the events with Seq >= fromSeq.
func (l *eventLog) since(fromSeq uint64) []Event {
	if fromSeq == 0 {
		fromSeq = 1
	}
	if fromSeq > uint64(len(l.events)) {
		return []Event{}
	}
	out := make([]Event, len(l.events)-int(fromSeq-1))
	copy(out, l.events[fromSeq-1:])
	return out
}

// Events returns the observations with sequence number >= fromSeq.
func (m *Market) Events(fromSeq uint64) []Event {
	return m.log.since(fromSeq)
}

// EventHead returns the hash of the latest observation.
func (m *Market) EventHead() string {
	return m.log.head
}

// emit stamps e with the transaction time and appends it.
func (m *Market) emit(e Event) Event {
	if e.Time.IsZero() {
		e.Time = m.clock.Now()
	}
	return m.log.append(e)
}
