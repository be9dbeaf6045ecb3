package model

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const ( // needs to match `event_kind` in pg
	EventMinerRegistered    EventKind = "miner_registered"
	EventMinerDeregistered  EventKind = "miner_deregistered"
	EventThresholdChanged   EventKind = "threshold_changed"
	EventRatchetAdvanced    EventKind = "ratchet_advanced"
	EventRatchetChanged     EventKind = "ratchet_changed"
	EventAllowanceChanged   EventKind = "allowance_changed"
	EventAllowanceExhausted EventKind = "allowance_exhausted"
	EventMPowerRecorded     EventKind = "mpower_recorded"
	EventRewardPaid         EventKind = "reward_paid"
)

// Event is one entry in the append-only history log. Events are never read
// back for computation; they exist so the day's bookkeeping can be
// reconstructed after the fact.
type Event struct {
	Id        string
	Kind      EventKind
	Day       Day
	Miner     MinerID // empty for day-level events
	Amount    uint64
	Detail    string
	Timestamp time.Time
}

func NewEvent(kind EventKind, day Day, miner MinerID, amount uint64, detail string) Event {
	return Event{
		Id:        uuid.NewString(),
		Kind:      kind,
		Day:       day,
		Miner:     miner,
		Amount:    amount,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
}
