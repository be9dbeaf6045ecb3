package model

import "encoding/hex"

// MinerID is the opaque public-key identifier of a registered miner,
// hex-encoded for use as a map/database key.
type MinerID string

func MinerIDFromBytes(raw []byte) MinerID {
	return MinerID(hex.EncodeToString(raw))
}

func (m MinerID) Bytes() ([]byte, error) {
	return hex.DecodeString(string(m))
}

type CoolingStatus int

const (
	CoolingStatusUnbonded   CoolingStatus = 0
	CoolingStatusCoolingIn  CoolingStatus = 1 // eligible once RemainingDays hits 0
	CoolingStatusCoolingOut CoolingStatus = 2
)

// CoolingState tracks a single miner's transition into and out of reward
// eligibility. RemainingDays decrements at most once per calendar day,
// gated on AnchorDay != today.
type CoolingState struct {
	Miner         MinerID
	Status        CoolingStatus
	AnchorDay     Day
	RemainingDays uint32
}

func (cs *CoolingState) Eligible() bool {
	return cs.Status == CoolingStatusCoolingIn && cs.RemainingDays == 0
}

// RatchetState is the reward multiplier period countdown. Invariant:
// RemainingDays <= TotalPeriodDays; decremented at most once per calendar day.
type RatchetState struct {
	PeriodStartDay   Day
	LastProcessedDay Day
	TotalPeriodDays  uint32
	RemainingDays    uint32
}

type RatchetOp string

const (
	RatchetOpAdd RatchetOp = "add"
)

// MPowerRecord is an externally sourced reputation score for one miner on
// one day, stamped with the block it was ingested at. Write-once per
// (day, miner).
type MPowerRecord struct {
	Miner MinerID
	Score uint64
	Day   Day
	Block uint64
}

// Params is the governance-tunable configuration snapshot the engine reads
// at the top of every per-block pass. Thresholds are in the token's
// smallest unit (18 decimals).
type Params struct {
	MinBondedDaily          uint64
	MinBondedDailyDefault   uint64
	MinMPowerDaily          uint64
	MinMPowerDailyDefault   uint64
	CoolingOffPeriodDays    uint32
	RewardAllowanceDaily    uint64
	RatchetIncrement        uint64
	RatchetOp               RatchetOp
	RatchetPeriodDays       uint32
	RatchetNextPeriodDays   uint32
	RatchetPaused           bool
	RatchetReset            bool
	UnsignedInterval        uint64
	DispatchGraceBlocks     uint64
}
