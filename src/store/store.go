package store

import (
	"context"
	"fmt"

	"github.com/DataHighway-DHX/rewards-allowance/src/model"
)

// ErrAlreadyRecorded marks idempotency-guard rejections (duplicate mPower
// write, duplicate daily accrual). Callers treat it as a no-op, not a fault.
var ErrAlreadyRecorded = fmt.Errorf("already recorded")

// Store is the persistence substrate the engine runs against. The engine
// exclusively owns every map behind this interface; the host ledger's
// balance/lock state is deliberately not part of it.
type Store interface {
	// Governance-tunable parameters, read at the top of every block pass.
	GetParams(ctx context.Context) (model.Params, error)
	PutParams(ctx context.Context, p model.Params) error

	// Registered miner universe, iterated each block.
	RegisterMiner(ctx context.Context, miner model.MinerID) error
	DeregisterMiner(ctx context.Context, miner model.MinerID) error
	ListMiners(ctx context.Context) ([]model.MinerID, error)

	// Bonded-amount snapshot, written once per (day, miner) by the scheduler.
	PutBondedSnapshot(ctx context.Context, day model.Day, miner model.MinerID, amount uint64) error
	GetBondedSnapshot(ctx context.Context, day model.Day, miner model.MinerID) (uint64, bool, error)

	// mPower records are write-once per (day, miner); a second write returns
	// ErrAlreadyRecorded and leaves the first value in place. ForceSetMPower
	// is the governance correction path and may overwrite.
	PutMPowerRecord(ctx context.Context, rec model.MPowerRecord) error
	GetMPower(ctx context.Context, day model.Day, miner model.MinerID) (uint64, bool, error)
	ForceSetMPower(ctx context.Context, day model.Day, miner model.MinerID, score uint64) error

	GetCoolingState(ctx context.Context, miner model.MinerID) (model.CoolingState, bool, error)
	PutCoolingState(ctx context.Context, cs model.CoolingState) error

	GetRatchetState(ctx context.Context) (model.RatchetState, bool, error)
	PutRatchetState(ctx context.Context, rs model.RatchetState) error

	// Remaining daily allowance. InitAllowance only writes when the day is
	// unset and reports whether it did.
	InitAllowance(ctx context.Context, day model.Day, amount uint64) (bool, error)
	GetAllowance(ctx context.Context, day model.Day) (uint64, bool, error)
	SetAllowance(ctx context.Context, day model.Day, amount uint64) error

	// Raw reward bookkeeping. PutAccrued is write-once per (day, miner).
	PutAccrued(ctx context.Context, day model.Day, miner model.MinerID, amount uint64) error
	ListAccrued(ctx context.Context, day model.Day) (map[model.MinerID]uint64, error)
	AddAggregated(ctx context.Context, day model.Day, amount uint64) error
	GetAggregated(ctx context.Context, day model.Day) (uint64, error)

	MarkDayDistributed(ctx context.Context, day model.Day) error
	ListUndistributedDays(ctx context.Context, before model.Day) ([]model.Day, error)

	// Replay gate counter for the submission channel.
	GetNextAcceptedBlock(ctx context.Context) (uint64, error)
	SetNextAcceptedBlock(ctx context.Context, block uint64) error

	// Append-only history; never read back for computation.
	AppendEvent(ctx context.Context, ev model.Event) error
}
