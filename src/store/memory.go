package store

import (
	"context"
	"sort"
	"sync"

	"github.com/DataHighway-DHX/rewards-allowance/src/model"
)

type dayMinerKey struct {
	day   model.Day
	miner model.MinerID
}

// MemoryStore backs the engine in tests and mock mode. The per-block pass is
// single-threaded but the distribution pipeline ticks on its own goroutine,
// so access is serialized with a mutex.
type MemoryStore struct {
	mu sync.Mutex

	params    model.Params
	hasParams bool

	miners map[model.MinerID]struct{}

	bonded  map[dayMinerKey]uint64
	mpower  map[dayMinerKey]uint64
	accrued map[dayMinerKey]uint64

	cooling map[model.MinerID]model.CoolingState

	ratchet    model.RatchetState
	hasRatchet bool

	allowance   map[model.Day]uint64
	aggregated  map[model.Day]uint64
	distributed map[model.Day]bool

	nextAcceptedBlock uint64

	events []model.Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		miners:      map[model.MinerID]struct{}{},
		bonded:      map[dayMinerKey]uint64{},
		mpower:      map[dayMinerKey]uint64{},
		accrued:     map[dayMinerKey]uint64{},
		cooling:     map[model.MinerID]model.CoolingState{},
		allowance:   map[model.Day]uint64{},
		aggregated:  map[model.Day]uint64{},
		distributed: map[model.Day]bool{},
	}
}

func (ms *MemoryStore) GetParams(ctx context.Context) (model.Params, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.params, nil
}

func (ms *MemoryStore) PutParams(ctx context.Context, p model.Params) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.params = p
	ms.hasParams = true
	return nil
}

func (ms *MemoryStore) RegisterMiner(ctx context.Context, miner model.MinerID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.miners[miner] = struct{}{}
	return nil
}

func (ms *MemoryStore) DeregisterMiner(ctx context.Context, miner model.MinerID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.miners, miner)
	return nil
}

func (ms *MemoryStore) ListMiners(ctx context.Context) ([]model.MinerID, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]model.MinerID, 0, len(ms.miners))
	for m := range ms.miners {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (ms *MemoryStore) PutBondedSnapshot(ctx context.Context, day model.Day, miner model.MinerID, amount uint64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.bonded[dayMinerKey{day, miner}] = amount
	return nil
}

func (ms *MemoryStore) GetBondedSnapshot(ctx context.Context, day model.Day, miner model.MinerID) (uint64, bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	v, ok := ms.bonded[dayMinerKey{day, miner}]
	return v, ok, nil
}

func (ms *MemoryStore) PutMPowerRecord(ctx context.Context, rec model.MPowerRecord) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	key := dayMinerKey{rec.Day, rec.Miner}
	if _, exists := ms.mpower[key]; exists {
		return ErrAlreadyRecorded
	}
	ms.mpower[key] = rec.Score
	return nil
}

func (ms *MemoryStore) GetMPower(ctx context.Context, day model.Day, miner model.MinerID) (uint64, bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	v, ok := ms.mpower[dayMinerKey{day, miner}]
	return v, ok, nil
}

func (ms *MemoryStore) ForceSetMPower(ctx context.Context, day model.Day, miner model.MinerID, score uint64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.mpower[dayMinerKey{day, miner}] = score
	return nil
}

func (ms *MemoryStore) GetCoolingState(ctx context.Context, miner model.MinerID) (model.CoolingState, bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	cs, ok := ms.cooling[miner]
	return cs, ok, nil
}

func (ms *MemoryStore) PutCoolingState(ctx context.Context, cs model.CoolingState) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.cooling[cs.Miner] = cs
	return nil
}

func (ms *MemoryStore) GetRatchetState(ctx context.Context) (model.RatchetState, bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.ratchet, ms.hasRatchet, nil
}

func (ms *MemoryStore) PutRatchetState(ctx context.Context, rs model.RatchetState) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.ratchet = rs
	ms.hasRatchet = true
	return nil
}

func (ms *MemoryStore) InitAllowance(ctx context.Context, day model.Day, amount uint64) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, exists := ms.allowance[day]; exists {
		return false, nil
	}
	ms.allowance[day] = amount
	ms.distributed[day] = false
	return true, nil
}

func (ms *MemoryStore) GetAllowance(ctx context.Context, day model.Day) (uint64, bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	v, ok := ms.allowance[day]
	return v, ok, nil
}

func (ms *MemoryStore) SetAllowance(ctx context.Context, day model.Day, amount uint64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, exists := ms.distributed[day]; !exists {
		ms.distributed[day] = false
	}
	ms.allowance[day] = amount
	return nil
}

func (ms *MemoryStore) PutAccrued(ctx context.Context, day model.Day, miner model.MinerID, amount uint64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	key := dayMinerKey{day, miner}
	if _, exists := ms.accrued[key]; exists {
		return ErrAlreadyRecorded
	}
	ms.accrued[key] = amount
	return nil
}

func (ms *MemoryStore) ListAccrued(ctx context.Context, day model.Day) (map[model.MinerID]uint64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := map[model.MinerID]uint64{}
	for k, v := range ms.accrued {
		if k.day == day {
			out[k.miner] = v
		}
	}
	return out, nil
}

func (ms *MemoryStore) AddAggregated(ctx context.Context, day model.Day, amount uint64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	cur := ms.aggregated[day]
	if amount > ^uint64(0)-cur {
		// saturate rather than wrap
		ms.aggregated[day] = ^uint64(0)
		return nil
	}
	ms.aggregated[day] = cur + amount
	return nil
}

func (ms *MemoryStore) GetAggregated(ctx context.Context, day model.Day) (uint64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.aggregated[day], nil
}

func (ms *MemoryStore) MarkDayDistributed(ctx context.Context, day model.Day) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.distributed[day] = true
	return nil
}

func (ms *MemoryStore) ListUndistributedDays(ctx context.Context, before model.Day) ([]model.Day, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var days []model.Day
	for d, done := range ms.distributed {
		if !done && d < before {
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days, nil
}

func (ms *MemoryStore) GetNextAcceptedBlock(ctx context.Context) (uint64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.nextAcceptedBlock, nil
}

func (ms *MemoryStore) SetNextAcceptedBlock(ctx context.Context, block uint64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.nextAcceptedBlock = block
	return nil
}

func (ms *MemoryStore) AppendEvent(ctx context.Context, ev model.Event) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.events = append(ms.events, ev)
	return nil
}

// Events returns a copy of the append-only log, for tests.
func (ms *MemoryStore) Events() []model.Event {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]model.Event, len(ms.events))
	copy(out, ms.events)
	return out
}
