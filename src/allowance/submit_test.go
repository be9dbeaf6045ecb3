package allowance

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/DataHighway-DHX/rewards-allowance/src/model"
)

func mpowerFor(t *testing.T, f *testFixture, day int, m model.MinerID) (uint64, bool) {
	t.Helper()
	score, found, err := f.store.GetMPower(context.Background(), baseDay+model.Day(day*86_400_000), m)
	if err != nil {
		t.Fatal(err)
	}
	return score, found
}

func TestSubmitMPowerWriteOnce(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()

	first := []model.MPowerRecord{{Miner: "aa01", Score: 50, Block: 1}}
	if err := f.engine.SubmitMPower(ctx, 1, 1, baseDay, first); err != nil {
		t.Fatal(err)
	}
	// a second submission for the same (day, miner) is dropped silently
	second := []model.MPowerRecord{{Miner: "aa01", Score: 999, Block: 2}}
	if err := f.engine.SubmitMPower(ctx, 2, 2, baseDay, second); err != nil {
		t.Fatal(err)
	}

	score, found := mpowerFor(t, f, 0, "aa01")
	if !found || score != 50 {
		t.Fatalf("first write must win: got %d (found=%t)", score, found)
	}
}

func TestSubmitMPowerReplayRejected(t *testing.T) {
	params := defaultParams()
	params.UnsignedInterval = 100
	f := newFixture(t, params)
	ctx := context.Background()

	records := []model.MPowerRecord{{Miner: "aa01", Score: 50, Block: 50}}
	if err := f.engine.SubmitMPower(ctx, 50, 50, baseDay, records); err != nil {
		t.Fatal(err)
	}
	next, err := f.store.GetNextAcceptedBlock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if next != 150 {
		t.Fatalf("gate must advance by the unsigned interval, got %d", next)
	}

	// block 120 is behind the gate: rejected, no state changes
	stale := []model.MPowerRecord{{Miner: "bb02", Score: 40, Block: 120}}
	err = f.engine.SubmitMPower(ctx, 200, 120, baseDay, stale)
	if !errors.Is(err, ErrReplayRejected) {
		t.Fatalf("expected replay rejection, got %v", err)
	}
	if _, found := mpowerFor(t, f, 0, "bb02"); found {
		t.Fatal("rejected submission must not record mpower")
	}
	next, _ = f.store.GetNextAcceptedBlock(ctx)
	if next != 150 {
		t.Fatalf("rejected submission must not move the gate, got %d", next)
	}

	// at or past the gate the submission goes through again
	fresh := []model.MPowerRecord{{Miner: "bb02", Score: 40, Block: 150}}
	if err := f.engine.SubmitMPower(ctx, 200, 150, baseDay, fresh); err != nil {
		t.Fatal(err)
	}
	if _, found := mpowerFor(t, f, 0, "bb02"); !found {
		t.Fatal("submission at the gate must be accepted")
	}
}

func TestSubmitMPowerFutureBlockRejected(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()

	records := []model.MPowerRecord{{Miner: "aa01", Score: 50, Block: 10}}
	err := f.engine.SubmitMPower(ctx, 5, 10, baseDay, records)
	if !errors.Is(err, ErrFutureBlock) {
		t.Fatalf("expected future-block rejection, got %v", err)
	}
	if _, found := mpowerFor(t, f, 0, "aa01"); found {
		t.Fatal("future-block submission must not record mpower")
	}
}
