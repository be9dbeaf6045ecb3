package store

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/DataHighway-DHX/rewards-allowance/src/model"
)

func TestMPowerWriteOnce(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	rec := model.MPowerRecord{Miner: "aa01", Score: 50, Day: model.Day(86_400_000)}
	if err := ms.PutMPowerRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}
	rec.Score = 999
	if err := ms.PutMPowerRecord(ctx, rec); !errors.Is(err, ErrAlreadyRecorded) {
		t.Fatalf("expected ErrAlreadyRecorded, got %v", err)
	}
	score, found, err := ms.GetMPower(ctx, rec.Day, rec.Miner)
	if err != nil || !found {
		t.Fatalf("record missing: %v", err)
	}
	if score != 50 {
		t.Fatalf("first write must win, got %d", score)
	}

	// same miner, different day is a fresh slot
	rec.Day = rec.Day.Next()
	if err := ms.PutMPowerRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}
}

func TestAccruedWriteOnce(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	day := model.Day(86_400_000)

	if err := ms.PutAccrued(ctx, day, "aa01", 100); err != nil {
		t.Fatal(err)
	}
	if err := ms.PutAccrued(ctx, day, "aa01", 200); !errors.Is(err, ErrAlreadyRecorded) {
		t.Fatalf("expected ErrAlreadyRecorded, got %v", err)
	}
	if err := ms.PutAccrued(ctx, day, "bb02", 40); err != nil {
		t.Fatal(err)
	}

	accrued, err := ms.ListAccrued(ctx, day)
	if err != nil {
		t.Fatal(err)
	}
	expected := map[model.MinerID]uint64{"aa01": 100, "bb02": 40}
	if d := cmp.Diff(expected, accrued); d != "" {
		t.Fatalf("unexpected accrued set: %s", d)
	}
}

func TestInitAllowanceOnce(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	day := model.Day(86_400_000)

	wrote, err := ms.InitAllowance(ctx, day, 5000)
	if err != nil || !wrote {
		t.Fatalf("first init must write: wrote=%t err=%v", wrote, err)
	}
	if err := ms.SetAllowance(ctx, day, 1234); err != nil {
		t.Fatal(err)
	}
	wrote, err = ms.InitAllowance(ctx, day, 5000)
	if err != nil || wrote {
		t.Fatalf("second init must be a no-op: wrote=%t err=%v", wrote, err)
	}
	remaining, _, _ := ms.GetAllowance(ctx, day)
	if remaining != 1234 {
		t.Fatalf("re-init clobbered the remaining allowance: %d", remaining)
	}
}

func TestAddAggregatedSaturates(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	day := model.Day(86_400_000)

	if err := ms.AddAggregated(ctx, day, ^uint64(0)-10); err != nil {
		t.Fatal(err)
	}
	if err := ms.AddAggregated(ctx, day, 100); err != nil {
		t.Fatal(err)
	}
	total, err := ms.GetAggregated(ctx, day)
	if err != nil {
		t.Fatal(err)
	}
	if total != ^uint64(0) {
		t.Fatalf("aggregate must saturate at MaxUint64, got %d", total)
	}
}

func TestListUndistributedDaysOrdered(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	d1 := model.Day(86_400_000)
	d2 := d1.Next()
	d3 := d2.Next()
	for _, d := range []model.Day{d3, d1, d2} {
		if _, err := ms.InitAllowance(ctx, d, 100); err != nil {
			t.Fatal(err)
		}
	}
	if err := ms.MarkDayDistributed(ctx, d2); err != nil {
		t.Fatal(err)
	}

	days, err := ms.ListUndistributedDays(ctx, d3.Next())
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff([]model.Day{d1, d3}, days); d != "" {
		t.Fatalf("unexpected day list: %s", d)
	}

	// the cutoff excludes days that are still open
	days, err = ms.ListUndistributedDays(ctx, d3)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff([]model.Day{d1}, days); d != "" {
		t.Fatalf("cutoff not applied: %s", d)
	}
}
