package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/DataHighway-DHX/rewards-allowance/src/model"
	"github.com/DataHighway-DHX/rewards-allowance/src/store"
)

// These tests run against the local dockerized postgres (see
// ConfigureDockerConnection for the connection string).
func TestMain(m *testing.M) {
	ConfigureDockerConnection()
	if err := Migrate(context.Background()); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestParamsRoundTrip(t *testing.T) {
	ctx := context.Background()
	DoExecOrDie(ctx, `TRUNCATE params`)
	s := &Store{}

	p := model.Params{
		MinBondedDaily:        10,
		MinBondedDailyDefault: 10,
		MinMPowerDaily:        5,
		MinMPowerDailyDefault: 5,
		CoolingOffPeriodDays:  3,
		RewardAllowanceDaily:  5000,
		RatchetIncrement:      1,
		RatchetOp:             model.RatchetOpAdd,
		RatchetPeriodDays:     365,
		RatchetNextPeriodDays: 30,
		UnsignedInterval:      100,
		DispatchGraceBlocks:   10,
	}
	if err := s.PutParams(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetParams(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff(p, got); d != "" {
		t.Fatalf("params did not round trip: %s", d)
	}

	// upsert path
	p.MinBondedDaily = 40
	if err := s.PutParams(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetParams(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.MinBondedDaily != 40 {
		t.Fatalf("params upsert lost the change: %+v", got)
	}
}

func TestMPowerWriteOncePg(t *testing.T) {
	ctx := context.Background()
	DoExecOrDie(ctx, `TRUNCATE mpower_records`)
	s := &Store{}

	rec := model.MPowerRecord{Miner: "aa01", Score: 50, Day: model.Day(86_400_000), Block: 7}
	if err := s.PutMPowerRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}
	rec.Score = 999
	if err := s.PutMPowerRecord(ctx, rec); !errors.Is(err, store.ErrAlreadyRecorded) {
		t.Fatalf("expected ErrAlreadyRecorded, got %v", err)
	}
	score, found, err := s.GetMPower(ctx, rec.Day, rec.Miner)
	if err != nil || !found {
		t.Fatalf("record missing: %v", err)
	}
	if score != 50 {
		t.Fatalf("first write must win, got %d", score)
	}

	// the privileged correction path overwrites
	if err := s.ForceSetMPower(ctx, rec.Day, rec.Miner, 75); err != nil {
		t.Fatal(err)
	}
	score, _, _ = s.GetMPower(ctx, rec.Day, rec.Miner)
	if score != 75 {
		t.Fatalf("correction did not overwrite, got %d", score)
	}
}

func TestDayAllowanceLifecyclePg(t *testing.T) {
	ctx := context.Background()
	DoExecOrDie(ctx, `TRUNCATE reward_days`)
	s := &Store{}
	day := model.Day(86_400_000)

	wrote, err := s.InitAllowance(ctx, day, 5000)
	if err != nil || !wrote {
		t.Fatalf("first init must write: wrote=%t err=%v", wrote, err)
	}
	if err := s.SetAllowance(ctx, day, 1234); err != nil {
		t.Fatal(err)
	}
	wrote, err = s.InitAllowance(ctx, day, 5000)
	if err != nil || wrote {
		t.Fatalf("second init must be a no-op: wrote=%t err=%v", wrote, err)
	}
	remaining, found, err := s.GetAllowance(ctx, day)
	if err != nil || !found {
		t.Fatalf("day allowance missing: %v", err)
	}
	if remaining != 1234 {
		t.Fatalf("re-init clobbered the remaining allowance: %d", remaining)
	}

	if err := s.AddAggregated(ctx, day, 300); err != nil {
		t.Fatal(err)
	}
	if err := s.AddAggregated(ctx, day, 200); err != nil {
		t.Fatal(err)
	}
	total, err := s.GetAggregated(ctx, day)
	if err != nil {
		t.Fatal(err)
	}
	if total != 500 {
		t.Fatalf("expected aggregate 500, got %d", total)
	}

	days, err := s.ListUndistributedDays(ctx, day.Next())
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 1 || days[0] != day {
		t.Fatalf("unexpected undistributed days: %v", days)
	}
	if err := s.MarkDayDistributed(ctx, day); err != nil {
		t.Fatal(err)
	}
	days, err = s.ListUndistributedDays(ctx, day.Next())
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 0 {
		t.Fatalf("distributed day still listed: %v", days)
	}
}

func TestCoolingStateRoundTripPg(t *testing.T) {
	ctx := context.Background()
	DoExecOrDie(ctx, `TRUNCATE cooling_states`)
	s := &Store{}

	cs := model.CoolingState{
		Miner:         "aa01",
		Status:        model.CoolingStatusCoolingIn,
		AnchorDay:     model.Day(86_400_000),
		RemainingDays: 2,
	}
	if err := s.PutCoolingState(ctx, cs); err != nil {
		t.Fatal(err)
	}
	got, found, err := s.GetCoolingState(ctx, cs.Miner)
	if err != nil || !found {
		t.Fatalf("cooling state missing: %v", err)
	}
	if d := cmp.Diff(cs, got); d != "" {
		t.Fatalf("cooling state did not round trip: %s", d)
	}

	if _, found, err := s.GetCoolingState(ctx, "ffff"); err != nil || found {
		t.Fatalf("unknown miner must report not found: found=%t err=%v", found, err)
	}
}
