package allowance

import (
	"context"
	"testing"

	"github.com/DataHighway-DHX/rewards-allowance/src/model"
)

const miner = model.MinerID("aa01")

// qualifyingFixture registers one miner that clears both thresholds.
func qualifyingFixture(t *testing.T, params model.Params) *testFixture {
	t.Helper()
	f := newFixture(t, params)
	if err := f.store.RegisterMiner(context.Background(), miner); err != nil {
		t.Fatal(err)
	}
	f.ledger.SetBonded(miner, 100)
	f.feed.records = []model.MPowerRecord{{Miner: miner, Score: 50}}
	return f
}

func coolingState(t *testing.T, f *testFixture) model.CoolingState {
	t.Helper()
	cs, found, err := f.store.GetCoolingState(context.Background(), miner)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected cooling state to exist")
	}
	return cs
}

func accruedOn(t *testing.T, f *testFixture, day int) (uint64, bool) {
	t.Helper()
	accrued, err := f.store.ListAccrued(context.Background(), baseDay+model.Day(day*86_400_000))
	if err != nil {
		t.Fatal(err)
	}
	v, ok := accrued[miner]
	return v, ok
}

func TestCoolingInTiming(t *testing.T) {
	f := qualifyingFixture(t, defaultParams())

	// day 0: first qualification enters cooling-in with the full period
	f.mustPass(t, 1, 0)
	cs := coolingState(t, f)
	if cs.Status != model.CoolingStatusCoolingIn || cs.RemainingDays != 3 {
		t.Fatalf("expected cooling-in with 3 days, got %+v", cs)
	}
	if _, ok := accruedOn(t, f, 0); ok {
		t.Fatal("miner must not accrue while cooling in")
	}

	// days 1 and 2: countdown, still not eligible
	f.mustPass(t, 2, 1)
	f.mustPass(t, 3, 2)
	cs = coolingState(t, f)
	if cs.RemainingDays != 1 {
		t.Fatalf("expected 1 day remaining, got %d", cs.RemainingDays)
	}
	if _, ok := accruedOn(t, f, 2); ok {
		t.Fatal("miner accrued before the cooling-off period completed")
	}

	// day 3: exactly CoolingOffPeriodDays later, eligible and accruing
	f.mustPass(t, 4, 3)
	cs = coolingState(t, f)
	if !cs.Eligible() {
		t.Fatalf("expected eligibility on day 3, got %+v", cs)
	}
	raw, ok := accruedOn(t, f, 3)
	if !ok {
		t.Fatal("eligible miner did not accrue")
	}
	if raw != 10 { // floor(100 bonded / 10 min bonded)
		t.Fatalf("wrong raw reward: %d", raw)
	}
}

func TestAccrualOncePerDay(t *testing.T) {
	f := qualifyingFixture(t, defaultParams())
	for day := 0; day <= 3; day++ {
		f.mustPass(t, uint64(day)+1, day)
	}

	// second block on the eligible day: accrual and aggregation must not double
	f.mustPass(t, 10, 3)
	agg, err := f.store.GetAggregated(context.Background(), baseDay+model.Day(3*86_400_000))
	if err != nil {
		t.Fatal(err)
	}
	if agg != 10 {
		t.Fatalf("aggregate double-counted: %d", agg)
	}
}

func TestCoolingCountdownOncePerDay(t *testing.T) {
	f := qualifyingFixture(t, defaultParams())
	f.mustPass(t, 1, 0)
	// many blocks on the same day only decrement once (not at all on entry day)
	f.mustPass(t, 2, 0)
	f.mustPass(t, 3, 0)
	cs := coolingState(t, f)
	if cs.RemainingDays != 3 {
		t.Fatalf("countdown moved on the entry day: %+v", cs)
	}
	f.mustPass(t, 4, 1)
	f.mustPass(t, 5, 1)
	cs = coolingState(t, f)
	if cs.RemainingDays != 2 {
		t.Fatalf("countdown must decrement exactly once per day: %+v", cs)
	}
}

func TestTransientDropWhileCoolingIn(t *testing.T) {
	f := qualifyingFixture(t, defaultParams())
	f.mustPass(t, 1, 0)
	f.mustPass(t, 2, 1)

	// day 2: feed goes silent, qualification lost; the countdown holds
	f.feed.records = nil
	f.mustPass(t, 3, 2)
	cs := coolingState(t, f)
	if cs.Status != model.CoolingStatusCoolingIn || cs.RemainingDays != 2 {
		t.Fatalf("transient drop must leave the countdown untouched, got %+v", cs)
	}

	// day 3: qualification back, countdown resumes where it left off
	f.feed.records = []model.MPowerRecord{{Miner: miner, Score: 50}}
	f.mustPass(t, 4, 3)
	cs = coolingState(t, f)
	if cs.RemainingDays != 1 {
		t.Fatalf("countdown did not resume: %+v", cs)
	}
}

func TestCoolingOutOnQualificationLoss(t *testing.T) {
	f := qualifyingFixture(t, defaultParams())
	for day := 0; day <= 3; day++ {
		f.mustPass(t, uint64(day)+1, day)
	}
	pre := coolingState(t, f)
	if !pre.Eligible() {
		t.Fatal("fixture should be eligible by day 3")
	}

	// day 4: drop below the bonding threshold while eligible
	f.ledger.SetBonded(miner, 1)
	f.mustPass(t, 5, 4)
	cs := coolingState(t, f)
	if cs.Status != model.CoolingStatusCoolingOut || cs.RemainingDays != 3 {
		t.Fatalf("expected cooling-out with the full period, got %+v", cs)
	}

	// requalifying during cooling-out does not stop the clock
	f.ledger.SetBonded(miner, 100)
	f.mustPass(t, 6, 5)
	f.mustPass(t, 7, 6)
	cs = coolingState(t, f)
	if cs.Status != model.CoolingStatusCoolingOut || cs.RemainingDays != 1 {
		t.Fatalf("cooling-out must decrement regardless of requalification, got %+v", cs)
	}

	// day 7: back to unbonded; the full cooling-in period starts over
	f.mustPass(t, 8, 7)
	cs = coolingState(t, f)
	if cs.Status != model.CoolingStatusUnbonded {
		t.Fatalf("expected unbonded after cooling out, got %+v", cs)
	}
	f.mustPass(t, 9, 8)
	cs = coolingState(t, f)
	if cs.Status != model.CoolingStatusCoolingIn || cs.RemainingDays != 3 {
		t.Fatalf("expected a fresh cooling-in period, got %+v", cs)
	}
}

func TestZeroCoolingPeriodEligibleImmediately(t *testing.T) {
	params := defaultParams()
	params.CoolingOffPeriodDays = 0
	f := qualifyingFixture(t, params)
	f.mustPass(t, 1, 0)
	if _, ok := accruedOn(t, f, 0); !ok {
		t.Fatal("zero-length cooling period must accrue on the entry day")
	}
}
