package allowance

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/DataHighway-DHX/rewards-allowance/src/model"
)

// Scale is the token's 18-decimal fixed-point factor.
const Scale uint64 = 1_000_000_000_000_000_000

// advanceRatchet runs the reward multiplier period countdown: at most one
// decrement per calendar day, and on reaching zero the minimum bonding
// threshold is raised by the governance-set increment and the countdown
// restarts at the configured next period length.
func (e *Engine) advanceRatchet(ctx context.Context, today model.Day) error {
	params, err := e.store.GetParams(ctx)
	if err != nil {
		return errors.Wrap(err, "failed loading params")
	}
	if params.RatchetPaused {
		return nil
	}
	if params.RatchetReset {
		return e.resetThresholds(ctx, params, today)
	}

	rs, found, err := e.store.GetRatchetState(ctx)
	if err != nil {
		return errors.Wrap(err, "failed loading ratchet state")
	}
	if !found {
		rs = model.RatchetState{
			PeriodStartDay:   today,
			LastProcessedDay: today,
			TotalPeriodDays:  params.RatchetPeriodDays,
			RemainingDays:    params.RatchetPeriodDays,
		}
		return e.store.PutRatchetState(ctx, rs)
	}
	if rs.LastProcessedDay == today {
		return nil
	}
	if rs.RemainingDays > rs.TotalPeriodDays {
		return errors.Errorf("ratchet invariant violated: remaining %d > total %d",
			rs.RemainingDays, rs.TotalPeriodDays)
	}

	if rs.RemainingDays > 0 {
		rs.RemainingDays--
		rs.LastProcessedDay = today
		return e.store.PutRatchetState(ctx, rs)
	}

	// period complete: raise the threshold and roll the next period forward
	raised, err := applyRatchetOp(params.MinBondedDaily, params.RatchetIncrement, params.RatchetOp)
	if err != nil {
		return err
	}
	prev := params.MinBondedDaily
	params.MinBondedDaily = raised
	params.RatchetPeriodDays = params.RatchetNextPeriodDays
	if err := e.store.PutParams(ctx, params); err != nil {
		return errors.Wrap(err, "failed writing ratcheted params")
	}

	rs = model.RatchetState{
		PeriodStartDay:   today,
		LastProcessedDay: today,
		TotalPeriodDays:  params.RatchetPeriodDays,
		RemainingDays:    params.RatchetPeriodDays,
	}
	if err := e.store.PutRatchetState(ctx, rs); err != nil {
		return errors.Wrap(err, "failed resetting ratchet state")
	}

	RecordRatchetAdvance()
	e.logger.Info("ratcheted minimum bonding threshold",
		zap.Uint64("previous", prev), zap.Uint64("raised", raised),
		zap.Uint32("next_period_days", rs.TotalPeriodDays))
	ev := model.NewEvent(model.EventRatchetAdvanced, today, "", raised,
		fmt.Sprintf("min bonded %d -> %d", prev, raised))
	return errors.Wrap(e.store.AppendEvent(ctx, ev), "failed appending ratchet event")
}

// resetThresholds forces both minimums back to their defaults and clears the
// reset flag; the countdown restarts at the current period length.
func (e *Engine) resetThresholds(ctx context.Context, params model.Params, today model.Day) error {
	params.MinBondedDaily = params.MinBondedDailyDefault
	params.MinMPowerDaily = params.MinMPowerDailyDefault
	params.RatchetReset = false
	if err := e.store.PutParams(ctx, params); err != nil {
		return errors.Wrap(err, "failed writing reset params")
	}
	rs := model.RatchetState{
		PeriodStartDay:   today,
		LastProcessedDay: today,
		TotalPeriodDays:  params.RatchetPeriodDays,
		RemainingDays:    params.RatchetPeriodDays,
	}
	if err := e.store.PutRatchetState(ctx, rs); err != nil {
		return errors.Wrap(err, "failed resetting ratchet state")
	}
	e.logger.Info("ratchet reset, thresholds restored to defaults",
		zap.Uint64("min_bonded", params.MinBondedDaily),
		zap.Uint64("min_mpower", params.MinMPowerDaily))
	ev := model.NewEvent(model.EventRatchetChanged, today, "", params.MinBondedDaily, "reset to defaults")
	return errors.Wrap(e.store.AppendEvent(ctx, ev), "failed appending ratchet reset event")
}

// applyRatchetOp combines an 18-decimal token amount with the increment.
// Both operands are scaled down to whole tokens before the core operation
// and the result scaled back up: sub-token precision is traded for overflow
// headroom.
func applyRatchetOp(min, increment uint64, op model.RatchetOp) (uint64, error) {
	switch op {
	case model.RatchetOpAdd:
		whole := sdkmath.NewUint(min).QuoUint64(Scale)
		incr := sdkmath.NewUint(increment).QuoUint64(Scale)
		raised := whole.Add(incr).MulUint64(Scale)
		if !raised.BigInt().IsUint64() {
			return 0, errors.Wrapf(ErrArithmetic, "ratcheted threshold exceeds uint64")
		}
		return raised.Uint64(), nil
	default:
		return 0, errors.Errorf("unsupported ratchet operation %q", op)
	}
}
