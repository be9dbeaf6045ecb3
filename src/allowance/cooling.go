package allowance

import (
	"context"

	"go.uber.org/zap"

	"github.com/DataHighway-DHX/rewards-allowance/src/model"
)

// advanceCooling evaluates one miner's cooling-off state for the day and
// reports whether the miner is eligible (and qualifying) for today's accrual.
// Transitions take effect at most once per calendar day, gated on
// AnchorDay != today.
//
// Entering eligibility and leaving it are asymmetric on purpose: a transient
// qualification drop while cooling in leaves the countdown untouched, but
// once eligible a drop always costs the full cooling-out period.
func (e *Engine) advanceCooling(ctx context.Context, params model.Params, today model.Day, miner model.MinerID) (bool, error) {
	cs, found, err := e.store.GetCoolingState(ctx, miner)
	if err != nil {
		return false, err
	}
	if !found {
		cs = model.CoolingState{Miner: miner, Status: model.CoolingStatusUnbonded}
	}

	qualifies, err := e.qualifies(ctx, params, today, miner)
	if err != nil {
		return false, err
	}

	switch cs.Status {
	case model.CoolingStatusUnbonded:
		if !qualifies {
			return false, nil
		}
		cs.Status = model.CoolingStatusCoolingIn
		cs.AnchorDay = today
		cs.RemainingDays = params.CoolingOffPeriodDays
		e.logger.Info("miner entered cooling-in",
			zap.String("miner", string(miner)), zap.Uint32("days", cs.RemainingDays))
		if cs.RemainingDays == 0 {
			// zero-length period makes the miner eligible on entry day
			return true, e.store.PutCoolingState(ctx, cs)
		}
		return false, e.store.PutCoolingState(ctx, cs)

	case model.CoolingStatusCoolingIn:
		if cs.RemainingDays > 0 {
			if qualifies && cs.AnchorDay != today {
				cs.RemainingDays--
				cs.AnchorDay = today
				if err := e.store.PutCoolingState(ctx, cs); err != nil {
					return false, err
				}
				if cs.RemainingDays == 0 {
					e.logger.Info("miner became eligible", zap.String("miner", string(miner)))
					return true, nil
				}
			}
			// unqualified while still cooling in: countdown continues unaffected
			return false, nil
		}
		// eligible
		if qualifies {
			return true, nil
		}
		cs.Status = model.CoolingStatusCoolingOut
		cs.AnchorDay = today
		cs.RemainingDays = params.CoolingOffPeriodDays
		e.logger.Info("miner lost qualification, cooling out",
			zap.String("miner", string(miner)), zap.Uint32("days", cs.RemainingDays))
		return false, e.store.PutCoolingState(ctx, cs)

	case model.CoolingStatusCoolingOut:
		// decrements once per day regardless of requalification attempts
		if cs.AnchorDay == today {
			return false, nil
		}
		if cs.RemainingDays > 0 {
			cs.RemainingDays--
		}
		cs.AnchorDay = today
		if cs.RemainingDays == 0 {
			cs.Status = model.CoolingStatusUnbonded
			e.logger.Info("miner finished cooling out", zap.String("miner", string(miner)))
		}
		return false, e.store.PutCoolingState(ctx, cs)
	}
	return false, nil
}

func (e *Engine) qualifies(ctx context.Context, params model.Params, today model.Day, miner model.MinerID) (bool, error) {
	bonded, _, err := e.store.GetBondedSnapshot(ctx, today, miner)
	if err != nil {
		return false, err
	}
	mpower, _, err := e.store.GetMPower(ctx, today, miner)
	if err != nil {
		return false, err
	}
	return bonded >= params.MinBondedDaily && mpower >= params.MinMPowerDaily, nil
}
