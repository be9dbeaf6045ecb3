package allowance

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/DataHighway-DHX/rewards-allowance/src/model"
	"github.com/DataHighway-DHX/rewards-allowance/src/store"
)

// Governance is the privileged configuration surface. Every setter checks
// the caller against the configured governance keys, applies the change, and
// appends a change event. Errors surface synchronously to the caller.
type Governance struct {
	store      store.Store
	authorized map[string]struct{}
	logger     *zap.Logger
}

func NewGovernance(st store.Store, keys []string, logger *zap.Logger) *Governance {
	authorized := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		authorized[k] = struct{}{}
	}
	return &Governance{
		store:      st,
		authorized: authorized,
		logger:     logger.With(zap.String("component", "governance")),
	}
}

func (g *Governance) authorize(caller string) error {
	if _, ok := g.authorized[caller]; !ok {
		return errors.Wrapf(ErrUnauthorized, "caller %s", caller)
	}
	return nil
}

func (g *Governance) RegisterMiner(ctx context.Context, caller string, miner model.MinerID) error {
	if err := g.authorize(caller); err != nil {
		return err
	}
	if err := g.store.RegisterMiner(ctx, miner); err != nil {
		return errors.Wrapf(err, "failed registering miner %s", miner)
	}
	g.logger.Info("miner registered", zap.String("miner", string(miner)))
	return g.appendEvent(ctx, model.NewEvent(model.EventMinerRegistered, 0, miner, 0, ""))
}

func (g *Governance) DeregisterMiner(ctx context.Context, caller string, miner model.MinerID) error {
	if err := g.authorize(caller); err != nil {
		return err
	}
	if err := g.store.DeregisterMiner(ctx, miner); err != nil {
		return errors.Wrapf(err, "failed deregistering miner %s", miner)
	}
	g.logger.Info("miner deregistered", zap.String("miner", string(miner)))
	return g.appendEvent(ctx, model.NewEvent(model.EventMinerDeregistered, 0, miner, 0, ""))
}

func (g *Governance) SetMinBondedDaily(ctx context.Context, caller string, amount uint64) error {
	return g.updateParams(ctx, caller, model.EventThresholdChanged, amount,
		fmt.Sprintf("min bonded daily = %d", amount),
		func(p *model.Params) { p.MinBondedDaily = amount })
}

func (g *Governance) SetMinMPowerDaily(ctx context.Context, caller string, score uint64) error {
	return g.updateParams(ctx, caller, model.EventThresholdChanged, score,
		fmt.Sprintf("min mpower daily = %d", score),
		func(p *model.Params) { p.MinMPowerDaily = score })
}

func (g *Governance) SetCoolingOffPeriodDays(ctx context.Context, caller string, days uint32) error {
	return g.updateParams(ctx, caller, model.EventThresholdChanged, uint64(days),
		fmt.Sprintf("cooling-off period = %d days", days),
		func(p *model.Params) { p.CoolingOffPeriodDays = days })
}

func (g *Governance) SetRewardAllowanceDaily(ctx context.Context, caller string, amount uint64) error {
	return g.updateParams(ctx, caller, model.EventAllowanceChanged, amount,
		fmt.Sprintf("daily allowance = %d", amount),
		func(p *model.Params) { p.RewardAllowanceDaily = amount })
}

func (g *Governance) SetRatchetOp(ctx context.Context, caller string, op model.RatchetOp, increment uint64) error {
	if op != model.RatchetOpAdd {
		return errors.Errorf("unsupported ratchet operation %q", op)
	}
	return g.updateParams(ctx, caller, model.EventRatchetChanged, increment,
		fmt.Sprintf("ratchet op %s increment %d", op, increment),
		func(p *model.Params) { p.RatchetOp = op; p.RatchetIncrement = increment })
}

func (g *Governance) SetRatchetPeriodDays(ctx context.Context, caller string, days uint32) error {
	return g.updateParams(ctx, caller, model.EventRatchetChanged, uint64(days),
		fmt.Sprintf("ratchet default period = %d days", days),
		func(p *model.Params) { p.RatchetPeriodDays = days })
}

func (g *Governance) SetRatchetNextPeriodDays(ctx context.Context, caller string, days uint32) error {
	return g.updateParams(ctx, caller, model.EventRatchetChanged, uint64(days),
		fmt.Sprintf("ratchet next period = %d days", days),
		func(p *model.Params) { p.RatchetNextPeriodDays = days })
}

func (g *Governance) PauseRatchet(ctx context.Context, caller string, paused bool) error {
	return g.updateParams(ctx, caller, model.EventRatchetChanged, 0,
		fmt.Sprintf("ratchet paused = %t", paused),
		func(p *model.Params) { p.RatchetPaused = paused })
}

// ResetRatchet flags the thresholds to be forced back to their defaults on
// the next block pass.
func (g *Governance) ResetRatchet(ctx context.Context, caller string) error {
	return g.updateParams(ctx, caller, model.EventRatchetChanged, 0, "ratchet reset requested",
		func(p *model.Params) { p.RatchetReset = true })
}

// AdjustDayAllowance corrects a specific day's remaining allowance up or
// down. This is the only path that may increase a day's remaining budget.
func (g *Governance) AdjustDayAllowance(ctx context.Context, caller string, day model.Day, amount uint64) error {
	if err := g.authorize(caller); err != nil {
		return err
	}
	if err := g.store.SetAllowance(ctx, day, amount); err != nil {
		return errors.Wrap(err, "failed adjusting day allowance")
	}
	g.logger.Info("day allowance adjusted", zap.Int64("day", int64(day)), zap.Uint64("amount", amount))
	return g.appendEvent(ctx, model.NewEvent(model.EventAllowanceChanged, day, "", amount, "manual adjustment"))
}

// CorrectMPower overwrites a miner's recorded mPower for a day, bypassing
// the write-once guard. Privileged recovery path only.
func (g *Governance) CorrectMPower(ctx context.Context, caller string, day model.Day, miner model.MinerID, score uint64) error {
	if err := g.authorize(caller); err != nil {
		return err
	}
	if err := g.store.ForceSetMPower(ctx, day, miner, score); err != nil {
		return errors.Wrap(err, "failed correcting mpower record")
	}
	g.logger.Info("mpower corrected",
		zap.Int64("day", int64(day)), zap.String("miner", string(miner)), zap.Uint64("score", score))
	return g.appendEvent(ctx, model.NewEvent(model.EventMPowerRecorded, day, miner, score, "governance correction"))
}

func (g *Governance) updateParams(ctx context.Context, caller string, kind model.EventKind,
	amount uint64, detail string, mutate func(*model.Params)) error {
	if err := g.authorize(caller); err != nil {
		return err
	}
	params, err := g.store.GetParams(ctx)
	if err != nil {
		return errors.Wrap(err, "failed loading params")
	}
	mutate(&params)
	if err := g.store.PutParams(ctx, params); err != nil {
		return errors.Wrap(err, "failed writing params")
	}
	g.logger.Info("params updated", zap.String("change", detail))
	return g.appendEvent(ctx, model.NewEvent(kind, 0, "", amount, detail))
}

func (g *Governance) appendEvent(ctx context.Context, ev model.Event) error {
	return errors.Wrap(g.store.AppendEvent(ctx, ev), "failed appending governance event")
}
