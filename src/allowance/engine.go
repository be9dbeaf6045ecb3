package allowance

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/DataHighway-DHX/rewards-allowance/src/ledgerapi"
	"github.com/DataHighway-DHX/rewards-allowance/src/model"
	"github.com/DataHighway-DHX/rewards-allowance/src/store"
)

// Feed is the external reputation source consumed by the scheduler pass.
type Feed interface {
	Fetch(ctx context.Context, block uint64, day model.Day) ([]model.MPowerRecord, error)
}

type EngineConfig struct {
	TreasuryWallet string `yaml:"treasury_wallet"`
}

// Engine runs the per-block scheduler pass and the daily distribution. All
// day-indexed and miner-indexed state behind the store is exclusively owned
// here and mutated only from the single block-synchronous pass (plus the
// distribution pipeline, which touches only completed days).
type Engine struct {
	store    store.Store
	ledger   ledgerapi.Ledger
	feed     Feed
	lock     DispatchLock
	treasury string
	logger   *zap.Logger
}

func NewEngine(st store.Store, ledger ledgerapi.Ledger, feed Feed, lock DispatchLock,
	cfg EngineConfig, logger *zap.Logger) *Engine {
	return &Engine{
		store:    st,
		ledger:   ledger,
		feed:     feed,
		lock:     lock,
		treasury: cfg.TreasuryWallet,
		logger:   logger.With(zap.String("component", "allowance")),
	}
}

// HandleNewBlock is the once-per-block pass. Steps run in a fixed order so
// the ratchet's threshold change is visible to the same block's cooling-off
// evaluation. Fatal errors abort the whole pass; the job retries naturally
// on the next block.
func (e *Engine) HandleNewBlock(ctx context.Context, block uint64, tsMillis int64) error {
	today := model.DayStart(tsMillis)
	if !today.Valid() {
		// the chain's first block carries no meaningful wall clock
		e.logger.Debug("skipping pass, invalid epoch day", zap.Uint64("block", block))
		RecordBlockPass("skipped")
		return nil
	}

	params, err := e.store.GetParams(ctx)
	if err != nil {
		RecordBlockPass("aborted")
		return errors.Wrap(err, "failed loading params")
	}
	if params.RewardAllowanceDaily == 0 {
		RecordBlockPass("aborted")
		return errors.Wrap(ErrMissingConfig, "daily reward allowance is unset")
	}
	if params.MinBondedDaily == 0 {
		RecordBlockPass("aborted")
		return errors.Wrap(ErrZeroThreshold, "refusing to run pass")
	}

	wrote, err := e.store.InitAllowance(ctx, today, params.RewardAllowanceDaily)
	if err != nil {
		RecordBlockPass("aborted")
		return errors.Wrap(err, "failed initializing day allowance")
	}
	if wrote {
		e.logger.Info("initialized day allowance",
			zap.Int64("day", int64(today)), zap.Uint64("allowance", params.RewardAllowanceDaily))
	}

	if err := e.advanceRatchet(ctx, today); err != nil {
		RecordBlockPass("aborted")
		return errors.Wrap(err, "failed advancing bonding ratchet")
	}
	// re-read so a ratcheted threshold applies to this block's cooling pass
	params, err = e.store.GetParams(ctx)
	if err != nil {
		RecordBlockPass("aborted")
		return errors.Wrap(err, "failed reloading params")
	}

	skip, err := e.withinGracePeriod(ctx, block, params.DispatchGraceBlocks)
	if err != nil {
		RecordBlockPass("aborted")
		return err
	}
	if skip {
		e.logger.Debug("pass already dispatched within grace period", zap.Uint64("block", block))
		RecordBlockPass("deduped")
		return nil
	}

	e.fetchAndSubmit(ctx, block, today)

	miners, err := e.store.ListMiners(ctx)
	if err != nil {
		RecordBlockPass("aborted")
		return errors.Wrap(err, "failed listing registered miners")
	}
	for _, miner := range miners {
		if err := e.updateMiner(ctx, params, today, miner); err != nil {
			RecordBlockPass("aborted")
			return errors.Wrapf(err, "failed updating miner %s", miner)
		}
	}

	if err := e.lock.MarkDispatched(ctx, block); err != nil {
		RecordBlockPass("aborted")
		return err
	}
	RecordBlockPass("ok")
	return nil
}

func (e *Engine) withinGracePeriod(ctx context.Context, block, grace uint64) (bool, error) {
	last, ok, err := e.lock.LastDispatched(ctx)
	if err != nil {
		return false, errors.Wrap(err, "failed checking dispatch lock")
	}
	return ok && block < last+grace, nil
}

// fetchAndSubmit runs the external feed round. Feed and gate failures are
// advisory: no data this round, the pass carries on.
func (e *Engine) fetchAndSubmit(ctx context.Context, block uint64, today model.Day) {
	records, err := e.feed.Fetch(ctx, block, today)
	if err != nil {
		RecordFeedFetch("failed")
		e.logger.Warn("mpower fetch failed, no data this round", zap.Error(err))
		return
	}
	RecordFeedFetch("ok")
	if err := e.SubmitMPower(ctx, block, block, today, records); err != nil {
		e.logger.Warn("mpower submission rejected", zap.Error(err))
	}
}

// updateMiner snapshots the bonded amount (once per day), advances the
// cooling-off state, and accrues the day's raw reward when the miner is
// eligible. Evaluated every block, effective at most once per calendar day.
func (e *Engine) updateMiner(ctx context.Context, params model.Params, today model.Day, miner model.MinerID) error {
	_, snapped, err := e.store.GetBondedSnapshot(ctx, today, miner)
	if err != nil {
		return err
	}
	if !snapped {
		bonded, err := e.ledger.BondedBalance(ctx, miner)
		if err != nil {
			// ledger read is external I/O; skip this miner until the next block
			e.logger.Warn("failed reading bonded balance, skipping miner",
				zap.String("miner", string(miner)), zap.Error(err))
			return nil
		}
		if err := e.store.PutBondedSnapshot(ctx, today, miner, bonded); err != nil {
			return err
		}
	}

	eligible, err := e.advanceCooling(ctx, params, today, miner)
	if err != nil {
		return err
	}
	if eligible {
		if err := e.accrue(ctx, params, today, miner); err != nil {
			return err
		}
	}
	return nil
}

// accrue records the miner's raw daily reward exactly once per day. The
// existence check on RewardAccrued is the idempotency guard for the
// aggregation step.
func (e *Engine) accrue(ctx context.Context, params model.Params, today model.Day, miner model.MinerID) error {
	bonded, _, err := e.store.GetBondedSnapshot(ctx, today, miner)
	if err != nil {
		return err
	}
	if params.MinBondedDaily == 0 {
		return ErrZeroThreshold
	}
	raw := bonded / params.MinBondedDaily
	if raw == 0 {
		return nil
	}
	if err := e.store.PutAccrued(ctx, today, miner, raw); err != nil {
		if errors.Is(err, store.ErrAlreadyRecorded) {
			return nil
		}
		return err
	}
	return e.store.AddAggregated(ctx, today, raw)
}
