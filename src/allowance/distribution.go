package allowance

import (
	"context"
	"fmt"
	"sort"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/DataHighway-DHX/rewards-allowance/src/model"
)

// DistributionMultiplier returns the fixed-point (Scale-denominated) payout
// multiplier for a day. Full payout when demand fits the allowance; under
// scarcity the multiplier is 1/ceil(aggregated/allowance), rounded down, so
// the allowance is never exceeded at the cost of a small unclaimed
// remainder. Never exceeds 1.
func DistributionMultiplier(allowance, aggregated uint64) uint64 {
	if aggregated == 0 || aggregated <= allowance {
		return Scale
	}
	if allowance == 0 {
		return 0
	}
	// ceiling divide in big-int space; aggregated near MaxUint64 must not wrap
	divisor := sdkmath.NewUint(aggregated).AddUint64(allowance - 1).QuoUint64(allowance)
	return sdkmath.NewUint(Scale).Quo(divisor).Uint64()
}

// ScalePayout applies the fixed-point multiplier to a raw reward, rounding
// down.
func ScalePayout(raw, multiplier uint64) uint64 {
	if multiplier >= Scale {
		return raw
	}
	return sdkmath.NewUint(raw).MulUint64(multiplier).QuoUint64(Scale).Uint64()
}

// DistributeDay pays out one completed day: reads the aggregated demand,
// derives the multiplier, and executes atomic treasury transfers until the
// miners are paid or the allowance (or custody) runs out. Exhaustion halts
// the remaining payouts for the day; they are reported, not retried.
func (e *Engine) DistributeDay(ctx context.Context, day model.Day) error {
	remaining, found, err := e.store.GetAllowance(ctx, day)
	if err != nil {
		return errors.Wrap(err, "failed reading day allowance")
	}
	if !found {
		return errors.Wrapf(ErrMissingConfig, "day %d has no allowance", day)
	}
	aggregated, err := e.store.GetAggregated(ctx, day)
	if err != nil {
		return errors.Wrap(err, "failed reading day aggregate")
	}
	accrued, err := e.store.ListAccrued(ctx, day)
	if err != nil {
		return errors.Wrap(err, "failed listing accrued rewards")
	}

	if len(accrued) == 0 {
		return e.store.MarkDayDistributed(ctx, day)
	}

	multiplier := DistributionMultiplier(remaining, aggregated)
	e.logger.Info("distributing day",
		zap.Int64("day", int64(day)), zap.Uint64("aggregated", aggregated),
		zap.Uint64("allowance", remaining), zap.Uint64("multiplier", multiplier))

	miners := make([]model.MinerID, 0, len(accrued))
	for m := range accrued {
		miners = append(miners, m)
	}
	sort.Slice(miners, func(i, j int) bool { return miners[i] < miners[j] })

	for _, miner := range miners {
		paid := ScalePayout(accrued[miner], multiplier)
		if paid == 0 {
			continue
		}
		if paid > remaining {
			if err := e.reportExhaustion(ctx, day, fmt.Sprintf("allowance exhausted before %s", miner)); err != nil {
				return err
			}
			break
		}
		if err := e.ledger.Transfer(ctx, e.treasury, miner, paid); err != nil {
			RecordPayout("halted")
			e.logger.Error("treasury transfer failed, halting day",
				zap.String("miner", string(miner)), zap.Error(err))
			if err := e.reportExhaustion(ctx, day, fmt.Sprintf("custody transfer failed at %s", miner)); err != nil {
				return err
			}
			break
		}
		remaining -= paid
		if err := e.store.SetAllowance(ctx, day, remaining); err != nil {
			return errors.Wrap(err, "failed decrementing day allowance")
		}
		RecordPayout("paid")
		RecordPaidAmount(paid)
		ev := model.NewEvent(model.EventRewardPaid, day, miner, paid,
			fmt.Sprintf("raw %d multiplier %d", accrued[miner], multiplier))
		if err := e.store.AppendEvent(ctx, ev); err != nil {
			return errors.Wrap(err, "failed appending payout event")
		}
	}

	return errors.Wrap(e.store.MarkDayDistributed(ctx, day), "failed marking day distributed")
}

func (e *Engine) reportExhaustion(ctx context.Context, day model.Day, detail string) error {
	e.logger.Warn("halting distribution for day", zap.Int64("day", int64(day)), zap.String("detail", detail))
	ev := model.NewEvent(model.EventAllowanceExhausted, day, "", 0, detail)
	return errors.Wrap(e.store.AppendEvent(ctx, ev), "failed appending exhaustion event")
}

// StartPipeline ticks the end-of-day distribution phase. It is decoupled
// from the block pass and only ever touches days that are already over.
func (e *Engine) StartPipeline(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	logger := e.logger.Named("distribution")
	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping distribution pipeline, context cancelled")
			return
		case <-ticker.C:
			if err := e.DoDistributeOnce(ctx, time.Now()); err != nil {
				logger.Error("distribution pass failed", zap.Error(err))
			}
		}
	}
}

// DoDistributeOnce pays out every completed, not-yet-distributed day.
func (e *Engine) DoDistributeOnce(ctx context.Context, now time.Time) error {
	today := model.DayStart(now.UnixMilli())
	days, err := e.store.ListUndistributedDays(ctx, today)
	if err != nil {
		return errors.Wrap(err, "failed listing undistributed days")
	}
	for _, day := range days {
		if err := e.DistributeDay(ctx, day); err != nil {
			return errors.Wrapf(err, "failed distributing day %d", day)
		}
	}
	return nil
}
