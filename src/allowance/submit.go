package allowance

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/DataHighway-DHX/rewards-allowance/src/model"
	"github.com/DataHighway-DHX/rewards-allowance/src/store"
)

// SubmitMPower accepts a batch of externally-sourced mPower records through
// the replay gate. Submissions carry no caller identity (they come from the
// node's own background job), so the gate plus the write-once map are the
// two independent defenses against replay and duplication.
func (e *Engine) SubmitMPower(ctx context.Context, currentBlock, submittedBlock uint64,
	day model.Day, records []model.MPowerRecord) error {
	next, err := e.store.GetNextAcceptedBlock(ctx)
	if err != nil {
		return errors.Wrap(err, "failed reading replay gate")
	}
	if submittedBlock > currentBlock {
		RecordReplayRejection()
		return errors.Wrapf(ErrFutureBlock, "block %d > current %d", submittedBlock, currentBlock)
	}
	if submittedBlock < next {
		RecordReplayRejection()
		return errors.Wrapf(ErrReplayRejected, "block %d < next accepted %d", submittedBlock, next)
	}

	params, err := e.store.GetParams(ctx)
	if err != nil {
		return errors.Wrap(err, "failed loading params")
	}
	if err := e.store.SetNextAcceptedBlock(ctx, submittedBlock+params.UnsignedInterval); err != nil {
		return errors.Wrap(err, "failed advancing replay gate")
	}

	accepted := 0
	for _, rec := range records {
		rec.Day = day
		if err := e.store.PutMPowerRecord(ctx, rec); err != nil {
			if errors.Is(err, store.ErrAlreadyRecorded) {
				// second write for the same (day, miner) never overwrites
				e.logger.Debug("duplicate mpower record ignored",
					zap.String("miner", string(rec.Miner)), zap.Int64("day", int64(day)))
				continue
			}
			return errors.Wrapf(err, "failed writing mpower record for %s", rec.Miner)
		}
		accepted++
		RecordMPowerAccepted()
		ev := model.NewEvent(model.EventMPowerRecorded, day, rec.Miner, rec.Score,
			fmt.Sprintf("block %d", rec.Block))
		if err := e.store.AppendEvent(ctx, ev); err != nil {
			return errors.Wrap(err, "failed appending mpower event")
		}
	}
	e.logger.Info("mpower submission applied",
		zap.Int("accepted", accepted), zap.Int("submitted", len(records)),
		zap.Uint64("block", submittedBlock))
	return nil
}
