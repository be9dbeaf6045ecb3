package allowance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/DataHighway-DHX/rewards-allowance/src/ledgerapi"
)

// StartBlockListener polls the chain tip and runs the scheduler pass once
// per new block. The pass is block-synchronous: it runs to completion (or
// abort) before the next block's pass begins.
func (e *Engine) StartBlockListener(ctx context.Context, src ledgerapi.BlockSource, poll time.Duration) {
	ticker := time.NewTicker(poll)
	logger := e.logger.Named("blocklistener")
	logger.Info("starting block listener")
	lastSeen := uint64(0)
	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping block listener, context cancelled")
			return
		case <-ticker.C:
			block, ts, err := src.Tip(ctx)
			if err != nil {
				logger.Warn("failed fetching chain tip", zap.Error(err))
				continue
			}
			if block <= lastSeen {
				continue
			}
			if err := e.HandleNewBlock(ctx, block, ts); err != nil {
				// fatal pass errors retry naturally on the next block
				logger.Error("block pass aborted", zap.Uint64("block", block), zap.Error(err))
			}
			lastSeen = block
		}
	}
}
