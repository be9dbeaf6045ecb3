package allowance

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var blockPasses = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rewards_block_passes",
	Help: "per-block scheduler passes by result",
}, []string{"result"})

var feedFetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rewards_mpower_fetches",
	Help: "mpower feed fetch attempts by result",
}, []string{"result"})

var replayRejections = promauto.NewCounter(prometheus.CounterOpts{
	Name: "rewards_replay_rejections",
	Help: "submissions rejected by the replay gate",
})

var mpowerRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Name: "rewards_mpower_records",
	Help: "mpower records accepted and written",
})

var payouts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rewards_payouts",
	Help: "daily reward payouts by result",
}, []string{"result"})

var payoutAmount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "rewards_paid_total",
	Help: "total smallest-unit tokens paid out",
})

var ratchetAdvances = promauto.NewCounter(prometheus.CounterOpts{
	Name: "rewards_ratchet_advances",
	Help: "bonding threshold ratchet period completions",
})

func RecordBlockPass(result string)  { blockPasses.WithLabelValues(result).Inc() }
func RecordFeedFetch(result string)  { feedFetches.WithLabelValues(result).Inc() }
func RecordReplayRejection()         { replayRejections.Inc() }
func RecordMPowerAccepted()          { mpowerRecorded.Inc() }
func RecordPayout(result string)     { payouts.WithLabelValues(result).Inc() }
func RecordPaidAmount(amount uint64) { payoutAmount.Add(float64(amount)) }
func RecordRatchetAdvance()          { ratchetAdvances.Inc() }

var promInit sync.Once

func StartPromServer(logger *zap.Logger, port string) {
	promInit.Do(func() {
		logger.Info("serving prom stats on " + port)
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(port, nil); err != nil {
				logger.Error("prom server stopped", zap.Error(err))
			}
		}()
	})
}
