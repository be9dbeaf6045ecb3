package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/DataHighway-DHX/rewards-allowance/src/model"
	"github.com/DataHighway-DHX/rewards-allowance/src/store"
)

// Store implements store.Store against postgres using the package-level
// connection helpers.
type Store struct{}

func NewStore(connString string) *Store {
	ConfigurePostgres(connString)
	return &Store{}
}

var _ store.Store = (*Store)(nil)

func (s *Store) GetParams(ctx context.Context) (model.Params, error) {
	var p model.Params
	return p, DoQuery(ctx, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx,
			`SELECT min_bonded, min_bonded_default, min_mpower, min_mpower_default,
					cooling_off_days, allowance_daily, ratchet_increment, ratchet_op,
					ratchet_period_days, ratchet_next_period_days, ratchet_paused,
					ratchet_reset, unsigned_interval, dispatch_grace_blocks
			 FROM params WHERE id = 1`)
		var op string
		err := row.Scan(&p.MinBondedDaily, &p.MinBondedDailyDefault, &p.MinMPowerDaily,
			&p.MinMPowerDailyDefault, &p.CoolingOffPeriodDays, &p.RewardAllowanceDaily,
			&p.RatchetIncrement, &op, &p.RatchetPeriodDays, &p.RatchetNextPeriodDays,
			&p.RatchetPaused, &p.RatchetReset, &p.UnsignedInterval, &p.DispatchGraceBlocks)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil // empty params, engine treats missing config as fatal
		}
		p.RatchetOp = model.RatchetOp(op)
		return errors.Wrap(err, "failed fetching params")
	})
}

func (s *Store) PutParams(ctx context.Context, p model.Params) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO params (id, min_bonded, min_bonded_default, min_mpower, min_mpower_default,
					cooling_off_days, allowance_daily, ratchet_increment, ratchet_op,
					ratchet_period_days, ratchet_next_period_days, ratchet_paused,
					ratchet_reset, unsigned_interval, dispatch_grace_blocks)
			 VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			 ON CONFLICT (id) DO UPDATE SET
					min_bonded = $1, min_bonded_default = $2, min_mpower = $3,
					min_mpower_default = $4, cooling_off_days = $5, allowance_daily = $6,
					ratchet_increment = $7, ratchet_op = $8, ratchet_period_days = $9,
					ratchet_next_period_days = $10, ratchet_paused = $11, ratchet_reset = $12,
					unsigned_interval = $13, dispatch_grace_blocks = $14`,
			p.MinBondedDaily, p.MinBondedDailyDefault, p.MinMPowerDaily, p.MinMPowerDailyDefault,
			p.CoolingOffPeriodDays, p.RewardAllowanceDaily, p.RatchetIncrement, string(p.RatchetOp),
			p.RatchetPeriodDays, p.RatchetNextPeriodDays, p.RatchetPaused, p.RatchetReset,
			p.UnsignedInterval, p.DispatchGraceBlocks)
		return errors.Wrap(err, "failed writing params")
	})
}

func (s *Store) RegisterMiner(ctx context.Context, miner model.MinerID) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO miners (miner) VALUES ($1) ON CONFLICT DO NOTHING`, string(miner))
		return errors.Wrapf(err, "failed registering miner %s", miner)
	})
}

func (s *Store) DeregisterMiner(ctx context.Context, miner model.MinerID) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `DELETE FROM miners WHERE miner = $1`, string(miner))
		return errors.Wrapf(err, "failed deregistering miner %s", miner)
	})
}

func (s *Store) ListMiners(ctx context.Context) ([]model.MinerID, error) {
	var miners []model.MinerID
	return miners, DoQuery(ctx, func(conn *pgx.Conn) error {
		res, err := conn.Query(ctx, `SELECT miner FROM miners ORDER BY miner`)
		if err != nil {
			return errors.Wrap(err, "failed listing miners")
		}
		defer res.Close()
		for res.Next() {
			m := ""
			if err := res.Scan(&m); err != nil {
				return errors.Wrap(err, "failed unmarshalling miner row")
			}
			miners = append(miners, model.MinerID(m))
		}
		return nil
	})
}

func (s *Store) PutBondedSnapshot(ctx context.Context, day model.Day, miner model.MinerID, amount uint64) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO bonded_snapshots (day, miner, amount) VALUES ($1, $2, $3)
			 ON CONFLICT (day, miner) DO UPDATE SET amount = $3`,
			int64(day), string(miner), amount)
		return errors.Wrapf(err, "failed writing bonded snapshot for %s", miner)
	})
}

func (s *Store) GetBondedSnapshot(ctx context.Context, day model.Day, miner model.MinerID) (uint64, bool, error) {
	amount := uint64(0)
	found := false
	return amount, found, DoQuery(ctx, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx,
			`SELECT amount FROM bonded_snapshots WHERE day = $1 AND miner = $2`,
			int64(day), string(miner))
		err := row.Scan(&amount)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		found = err == nil
		return errors.Wrap(err, "failed fetching bonded snapshot")
	})
}

func (s *Store) PutMPowerRecord(ctx context.Context, rec model.MPowerRecord) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx,
			`INSERT INTO mpower_records (day, miner, score, block) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (day, miner) DO NOTHING`,
			int64(rec.Day), string(rec.Miner), rec.Score, rec.Block)
		if err != nil {
			return errors.Wrapf(err, "failed writing mpower record for %s", rec.Miner)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrAlreadyRecorded
		}
		return nil
	})
}

func (s *Store) GetMPower(ctx context.Context, day model.Day, miner model.MinerID) (uint64, bool, error) {
	score := uint64(0)
	found := false
	return score, found, DoQuery(ctx, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx,
			`SELECT score FROM mpower_records WHERE day = $1 AND miner = $2`,
			int64(day), string(miner))
		err := row.Scan(&score)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		found = err == nil
		return errors.Wrap(err, "failed fetching mpower record")
	})
}

func (s *Store) ForceSetMPower(ctx context.Context, day model.Day, miner model.MinerID, score uint64) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO mpower_records (day, miner, score, block) VALUES ($1, $2, $3, 0)
			 ON CONFLICT (day, miner) DO UPDATE SET score = $3`,
			int64(day), string(miner), score)
		return errors.Wrapf(err, "failed correcting mpower for %s", miner)
	})
}

func (s *Store) GetCoolingState(ctx context.Context, miner model.MinerID) (model.CoolingState, bool, error) {
	cs := model.CoolingState{Miner: miner}
	found := false
	return cs, found, DoQuery(ctx, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx,
			`SELECT status, anchor_day, remaining_days FROM cooling_states WHERE miner = $1`,
			string(miner))
		var status int
		var anchor int64
		err := row.Scan(&status, &anchor, &cs.RemainingDays)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed fetching cooling state")
		}
		cs.Status = model.CoolingStatus(status)
		cs.AnchorDay = model.Day(anchor)
		found = true
		return nil
	})
}

func (s *Store) PutCoolingState(ctx context.Context, cs model.CoolingState) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO cooling_states (miner, status, anchor_day, remaining_days)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (miner) DO UPDATE SET status = $2, anchor_day = $3, remaining_days = $4`,
			string(cs.Miner), int(cs.Status), int64(cs.AnchorDay), cs.RemainingDays)
		return errors.Wrapf(err, "failed writing cooling state for %s", cs.Miner)
	})
}

func (s *Store) GetRatchetState(ctx context.Context) (model.RatchetState, bool, error) {
	var rs model.RatchetState
	found := false
	return rs, found, DoQuery(ctx, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx,
			`SELECT period_start_day, last_processed_day, total_period_days, remaining_days
			 FROM ratchet_state WHERE id = 1`)
		var start, last int64
		err := row.Scan(&start, &last, &rs.TotalPeriodDays, &rs.RemainingDays)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed fetching ratchet state")
		}
		rs.PeriodStartDay = model.Day(start)
		rs.LastProcessedDay = model.Day(last)
		found = true
		return nil
	})
}

func (s *Store) PutRatchetState(ctx context.Context, rs model.RatchetState) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO ratchet_state (id, period_start_day, last_processed_day, total_period_days, remaining_days)
			 VALUES (1, $1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE SET period_start_day = $1, last_processed_day = $2,
					total_period_days = $3, remaining_days = $4`,
			int64(rs.PeriodStartDay), int64(rs.LastProcessedDay), rs.TotalPeriodDays, rs.RemainingDays)
		return errors.Wrap(err, "failed writing ratchet state")
	})
}

func (s *Store) InitAllowance(ctx context.Context, day model.Day, amount uint64) (bool, error) {
	wrote := false
	return wrote, DoQuery(ctx, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx,
			`INSERT INTO reward_days (day, allowance, distributed) VALUES ($1, $2, false)
			 ON CONFLICT (day) DO NOTHING`,
			int64(day), amount)
		if err != nil {
			return errors.Wrap(err, "failed initializing day allowance")
		}
		wrote = tag.RowsAffected() > 0
		return nil
	})
}

func (s *Store) GetAllowance(ctx context.Context, day model.Day) (uint64, bool, error) {
	amount := uint64(0)
	found := false
	return amount, found, DoQuery(ctx, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx, `SELECT allowance FROM reward_days WHERE day = $1`, int64(day))
		err := row.Scan(&amount)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		found = err == nil
		return errors.Wrap(err, "failed fetching day allowance")
	})
}

func (s *Store) SetAllowance(ctx context.Context, day model.Day, amount uint64) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO reward_days (day, allowance, distributed) VALUES ($1, $2, false)
			 ON CONFLICT (day) DO UPDATE SET allowance = $2`,
			int64(day), amount)
		return errors.Wrap(err, "failed setting day allowance")
	})
}

func (s *Store) PutAccrued(ctx context.Context, day model.Day, miner model.MinerID, amount uint64) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx,
			`INSERT INTO reward_accrued (day, miner, amount) VALUES ($1, $2, $3)
			 ON CONFLICT (day, miner) DO NOTHING`,
			int64(day), string(miner), amount)
		if err != nil {
			return errors.Wrapf(err, "failed writing accrued reward for %s", miner)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrAlreadyRecorded
		}
		return nil
	})
}

func (s *Store) ListAccrued(ctx context.Context, day model.Day) (map[model.MinerID]uint64, error) {
	accrued := map[model.MinerID]uint64{}
	return accrued, DoQuery(ctx, func(conn *pgx.Conn) error {
		res, err := conn.Query(ctx,
			`SELECT miner, amount FROM reward_accrued WHERE day = $1 ORDER BY miner`, int64(day))
		if err != nil {
			return errors.Wrap(err, "failed listing accrued rewards")
		}
		defer res.Close()
		for res.Next() {
			m := ""
			amount := uint64(0)
			if err := res.Scan(&m, &amount); err != nil {
				return errors.Wrap(err, "failed unmarshalling accrued row")
			}
			accrued[model.MinerID(m)] = amount
		}
		return nil
	})
}

func (s *Store) AddAggregated(ctx context.Context, day model.Day, amount uint64) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`UPDATE reward_days SET aggregated = LEAST(aggregated + $2, 18446744073709551615) WHERE day = $1`,
			int64(day), amount)
		return errors.Wrap(err, "failed adding to day aggregate")
	})
}

func (s *Store) GetAggregated(ctx context.Context, day model.Day) (uint64, error) {
	total := uint64(0)
	return total, DoQuery(ctx, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx, `SELECT aggregated FROM reward_days WHERE day = $1`, int64(day))
		err := row.Scan(&total)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return errors.Wrap(err, "failed fetching day aggregate")
	})
}

func (s *Store) MarkDayDistributed(ctx context.Context, day model.Day) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`UPDATE reward_days SET distributed = true WHERE day = $1`, int64(day))
		return errors.Wrap(err, "failed marking day distributed")
	})
}

func (s *Store) ListUndistributedDays(ctx context.Context, before model.Day) ([]model.Day, error) {
	var days []model.Day
	return days, DoQuery(ctx, func(conn *pgx.Conn) error {
		res, err := conn.Query(ctx,
			`SELECT day FROM reward_days WHERE distributed = false AND day < $1 ORDER BY day`,
			int64(before))
		if err != nil {
			return errors.Wrap(err, "failed listing undistributed days")
		}
		defer res.Close()
		for res.Next() {
			var d int64
			if err := res.Scan(&d); err != nil {
				return errors.Wrap(err, "failed unmarshalling day row")
			}
			days = append(days, model.Day(d))
		}
		return nil
	})
}

func (s *Store) GetNextAcceptedBlock(ctx context.Context) (uint64, error) {
	block := uint64(0)
	return block, DoQuery(ctx, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx, `SELECT block FROM next_accepted_block WHERE id = 1`)
		err := row.Scan(&block)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return errors.Wrap(err, "failed fetching next accepted block")
	})
}

func (s *Store) SetNextAcceptedBlock(ctx context.Context, block uint64) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO next_accepted_block (id, block) VALUES (1, $1)
			 ON CONFLICT (id) DO UPDATE SET block = $1`, block)
		return errors.Wrap(err, "failed setting next accepted block")
	})
}

func (s *Store) AppendEvent(ctx context.Context, ev model.Event) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO events (id, kind, day, miner, amount, detail, timestamp)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			ev.Id, string(ev.Kind), int64(ev.Day), string(ev.Miner), ev.Amount, ev.Detail, ev.Timestamp)
		return errors.Wrap(err, "failed appending event")
	})
}
