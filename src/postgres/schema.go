package postgres

import (
	"context"

	"github.com/pkg/errors"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS params (
		id int PRIMARY KEY,
		min_bonded numeric NOT NULL,
		min_bonded_default numeric NOT NULL,
		min_mpower numeric NOT NULL,
		min_mpower_default numeric NOT NULL,
		cooling_off_days int NOT NULL,
		allowance_daily numeric NOT NULL,
		ratchet_increment numeric NOT NULL,
		ratchet_op text NOT NULL,
		ratchet_period_days int NOT NULL,
		ratchet_next_period_days int NOT NULL,
		ratchet_paused bool NOT NULL,
		ratchet_reset bool NOT NULL,
		unsigned_interval numeric NOT NULL,
		dispatch_grace_blocks numeric NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS miners (
		miner text PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS bonded_snapshots (
		day bigint NOT NULL,
		miner text NOT NULL,
		amount numeric NOT NULL,
		PRIMARY KEY (day, miner)
	)`,
	`CREATE TABLE IF NOT EXISTS mpower_records (
		day bigint NOT NULL,
		miner text NOT NULL,
		score numeric NOT NULL,
		block numeric NOT NULL,
		PRIMARY KEY (day, miner)
	)`,
	`CREATE TABLE IF NOT EXISTS cooling_states (
		miner text PRIMARY KEY,
		status int NOT NULL,
		anchor_day bigint NOT NULL,
		remaining_days int NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ratchet_state (
		id int PRIMARY KEY,
		period_start_day bigint NOT NULL,
		last_processed_day bigint NOT NULL,
		total_period_days int NOT NULL,
		remaining_days int NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reward_days (
		day bigint PRIMARY KEY,
		allowance numeric NOT NULL,
		aggregated numeric NOT NULL DEFAULT 0,
		distributed bool NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS reward_accrued (
		day bigint NOT NULL,
		miner text NOT NULL,
		amount numeric NOT NULL,
		PRIMARY KEY (day, miner)
	)`,
	`CREATE TABLE IF NOT EXISTS next_accepted_block (
		id int PRIMARY KEY,
		block numeric NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id uuid PRIMARY KEY,
		kind text NOT NULL,
		day bigint NOT NULL,
		miner text NOT NULL,
		amount numeric NOT NULL,
		detail text NOT NULL,
		timestamp timestamptz NOT NULL
	)`,
}

// Migrate creates any missing tables. Idempotent, run at daemon startup.
func Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if err := DoExec(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed applying schema")
		}
	}
	return nil
}
