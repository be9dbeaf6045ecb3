package ledgerapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/DataHighway-DHX/rewards-allowance/src/model"
)

// Ledger is the host chain surface this subsystem consumes: a read of a
// miner's locked stake and a single atomic transfer-or-fail primitive.
// Balances and locks are owned by the chain, never by this service.
type Ledger interface {
	BondedBalance(ctx context.Context, miner model.MinerID) (uint64, error)
	Transfer(ctx context.Context, from string, to model.MinerID, amount uint64) error
}

// BlockSource reports the chain tip: block number plus the wall-clock
// millisecond timestamp the host associates with it.
type BlockSource interface {
	Tip(ctx context.Context) (block uint64, tsMillis int64, err error)
}

type Config struct {
	RPCServer string `yaml:"node_rpc_address"`
	Mock      bool   `yaml:"use_mock"`
}

type RPCClient struct {
	http   *resty.Client
	base   string
	logger *zap.Logger
}

func NewRPCClient(cfg Config, logger *zap.Logger) *RPCClient {
	return &RPCClient{
		http:   resty.New(),
		base:   cfg.RPCServer,
		logger: logger.Named("ledgerapi"),
	}
}

type balanceResponse struct {
	Locked uint64 `json:"locked"`
}

func (rc *RPCClient) BondedBalance(ctx context.Context, miner model.MinerID) (uint64, error) {
	resp, err := rc.http.R().SetContext(ctx).Get(fmt.Sprintf("%s/v1/locks/%s", rc.base, miner))
	if err != nil {
		return 0, errors.Wrapf(err, "failed fetching bonded balance for %s", miner)
	}
	if resp.StatusCode() != 200 {
		return 0, errors.Errorf("node returned status %d for bonded balance", resp.StatusCode())
	}
	parsed := balanceResponse{}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return 0, errors.Wrap(err, "failed unmarshalling bonded balance")
	}
	return parsed.Locked, nil
}

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// Transfer is a single atomic call; the node either applies the full amount
// or rejects it. There is no partial-transfer retry path.
func (rc *RPCClient) Transfer(ctx context.Context, from string, to model.MinerID, amount uint64) error {
	resp, err := rc.http.R().SetContext(ctx).
		SetBody(transferRequest{From: from, To: string(to), Amount: amount}).
		Post(fmt.Sprintf("%s/v1/transfers", rc.base))
	if err != nil {
		return errors.Wrapf(err, "failed sending transfer to %s", to)
	}
	if resp.StatusCode() != 200 {
		return errors.Errorf("node rejected transfer to %s with status %d", to, resp.StatusCode())
	}
	rc.logger.Info("transfer applied", zap.String("to", string(to)), zap.Uint64("amount", amount))
	return nil
}

type tipResponse struct {
	Block     uint64 `json:"block"`
	Timestamp int64  `json:"timestamp_ms"`
}

func (rc *RPCClient) Tip(ctx context.Context) (uint64, int64, error) {
	resp, err := rc.http.R().SetContext(ctx).Get(fmt.Sprintf("%s/v1/tip", rc.base))
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed fetching chain tip")
	}
	if resp.StatusCode() != 200 {
		return 0, 0, errors.Errorf("node returned status %d for tip", resp.StatusCode())
	}
	parsed := tipResponse{}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return 0, 0, errors.Wrap(err, "failed unmarshalling chain tip")
	}
	return parsed.Block, parsed.Timestamp, nil
}
