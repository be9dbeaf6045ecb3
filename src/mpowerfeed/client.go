package mpowerfeed

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/DataHighway-DHX/rewards-allowance/src/model"
)

// FetchTimeout is the hard deadline on a feed round trip. A slow upstream is
// ordinary failure, never something the block pass waits on.
const FetchTimeout = 2 * time.Second

type Config struct {
	Endpoint string `yaml:"mpower_endpoint"`
}

type Client struct {
	http     *resty.Client
	endpoint string
	logger   *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	return &Client{
		http:     resty.New().SetTimeout(FetchTimeout),
		endpoint: cfg.Endpoint,
		logger:   logger.Named("mpowerfeed"),
	}
}

type feedRecord struct {
	AcctId string `json:"acct_id"`
	MPower string `json:"mpower"`
}

type feedResponse struct {
	Data []feedRecord `json:"data"`
}

// Fetch pulls the day's mPower data and decodes it strictly. Any HTTP
// failure, shape mismatch, or invalid byte rejects the whole batch; a
// partial record set is never returned.
func (c *Client) Fetch(ctx context.Context, block uint64, day model.Day) ([]model.MPowerRecord, error) {
	resp, err := c.http.R().SetContext(ctx).Get(c.endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "failed fetching mpower feed")
	}
	if resp.StatusCode() != 200 {
		return nil, errors.Errorf("mpower feed returned status %d", resp.StatusCode())
	}

	parsed := feedResponse{}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, errors.Wrap(err, "failed unmarshalling mpower feed body")
	}

	records := make([]model.MPowerRecord, 0, len(parsed.Data))
	for _, r := range parsed.Data {
		acct, err := hex.DecodeString(r.AcctId)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed acct_id %q", r.AcctId)
		}
		score, err := DecodeScore(r.MPower)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed mpower for acct %q", r.AcctId)
		}
		records = append(records, model.MPowerRecord{
			Miner: model.MinerIDFromBytes(acct),
			Score: score,
			Block: block,
			Day:   day,
		})
	}
	c.logger.Debug("fetched mpower records", zap.Int("count", len(records)))
	return records, nil
}

// DecodeScore unwraps the feed's hex-wrapped ASCII digit encoding. The
// decoded bytes must all be '0'..'9'; the first byte outside that range
// fails the decode. This is a validation boundary, not a best-effort parse.
func DecodeScore(wrapped string) (uint64, error) {
	digits, err := hex.DecodeString(wrapped)
	if err != nil {
		return 0, errors.Wrap(err, "score is not valid hex")
	}
	if len(digits) == 0 {
		return 0, errors.New("score is empty")
	}
	score := uint64(0)
	for _, b := range digits {
		if b < '0' || b > '9' {
			return 0, errors.Errorf("score contains non-digit byte 0x%02x", b)
		}
		d := uint64(b - '0')
		if score > (^uint64(0)-d)/10 {
			return 0, errors.New("score overflows uint64")
		}
		score = score*10 + d
	}
	return score, nil
}
