package ledgerapi

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/DataHighway-DHX/rewards-allowance/src/model"
)

type Transaction struct {
	To     model.MinerID
	From   string
	Amount uint64
}

// MockLedger is the in-process stand-in used by tests and `use_mock` runs.
// Custody is tracked per from-wallet so exhaustion paths can be exercised.
type MockLedger struct {
	mu sync.Mutex

	bonded       map[model.MinerID]uint64
	custody      map[string]uint64
	transactions []*Transaction
}

func NewMockLedger() *MockLedger {
	return &MockLedger{
		bonded:  map[model.MinerID]uint64{},
		custody: map[string]uint64{},
	}
}

func (ml *MockLedger) SetBonded(miner model.MinerID, amount uint64) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.bonded[miner] = amount
}

func (ml *MockLedger) FundCustody(wallet string, amount uint64) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.custody[wallet] += amount
}

func (ml *MockLedger) BondedBalance(ctx context.Context, miner model.MinerID) (uint64, error) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.bonded[miner], nil
}

func (ml *MockLedger) Transfer(ctx context.Context, from string, to model.MinerID, amount uint64) error {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if ml.custody[from] < amount {
		return errors.Errorf("insufficient custody balance in %s", from)
	}
	ml.custody[from] -= amount
	ml.transactions = append(ml.transactions, &Transaction{
		To:     to,
		From:   from,
		Amount: amount,
	})
	return nil
}

func (ml *MockLedger) Transactions() []*Transaction {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	out := make([]*Transaction, len(ml.transactions))
	copy(out, ml.transactions)
	return out
}

// MockBlockSource synthesizes a chain tip from the wall clock: every poll
// observes one new block. Lets mock-mode runs drive the scheduler with no
// node attached.
type MockBlockSource struct {
	mu    sync.Mutex
	block uint64
}

func NewMockBlockSource() *MockBlockSource {
	return &MockBlockSource{}
}

func (mb *MockBlockSource) Tip(ctx context.Context) (uint64, int64, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.block++
	return mb.block, time.Now().UnixMilli(), nil
}
