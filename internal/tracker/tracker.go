// Package tracker is the off-chain observer of the raffle daemon. It folds the event log into
// per holder status rows and audits escrow balances against the raffle ledger.
package tracker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/raosunjoy/HomeChance-Lottery/internal/logger"
	"github.com/raosunjoy/HomeChance-Lottery/internal/metrics"
	"github.com/raosunjoy/HomeChance-Lottery/internal/raffle"
	"github.com/raosunjoy/HomeChance-Lottery/internal/storage"
)

// Consumer is the touch mark name of the holder status projection.
const Consumer = "holder-status"

const (
	retryAttempts = 5
	retryDelay    = 200 * time.Millisecond
)

// BalanceReader reads native balances from the value ledger.
type BalanceReader interface {
	Balance(account raffle.AccountID) uint64
}

type Tracker struct {
	ctx      context.Context
	storage  storage.Storage
	balances BalanceReader
	metrics  *metrics.Collector
	batch    int
}

type Func[T any] func() (T, error)

// retry repeats fn with a linear backoff until it succeeds, the attempts run out or ctx ends.
func retry[T any](ctx context.Context, fn Func[T]) (T, error) {
	var result T
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		result, err = fn()
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return result, err
		}

		logger.Warn("tracker: retrying", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(time.Duration(attempt) * retryDelay):
		}
	}

	return result, err
}

// NewTracker builds a tracker. collector may be nil.
func NewTracker(ctx context.Context, storage storage.Storage, balances BalanceReader, collector *metrics.Collector, batch int) *Tracker {
	if batch <= 0 {
		batch = 100
	}

	logger.Debug("tracker initialization... done", zap.Int("batch", batch))
	return &Tracker{
		ctx:      ctx,
		storage:  storage,
		balances: balances,
		metrics:  collector,
		batch:    batch,
	}
}

// Run performs one tracker pass: drain pending events, then audit escrows.
func (t *Tracker) Run() error {

	logger.Debug("tracker: synchronizing holder statuses...")
	if err := t.synchronize(); err != nil {
		return err
	}

	logger.Debug("tracker: verifying escrow balances...")
	if _, err := t.VerifyEscrows(); err != nil {
		return err
	}

	return nil
}

func (t *Tracker) Finalize() {
	logger.Info("tracker stopped")
}
