package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raosunjoy/HomeChance-Lottery/internal/metrics"
	"github.com/raosunjoy/HomeChance-Lottery/internal/raffle"
	"github.com/raosunjoy/HomeChance-Lottery/internal/storage"
)

type balances map[raffle.AccountID]uint64

func (b balances) Balance(account raffle.AccountID) uint64 { return b[account] }

func newStorage(t *testing.T) *storage.SqliteStorage {
	t.Helper()

	s, err := storage.NewSqliteStorage(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedRaffle(t *testing.T, s storage.Storage, id string) *raffle.Raffle {
	t.Helper()

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	r := &raffle.Raffle{
		ID:        id,
		Seller:    "seller",
		Escrow:    raffle.AccountID("escrow-" + id),
		UnitPrice: 10,
		Capacity:  raffle.TotalTickets,
		Status:    raffle.StatusOpen,
		NFTMint:   "nft",
		TokenMint: "token",
		Holders:   []raffle.TicketHolder{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateRaffle(context.Background(), r))
	return r
}

func statusOf(t *testing.T, s storage.Storage, raffleID, buyer string) *storage.HolderStatus {
	t.Helper()

	statuses, err := s.GetHolderStatusesByBuyers(context.Background(), raffleID, []string{buyer})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	return statuses[0]
}

func TestSynchronizeFoldsEvents(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()
	r := seedRaffle(t, s, "r-1")

	refund := uint64(30)
	_, err := s.SaveRaffle(ctx, r, []raffle.Event{
		&raffle.TicketPurchased{RaffleID: "r-1", Buyer: "amy", Tickets: 2, Cost: 20},
		&raffle.TicketPurchased{RaffleID: "r-1", Buyer: "bob", Tickets: 5, Cost: 50},
		&raffle.TicketPurchased{RaffleID: "r-1", Buyer: "amy", Tickets: 1, Cost: 10},
		&raffle.RaffleClosed{RaffleID: "r-1"},
		&raffle.HolderProcessed{RaffleID: "r-1", Buyer: "amy", Tickets: 3, RefundedAmount: &refund},
	})
	require.NoError(t, err)

	collector := metrics.NewCollector()
	tracker := NewTracker(ctx, s, balances{}, collector, 2)
	require.NoError(t, tracker.synchronize())

	amy := statusOf(t, s, "r-1", "amy")
	assert.Equal(t, uint64(3), amy.Tickets)
	assert.Equal(t, uint64(30), amy.Spent)
	assert.Equal(t, uint64(30), amy.Refunded)
	assert.True(t, amy.Settled)
	assert.False(t, amy.Won)

	bob := statusOf(t, s, "r-1", "bob")
	assert.Equal(t, uint64(5), bob.Tickets)
	assert.False(t, bob.Settled)

	touch, err := s.GetEventTouch(ctx, Consumer)
	require.NoError(t, err)
	assert.Equal(t, amy.LastSequence, touch)

	require.NoError(t, tracker.synchronize())
	assert.Equal(t, uint64(3), statusOf(t, s, "r-1", "amy").Tickets)
}

func TestSynchronizeIgnoresAlreadyFoldedSequences(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()
	r := seedRaffle(t, s, "r-1")

	records, err := s.SaveRaffle(ctx, r, []raffle.Event{
		&raffle.TicketPurchased{RaffleID: "r-1", Buyer: "amy", Tickets: 2, Cost: 20},
	})
	require.NoError(t, err)

	// a status written past the touch mark must not be folded twice
	require.NoError(t, s.UpdateHolderStatuses(ctx, []*storage.HolderStatus{
		{RaffleID: "r-1", Buyer: "amy", Tickets: 2, Spent: 20, LastSequence: records[0].Sequence},
	}))

	require.NoError(t, NewTracker(ctx, s, balances{}, nil, 10).synchronize())
	assert.Equal(t, uint64(2), statusOf(t, s, "r-1", "amy").Tickets)
}

func TestSynchronizeMarksWinner(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()
	r := seedRaffle(t, s, "r-1")
	winner := raffle.AccountID("bob")

	_, err := s.SaveRaffle(ctx, r, []raffle.Event{
		&raffle.TicketPurchased{RaffleID: "r-1", Buyer: "bob", Tickets: 1, Cost: 10},
		&raffle.RaffleClosed{RaffleID: "r-1", FullSale: true, Winner: &winner},
		&raffle.PayoutProcessed{RaffleID: "r-1", SellerPayout: 9, Winner: &winner},
	})
	require.NoError(t, err)

	require.NoError(t, NewTracker(ctx, s, balances{}, nil, 10).Run())
	assert.True(t, statusOf(t, s, "r-1", "bob").Won)
}

func TestVerifyEscrows(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()
	healthy := seedRaffle(t, s, "r-1")
	drifted := seedRaffle(t, s, "r-2")

	healthy.Sold = 3
	healthy.Holders = []raffle.TicketHolder{{Buyer: "amy", Tickets: 3, TokenAccount: "amy-token"}}
	_, err := s.SaveRaffle(ctx, healthy, nil)
	require.NoError(t, err)

	drifted.Sold = 2
	drifted.Holders = []raffle.TicketHolder{{Buyer: "bob", Tickets: 2, TokenAccount: "bob-token"}}
	_, err = s.SaveRaffle(ctx, drifted, nil)
	require.NoError(t, err)

	tracker := NewTracker(ctx, s, balances{healthy.Escrow: 30, drifted.Escrow: 5}, metrics.NewCollector(), 10)
	mismatches, err := tracker.VerifyEscrows()
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, EscrowMismatch{RaffleID: "r-2", Escrow: drifted.Escrow, Expected: 20, Actual: 5}, mismatches[0])
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	calls := 0
	value, err := retry(ctx, func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("database is locked")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, value)
	assert.Equal(t, 2, calls)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	calls = 0
	_, err = retry(cancelled, func() (int, error) {
		calls++
		return 0, errors.New("unavailable")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
