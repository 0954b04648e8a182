package blockchain

import (
	"bytes"
	"context"

	"github.com/raosunjoy/HomeChance-Lottery/internal/raffle"
)

// Snapshot holds ledger accounts, either the full ledger or the accounts changed by one commit.
type Snapshot struct {
	Balances map[raffle.AccountID]uint64
	Escrows  map[raffle.AccountID][]byte
	Mints    map[raffle.AccountID]Mint
	Tokens   map[raffle.AccountID]raffle.TokenAccount
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		Balances: map[raffle.AccountID]uint64{},
		Escrows:  map[raffle.AccountID][]byte{},
		Mints:    map[raffle.AccountID]Mint{},
		Tokens:   map[raffle.AccountID]raffle.TokenAccount{},
	}
}

func (s *Snapshot) Empty() bool {
	return len(s.Balances) == 0 && len(s.Escrows) == 0 && len(s.Mints) == 0 && len(s.Tokens) == 0
}

// Store persists ledger accounts. SaveLedger upserts every account of the snapshot atomically.
type Store interface {
	LoadLedger(ctx context.Context) (*Snapshot, error)
	SaveLedger(ctx context.Context, changes *Snapshot) error
}

// diff collects the accounts of next that are new or differ from prev. Accounts are never removed.
func diff(prev, next *state) *Snapshot {
	changes := NewSnapshot()
	for k, v := range next.balances {
		if old, ok := prev.balances[k]; !ok || old != v {
			changes.Balances[k] = v
		}
	}
	for k, v := range next.escrows {
		if old, ok := prev.escrows[k]; !ok || !bytes.Equal(old, v) {
			changes.Escrows[k] = v
		}
	}
	for k, v := range next.mints {
		if old, ok := prev.mints[k]; !ok || old != v {
			changes.Mints[k] = v
		}
	}
	for k, v := range next.tokens {
		if old, ok := prev.tokens[k]; !ok || old != v {
			changes.Tokens[k] = v
		}
	}
	return changes
}

func (s *state) restore(snapshot *Snapshot) {
	for k, v := range snapshot.Balances {
		s.balances[k] = v
	}
	for k, v := range snapshot.Escrows {
		s.escrows[k] = append([]byte(nil), v...)
	}
	for k, v := range snapshot.Mints {
		s.mints[k] = v
	}
	for k, v := range snapshot.Tokens {
		s.tokens[k] = v
	}
}
