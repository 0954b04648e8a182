// Package blockchain provides the in-process value ledger the raffle engine settles against:
// native balances, program owned escrow accounts, mints and token accounts, all mutated
// through atomic instruction batches.
package blockchain

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/raosunjoy/HomeChance-Lottery/internal/raffle"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnauthorized      = errors.New("missing or invalid authority")
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountExists     = errors.New("account already exists")
	ErrMintMismatch      = errors.New("token account belongs to another mint")
	ErrOverflow          = errors.New("balance overflow")
	ErrUnknownOperation  = errors.New("unknown instruction")
)

type Mint struct {
	Authority raffle.AccountID
	Supply    uint64
}

type state struct {
	balances map[raffle.AccountID]uint64
	escrows  map[raffle.AccountID][]byte
	mints    map[raffle.AccountID]Mint
	tokens   map[raffle.AccountID]raffle.TokenAccount
}

func newState() *state {
	return &state{
		balances: map[raffle.AccountID]uint64{},
		escrows:  map[raffle.AccountID][]byte{},
		mints:    map[raffle.AccountID]Mint{},
		tokens:   map[raffle.AccountID]raffle.TokenAccount{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.escrows {
		c.escrows[k] = v
	}
	for k, v := range s.mints {
		c.mints[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	return c
}

// Ledger implements raffle.Chain in memory. With a Store every commit is persisted before it
// becomes visible. It is safe for concurrent use.
type Ledger struct {
	mu    sync.RWMutex
	state *state
	store Store
}

func NewLedger() *Ledger {
	return &Ledger{state: newState()}
}

// OpenLedger restores the accounts held by store and persists every later commit to it.
func OpenLedger(ctx context.Context, store Store) (*Ledger, error) {
	snapshot, err := store.LoadLedger(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	s := newState()
	if snapshot != nil {
		s.restore(snapshot)
	}
	return &Ledger{state: s, store: store}, nil
}

// commit runs fn against a copy of the state and swaps the copy in once it is persisted.
// The caller holds l.mu.
func (l *Ledger) commit(ctx context.Context, fn func(next *state) error) error {
	next := l.state.clone()
	if err := fn(next); err != nil {
		return err
	}

	if l.store != nil {
		if changes := diff(l.state, next); !changes.Empty() {
			if err := l.store.SaveLedger(ctx, changes); err != nil {
				return fmt.Errorf("persist ledger: %w", err)
			}
		}
	}

	l.state = next
	return nil
}

// Fund credits amount to account, creating it if needed.
func (l *Ledger) Fund(account raffle.AccountID, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.commit(context.Background(), func(next *state) error {
		return next.credit(account, amount)
	})
}

// Balance returns the native balance of account. Unknown accounts hold zero.
func (l *Ledger) Balance(account raffle.AccountID) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.state.balances[account]
}

// CreateMint registers a token mint controlled by authority.
func (l *Ledger) CreateMint(address, authority raffle.AccountID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.commit(context.Background(), func(next *state) error {
		if _, ok := next.mints[address]; ok {
			return fmt.Errorf("mint %s: %w", address, ErrAccountExists)
		}
		next.mints[address] = Mint{Authority: authority}
		return nil
	})
}

// Supply returns the issued supply of a mint.
func (l *Ledger) Supply(address raffle.AccountID) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, ok := l.state.mints[address]
	if !ok {
		return 0, fmt.Errorf("mint %s: %w", address, ErrAccountNotFound)
	}
	return m.Supply, nil
}

// CreateTokenAccount opens an empty token account of mint owned by owner.
func (l *Ledger) CreateTokenAccount(address, mintAddress, owner raffle.AccountID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.commit(context.Background(), func(next *state) error {
		if _, ok := next.tokens[address]; ok {
			return fmt.Errorf("token account %s: %w", address, ErrAccountExists)
		}
		if _, ok := next.mints[mintAddress]; !ok {
			return fmt.Errorf("mint %s: %w", mintAddress, ErrAccountNotFound)
		}
		next.tokens[address] = raffle.TokenAccount{Address: address, Mint: mintAddress, Owner: owner}
		return nil
	})
}

func (l *Ledger) TokenAccount(_ context.Context, address raffle.AccountID) (raffle.TokenAccount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	account, ok := l.state.tokens[address]
	if !ok {
		return raffle.TokenAccount{}, fmt.Errorf("token account %s: %w", address, ErrAccountNotFound)
	}
	return account, nil
}

func (l *Ledger) MintAuthority(_ context.Context, address raffle.AccountID) (raffle.AccountID, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, ok := l.state.mints[address]
	if !ok {
		return "", fmt.Errorf("mint %s: %w", address, ErrAccountNotFound)
	}
	return m.Authority, nil
}

// Execute applies the instructions in order against a copy of the ledger and commits the copy
// only if every instruction succeeds.
func (l *Ledger) Execute(ctx context.Context, instructions ...raffle.Instruction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.commit(ctx, func(next *state) error {
		for i, instruction := range instructions {
			if err := next.apply(instruction); err != nil {
				return fmt.Errorf("instruction %d (%T): %w", i, instruction, err)
			}
		}
		return nil
	})
}

func (s *state) apply(instruction raffle.Instruction) error {
	switch in := instruction.(type) {
	case raffle.OpenEscrow:
		return s.openEscrow(in)
	case raffle.Transfer:
		return s.transfer(in)
	case raffle.MintTo:
		return s.mintTo(in)
	case raffle.TransferToken:
		return s.transferToken(in)
	}
	return ErrUnknownOperation
}

// openEscrow creates the escrow account. Reopening an empty escrow with its own seal is a no-op.
func (s *state) openEscrow(in raffle.OpenEscrow) error {
	if len(in.Seal) == 0 {
		return ErrUnauthorized
	}
	if seal, ok := s.escrows[in.Account]; ok {
		if s.balances[in.Account] == 0 && subtle.ConstantTimeCompare(seal, in.Seal) == 1 {
			return nil
		}
		return fmt.Errorf("escrow %s: %w", in.Account, ErrAccountExists)
	}
	s.escrows[in.Account] = append([]byte(nil), in.Seal...)
	if _, ok := s.balances[in.Account]; !ok {
		s.balances[in.Account] = 0
	}
	return nil
}

func (s *state) transfer(in raffle.Transfer) error {
	if err := s.authorize(in.From, in.Authority); err != nil {
		return err
	}
	if s.balances[in.From] < in.Amount {
		return fmt.Errorf("debit %s: %w", in.From, ErrInsufficientFunds)
	}

	s.balances[in.From] -= in.Amount
	return s.credit(in.To, in.Amount)
}

// authorize accepts the account's own signature for user accounts and only the matching seal
// for escrow accounts.
func (s *state) authorize(account raffle.AccountID, authority raffle.Authority) error {
	if authority.Signer != account {
		return ErrUnauthorized
	}
	if seal, ok := s.escrows[account]; ok {
		if subtle.ConstantTimeCompare(seal, authority.Seal) != 1 {
			return ErrUnauthorized
		}
	}
	return nil
}

func (s *state) credit(account raffle.AccountID, amount uint64) error {
	if s.balances[account] > math.MaxUint64-amount {
		return fmt.Errorf("credit %s: %w", account, ErrOverflow)
	}
	s.balances[account] += amount
	return nil
}

func (s *state) mintTo(in raffle.MintTo) error {
	m, ok := s.mints[in.Mint]
	if !ok {
		return fmt.Errorf("mint %s: %w", in.Mint, ErrAccountNotFound)
	}
	if m.Authority != in.Authority {
		return ErrUnauthorized
	}

	account, err := s.tokenAccount(in.To, in.Mint)
	if err != nil {
		return err
	}
	if m.Supply > math.MaxUint64-in.Amount || account.Amount > math.MaxUint64-in.Amount {
		return ErrOverflow
	}

	m.Supply += in.Amount
	account.Amount += in.Amount
	s.mints[in.Mint] = m
	s.tokens[in.To] = account
	return nil
}

func (s *state) transferToken(in raffle.TransferToken) error {
	from, err := s.tokenAccount(in.From, in.Mint)
	if err != nil {
		return err
	}
	to, err := s.tokenAccount(in.To, in.Mint)
	if err != nil {
		return err
	}
	if from.Owner != in.Authority {
		return ErrUnauthorized
	}
	if from.Amount < in.Amount {
		return fmt.Errorf("debit %s: %w", in.From, ErrInsufficientFunds)
	}
	if to.Amount > math.MaxUint64-in.Amount {
		return ErrOverflow
	}

	from.Amount -= in.Amount
	s.tokens[in.From] = from
	// re-read so a self transfer sees the debit
	to = s.tokens[in.To]
	to.Amount += in.Amount
	s.tokens[in.To] = to
	return nil
}

func (s *state) tokenAccount(address, mintAddress raffle.AccountID) (raffle.TokenAccount, error) {
	account, ok := s.tokens[address]
	if !ok {
		return raffle.TokenAccount{}, fmt.Errorf("token account %s: %w", address, ErrAccountNotFound)
	}
	if account.Mint != mintAddress {
		return raffle.TokenAccount{}, fmt.Errorf("token account %s: %w", address, ErrMintMismatch)
	}
	return account, nil
}
