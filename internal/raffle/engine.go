package raffle

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EngineConfig wires the collaborators of an Engine.
type EngineConfig struct {
	Chain      Chain
	Randomness RandomnessSource
	Authority  *AuthorityDeriver
	Charity    AccountID

	// Compliance is optional. When set, purchases are gated on buyer verification and holder
	// records carry the verification flag.
	Compliance ComplianceVerifier
	Now        func() time.Time
}

// Engine executes raffle operations against a caller owned *Raffle. It holds no raffle state;
// callers serialize operations per raffle and persist the mutated value.
//
// Every operation validates first, submits its value movements as one Chain.Execute batch and
// mutates the raffle only after the batch succeeds, so a failed call leaves the raffle untouched.
type Engine struct {
	chain      Chain
	randomness RandomnessSource
	compliance ComplianceVerifier
	authority  *AuthorityDeriver
	charity    AccountID
	now        func() time.Time
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Chain == nil {
		return nil, errors.New("chain is required")
	}
	if cfg.Authority == nil {
		return nil, errors.New("authority deriver is required")
	}
	if cfg.Charity == "" {
		return nil, errors.New("charity account is required")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		chain:      cfg.Chain,
		randomness: cfg.Randomness,
		compliance: cfg.Compliance,
		authority:  cfg.Authority,
		charity:    cfg.Charity,
		now:        now,
	}, nil
}

// Escrow returns the derived escrow address of raffleID.
func (e *Engine) Escrow(raffleID string) AccountID {
	return e.authority.Escrow(raffleID)
}

type CreateRequest struct {
	ID              string
	AssetID         string
	Seller          AccountID
	UnitPrice       uint64
	AllowFractional bool
	NFTMint         AccountID
	TokenMint       AccountID
}

// Create initializes a raffle with the fixed capacity and opens its escrow account.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*Raffle, error) {
	if req.ID == "" {
		return nil, ErrInvalidRaffleID
	}
	if req.UnitPrice == 0 {
		return nil, ErrInvalidPrice
	}
	if req.Seller == "" || req.NFTMint == "" || req.TokenMint == "" {
		return nil, ErrInvalidAccount
	}
	total, err := checkedMul(req.UnitPrice, TotalTickets)
	if err != nil {
		return nil, err
	}
	if total > MaxProceeds {
		return nil, ErrPriceTooHigh
	}

	authority, err := e.authority.Authority(req.ID)
	if err != nil {
		return nil, err
	}

	escrow := e.authority.Escrow(req.ID)
	if err := e.chain.Execute(ctx, OpenEscrow{Account: escrow, Seal: authority.Seal}); err != nil {
		return nil, fmt.Errorf("open escrow: %w", err)
	}

	now := e.now().UTC()
	return &Raffle{
		ID:              req.ID,
		AssetID:         req.AssetID,
		Seller:          req.Seller,
		Escrow:          escrow,
		UnitPrice:       req.UnitPrice,
		Capacity:        TotalTickets,
		Status:          StatusOpen,
		AllowFractional: req.AllowFractional,
		NFTMint:         req.NFTMint,
		TokenMint:       req.TokenMint,
		Holders:         []TicketHolder{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// SetFractionalPolicy lets the seller change the fractional flag before the first sale.
func (e *Engine) SetFractionalPolicy(_ context.Context, r *Raffle, caller AccountID, allow bool) error {
	if caller != r.Seller {
		return ErrNotSeller
	}
	if r.Sold > 0 {
		return ErrSalesStarted
	}
	if r.Status != StatusOpen {
		return ErrRaffleCompleted
	}

	r.AllowFractional = allow
	e.touch(r)
	return nil
}

func (e *Engine) checkEscrow(r *Raffle) error {
	if r.Escrow != e.authority.Escrow(r.ID) {
		return ErrInvalidEscrow
	}
	return nil
}

func (e *Engine) touch(r *Raffle) {
	r.UpdatedAt = e.now().UTC()
}
