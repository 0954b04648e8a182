package raffle

import (
	"context"
	"fmt"
)

type PurchaseRequest struct {
	Buyer        AccountID
	Count        uint64
	TokenAccount AccountID
	// Channel defaults to ChannelOnChain.
	Channel PaymentChannel
}

// Purchase records count tickets for the buyer and moves their cost into escrow. Repeat
// purchases merge into the buyer's existing holder record. The purchase that fills the
// raffle moves it to StatusAwaitingRandomness.
func (e *Engine) Purchase(ctx context.Context, r *Raffle, req PurchaseRequest) (*TicketPurchased, error) {
	if r.IsCompleted() {
		return nil, ErrRaffleCompleted
	}
	if req.Buyer == "" || req.TokenAccount == "" {
		return nil, ErrInvalidAccount
	}
	if req.Count == 0 {
		return nil, ErrInvalidTicketCount
	}

	sold, err := checkedAdd(r.Sold, req.Count)
	if err != nil {
		return nil, err
	}
	if sold > r.Capacity {
		return nil, ErrTicketLimitExceeded
	}

	channel := req.Channel
	if channel == "" {
		channel = ChannelOnChain
	}
	if channel != ChannelOnChain && channel != ChannelExternal {
		return nil, ErrInvalidChannel
	}

	cost, err := checkedMul(r.UnitPrice, req.Count)
	if err != nil {
		return nil, err
	}
	if err := e.checkEscrow(r); err != nil {
		return nil, err
	}
	if err := e.checkTokenAccount(ctx, r, req.TokenAccount, req.Buyer); err != nil {
		return nil, err
	}

	existing, index, found := r.Holder(req.Buyer)
	if found {
		if existing.TokenAccount != req.TokenAccount {
			return nil, ErrInvalidHolderTokenAccount
		}
		if existing.Channel() != channel {
			return nil, ErrPaymentChannelMismatch
		}
		if existing.Extension != nil && e.compliance != nil && !existing.Extension.KYCVerified {
			return nil, ErrComplianceNotVerified
		}
	}

	verified := false
	if e.compliance != nil {
		ok, err := e.compliance.Verified(ctx, req.Buyer)
		if err != nil {
			return nil, fmt.Errorf("compliance check: %w", err)
		}
		if !ok {
			return nil, ErrComplianceNotVerified
		}
		verified = true
	}

	if channel == ChannelOnChain {
		transfer := Transfer{From: req.Buyer, To: r.Escrow, Amount: cost, Authority: SignerAuthority(req.Buyer)}
		if err := e.chain.Execute(ctx, transfer); err != nil {
			return nil, fmt.Errorf("transfer ticket payment: %w", err)
		}
	}

	var extension *HolderExtension
	if e.compliance != nil || channel == ChannelExternal {
		extension = &HolderExtension{KYCVerified: verified, Channel: channel}
	}

	if found {
		existing.Tickets += req.Count
		if extension != nil {
			existing.Extension = extension
		}
		r.Holders[index] = existing
	} else {
		r.Holders = append(r.Holders, TicketHolder{
			Buyer:        req.Buyer,
			Tickets:      req.Count,
			TokenAccount: req.TokenAccount,
			Extension:    extension,
		})
	}

	r.Sold = sold
	if channel == ChannelExternal {
		r.External += req.Count
	}
	if r.IsFullSale() {
		if err := r.transition(StatusAwaitingRandomness); err != nil {
			return nil, err
		}
	}
	e.touch(r)

	return &TicketPurchased{
		RaffleID: r.ID,
		Buyer:    req.Buyer,
		Tickets:  req.Count,
		Channel:  channel,
		Cost:     cost,
	}, nil
}

func (e *Engine) checkTokenAccount(ctx context.Context, r *Raffle, address, owner AccountID) error {
	account, err := e.chain.TokenAccount(ctx, address)
	if err != nil {
		return fmt.Errorf("load token account %s: %w", address, err)
	}
	if account.Mint != r.TokenMint {
		return ErrInvalidTokenAccountMint
	}
	if account.Owner != owner {
		return ErrInvalidTokenAccountOwner
	}
	return nil
}
