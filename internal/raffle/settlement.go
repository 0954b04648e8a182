package raffle

import (
	"context"
	"fmt"
	"slices"
)

type SettleRequest struct {
	Buyer              AccountID
	HolderAccount      AccountID
	HolderTokenAccount AccountID
	// Caller must be the fractional mint authority when the raffle allows fractional ownership.
	Caller AccountID
}

// SettleHolder drains one holder of an undersold raffle: fractional tokens are minted to the
// holder's token account or the ticket cost is refunded from escrow. The holder record is
// removed, so settling the same buyer again fails with ErrHolderNotFound.
func (e *Engine) SettleHolder(ctx context.Context, r *Raffle, req SettleRequest) (*HolderProcessed, error) {
	if err := settleable(r); err != nil {
		return nil, err
	}
	if err := e.checkEscrow(r); err != nil {
		return nil, err
	}

	holder, index, found := r.Holder(req.Buyer)
	if !found {
		return nil, ErrHolderNotFound
	}
	if req.HolderAccount != holder.Buyer {
		return nil, ErrInvalidHolderAccount
	}
	if req.HolderTokenAccount != holder.TokenAccount {
		return nil, ErrInvalidHolderTokenAccount
	}
	if err := e.checkTokenAccount(ctx, r, req.HolderTokenAccount, holder.Buyer); err != nil {
		return nil, err
	}

	settled, err := checkedAdd(r.Settled, holder.Tickets)
	if err != nil {
		return nil, err
	}

	event := &HolderProcessed{RaffleID: r.ID, Buyer: holder.Buyer, Tickets: holder.Tickets}
	if r.AllowFractional {
		if err := e.checkMintAuthority(ctx, r, req.Caller); err != nil {
			return nil, err
		}
		amount, minted, err := mintAllocation(r, holder.Tickets)
		if err != nil {
			return nil, err
		}

		mint := MintTo{Mint: r.TokenMint, To: holder.TokenAccount, Amount: amount, Authority: req.Caller}
		if err := e.chain.Execute(ctx, mint); err != nil {
			return nil, fmt.Errorf("mint holder tokens: %w", err)
		}

		r.TokensMinted = minted
		event.TokensMinted = &amount
	} else {
		refund, err := checkedMul(holder.Tickets, r.UnitPrice)
		if err != nil {
			return nil, err
		}

		if holder.Channel() == ChannelExternal {
			r.External -= holder.Tickets
			event.OwedAmount = &refund
		} else {
			authority, err := e.authority.Authority(r.ID)
			if err != nil {
				return nil, err
			}
			transfer := Transfer{From: r.Escrow, To: holder.Buyer, Amount: refund, Authority: authority}
			if err := e.chain.Execute(ctx, transfer); err != nil {
				return nil, fmt.Errorf("refund holder: %w", err)
			}
			event.RefundedAmount = &refund
		}
		r.Refunded += holder.Tickets
	}

	r.Holders = slices.Delete(r.Holders, index, index+1)
	r.Settled = settled
	e.touch(r)

	return event, nil
}

func settleable(r *Raffle) error {
	switch r.Status {
	case StatusClosedPartial:
		return nil
	case StatusPaidOut:
		return ErrAlreadyPaidOut
	case StatusClosedFull:
		return ErrUseFulfillRandomness
	}
	return ErrRaffleNotClosed
}

func (e *Engine) checkMintAuthority(ctx context.Context, r *Raffle, caller AccountID) error {
	authority, err := e.chain.MintAuthority(ctx, r.TokenMint)
	if err != nil {
		return fmt.Errorf("load mint authority: %w", err)
	}
	if caller == "" || authority != caller {
		return ErrInvalidMintAuthority
	}
	return nil
}

// mintAllocation returns the fractional units for tickets and the raffle's minted total after
// issuing them, failing when the total would pass FractionalSupply.
func mintAllocation(r *Raffle, tickets uint64) (amount, total uint64, err error) {
	if amount, err = checkedMul(tickets, r.TokensPerTicket()); err != nil {
		return 0, 0, err
	}
	if total, err = checkedAdd(r.TokensMinted, amount); err != nil {
		return 0, 0, err
	}
	if total > FractionalSupply {
		return 0, 0, ErrMintBoundExceeded
	}
	return amount, total, nil
}
