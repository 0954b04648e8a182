package raffle

import (
	"context"
	"fmt"
)

// Split is the seller/platform/charity division of raffle proceeds. The three figures are
// truncated independently and need not sum to Proceeds; the remainder stays in escrow.
type Split struct {
	Proceeds            uint64 `json:"proceeds"`
	SellerPayout        uint64 `json:"seller_payout"`
	PlatformRevenue     uint64 `json:"platform_revenue"`
	CharityContribution uint64 `json:"charity_contribution"`
}

// ComputeSplit divides proceeds 90/10 between seller and platform and gives a tenth of the
// platform share to charity.
func ComputeSplit(proceeds uint64) (Split, error) {
	scaled, err := checkedMul(proceeds, 9)
	if err != nil {
		return Split{}, err
	}

	platform := proceeds / 10
	return Split{
		Proceeds:            proceeds,
		SellerPayout:        scaled / 10,
		PlatformRevenue:     platform,
		CharityContribution: platform / 10,
	}, nil
}

// Proceeds returns the value of tickets sold and not refunded.
func Proceeds(r *Raffle) (uint64, error) {
	return checkedMul(r.Sold-r.Refunded, r.UnitPrice)
}

// movableProceeds excludes tickets paid through the external channel, whose value never
// entered escrow.
func movableProceeds(r *Raffle) (uint64, error) {
	return checkedMul(r.Sold-r.Refunded-r.External, r.UnitPrice)
}

// ExpectedEscrowBalance is the value the raffle's escrow must hold in its current state,
// excluding the initial funding of the account.
func ExpectedEscrowBalance(r *Raffle) (uint64, error) {
	movable, err := movableProceeds(r)
	if err != nil {
		return 0, err
	}
	if r.Status != StatusPaidOut {
		return movable, nil
	}

	split, err := ComputeSplit(movable)
	if err != nil {
		return 0, err
	}
	return movable - split.SellerPayout - split.CharityContribution, nil
}

type PayoutFullRequest struct {
	Caller           AccountID
	Confirmed        bool
	SellerNFTAccount AccountID
	WinnerNFTAccount AccountID
}

// PayoutFull settles a sold out raffle: seller and charity shares leave escrow and the property
// NFT moves from the seller to the winner.
func (e *Engine) PayoutFull(ctx context.Context, r *Raffle, req PayoutFullRequest) (*PayoutProcessed, error) {
	switch {
	case r.Status == StatusPaidOut:
		return nil, ErrAlreadyPaidOut
	case !r.IsCompleted():
		return nil, ErrRaffleNotClosed
	case !r.IsFullSale():
		return nil, ErrNotFullSale
	}
	if req.Caller != r.Seller {
		return nil, ErrNotSeller
	}
	if r.Winner == nil {
		return nil, ErrNoWinner
	}
	if !req.Confirmed {
		return nil, ErrTransferNotConfirmed
	}
	if err := e.checkEscrow(r); err != nil {
		return nil, err
	}

	sellerNFT, err := e.chain.TokenAccount(ctx, req.SellerNFTAccount)
	if err != nil {
		return nil, fmt.Errorf("load seller nft account: %w", err)
	}
	switch {
	case sellerNFT.Owner != r.Seller:
		return nil, ErrInvalidTokenAccountOwner
	case sellerNFT.Mint != r.NFTMint:
		return nil, ErrInvalidTokenAccountMint
	case sellerNFT.Amount != 1:
		return nil, ErrInvalidTokenAccountAmount
	}

	winnerNFT, err := e.chain.TokenAccount(ctx, req.WinnerNFTAccount)
	if err != nil {
		return nil, fmt.Errorf("load winner nft account: %w", err)
	}
	switch {
	case winnerNFT.Mint != r.NFTMint:
		return nil, ErrInvalidTokenAccountMint
	case winnerNFT.Owner != *r.Winner:
		return nil, ErrInvalidTokenAccountOwner
	}

	instructions, event, err := e.payoutSplit(r)
	if err != nil {
		return nil, err
	}
	instructions = append(instructions, TransferToken{
		Mint:      r.NFTMint,
		From:      req.SellerNFTAccount,
		To:        req.WinnerNFTAccount,
		Amount:    1,
		Authority: r.Seller,
	})

	if err := e.finishPayout(ctx, r, instructions); err != nil {
		return nil, err
	}

	winner := *r.Winner
	event.Winner = &winner
	return event, nil
}

type PayoutFractionalMintedRequest struct {
	Caller             AccountID
	SellerTokenAccount AccountID
}

// PayoutFractionalMinted settles a drained undersold raffle and mints the unsold tickets'
// fractional share to the seller.
func (e *Engine) PayoutFractionalMinted(ctx context.Context, r *Raffle, req PayoutFractionalMintedRequest) (*PayoutProcessed, error) {
	if err := fractionalPayable(r, req.Caller); err != nil {
		return nil, err
	}
	if !r.AllowFractional {
		return nil, ErrFractionalNotAllowed
	}
	if err := e.checkEscrow(r); err != nil {
		return nil, err
	}
	if err := e.checkMintAuthority(ctx, r, req.Caller); err != nil {
		return nil, err
	}
	if err := e.checkTokenAccount(ctx, r, req.SellerTokenAccount, r.Seller); err != nil {
		return nil, err
	}

	amount, minted, err := mintAllocation(r, r.Remaining())
	if err != nil {
		return nil, err
	}

	instructions, event, err := e.payoutSplit(r)
	if err != nil {
		return nil, err
	}
	if amount > 0 {
		instructions = append(instructions, MintTo{
			Mint:      r.TokenMint,
			To:        req.SellerTokenAccount,
			Amount:    amount,
			Authority: req.Caller,
		})
	}

	if err := e.finishPayout(ctx, r, instructions); err != nil {
		return nil, err
	}

	r.TokensMinted = minted
	event.SellerTokensMinted = &amount
	return event, nil
}

type PayoutFractionalPlainRequest struct {
	Caller AccountID
}

// PayoutFractionalPlain settles a drained undersold raffle without fractional issuance.
func (e *Engine) PayoutFractionalPlain(ctx context.Context, r *Raffle, req PayoutFractionalPlainRequest) (*PayoutProcessed, error) {
	if err := fractionalPayable(r, req.Caller); err != nil {
		return nil, err
	}
	if r.AllowFractional {
		return nil, ErrFractionalAllowed
	}
	if err := e.checkEscrow(r); err != nil {
		return nil, err
	}

	instructions, event, err := e.payoutSplit(r)
	if err != nil {
		return nil, err
	}
	if err := e.finishPayout(ctx, r, instructions); err != nil {
		return nil, err
	}
	return event, nil
}

func fractionalPayable(r *Raffle, caller AccountID) error {
	switch {
	case r.Status == StatusPaidOut:
		return ErrAlreadyPaidOut
	case !r.IsCompleted():
		return ErrRaffleNotClosed
	case r.IsFullSale():
		return ErrFullSale
	}
	if caller != r.Seller {
		return ErrNotSeller
	}
	if len(r.Holders) > 0 {
		return ErrHoldersNotProcessed
	}
	return nil
}

// payoutSplit builds the escrow transfers of the split and the event reporting it. Only the
// on-chain funded part of the proceeds is moved; the rest is reported as externally owed.
func (e *Engine) payoutSplit(r *Raffle) ([]Instruction, *PayoutProcessed, error) {
	proceeds, err := Proceeds(r)
	if err != nil {
		return nil, nil, err
	}
	total, err := ComputeSplit(proceeds)
	if err != nil {
		return nil, nil, err
	}

	movable, err := movableProceeds(r)
	if err != nil {
		return nil, nil, err
	}
	moved, err := ComputeSplit(movable)
	if err != nil {
		return nil, nil, err
	}

	authority, err := e.authority.Authority(r.ID)
	if err != nil {
		return nil, nil, err
	}

	var instructions []Instruction
	if moved.SellerPayout > 0 {
		instructions = append(instructions, Transfer{From: r.Escrow, To: r.Seller, Amount: moved.SellerPayout, Authority: authority})
	}
	if moved.CharityContribution > 0 {
		instructions = append(instructions, Transfer{From: r.Escrow, To: e.charity, Amount: moved.CharityContribution, Authority: authority})
	}

	event := &PayoutProcessed{
		RaffleID:            r.ID,
		SellerPayout:        total.SellerPayout,
		PlatformRevenue:     total.PlatformRevenue,
		CharityContribution: total.CharityContribution,
		ExternalOwed: Split{
			Proceeds:            total.Proceeds - moved.Proceeds,
			SellerPayout:        total.SellerPayout - moved.SellerPayout,
			PlatformRevenue:     total.PlatformRevenue - moved.PlatformRevenue,
			CharityContribution: total.CharityContribution - moved.CharityContribution,
		},
	}
	return instructions, event, nil
}

func (e *Engine) finishPayout(ctx context.Context, r *Raffle, instructions []Instruction) error {
	if len(instructions) > 0 {
		if err := e.chain.Execute(ctx, instructions...); err != nil {
			return fmt.Errorf("execute payout: %w", err)
		}
	}
	if err := r.transition(StatusPaidOut); err != nil {
		return err
	}
	e.touch(r)
	return nil
}
