package raffle

import "context"

// Instruction is one value or token movement submitted to the Chain.
type Instruction interface {
	instruction()
}

// OpenEscrow creates a program owned escrow account guarded by Seal.
type OpenEscrow struct {
	Account AccountID
	Seal    []byte
}

// Transfer moves native value between accounts.
type Transfer struct {
	From      AccountID
	To        AccountID
	Amount    uint64
	Authority Authority
}

// MintTo issues new units of Mint into the token account To.
type MintTo struct {
	Mint      AccountID
	To        AccountID
	Amount    uint64
	Authority AccountID
}

// TransferToken moves token units between two token accounts of Mint.
type TransferToken struct {
	Mint      AccountID
	From      AccountID
	To        AccountID
	Amount    uint64
	Authority AccountID
}

func (OpenEscrow) instruction()    {}
func (Transfer) instruction()      {}
func (MintTo) instruction()        {}
func (TransferToken) instruction() {}

// TokenAccount describes a token account held on the chain.
type TokenAccount struct {
	Address AccountID
	Mint    AccountID
	Owner   AccountID
	Amount  uint64
}

// Chain is the value ledger collaborator. Execute applies every instruction or none.
type Chain interface {
	Execute(ctx context.Context, instructions ...Instruction) error
	TokenAccount(ctx context.Context, address AccountID) (TokenAccount, error)
	MintAuthority(ctx context.Context, mint AccountID) (AccountID, error)
}

// RandomnessSource issues outbound randomness requests. Fulfillment is delivered back
// through Engine.FulfillRandomness by the caller.
type RandomnessSource interface {
	Request(ctx context.Context, raffleID string, seed []byte) (string, error)
}

// ComplianceVerifier reports whether a buyer passed identity verification.
type ComplianceVerifier interface {
	Verified(ctx context.Context, buyer AccountID) (bool, error)
}
