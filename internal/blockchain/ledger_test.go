package blockchain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raosunjoy/HomeChance-Lottery/internal/raffle"
)

var seal = []byte("0123456789abcdef0123456789abcdef")

func TestTransferRequiresSigner(t *testing.T) {
	ledger := NewLedger()
	require.NoError(t, ledger.Fund("alice", 100))

	err := ledger.Execute(context.Background(), raffle.Transfer{
		From: "alice", To: "bob", Amount: 10, Authority: raffle.SignerAuthority("bob"),
	})
	require.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, ledger.Execute(context.Background(), raffle.Transfer{
		From: "alice", To: "bob", Amount: 10, Authority: raffle.SignerAuthority("alice"),
	}))
	assert.Equal(t, uint64(90), ledger.Balance("alice"))
	assert.Equal(t, uint64(10), ledger.Balance("bob"))
}

func TestEscrowRequiresSeal(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()

	require.NoError(t, ledger.Execute(ctx, raffle.OpenEscrow{Account: "escrow", Seal: seal}))
	require.NoError(t, ledger.Fund("escrow", 50))

	err := ledger.Execute(ctx, raffle.Transfer{From: "escrow", To: "thief", Amount: 50, Authority: raffle.SignerAuthority("escrow")})
	require.ErrorIs(t, err, ErrUnauthorized)

	err = ledger.Execute(ctx, raffle.OpenEscrow{Account: "escrow", Seal: seal})
	require.ErrorIs(t, err, ErrAccountExists)

	require.NoError(t, ledger.Execute(ctx, raffle.Transfer{
		From: "escrow", To: "seller", Amount: 50, Authority: raffle.Authority{Signer: "escrow", Seal: seal},
	}))
	assert.Equal(t, uint64(0), ledger.Balance("escrow"))
	assert.Equal(t, uint64(50), ledger.Balance("seller"))
}

func TestExecuteIsAtomic(t *testing.T) {
	ledger := NewLedger()
	require.NoError(t, ledger.Fund("alice", 100))

	err := ledger.Execute(context.Background(),
		raffle.Transfer{From: "alice", To: "bob", Amount: 60, Authority: raffle.SignerAuthority("alice")},
		raffle.Transfer{From: "alice", To: "carol", Amount: 60, Authority: raffle.SignerAuthority("alice")},
	)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	assert.Equal(t, uint64(100), ledger.Balance("alice"))
	assert.Equal(t, uint64(0), ledger.Balance("bob"))
}

func TestExecuteHonorsCancelledContext(t *testing.T) {
	ledger := NewLedger()
	require.NoError(t, ledger.Fund("alice", 100))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ledger.Execute(ctx, raffle.Transfer{From: "alice", To: "bob", Amount: 1, Authority: raffle.SignerAuthority("alice")})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(100), ledger.Balance("alice"))
}

func TestMintAndTokenTransfer(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()

	require.NoError(t, ledger.CreateMint("token", "seller"))
	require.NoError(t, ledger.CreateMint("nft", "seller"))
	require.NoError(t, ledger.CreateTokenAccount("alice-token", "token", "alice"))
	require.NoError(t, ledger.CreateTokenAccount("seller-nft", "nft", "seller"))
	require.NoError(t, ledger.CreateTokenAccount("alice-nft", "nft", "alice"))

	err := ledger.Execute(ctx, raffle.MintTo{Mint: "token", To: "alice-token", Amount: 5, Authority: "alice"})
	require.ErrorIs(t, err, ErrUnauthorized)

	err = ledger.Execute(ctx, raffle.MintTo{Mint: "token", To: "alice-nft", Amount: 5, Authority: "seller"})
	require.ErrorIs(t, err, ErrMintMismatch)

	require.NoError(t, ledger.Execute(ctx,
		raffle.MintTo{Mint: "token", To: "alice-token", Amount: 300, Authority: "seller"},
		raffle.MintTo{Mint: "nft", To: "seller-nft", Amount: 1, Authority: "seller"},
	))

	supply, err := ledger.Supply("token")
	require.NoError(t, err)
	assert.Equal(t, uint64(300), supply)

	err = ledger.Execute(ctx, raffle.TransferToken{Mint: "nft", From: "seller-nft", To: "alice-nft", Amount: 1, Authority: "alice"})
	require.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, ledger.Execute(ctx, raffle.TransferToken{Mint: "nft", From: "seller-nft", To: "alice-nft", Amount: 1, Authority: "seller"}))

	account, err := ledger.TokenAccount(ctx, "alice-nft")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), account.Amount)

	authority, err := ledger.MintAuthority(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, raffle.AccountID("seller"), authority)

	_, err = ledger.TokenAccount(ctx, "missing")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestCreateTokenAccountRequiresMint(t *testing.T) {
	ledger := NewLedger()
	require.ErrorIs(t, ledger.CreateTokenAccount("a", "missing", "alice"), ErrAccountNotFound)

	require.NoError(t, ledger.CreateMint("token", "seller"))
	require.ErrorIs(t, ledger.CreateMint("token", "seller"), ErrAccountExists)
	require.NoError(t, ledger.CreateTokenAccount("a", "token", "alice"))
	require.ErrorIs(t, ledger.CreateTokenAccount("a", "token", "alice"), ErrAccountExists)
}

func TestReopenEmptyEscrow(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()

	require.NoError(t, ledger.Execute(ctx, raffle.OpenEscrow{Account: "escrow", Seal: seal}))
	require.NoError(t, ledger.Execute(ctx, raffle.OpenEscrow{Account: "escrow", Seal: seal}))

	err := ledger.Execute(ctx, raffle.OpenEscrow{Account: "escrow", Seal: []byte("another seal of thirty two bytes")})
	require.ErrorIs(t, err, ErrAccountExists)

	require.NoError(t, ledger.Fund("escrow", 1))
	err = ledger.Execute(ctx, raffle.OpenEscrow{Account: "escrow", Seal: seal})
	require.ErrorIs(t, err, ErrAccountExists)
}

type memoryStore struct {
	saved   *Snapshot
	commits int
	fail    error
}

func (m *memoryStore) LoadLedger(context.Context) (*Snapshot, error) {
	if m.saved == nil {
		return nil, nil
	}
	return m.saved, nil
}

func (m *memoryStore) SaveLedger(_ context.Context, changes *Snapshot) error {
	if m.fail != nil {
		return m.fail
	}
	if m.saved == nil {
		m.saved = NewSnapshot()
	}
	for k, v := range changes.Balances {
		m.saved.Balances[k] = v
	}
	for k, v := range changes.Escrows {
		m.saved.Escrows[k] = v
	}
	for k, v := range changes.Mints {
		m.saved.Mints[k] = v
	}
	for k, v := range changes.Tokens {
		m.saved.Tokens[k] = v
	}
	m.commits++
	return nil
}

func TestOpenLedgerRestoresCommittedAccounts(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}

	ledger, err := OpenLedger(ctx, store)
	require.NoError(t, err)
	require.NoError(t, ledger.Fund("alice", 100))
	require.NoError(t, ledger.CreateMint("token", "seller"))
	require.NoError(t, ledger.CreateTokenAccount("alice-token", "token", "alice"))
	require.NoError(t, ledger.Execute(ctx,
		raffle.OpenEscrow{Account: "escrow", Seal: seal},
		raffle.Transfer{From: "alice", To: "escrow", Amount: 40, Authority: raffle.SignerAuthority("alice")},
		raffle.MintTo{Mint: "token", To: "alice-token", Amount: 7, Authority: "seller"},
	))
	assert.Equal(t, 4, store.commits)

	restarted, err := OpenLedger(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), restarted.Balance("alice"))
	assert.Equal(t, uint64(40), restarted.Balance("escrow"))

	account, err := restarted.TokenAccount(ctx, "alice-token")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), account.Amount)

	supply, err := restarted.Supply("token")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), supply)

	// the restored escrow still only moves with its seal
	err = restarted.Execute(ctx, raffle.Transfer{From: "escrow", To: "alice", Amount: 40, Authority: raffle.SignerAuthority("escrow")})
	require.ErrorIs(t, err, ErrUnauthorized)
	require.NoError(t, restarted.Execute(ctx, raffle.Transfer{
		From: "escrow", To: "alice", Amount: 40, Authority: raffle.Authority{Signer: "escrow", Seal: seal},
	}))
}

func TestFailedPersistLeavesLedgerUnchanged(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}

	ledger, err := OpenLedger(ctx, store)
	require.NoError(t, err)
	require.NoError(t, ledger.Fund("alice", 100))

	store.fail = errors.New("disk full")
	err = ledger.Execute(ctx, raffle.Transfer{From: "alice", To: "bob", Amount: 30, Authority: raffle.SignerAuthority("alice")})
	require.ErrorContains(t, err, "disk full")
	assert.Equal(t, uint64(100), ledger.Balance("alice"))
	assert.Equal(t, uint64(0), ledger.Balance("bob"))

	store.fail = nil
	commits := store.commits
	err = ledger.Execute(ctx, raffle.Transfer{From: "alice", To: "bob", Amount: 500, Authority: raffle.SignerAuthority("alice")})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, commits, store.commits)
}
