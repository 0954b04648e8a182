package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raosunjoy/HomeChance-Lottery/internal/blockchain"
	"github.com/raosunjoy/HomeChance-Lottery/internal/raffle"
)

func TestLedgerSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	seal := []byte("0123456789abcdef0123456789abcdef")

	s, err := NewSqliteStorage(path)
	require.NoError(t, err)

	ledger, err := blockchain.OpenLedger(ctx, s)
	require.NoError(t, err)
	require.NoError(t, ledger.Fund("whale", math.MaxUint64))
	require.NoError(t, ledger.Fund("alice", 1_000))
	require.NoError(t, ledger.CreateMint("token", "seller"))
	require.NoError(t, ledger.CreateTokenAccount("alice-token", "token", "alice"))
	require.NoError(t, ledger.Execute(ctx,
		raffle.OpenEscrow{Account: "escrow", Seal: seal},
		raffle.Transfer{From: "alice", To: "escrow", Amount: 400, Authority: raffle.SignerAuthority("alice")},
		raffle.MintTo{Mint: "token", To: "alice-token", Amount: 25, Authority: "seller"},
	))
	require.NoError(t, ledger.Execute(ctx,
		raffle.Transfer{From: "escrow", To: "alice", Amount: 100, Authority: raffle.Authority{Signer: "escrow", Seal: seal}},
	))
	require.NoError(t, s.Close())

	reopened, err := NewSqliteStorage(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	restored, err := blockchain.OpenLedger(ctx, reopened)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), restored.Balance("whale"))
	assert.Equal(t, uint64(700), restored.Balance("alice"))
	assert.Equal(t, uint64(300), restored.Balance("escrow"))

	account, err := restored.TokenAccount(ctx, "alice-token")
	require.NoError(t, err)
	assert.Equal(t, raffle.TokenAccount{Address: "alice-token", Mint: "token", Owner: "alice", Amount: 25}, account)

	authority, err := restored.MintAuthority(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, raffle.AccountID("seller"), authority)

	require.NoError(t, restored.Execute(ctx, raffle.Transfer{
		From: "escrow", To: "alice", Amount: 300, Authority: raffle.Authority{Signer: "escrow", Seal: seal},
	}))
	assert.Equal(t, uint64(0), restored.Balance("escrow"))
}
