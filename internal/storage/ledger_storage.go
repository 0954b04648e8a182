package storage

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/raosunjoy/HomeChance-Lottery/internal/blockchain"
	"github.com/raosunjoy/HomeChance-Lottery/internal/logger"
	"github.com/raosunjoy/HomeChance-Lottery/internal/raffle"
)

// Ledger amounts are decimal strings, balances may exceed the signed range of sqlite integers.

type LedgerBalance struct {
	Account string `gorm:"primaryKey"`
	Amount  string `gorm:"not null"`
}

type LedgerEscrow struct {
	Account string `gorm:"primaryKey"`
	Seal    []byte `gorm:"not null"`
}

type LedgerMint struct {
	Address   string `gorm:"primaryKey"`
	Authority string `gorm:"not null"`
	Supply    string `gorm:"not null"`
}

type LedgerTokenAccount struct {
	Address string `gorm:"primaryKey"`
	Mint    string `gorm:"index;not null"`
	Owner   string `gorm:"index;not null"`
	Amount  string `gorm:"not null"`
}

// LoadLedger reads every persisted ledger account.
func (s *SqliteStorage) LoadLedger(ctx context.Context) (*blockchain.Snapshot, error) {
	logger.Debug("loading ledger...")

	db := s.db.WithContext(ctx)
	var balances []LedgerBalance
	var escrows []LedgerEscrow
	var mints []LedgerMint
	var tokens []LedgerTokenAccount
	for _, target := range []any{&balances, &escrows, &mints, &tokens} {
		if err := db.Find(target).Error; err != nil {
			return nil, err
		}
	}

	snapshot := blockchain.NewSnapshot()
	for _, b := range balances {
		amount, err := parseAmount("balance", b.Account, b.Amount)
		if err != nil {
			return nil, err
		}
		snapshot.Balances[raffle.AccountID(b.Account)] = amount
	}
	for _, e := range escrows {
		snapshot.Escrows[raffle.AccountID(e.Account)] = e.Seal
	}
	for _, m := range mints {
		supply, err := parseAmount("mint supply", m.Address, m.Supply)
		if err != nil {
			return nil, err
		}
		snapshot.Mints[raffle.AccountID(m.Address)] = blockchain.Mint{Authority: raffle.AccountID(m.Authority), Supply: supply}
	}
	for _, t := range tokens {
		amount, err := parseAmount("token amount", t.Address, t.Amount)
		if err != nil {
			return nil, err
		}
		snapshot.Tokens[raffle.AccountID(t.Address)] = raffle.TokenAccount{
			Address: raffle.AccountID(t.Address),
			Mint:    raffle.AccountID(t.Mint),
			Owner:   raffle.AccountID(t.Owner),
			Amount:  amount,
		}
	}

	logger.Debug("loading ledger... done",
		zap.Int("balances", len(balances)),
		zap.Int("escrows", len(escrows)),
		zap.Int("mints", len(mints)),
		zap.Int("token_accounts", len(tokens)),
	)
	return snapshot, nil
}

// SaveLedger upserts the changed accounts in one transaction.
func (s *SqliteStorage) SaveLedger(ctx context.Context, changes *blockchain.Snapshot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(changes.Balances) > 0 {
			records := make([]LedgerBalance, 0, len(changes.Balances))
			for account, amount := range changes.Balances {
				records = append(records, LedgerBalance{Account: string(account), Amount: strconv.FormatUint(amount, 10)})
			}
			if err := upsert(tx).Create(&records).Error; err != nil {
				return err
			}
		}
		if len(changes.Escrows) > 0 {
			records := make([]LedgerEscrow, 0, len(changes.Escrows))
			for account, seal := range changes.Escrows {
				records = append(records, LedgerEscrow{Account: string(account), Seal: seal})
			}
			if err := upsert(tx).Create(&records).Error; err != nil {
				return err
			}
		}
		if len(changes.Mints) > 0 {
			records := make([]LedgerMint, 0, len(changes.Mints))
			for address, m := range changes.Mints {
				records = append(records, LedgerMint{
					Address:   string(address),
					Authority: string(m.Authority),
					Supply:    strconv.FormatUint(m.Supply, 10),
				})
			}
			if err := upsert(tx).Create(&records).Error; err != nil {
				return err
			}
		}
		if len(changes.Tokens) > 0 {
			records := make([]LedgerTokenAccount, 0, len(changes.Tokens))
			for address, t := range changes.Tokens {
				records = append(records, LedgerTokenAccount{
					Address: string(address),
					Mint:    string(t.Mint),
					Owner:   string(t.Owner),
					Amount:  strconv.FormatUint(t.Amount, 10),
				})
			}
			if err := upsert(tx).Create(&records).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func upsert(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.OnConflict{UpdateAll: true})
}

func parseAmount(kind, account, value string) (uint64, error) {
	amount, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode %s of %s: %w", kind, account, err)
	}
	return amount, nil
}
