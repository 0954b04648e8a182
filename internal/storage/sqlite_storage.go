package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/raosunjoy/HomeChance-Lottery/internal/logger"
	"github.com/raosunjoy/HomeChance-Lottery/internal/raffle"
)

type SqliteStorage struct {
	db *gorm.DB
}

func NewSqliteStorage(path string) (*SqliteStorage, error) {

	logger.Debug("initializing database...", zap.String("path", path))
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// single writer keeps sqlite from returning SQLITE_BUSY under concurrent raffles
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&RaffleRecord{},
		&HolderRecord{},
		&EventRecord{},
		&EventTouch{},
		&HolderStatus{},
		&LedgerBalance{},
		&LedgerEscrow{},
		&LedgerMint{},
		&LedgerTokenAccount{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logger.Debug("initializing database... done")
	return &SqliteStorage{
		db: db,
	}, nil
}

func (s *SqliteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SqliteStorage) CreateRaffle(ctx context.Context, r *raffle.Raffle) error {
	logger.Debug("creating raffle...", zap.String("raffle_id", r.ID))

	record := newRaffleRecord(r)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&RaffleRecord{}).Where("id = ?", r.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrRaffleExists
		}
		return tx.Create(record).Error
	})
	if err != nil {
		return err
	}

	logger.Debug("creating raffle... done", zap.String("raffle_id", r.ID))
	return nil
}

func (s *SqliteStorage) GetRaffle(ctx context.Context, id string) (*raffle.Raffle, error) {

	var record RaffleRecord
	err := s.db.WithContext(ctx).
		Preload("Holders", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Where("id = ?", id).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, raffle.ErrRaffleNotFound
	}
	if err != nil {
		return nil, err
	}

	return record.Raffle()
}

// ListRaffles returns raffles ordered by creation time. An empty status lists every raffle.
func (s *SqliteStorage) ListRaffles(ctx context.Context, status raffle.Status) ([]*raffle.Raffle, error) {

	query := s.db.WithContext(ctx).
		Preload("Holders", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Order("created_at, id")
	if status != "" {
		query = query.Where("status = ?", string(status))
	}

	var records []*RaffleRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}

	raffles := make([]*raffle.Raffle, 0, len(records))
	for _, record := range records {
		r, err := record.Raffle()
		if err != nil {
			return nil, err
		}
		raffles = append(raffles, r)
	}
	return raffles, nil
}

// SaveRaffle replaces the stored raffle state and appends its events in one transaction.
func (s *SqliteStorage) SaveRaffle(ctx context.Context, r *raffle.Raffle, events []raffle.Event) ([]*EventRecord, error) {
	logger.Debug("saving raffle...", zap.String("raffle_id", r.ID), zap.Int("events", len(events)))

	record := newRaffleRecord(r)
	records := make([]*EventRecord, 0, len(events))
	for _, event := range events {
		eventRecord, err := NewEventRecord(event, r.UpdatedAt)
		if err != nil {
			return nil, err
		}
		records = append(records, eventRecord)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&RaffleRecord{}).
			Where("id = ?", r.ID).
			Select("*").
			Omit("id", "created_at", clause.Associations).
			Updates(record)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return raffle.ErrRaffleNotFound
		}

		if err := tx.Where("raffle_id = ?", r.ID).Delete(&HolderRecord{}).Error; err != nil {
			return err
		}
		if len(record.Holders) > 0 {
			if err := tx.CreateInBatches(record.Holders, 100).Error; err != nil {
				return err
			}
		}

		if len(records) > 0 {
			if err := tx.CreateInBatches(records, 100).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("saving raffle... done", zap.String("raffle_id", r.ID))
	return records, nil
}

func (s *SqliteStorage) GetEvents(ctx context.Context, raffleID string) ([]*EventRecord, error) {

	var records []*EventRecord
	err := s.db.WithContext(ctx).Where("raffle_id = ?", raffleID).Order("sequence").Find(&records).Error
	if err != nil {
		return nil, err
	}

	return records, nil
}

// GetPendingEvents returns up to limit events the consumer has not yet touched.
func (s *SqliteStorage) GetPendingEvents(ctx context.Context, consumer string, limit int) ([]*EventRecord, error) {
	logger.Debug("getting pending events...", zap.String("consumer", consumer))

	rows, err := s.db.WithContext(ctx).Raw(`
		select e.*
		from event_records e
		where e.sequence > (
			select coalesce(max(t.sequence), 0)
			from event_touches t
			where t.consumer = ?
		)
		order by e.sequence
		limit ?
	`, consumer, limit).Rows()
	if err != nil {
		return nil, err
	}

	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			logger.Warn("closing pending events rows", zap.Error(err))
		}
	}(rows)

	var records = make([]*EventRecord, 0)
	for rows.Next() {
		var record EventRecord

		if err := s.db.ScanRows(rows, &record); err != nil {
			return nil, err
		}

		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logger.Debug("getting pending events... done", zap.Int("count", len(records)))
	return records, nil
}

func (s *SqliteStorage) GetEventTouch(ctx context.Context, consumer string) (int64, error) {
	logger.Debug("getting last touched event...", zap.String("consumer", consumer))

	var sequence int64
	err := s.db.WithContext(ctx).Raw(`
		select coalesce(max(sequence), 0) as sequence
		from event_touches
		where consumer = ?
	`, consumer).Scan(&sequence).Error

	if err != nil {
		return 0, err
	}

	logger.Debug("getting last touched event... done", zap.Int64("sequence", sequence))
	return sequence, nil
}

func (s *SqliteStorage) UpdateEventTouch(ctx context.Context, touch *EventTouch) error {
	logger.Debug("updating event touch...")

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "consumer"}},
		DoUpdates: clause.AssignmentColumns([]string{"sequence"}),
	}).Create(touch).Error

	if err != nil {
		return err
	}

	logger.Debug("updating event touch... done")
	return nil
}

func (s *SqliteStorage) GetHolderStatuses(ctx context.Context, raffleID string) ([]*HolderStatus, error) {

	var statuses []*HolderStatus
	err := s.db.WithContext(ctx).Where("raffle_id = ?", raffleID).Order("buyer").Find(&statuses).Error
	if err != nil {
		return nil, err
	}

	return statuses, nil
}

func (s *SqliteStorage) GetHolderStatusesByBuyers(ctx context.Context, raffleID string, buyers []string) ([]*HolderStatus, error) {

	var statuses []*HolderStatus
	tx := s.db.WithContext(ctx).Where("raffle_id = ? and buyer in ?", raffleID, buyers).Find(&statuses)
	if tx.Error != nil {
		return nil, tx.Error
	}

	return statuses, nil
}

func (s *SqliteStorage) UpdateHolderStatuses(ctx context.Context, statuses []*HolderStatus) error {
	logger.Debug("update holder statuses...")

	if len(statuses) == 0 {
		logger.Debug("no holder statuses to persist")
		return nil
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "raffle_id"}, {Name: "buyer"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"tickets",
			"spent",
			"refunded",
			"owed",
			"tokens_minted",
			"settled",
			"won",
			"last_sequence",
		}),
	}).CreateInBatches(statuses, 100).Error
	if err != nil {
		return err
	}

	logger.Debug("update holder statuses... done")
	return nil
}

var _ Storage = (*SqliteStorage)(nil)
