package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Mossos12/AlemAuto/internal/backup"
	"github.com/Mossos12/AlemAuto/internal/model"
)

// GormStore persists vehicles in a relational database. It supports the
// per-record upsert capability (keyed by VIN), so single-record
// mutations never rewrite the whole set. Snapshots are JSON rows in the
// vehicle_snapshots table, one per pre-write state, never updated.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

// LoadAll returns the full set in insertion order.
func (s *GormStore) LoadAll(ctx context.Context) ([]model.Vehicle, error) {
	var vehicles []model.Vehicle
	err := s.db.WithContext(ctx).Order("added_at ASC, vin ASC").Find(&vehicles).Error
	if err != nil {
		return nil, persistErr("load vehicles", err)
	}
	return vehicles, nil
}

// WriteAll replaces the durable set in one transaction.
func (s *GormStore) WriteAll(ctx context.Context, vehicles []model.Vehicle) error {
	for i := range vehicles {
		if vehicles[i].ID == uuid.Nil {
			vehicles[i].ID = uuid.New()
		}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.Vehicle{}).Error; err != nil {
			return err
		}
		if len(vehicles) == 0 {
			return nil
		}
		return tx.Create(&vehicles).Error
	})
	if err != nil {
		return persistErr("replace vehicles", err)
	}
	return nil
}

// UpsertOne updates the row whose vin matches, or inserts a new one.
func (s *GormStore) UpsertOne(ctx context.Context, v model.Vehicle) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "vin"}},
		UpdateAll: true,
	}).Create(&v).Error
	if err != nil {
		return persistErr("upsert vehicle", err)
	}
	return nil
}

// Snapshot stores the pre-write state as one immutable JSON row.
func (s *GormStore) Snapshot(ctx context.Context, vehicles []model.Vehicle) (string, error) {
	payload, err := json.Marshal(vehicles)
	if err != nil {
		return "", persistErr("encode snapshot", err)
	}

	key := backup.UniqueKey(time.Now(), func(k string) bool {
		var n int64
		s.db.WithContext(ctx).Model(&model.VehicleSnapshot{}).Where("timestamp = ?", k).Count(&n)
		return n > 0
	})

	snap := model.VehicleSnapshot{Timestamp: key, Payload: string(payload)}
	if err := s.db.WithContext(ctx).Create(&snap).Error; err != nil {
		return "", persistErr("write snapshot", err)
	}
	return key, nil
}

var (
	_ Adapter  = (*GormStore)(nil)
	_ Upserter = (*GormStore)(nil)
)

var _ backup.Snapshotter = (*GormStore)(nil)
