package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/researchflow/types"
)

// checkpointRecord is the GORM row model for a checkpoint.
type checkpointRecord struct {
	StreamID       string    `gorm:"primaryKey;column:stream_id"`
	OwnerTag       string    `gorm:"column:owner_tag"`
	UnitsProcessed int       `gorm:"column:units_processed"`
	Results        []byte    `gorm:"column:results"`
	CallsMade      int       `gorm:"column:calls_made"`
	LastUnit       string    `gorm:"column:last_unit"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (checkpointRecord) TableName() string { return "stream_checkpoints" }

// GormStore persists checkpoints in a SQL database through GORM. The
// primary key on stream_id enforces the one-checkpoint-per-stream
// invariant at the storage layer.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore creates a GORM-backed checkpoint store and migrates its
// table.
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&checkpointRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate checkpoint table: %w", err)
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("store", "gorm_checkpoint")),
	}, nil
}

// NewSQLiteStore opens (or creates) a SQLite database at path and returns
// a checkpoint store on it. Uses the pure-Go driver, so no cgo is needed.
func NewSQLiteStore(path string, logger *zap.Logger) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return NewGormStore(db, logger)
}

// Save upserts the checkpoint row for the stream.
func (s *GormStore) Save(ctx context.Context, checkpoint *Checkpoint) error {
	record := checkpointRecord{
		StreamID:       checkpoint.StreamID,
		OwnerTag:       checkpoint.OwnerTag,
		UnitsProcessed: checkpoint.UnitsProcessed,
		Results:        checkpoint.Results,
		CallsMade:      checkpoint.CallsMade,
		LastUnit:       checkpoint.LastUnit,
		UpdatedAt:      checkpoint.UpdatedAt,
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stream_id"}},
			UpdateAll: true,
		}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	s.logger.Debug("checkpoint saved",
		zap.String("stream_id", checkpoint.StreamID),
		zap.Int("units_processed", checkpoint.UnitsProcessed))
	return nil
}

// Load reads the checkpoint row for the stream.
func (s *GormStore) Load(ctx context.Context, streamID string) (*Checkpoint, error) {
	var record checkpointRecord
	err := s.db.WithContext(ctx).
		Where("stream_id = ?", streamID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrCheckpointNotFound, "no checkpoint for stream "+streamID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	return &Checkpoint{
		StreamID:       record.StreamID,
		OwnerTag:       record.OwnerTag,
		UnitsProcessed: record.UnitsProcessed,
		Results:        record.Results,
		CallsMade:      record.CallsMade,
		LastUnit:       record.LastUnit,
		UpdatedAt:      record.UpdatedAt,
	}, nil
}

// Delete removes the checkpoint row if present.
func (s *GormStore) Delete(ctx context.Context, streamID string) error {
	return s.db.WithContext(ctx).
		Where("stream_id = ?", streamID).
		Delete(&checkpointRecord{}).Error
}

// Name identifies the backing store.
func (s *GormStore) Name() string { return "sqlite" }

// Compile-time interface check.
var _ Store = (*GormStore)(nil)
