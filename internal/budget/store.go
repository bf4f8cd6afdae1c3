package budget

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/relaymesh/aibroker/internal/models"
)

// UsageStore is the durable, append-only usage ledger. Records are never
// updated or deleted by the broker.
type UsageStore interface {
	Append(ctx context.Context, record *models.UsageRecord) error
	SumCostSince(ctx context.Context, userID uuid.UUID, since time.Time) (float64, error)
	DailyCosts(ctx context.Context, userID uuid.UUID, since time.Time) ([]models.DailyUsage, error)
	RecordsSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]models.UsageRecord, error)
}

// GormStore persists usage records in the relational database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates the usage_records table and its indexes.
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(&models.UsageRecord{})
}

func (s *GormStore) Append(ctx context.Context, record *models.UsageRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(record).Error
}

func (s *GormStore) SumCostSince(ctx context.Context, userID uuid.UUID, since time.Time) (float64, error) {
	var total float64
	err := s.db.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Select("COALESCE(SUM(cost), 0)").
		Scan(&total).Error
	return total, err
}

func (s *GormStore) DailyCosts(ctx context.Context, userID uuid.UUID, since time.Time) ([]models.DailyUsage, error) {
	var out []models.DailyUsage
	err := s.db.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Select("DATE(created_at) AS date, COALESCE(SUM(cost), 0) AS cost, COUNT(*) AS requests").
		Group("DATE(created_at)").
		Order("date").
		Scan(&out).Error
	return out, err
}

func (s *GormStore) RecordsSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]models.UsageRecord, error) {
	var out []models.UsageRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at").
		Find(&out).Error
	return out, err
}
