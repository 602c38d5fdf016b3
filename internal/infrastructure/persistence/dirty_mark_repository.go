package persistence

import (
	"context"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormDirtyMarkRepository implements listing.DirtyRepository using GORM
type GormDirtyMarkRepository struct {
	db *gorm.DB
}

// NewGormDirtyMarkRepository creates a new GormDirtyMarkRepository
func NewGormDirtyMarkRepository(db *gorm.DB) *GormDirtyMarkRepository {
	return &GormDirtyMarkRepository{db: db}
}

// Mark flags the entity, bumping MarkedAt when it is already flagged
func (r *GormDirtyMarkRepository) Mark(ctx context.Context, entityType string, entityID uuid.UUID, at time.Time) error {
	m := models.DirtyMarkModel{EntityType: entityType, EntityID: entityID, MarkedAt: dbTime(at)}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entity_type"}, {Name: "entity_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"marked_at"}),
		}).
		Create(&m).Error
}

// List returns the oldest marks first
func (r *GormDirtyMarkRepository) List(ctx context.Context, limit int) ([]listing.DirtyMark, error) {
	return r.find(r.db.WithContext(ctx).Order("marked_at"), limit)
}

// ListStuckItems returns marks older than cutoff whose item is in progress.
// Marks of items in other states never fill the batch.
func (r *GormDirtyMarkRepository) ListStuckItems(ctx context.Context, cutoff time.Time, limit int) ([]listing.DirtyMark, error) {
	query := r.db.WithContext(ctx).
		Select("dirty_marks.*").
		Joins("JOIN publishable_items ON publishable_items.id = dirty_marks.entity_id").
		Where("dirty_marks.entity_type = ? AND dirty_marks.marked_at < ? AND publishable_items.status = ?",
			listing.EntityTypeItem, dbTime(cutoff), listing.StatusInProgress.String()).
		Order("dirty_marks.marked_at")
	return r.find(query, limit)
}

func (r *GormDirtyMarkRepository) find(query *gorm.DB, limit int) ([]listing.DirtyMark, error) {
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.DirtyMarkModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]listing.DirtyMark, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

// Clear deletes the mark unless it was re-marked after markedAt
func (r *GormDirtyMarkRepository) Clear(ctx context.Context, entityType string, entityID uuid.UUID, markedAt time.Time) (bool, error) {
	db := r.db.WithContext(ctx)
	result := db.
		Where("entity_type = ? AND entity_id = ? AND marked_at = ?", entityType, entityID, dbTime(markedAt)).
		Delete(&models.DirtyMarkModel{})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}
	var remaining int64
	if err := db.Model(&models.DirtyMarkModel{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Count(&remaining).Error; err != nil {
		return false, err
	}
	return remaining == 0, nil
}

var _ listing.DirtyRepository = (*GormDirtyMarkRepository)(nil)
