package persistence

import (
	"context"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCursorRepository implements delta.CursorRepository using GORM
type GormCursorRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormCursorRepository creates a new GormCursorRepository
func NewGormCursorRepository(db *gorm.DB) *GormCursorRepository {
	return &GormCursorRepository{db: db, now: time.Now}
}

// Get returns the cursor of (accountID, kind)
func (r *GormCursorRepository) Get(ctx context.Context, accountID uuid.UUID, kind delta.SyncKind) (*delta.SyncCursor, error) {
	var m models.SyncCursorModel
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND kind = ?", accountID, kind).
		First(&m).Error
	if err != nil {
		return nil, translate(err, "cursor", string(kind))
	}
	return m.ToDomain(), nil
}

// Advance upserts the cursor. The conflict update only fires when the
// stored value is older, so concurrent runs can never move it backwards.
func (r *GormCursorRepository) Advance(ctx context.Context, accountID uuid.UUID, kind delta.SyncKind, to time.Time) error {
	m := models.SyncCursorModel{
		AccountID:    accountID,
		Kind:         kind,
		LastSyncedAt: dbTime(to),
		UpdatedAt:    dbTime(r.now()),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "kind"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_synced_at", "updated_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "sync_cursors.last_synced_at < excluded.last_synced_at"},
			}},
		}).
		Create(&m).Error
}

var _ delta.CursorRepository = (*GormCursorRepository)(nil)
