package persistence

import (
	"context"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/task"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTaskRepository implements task.Repository using GORM
type GormTaskRepository struct {
	db *gorm.DB
}

// NewGormTaskRepository creates a new GormTaskRepository
func NewGormTaskRepository(db *gorm.DB) *GormTaskRepository {
	return &GormTaskRepository{db: db}
}

// Enqueue inserts the task. A task whose idempotency key is already taken
// is dropped by ON CONFLICT DO NOTHING and Enqueue returns false.
func (r *GormTaskRepository) Enqueue(ctx context.Context, t *task.Task) (bool, error) {
	m := r.toModel(t)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(m)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ClaimDue leases due tasks. Rows locked by another worker are skipped, so
// concurrent workers never claim the same task.
func (r *GormTaskRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*task.Task, error) {
	now = dbTime(now)
	var claimed []*task.Task

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("(status = ? AND next_run_at <= ?) OR (status = ? AND locked_until < ?)",
				task.StatusPending, now, task.StatusProcessing, now).
			Order("next_run_at")
		if limit > 0 {
			query = query.Limit(limit)
		}
		var rows []models.TaskModel
		if err := query.Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(rows))
		for i := range rows {
			ids[i] = rows[i].ID
		}
		until := now.Add(lease)
		if err := tx.Model(&models.TaskModel{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":       task.StatusProcessing,
				"locked_until": until,
				"updated_at":   now,
			}).Error; err != nil {
			return err
		}

		claimed = make([]*task.Task, 0, len(rows))
		for i := range rows {
			t := rows[i].ToDomain()
			t.Claim(now, lease)
			claimed = append(claimed, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Update writes the mutable state of the task
func (r *GormTaskRepository) Update(ctx context.Context, t *task.Task) error {
	m := r.toModel(t)
	result := r.db.WithContext(ctx).
		Model(&models.TaskModel{}).
		Where("id = ?", t.ID).
		Updates(map[string]any{
			"stage":        m.Stage,
			"status":       m.Status,
			"attempt":      m.Attempt,
			"outcome":      m.Outcome,
			"last_error":   m.LastError,
			"next_run_at":  m.NextRunAt,
			"locked_until": m.LockedUntil,
			"updated_at":   m.UpdatedAt,
			"completed_at": m.CompletedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "task", t.ID)
	}
	return nil
}

// FindByID finds a task by its ID
func (r *GormTaskRepository) FindByID(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	var m models.TaskModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err, "task", id)
	}
	return m.ToDomain(), nil
}

// FindByEntity returns the tasks of an entity, oldest first
func (r *GormTaskRepository) FindByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*task.Task, error) {
	var rows []models.TaskModel
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*task.Task, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

// DeleteFinishedBefore removes done tasks completed before the cutoff.
// Dead tasks stay for inspection.
func (r *GormTaskRepository) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND completed_at < ?", task.StatusDone, dbTime(before)).
		Delete(&models.TaskModel{})
	return result.RowsAffected, result.Error
}

// CountByStatus returns the number of tasks per status
func (r *GormTaskRepository) CountByStatus(ctx context.Context) (map[task.Status]int64, error) {
	var rows []struct {
		Status task.Status
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.TaskModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[task.Status]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func (r *GormTaskRepository) toModel(t *task.Task) *models.TaskModel {
	m := models.TaskModelFromDomain(t)
	m.NextRunAt = dbTime(m.NextRunAt)
	m.LockedUntil = dbTimePtr(m.LockedUntil)
	m.CreatedAt = dbTime(m.CreatedAt)
	m.UpdatedAt = dbTime(m.UpdatedAt)
	m.CompletedAt = dbTimePtr(m.CompletedAt)
	return m
}

var _ task.Repository = (*GormTaskRepository)(nil)
