package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"gorm.io/gorm"
)

// translate maps gorm errors onto domain sentinels, keeping the original
// error for anything else.
func translate(err error, kind string, key any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s %v", shared.ErrNotFound, kind, key)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %s %v", shared.ErrAlreadyExists, kind, key)
	default:
		return err
	}
}

// versionMismatch tells a missing row from a stale version after an
// optimistic update matched nothing.
func versionMismatch(db *gorm.DB, model any, kind string, id any) error {
	var count int64
	if err := db.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: %s %v", shared.ErrNotFound, kind, id)
	}
	return fmt.Errorf("%w: %s %v", shared.ErrConcurrencyConflict, kind, id)
}

// dbTime normalizes timestamps to what Postgres stores.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func dbTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := dbTime(*t)
	return &v
}
