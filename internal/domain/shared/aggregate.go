package shared

import (
	"github.com/google/uuid"
)

// BaseAggregateRoot adds the optimistic locking version. Repositories
// compare it on save and bump it afterwards.
type BaseAggregateRoot struct {
	BaseEntity
	Version int
}

// IncrementVersion is called by repositories after a successful save
func (a *BaseAggregateRoot) IncrementVersion() {
	a.Version++
}

// AccountAggregateRoot is an aggregate owned by one account. Every synced
// entity belongs to exactly one account.
type AccountAggregateRoot struct {
	BaseAggregateRoot
	AccountID uuid.UUID
}

// NewAccountAggregateRoot starts a version 1 aggregate for accountID
func NewAccountAggregateRoot(accountID uuid.UUID) AccountAggregateRoot {
	return AccountAggregateRoot{
		BaseAggregateRoot: BaseAggregateRoot{BaseEntity: NewBaseEntity(), Version: 1},
		AccountID:         accountID,
	}
}

// BelongsTo returns true if the aggregate is owned by the account
func (a *AccountAggregateRoot) BelongsTo(accountID uuid.UUID) bool {
	return a.AccountID == accountID
}
