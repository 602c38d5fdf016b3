package models

import (
	"encoding/json"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/account"
)

// AccountModel is the persistence model for the Account entity.
type AccountModel struct {
	BaseModel
	CoreAccountID       string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_accounts_core_account"`
	MarketplaceSellerID string     `gorm:"type:varchar(128);not null"`
	MarketplaceToken    string     `gorm:"type:text"`
	SettingsJSON        string     `gorm:"type:jsonb;column:settings"`
	Active              bool       `gorm:"not null;default:true;index"`
	LastActiveAt        *time.Time `gorm:""`
}

// TableName returns the table name for GORM
func (AccountModel) TableName() string {
	return "accounts"
}

// ToDomain converts the persistence model to a domain Account.
func (m *AccountModel) ToDomain() *account.Account {
	a := &account.Account{
		BaseEntity:          m.BaseModel.ToDomain(),
		CoreAccountID:       m.CoreAccountID,
		MarketplaceSellerID: m.MarketplaceSellerID,
		MarketplaceToken:    m.MarketplaceToken,
		Active:              m.Active,
		LastActiveAt:        m.LastActiveAt,
	}
	if m.SettingsJSON != "" {
		var s account.Settings
		if err := json.Unmarshal([]byte(m.SettingsJSON), &s); err == nil {
			a.Settings = s
		}
	}
	return a
}

// FromDomain populates the persistence model from a domain Account.
func (m *AccountModel) FromDomain(a *account.Account) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.CoreAccountID = a.CoreAccountID
	m.MarketplaceSellerID = a.MarketplaceSellerID
	m.MarketplaceToken = a.MarketplaceToken
	m.Active = a.Active
	m.LastActiveAt = a.LastActiveAt
	m.SettingsJSON = marshalJSON(a.Settings, "{}")
}

// AccountModelFromDomain creates a new persistence model from a domain Account.
func AccountModelFromDomain(a *account.Account) *AccountModel {
	m := &AccountModel{}
	m.FromDomain(a)
	return m
}

// marshalJSON encodes v for a jsonb column, falling back to empty on error.
func marshalJSON(v any, empty string) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return empty
	}
	return string(b)
}
