// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
// - base.go: shared persistence fields (BaseModel, AggregateModel, AccountAggregateModel)
// - account.go: merchant accounts
// - listing.go: catalog products, publishable items and dirty marks
// - order.go: orders with line items and returns
// - sync.go: sync cursors and side-effect tasks
//
// JSON-shaped attributes are stored as jsonb text and decoded in ToDomain.
package models
