package listing

import "github.com/Inventorum/ebay-sub000/internal/domain/shared"

var (
	// ErrConcurrentPublishRejected is returned to the loser of a concurrent
	// publish of the same product. It is never retried.
	ErrConcurrentPublishRejected = shared.NewDomainError("CONCURRENT_PUBLISH_REJECTED", "another publish of this product is in progress")
	ErrInvalidTransition         = shared.NewDomainError("INVALID_PUBLISH_TRANSITION", "publish status transition not allowed")
	ErrNotPublished              = shared.NewDomainError("ITEM_NOT_PUBLISHED", "item is not published")
)
