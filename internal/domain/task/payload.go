package task

// MarketplaceEventPayload carries the pickup event to emit
type MarketplaceEventPayload struct {
	Event string `json:"event"`
}

// RefundPayload names the return to refund
type RefundPayload struct {
	ReturnRemoteID string `json:"return_id"`
}

// StatePushPayload is used by the sweep when it finalizes a timed-out publish
type StatePushPayload struct {
	Reason string `json:"reason,omitempty"`
}
