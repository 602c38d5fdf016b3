package order

// Bit flags of the packed remote order state
const (
	FlagPending   uint = 1
	FlagPaid      uint = 2
	FlagShipped   uint = 4
	FlagDelivered uint = 8
	FlagClosed    uint = 16
	FlagCanceled  uint = 32
)

// FulfillmentMethod says how the buyer receives the goods
type FulfillmentMethod string

const (
	FulfillmentShipping FulfillmentMethod = "shipping"
	FulfillmentPickup   FulfillmentMethod = "pickup"
)

// IsValid returns true if the method is known
func (m FulfillmentMethod) IsValid() bool {
	return m == FulfillmentShipping || m == FulfillmentPickup
}

// ParseFulfillmentMethod maps a remote value to a method. Anything that is not
// pickup ships.
func ParseFulfillmentMethod(s string) FulfillmentMethod {
	if FulfillmentMethod(s) == FulfillmentPickup {
		return FulfillmentPickup
	}
	return FulfillmentShipping
}

// OrderStatus is one side's decoded view of an order. Core and marketplace
// each hold their own copy.
type OrderStatus struct {
	IsPaid      bool `json:"is_paid"`
	IsShipped   bool `json:"is_shipped"`
	IsDelivered bool `json:"is_delivered"`
	IsClosed    bool `json:"is_closed"`
	IsCanceled  bool `json:"is_canceled"`
}

// DecodeState turns packed flags into an OrderStatus. Delivery is inferred
// per fulfillment method: a closed pickup order was collected.
func DecodeState(bits uint, method FulfillmentMethod) OrderStatus {
	s := OrderStatus{
		IsPaid:     bits&FlagPaid != 0,
		IsShipped:  bits&FlagShipped != 0,
		IsClosed:   bits&FlagClosed != 0,
		IsCanceled: bits&FlagCanceled != 0,
	}
	if method == FulfillmentPickup {
		s.IsDelivered = bits&(FlagDelivered|FlagClosed) != 0
	} else {
		s.IsDelivered = bits&FlagDelivered != 0
	}
	return s
}

// Encode packs the status back into flags. PENDING is set when no other flag is.
func (s OrderStatus) Encode() uint {
	var bits uint
	if s.IsPaid {
		bits |= FlagPaid
	}
	if s.IsShipped {
		bits |= FlagShipped
	}
	if s.IsDelivered {
		bits |= FlagDelivered
	}
	if s.IsClosed {
		bits |= FlagClosed
	}
	if s.IsCanceled {
		bits |= FlagCanceled
	}
	if bits == 0 {
		bits = FlagPending
	}
	return bits
}

// StatusChange is the before/after pair of one side's status
type StatusChange struct {
	Old    OrderStatus
	New    OrderStatus
	Method FulfillmentMethod
}

// Changed returns true if any flag differs
func (c StatusChange) Changed() bool {
	return c.Old != c.New
}

// PaidOrShippedChanged returns true if paid or shipped flipped in either direction
func (c StatusChange) PaidOrShippedChanged() bool {
	return c.Old.IsPaid != c.New.IsPaid || c.Old.IsShipped != c.New.IsShipped
}

// PickupEvent is a buyer-facing event for pickup orders
type PickupEvent string

const (
	PickupReadyForPickup PickupEvent = "READY_FOR_PICKUP"
	PickupPickedUp       PickupEvent = "PICKED_UP"
	PickupCanceled       PickupEvent = "CANCELED"
)

// PickupEvents returns the events raised by false to true flips. Non-pickup
// orders never raise any.
func (c StatusChange) PickupEvents() []PickupEvent {
	if c.Method != FulfillmentPickup {
		return nil
	}
	var events []PickupEvent
	if !c.Old.IsShipped && c.New.IsShipped {
		events = append(events, PickupReadyForPickup)
	}
	if !c.Old.IsDelivered && c.New.IsDelivered {
		events = append(events, PickupPickedUp)
	}
	if !c.Old.IsCanceled && c.New.IsCanceled {
		events = append(events, PickupCanceled)
	}
	return events
}
