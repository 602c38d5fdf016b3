package reconcile

import (
	"encoding/json"
	"errors"

	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
)

var errMissingID = errors.New("record has no id")

// DecodeProduct decodes a product delta record
func DecodeProduct(raw json.RawMessage) (delta.ProductDelta, error) {
	var d delta.ProductDelta
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, err
	}
	if d.RemoteID == "" {
		return d, errMissingID
	}
	if d.State == "" {
		d.State = delta.RecordStateUpdated
	}
	if d.State != delta.RecordStateUpdated && d.State != delta.RecordStateDeleted {
		return d, errors.New("unknown record state " + string(d.State))
	}
	return d, nil
}

// DecodeOrder decodes an order delta record
func DecodeOrder(raw json.RawMessage) (delta.OrderDelta, error) {
	var d delta.OrderDelta
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, err
	}
	if d.RemoteID == "" {
		return d, errMissingID
	}
	return d, nil
}

// DecodeReturn decodes a return delta record
func DecodeReturn(raw json.RawMessage) (delta.ReturnDelta, error) {
	var d delta.ReturnDelta
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, err
	}
	if d.RemoteID == "" || d.OrderRemoteID == "" {
		return d, errMissingID
	}
	return d, nil
}
