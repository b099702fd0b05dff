package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType is returned when a message's Type field (or an
// Operation's Type field) does not match a recognized kind. Unknown
// kinds are rejected at this boundary, never propagated downstream.
var ErrUnknownType = errors.New("wire: unknown message type")

// Decode unmarshals one session message and dispatches it to its
// concrete typed value based on the envelope's Type field. The returned
// value is one of: SetSiteID, CrdtEvents, SitePresence, SiteDisconnected,
// Heartbit, CompactionRequired.
func Decode(data []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("wire: decode envelope: %w", err)
	}

	switch env.Type {
	case TypeSetSiteID:
		var m SetSiteID
		return m, unmarshalInto(data, &m)
	case TypeCrdtEvents:
		var m CrdtEvents
		return m, unmarshalInto(data, &m)
	case TypeSitePresence:
		var m SitePresence
		return m, unmarshalInto(data, &m)
	case TypeSiteDisconnected:
		var m SiteDisconnected
		return m, unmarshalInto(data, &m)
	case TypeHeartbit:
		var m Heartbit
		return m, unmarshalInto(data, &m)
	case TypeCompactionRequired:
		var m CompactionRequired
		return m, unmarshalInto(data, &m)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func unmarshalInto(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("wire: decode %T: %w", v, err)
	}
	return nil
}

// Encode marshals any wire message to its JSON form.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %T: %w", v, err)
	}
	return b, nil
}
