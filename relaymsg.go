package nwc

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// NIP-01 client-side wire framing. Outgoing frames are plain JSON arrays;
// incoming frames are demultiplexed by their leading type string.

// Filter is a relay subscription filter.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Limit   int
	Since   *int64
	Until   *int64
	PTags   []string // #p recipient filter
	ETags   []string // #e reference filter
}

func (f Filter) encode() map[string]interface{} {
	m := map[string]interface{}{}
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	if f.Since != nil {
		m["since"] = *f.Since
	}
	if f.Until != nil {
		m["until"] = *f.Until
	}
	if len(f.PTags) > 0 {
		m["#p"] = f.PTags
	}
	if len(f.ETags) > 0 {
		m["#e"] = f.ETags
	}
	return m
}

func reqFrame(subID string, f Filter) []interface{} {
	return []interface{}{"REQ", subID, f.encode()}
}

func eventFrame(e *Event) []interface{} {
	return []interface{}{"EVENT", e}
}

func closeFrame(subID string) []interface{} {
	return []interface{}{"CLOSE", subID}
}

func authFrame(e *Event) []interface{} {
	return []interface{}{"AUTH", e}
}

// newSubscriptionID returns a fresh short subscription id.
func newSubscriptionID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

// relayMessage is one parsed incoming relay frame.
type relayMessage struct {
	Type      string
	SubID     string // EVENT, EOSE, CLOSED
	Event     *Event // EVENT
	EventID   string // OK
	Accepted  bool   // OK
	Reason    string // OK, CLOSED, NOTICE
	Challenge string // AUTH
}

var errShortFrame = errors.New("relay frame too short")

func parseRelayMessage(raw []byte) (*relayMessage, error) {
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, err
	}
	if len(frame) < 2 {
		return nil, errShortFrame
	}

	var msgType string
	if err := json.Unmarshal(frame[0], &msgType); err != nil {
		return nil, err
	}
	msg := &relayMessage{Type: msgType}

	switch msgType {
	case "EVENT":
		if len(frame) < 3 {
			return nil, errShortFrame
		}
		if err := json.Unmarshal(frame[1], &msg.SubID); err != nil {
			return nil, err
		}
		var evt Event
		if err := json.Unmarshal(frame[2], &evt); err != nil {
			return nil, err
		}
		msg.Event = &evt
	case "OK":
		if len(frame) < 3 {
			return nil, errShortFrame
		}
		if err := json.Unmarshal(frame[1], &msg.EventID); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(frame[2], &msg.Accepted); err != nil {
			return nil, err
		}
		if len(frame) >= 4 {
			_ = json.Unmarshal(frame[3], &msg.Reason)
		}
	case "EOSE":
		_ = json.Unmarshal(frame[1], &msg.SubID)
	case "CLOSED":
		_ = json.Unmarshal(frame[1], &msg.SubID)
		if len(frame) >= 3 {
			_ = json.Unmarshal(frame[2], &msg.Reason)
		}
	case "AUTH":
		_ = json.Unmarshal(frame[1], &msg.Challenge)
	case "NOTICE":
		_ = json.Unmarshal(frame[1], &msg.Reason)
	}

	return msg, nil
}
