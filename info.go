package nwc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// FetchServiceInfo retrieves the wallet's replaceable kind 13194 service
// info event from the relay and parses its plaintext JSON content. Unlike
// the RPC surface this needs no encryption; the event is public.
func (s *Session) FetchServiceInfo(ctx context.Context) (*ServiceInfo, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.Relay, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to relay %s: %w", s.cfg.Relay, err)
	}
	defer conn.Close()

	subID := newSubscriptionID("info")
	filter := Filter{
		Kinds:   []int{KindWalletInfo},
		Authors: []string{s.cfg.WalletPubKey},
		Limit:   1,
	}
	if err := conn.WriteJSON(reqFrame(subID, filter)); err != nil {
		return nil, fmt.Errorf("subscribe for service info: %w", err)
	}
	defer conn.WriteJSON(closeFrame(subID))

	deadline := time.Now().Add(s.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)

	// ReadMessage only notices the deadline; cancellation tears the
	// connection down so the read returns immediately.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
		}

		msg, err := parseRelayMessage(raw)
		if err != nil {
			continue
		}

		switch msg.Type {
		case "EVENT":
			evt := msg.Event
			if evt == nil || evt.Kind != KindWalletInfo || evt.PubKey != s.cfg.WalletPubKey {
				continue
			}
			if !evt.Verify() {
				s.logger().Debug("service info event has invalid signature", "event_id", evt.ID)
				continue
			}
			var info ServiceInfo
			if err := json.Unmarshal([]byte(evt.Content), &info); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadResult, err)
			}
			return &info, nil
		case "EOSE":
			if msg.SubID == subID {
				return nil, ErrNoServiceInfo
			}
		case "AUTH":
			x := s.newExchange()
			x.answerAuthChallenge(conn, msg.Challenge)
		case "CLOSED":
			if msg.SubID == subID {
				return nil, fmt.Errorf("%w: %s", ErrSubscriptionLost, msg.Reason)
			}
		}
	}
}
