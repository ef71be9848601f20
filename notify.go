package nwc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// One-way notification emission: encrypt {type, data}, publish it as a kind
// 23196 event tagged to the counterpart, and return once the relay
// acknowledges it. No subscription, no correlation, no response.

// SendNotification publishes a notification event and waits for the relay OK.
func (s *Session) SendNotification(ctx context.Context, n Notification) error {
	if s.Limiter != nil {
		if err := s.Limiter.Allow(); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %v", err)
	}
	encrypted, err := EncryptNIP04(string(payload), s.nip04Key)
	if err != nil {
		return fmt.Errorf("encrypt notification: %w", err)
	}

	evt := &Event{
		PubKey:    s.pubHex,
		CreatedAt: time.Now().Unix(),
		Kind:      KindWalletNotification,
		Tags:      [][]string{{"p", s.cfg.WalletPubKey}},
		Content:   encrypted,
	}
	if err := evt.Sign(s.privKey); err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.Relay, nil)
	if err != nil {
		return fmt.Errorf("connect to relay %s: %w", s.cfg.Relay, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(eventFrame(evt)); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	s.logger().Debug("notification published", "event_id", evt.ID, "type", n.Type)

	return s.awaitAck(ctx, conn, evt.ID)
}

// awaitAck reads relay frames until the OK for eventID arrives, answering
// AUTH challenges along the way.
func (s *Session) awaitAck(ctx context.Context, conn *websocket.Conn, eventID string) error {
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
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
		}

		msg, err := parseRelayMessage(raw)
		if err != nil {
			continue
		}

		switch msg.Type {
		case "OK":
			if msg.EventID != eventID {
				continue
			}
			if !msg.Accepted {
				return fmt.Errorf("%w: %s", ErrPublishRejected, msg.Reason)
			}
			return nil
		case "AUTH":
			// Reuse the exchange machinery for the challenge response.
			x := s.newExchange()
			x.answerAuthChallenge(conn, msg.Challenge)
		case "NOTICE":
			s.logger().Debug("relay notice", "notice", msg.Reason)
		}
	}
}

// NotifyPaymentReceived sends a payment_received notification.
func (s *Session) NotifyPaymentReceived(ctx context.Context, p *PaymentNotification) error {
	return s.sendTyped(ctx, NotificationPaymentReceived, p)
}

// NotifyPaymentSent sends a payment_sent notification.
func (s *Session) NotifyPaymentSent(ctx context.Context, p *PaymentNotification) error {
	return s.sendTyped(ctx, NotificationPaymentSent, p)
}

// NotifyBalanceChanged sends a balance_changed notification with the new
// balance in millisatoshis.
func (s *Session) NotifyBalanceChanged(ctx context.Context, balance int64) error {
	return s.sendTyped(ctx, NotificationBalanceChanged, BalanceNotification{Balance: balance})
}

func (s *Session) sendTyped(ctx context.Context, typ NotificationType, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal notification data: %v", err)
	}
	return s.SendNotification(ctx, Notification{Type: typ, Data: raw})
}
