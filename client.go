package nwc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultTimeout bounds one request/response exchange. Some wallets
	// never answer, so every exchange must have a deadline.
	DefaultTimeout = 15 * time.Second

	// responseWindow is how far back the response subscription reaches.
	// Anything older is a replay of a stale response and is filtered out
	// relay-side.
	responseWindow = 30 * time.Second
)

// exchangeState tracks one exchange through its lifecycle.
type exchangeState int32

const (
	stateIdle exchangeState = iota
	stateConnecting
	stateConnected
	statePublished
	stateSubscribed
	stateResolved
	stateFailed
	stateTimedOut
)

func (s exchangeState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case statePublished:
		return "published"
	case stateSubscribed:
		return "subscribed"
	case stateResolved:
		return "resolved"
	case stateFailed:
		return "failed"
	case stateTimedOut:
		return "timed out"
	}
	return "unknown"
}

// exchange runs a single request/response round trip. Each exchange owns its
// own relay connection and subscription; nothing is shared with concurrent
// exchanges except the session's read-only keys.
type exchange struct {
	cfg      *Config
	privKey  []byte
	pubHex   string
	nip04Key []byte
	convKey  []byte
	timeout  time.Duration
	log      *slog.Logger

	state atomic.Int32
	done  atomic.Bool
}

// outcome is the single terminal result of an exchange.
type outcome struct {
	resp *Response
	err  error
}

func (x *exchange) setState(s exchangeState) {
	x.state.Store(int32(s))
}

// complete is the at-most-one resolution guard. The first caller wins and
// owns delivery of the outcome; everyone else backs off.
func (x *exchange) complete(s exchangeState) bool {
	if !x.done.CompareAndSwap(false, true) {
		return false
	}
	x.setState(s)
	return true
}

// run drives the exchange state machine:
// idle -> connecting -> connected -> published -> subscribed -> terminal.
// The relay connection is torn down on every exit path.
func (x *exchange) run(ctx context.Context, req *Request) (*Response, error) {
	x.setState(stateConnecting)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, x.cfg.Relay, nil)
	if err != nil {
		x.complete(stateFailed)
		return nil, fmt.Errorf("connect to relay %s: %w", x.cfg.Relay, err)
	}
	defer conn.Close()
	x.setState(stateConnected)

	evt, err := x.buildRequestEvent(req)
	if err != nil {
		x.complete(stateFailed)
		return nil, err
	}
	if err := conn.WriteJSON(eventFrame(evt)); err != nil {
		x.complete(stateFailed)
		return nil, fmt.Errorf("publish request: %w", err)
	}
	x.setState(statePublished)
	x.log.Debug("request published", "event_id", evt.ID, "method", req.Method)

	// The request event id is the correlation id: the matching response
	// carries it in its e tag.
	subID := newSubscriptionID("nwc")
	since := time.Now().Add(-responseWindow).Unix()
	filter := Filter{
		Kinds:   []int{KindWalletResponse},
		Authors: []string{x.cfg.WalletPubKey},
		PTags:   []string{x.pubHex},
		ETags:   []string{evt.ID},
		Since:   &since,
	}
	if err := conn.WriteJSON(reqFrame(subID, filter)); err != nil {
		x.complete(stateFailed)
		return nil, fmt.Errorf("subscribe for response: %w", err)
	}
	x.setState(stateSubscribed)

	resultCh := make(chan outcome, 1)
	go x.readLoop(conn, subID, evt.ID, resultCh)

	timer := time.NewTimer(x.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		if x.complete(stateFailed) {
			return nil, fmt.Errorf("exchange cancelled: %w", ctx.Err())
		}
	case <-timer.C:
		if x.complete(stateTimedOut) {
			return nil, fmt.Errorf("%w (%s)", ErrTimeout, x.timeout)
		}
	case o := <-resultCh:
		return o.resp, o.err
	}

	// The reader resolved the exchange a moment before the timer or the
	// cancellation fired; its outcome is already buffered.
	o := <-resultCh
	return o.resp, o.err
}

// buildRequestEvent serializes, encrypts and signs the request.
func (x *exchange) buildRequestEvent(req *Request) (*Event, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %v", err)
	}
	encrypted, err := EncryptNIP04(string(payload), x.nip04Key)
	if err != nil {
		return nil, fmt.Errorf("encrypt request: %w", err)
	}

	evt := &Event{
		PubKey:    x.pubHex,
		CreatedAt: time.Now().Unix(),
		Kind:      KindWalletRequest,
		Tags:      [][]string{{"p", x.cfg.WalletPubKey}},
		Content:   encrypted,
	}
	if err := evt.Sign(x.privKey); err != nil {
		return nil, err
	}
	return evt, nil
}

// readLoop consumes relay frames until the exchange resolves or the
// connection dies. Terminal outcomes go through the completion guard; if the
// timer already won, nothing is delivered.
func (x *exchange) readLoop(conn *websocket.Conn, subID, correlationID string, resultCh chan<- outcome) {
	resolve := func(o outcome, s exchangeState) bool {
		if !x.complete(s) {
			return false
		}
		resultCh <- o
		return true
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			resolve(outcome{err: fmt.Errorf("%w: %v", ErrConnectionClosed, err)}, stateFailed)
			return
		}

		msg, err := parseRelayMessage(raw)
		if err != nil {
			x.log.Debug("unparseable relay frame", "error", err)
			continue
		}

		switch msg.Type {
		case "EVENT":
			resp, ok := x.candidateResponse(msg.Event, correlationID)
			if !ok {
				continue
			}
			// Matching correlation id: this exchange is over, whatever
			// the envelope says.
			if err := resp.Err(); err != nil {
				resolve(outcome{err: err}, stateFailed)
			} else {
				resolve(outcome{resp: resp}, stateResolved)
			}
			conn.WriteJSON(closeFrame(subID))
			return

		case "OK":
			if msg.EventID == correlationID && !msg.Accepted {
				resolve(outcome{err: fmt.Errorf("%w: %s", ErrPublishRejected, msg.Reason)}, stateFailed)
				return
			}

		case "CLOSED":
			if msg.SubID == subID {
				resolve(outcome{err: fmt.Errorf("%w: %s", ErrSubscriptionLost, msg.Reason)}, stateFailed)
				return
			}

		case "AUTH":
			x.answerAuthChallenge(conn, msg.Challenge)

		case "NOTICE":
			x.log.Debug("relay notice", "notice", msg.Reason)
		}
	}
}

// candidateResponse vets one delivered event. Authenticity is checked
// uniformly: wrong author, bad signature, undecryptable content, unparseable
// body and foreign correlation ids all discard the candidate without
// failing the exchange.
func (x *exchange) candidateResponse(evt *Event, correlationID string) (*Response, bool) {
	if evt == nil || evt.Kind != KindWalletResponse {
		return nil, false
	}
	if evt.PubKey != x.cfg.WalletPubKey {
		x.log.Debug("candidate not from wallet", "author", evt.PubKey)
		return nil, false
	}
	if !evt.Verify() {
		x.log.Debug("candidate has invalid signature", "event_id", evt.ID)
		return nil, false
	}
	if evt.TagValue("e") != correlationID {
		x.log.Debug("candidate for foreign exchange", "event_id", evt.ID)
		return nil, false
	}

	plaintext, err := DecryptNIP04(evt.Content, x.nip04Key)
	if err != nil {
		// Some wallets answer in NIP-44 even when the request was NIP-04.
		plaintext, err = DecryptNIP44(evt.Content, x.convKey)
		if err != nil {
			x.log.Debug("candidate failed to decrypt", "event_id", evt.ID, "error", err)
			return nil, false
		}
	}

	var resp Response
	if err := json.Unmarshal([]byte(plaintext), &resp); err != nil {
		x.log.Debug("candidate failed to parse", "event_id", evt.ID, "error", err)
		return nil, false
	}
	return &resp, true
}

// answerAuthChallenge responds to a NIP-42 AUTH challenge with a signed
// kind 22242 event.
func (x *exchange) answerAuthChallenge(conn *websocket.Conn, challenge string) {
	evt := &Event{
		PubKey:    x.pubHex,
		CreatedAt: time.Now().Unix(),
		Kind:      KindRelayAuth,
		Tags: [][]string{
			{"relay", x.cfg.Relay},
			{"challenge", challenge},
		},
	}
	if err := evt.Sign(x.privKey); err != nil {
		x.log.Error("sign AUTH response", "error", err)
		return
	}
	if err := conn.WriteJSON(authFrame(evt)); err != nil {
		x.log.Debug("send AUTH response", "error", err)
	}
}
