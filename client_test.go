package nwc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{}

// fakeWallet plays the wallet side of the protocol over an in-process relay.
type fakeWallet struct {
	privKey []byte
	pubHex  string
}

func newFakeWallet(t *testing.T) *fakeWallet {
	t.Helper()
	privKey, err := GeneratePrivateKey()
	require.NoError(t, err)
	pubKey, err := DerivePublicKey(privKey)
	require.NoError(t, err)
	return &fakeWallet{privKey: privKey, pubHex: hex.EncodeToString(pubKey)}
}

// response builds a signed, NIP-04 encrypted kind 23195 event answering
// reqEvt. correlationID normally equals reqEvt.ID; tests pass something else
// to simulate a response for a different exchange.
func (w *fakeWallet) response(reqEvt *Event, correlationID, body string) *Event {
	clientPub, _ := hex.DecodeString(reqEvt.PubKey)
	key, _ := SharedSecret(w.privKey, clientPub)
	content, _ := EncryptNIP04(body, key)

	evt := &Event{
		PubKey:    w.pubHex,
		CreatedAt: time.Now().Unix(),
		Kind:      KindWalletResponse,
		Tags:      [][]string{{"p", reqEvt.PubKey}, {"e", correlationID}},
		Content:   content,
	}
	evt.Sign(w.privKey)
	return evt
}

// serve runs a relay that accepts the published request, acknowledges it,
// and hands the request event and subscription id to handle once the client
// subscribes. handle sends whatever response frames the test wants.
func (w *fakeWallet) serve(t *testing.T, handle func(conn *websocket.Conn, reqEvt *Event, subID string)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var reqEvt *Event
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame []json.RawMessage
			if json.Unmarshal(raw, &frame) != nil || len(frame) < 2 {
				continue
			}
			var frameType string
			if json.Unmarshal(frame[0], &frameType) != nil {
				continue
			}

			switch frameType {
			case "EVENT":
				var evt Event
				if json.Unmarshal(frame[1], &evt) != nil {
					continue
				}
				reqEvt = &evt
				conn.WriteJSON([]interface{}{"OK", evt.ID, true, ""})
			case "REQ":
				var subID string
				json.Unmarshal(frame[1], &subID)
				if reqEvt != nil && handle != nil {
					handle(conn, reqEvt, subID)
				}
			case "CLOSE":
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestSession(t *testing.T, wallet *fakeWallet, relayURL string) *Session {
	t.Helper()
	privKey, err := GeneratePrivateKey()
	require.NoError(t, err)

	session, err := NewSessionFromConfig(&Config{
		WalletPubKey: wallet.pubHex,
		Relay:        relayURL,
		Secret:       hex.EncodeToString(privKey),
	})
	require.NoError(t, err)
	session.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return session
}

func TestExchangeSuccess(t *testing.T) {
	wallet := newFakeWallet(t)
	relayURL := wallet.serve(t, func(conn *websocket.Conn, reqEvt *Event, subID string) {
		body := `{"result_type":"pay_invoice","result":{"preimage":"abc"}}`
		conn.WriteJSON([]interface{}{"EVENT", subID, wallet.response(reqEvt, reqEvt.ID, body)})
	})
	session := newTestSession(t, wallet, relayURL)

	result, err := session.PayInvoice(context.Background(), "lnbc1abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", result.Preimage)
}

func TestExchangeWalletError(t *testing.T) {
	wallet := newFakeWallet(t)
	relayURL := wallet.serve(t, func(conn *websocket.Conn, reqEvt *Event, subID string) {
		body := `{"error":{"code":-32601,"message":"Method not found"}}`
		conn.WriteJSON([]interface{}{"EVENT", subID, wallet.response(reqEvt, reqEvt.ID, body)})
	})
	session := newTestSession(t, wallet, relayURL)

	_, err := session.GetBalance(context.Background())
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)
	assert.Equal(t, "Method not found", rpcErr.Message)
}

func TestExchangeRequestIsEncrypted(t *testing.T) {
	wallet := newFakeWallet(t)
	relayURL := wallet.serve(t, func(conn *websocket.Conn, reqEvt *Event, subID string) {
		// The published event must be a p-tagged kind 23194 whose content
		// decrypts to the request body; plaintext never touches the wire.
		assert.Equal(t, KindWalletRequest, reqEvt.Kind)
		assert.Equal(t, wallet.pubHex, reqEvt.TagValue("p"))
		assert.True(t, reqEvt.Verify())
		assert.NotContains(t, reqEvt.Content, "get_balance")

		clientPub, _ := hex.DecodeString(reqEvt.PubKey)
		key, _ := SharedSecret(wallet.privKey, clientPub)
		plaintext, err := DecryptNIP04(reqEvt.Content, key)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"method":"get_balance","params":{}}`, plaintext)

		body := `{"result_type":"get_balance","result":{"balance":21000}}`
		conn.WriteJSON([]interface{}{"EVENT", subID, wallet.response(reqEvt, reqEvt.ID, body)})
	})
	session := newTestSession(t, wallet, relayURL)

	result, err := session.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(21000), result.Balance)
}

func TestExchangeIgnoresForeignCorrelation(t *testing.T) {
	wallet := newFakeWallet(t)
	relayURL := wallet.serve(t, func(conn *websocket.Conn, reqEvt *Event, subID string) {
		// A response for some other exchange, then the real one. The first
		// must be discarded without failing the exchange.
		foreign := strings.Repeat("ab", 32)
		conn.WriteJSON([]interface{}{"EVENT", subID, wallet.response(reqEvt, foreign, `{"error":{"code":-32603,"message":"Internal error"}}`)})
		conn.WriteJSON([]interface{}{"EVENT", subID, wallet.response(reqEvt, reqEvt.ID, `{"result_type":"get_balance","result":{"balance":5}}`)})
	})
	session := newTestSession(t, wallet, relayURL)

	result, err := session.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Balance)
}

func TestExchangeIgnoresForgedCandidates(t *testing.T) {
	wallet := newFakeWallet(t)
	intruder := newFakeWallet(t)
	relayURL := wallet.serve(t, func(conn *websocket.Conn, reqEvt *Event, subID string) {
		// Wrong author: correctly formed but not signed by the wallet key.
		forged := intruder.response(reqEvt, reqEvt.ID, `{"result_type":"get_balance","result":{"balance":1}}`)
		conn.WriteJSON([]interface{}{"EVENT", subID, forged})

		// Right author, tampered signature.
		tampered := wallet.response(reqEvt, reqEvt.ID, `{"result_type":"get_balance","result":{"balance":2}}`)
		tampered.Sig = strings.Repeat("00", 64)
		conn.WriteJSON([]interface{}{"EVENT", subID, tampered})

		conn.WriteJSON([]interface{}{"EVENT", subID, wallet.response(reqEvt, reqEvt.ID, `{"result_type":"get_balance","result":{"balance":3}}`)})
	})
	session := newTestSession(t, wallet, relayURL)

	result, err := session.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Balance)
}

func TestExchangeAcceptsChaChaResponse(t *testing.T) {
	wallet := newFakeWallet(t)
	relayURL := wallet.serve(t, func(conn *websocket.Conn, reqEvt *Event, subID string) {
		// Some wallets answer with the newer cipher regardless of how the
		// request was encrypted.
		clientPub, _ := hex.DecodeString(reqEvt.PubKey)
		convKey, _ := ConversationKey(wallet.privKey, clientPub)
		content, _ := EncryptNIP44(`{"result_type":"get_balance","result":{"balance":7}}`, convKey)

		evt := &Event{
			PubKey:    wallet.pubHex,
			CreatedAt: time.Now().Unix(),
			Kind:      KindWalletResponse,
			Tags:      [][]string{{"p", reqEvt.PubKey}, {"e", reqEvt.ID}},
			Content:   content,
		}
		evt.Sign(wallet.privKey)
		conn.WriteJSON([]interface{}{"EVENT", subID, evt})
	})
	session := newTestSession(t, wallet, relayURL)

	result, err := session.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.Balance)
}

func TestExchangeTimeout(t *testing.T) {
	wallet := newFakeWallet(t)
	relayURL := wallet.serve(t, nil) // accepts the request, never answers
	session := newTestSession(t, wallet, relayURL)
	session.Timeout = 200 * time.Millisecond

	start := time.Now()
	_, err := session.GetBalance(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExchangeLateResponseRace(t *testing.T) {
	wallet := newFakeWallet(t)
	relayURL := wallet.serve(t, func(conn *websocket.Conn, reqEvt *Event, subID string) {
		// Land the response right around the exchange deadline so the
		// reader and the timer race for the completion guard.
		time.Sleep(40 * time.Millisecond)
		body := `{"result_type":"get_balance","result":{"balance":11}}`
		conn.WriteJSON([]interface{}{"EVENT", subID, wallet.response(reqEvt, reqEvt.ID, body)})
	})
	session := newTestSession(t, wallet, relayURL)
	session.Timeout = 40 * time.Millisecond

	for i := 0; i < 20; i++ {
		var result *BalanceResult
		var err error
		done := make(chan struct{})
		go func() {
			result, err = session.GetBalance(context.Background())
			close(done)
		}()

		// Whichever side wins, the call settles on exactly one outcome
		// and never hangs.
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("exchange neither resolved nor timed out")
		}
		if err != nil {
			require.ErrorIs(t, err, ErrTimeout)
			assert.Nil(t, result)
		} else {
			require.NotNil(t, result)
			assert.Equal(t, int64(11), result.Balance)
		}
	}
}

func TestExchangeContextCancel(t *testing.T) {
	wallet := newFakeWallet(t)
	relayURL := wallet.serve(t, nil)
	session := newTestSession(t, wallet, relayURL)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := session.GetBalance(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExchangePublishRejected(t *testing.T) {
	wallet := newFakeWallet(t)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame []json.RawMessage
			if json.Unmarshal(raw, &frame) != nil || len(frame) < 2 {
				continue
			}
			var frameType string
			json.Unmarshal(frame[0], &frameType)
			if frameType == "EVENT" {
				var evt Event
				if json.Unmarshal(frame[1], &evt) != nil {
					continue
				}
				conn.WriteJSON([]interface{}{"OK", evt.ID, false, "blocked: not on allowlist"})
			}
		}
	}))
	t.Cleanup(srv.Close)

	session := newTestSession(t, wallet, "ws"+strings.TrimPrefix(srv.URL, "http"))
	_, err := session.GetBalance(context.Background())
	require.ErrorIs(t, err, ErrPublishRejected)
	assert.Contains(t, err.Error(), "allowlist")
}

func TestExchangeSubscriptionClosed(t *testing.T) {
	wallet := newFakeWallet(t)
	relayURL := wallet.serve(t, func(conn *websocket.Conn, reqEvt *Event, subID string) {
		conn.WriteJSON([]interface{}{"CLOSED", subID, "rate-limited: slow down"})
	})
	session := newTestSession(t, wallet, relayURL)

	_, err := session.GetBalance(context.Background())
	require.ErrorIs(t, err, ErrSubscriptionLost)
}

func TestExchangeEmptyEnvelope(t *testing.T) {
	wallet := newFakeWallet(t)
	relayURL := wallet.serve(t, func(conn *websocket.Conn, reqEvt *Event, subID string) {
		conn.WriteJSON([]interface{}{"EVENT", subID, wallet.response(reqEvt, reqEvt.ID, `{}`)})
	})
	session := newTestSession(t, wallet, relayURL)

	_, err := session.GetBalance(context.Background())
	require.ErrorIs(t, err, ErrNoResult)
}

func TestExchangeResultTypeMismatch(t *testing.T) {
	wallet := newFakeWallet(t)
	relayURL := wallet.serve(t, func(conn *websocket.Conn, reqEvt *Event, subID string) {
		body := `{"result_type":"pay_invoice","result":{"preimage":"abc"}}`
		conn.WriteJSON([]interface{}{"EVENT", subID, wallet.response(reqEvt, reqEvt.ID, body)})
	})
	session := newTestSession(t, wallet, relayURL)

	_, err := session.GetBalance(context.Background())
	require.ErrorIs(t, err, ErrBadResult)
}

func TestExchangeRelayUnreachable(t *testing.T) {
	wallet := newFakeWallet(t)
	session := newTestSession(t, wallet, "ws://127.0.0.1:1") // nothing listens here

	_, err := session.GetBalance(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to relay")
}
