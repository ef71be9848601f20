package nwc

import (
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"
)

// Tip/zap request events (kind 9734). These share the event substrate with
// the wallet protocol but carry no encryption: the signed request travels to
// an LNURL endpoint as plain JSON and comes back inside payment receipts.

// ZapRequestOptions describes one zap request.
type ZapRequestOptions struct {
	RecipientPubKey string   // required, 64 hex chars
	AmountMsats     int64    // required, > 0
	EventID         string   // optional event being tipped
	EventKind       int      // optional kind of that event, 0 = omit
	Relays          []string // relays where the receipt should be published
	Comment         string   // optional comment, becomes the event content
}

// NewZapRequest builds and signs a kind 9734 event. The relays tag is
// omitted entirely when the list is empty; an empty tag carries no
// information for the receipt publisher.
func NewZapRequest(privKeyBytes []byte, opts ZapRequestOptions) (*Event, error) {
	if len(opts.RecipientPubKey) != 64 || !isHex(opts.RecipientPubKey) {
		return nil, ErrInvalidPublicKey
	}

	pubKey, err := DerivePublicKey(privKeyBytes)
	if err != nil {
		return nil, err
	}

	tags := [][]string{}
	if len(opts.Relays) > 0 {
		tags = append(tags, append([]string{"relays"}, opts.Relays...))
	}
	tags = append(tags,
		[]string{"amount", strconv.FormatInt(opts.AmountMsats, 10)},
		[]string{"p", opts.RecipientPubKey},
	)
	if opts.EventID != "" {
		tags = append(tags, []string{"e", opts.EventID})
		if opts.EventKind != 0 {
			tags = append(tags, []string{"k", strconv.Itoa(opts.EventKind)})
		}
	}

	evt := &Event{
		PubKey:    hex.EncodeToString(pubKey),
		CreatedAt: time.Now().Unix(),
		Kind:      KindZapRequest,
		Tags:      tags,
		Content:   opts.Comment,
	}
	if err := evt.Sign(privKeyBytes); err != nil {
		return nil, err
	}
	return evt, nil
}

// ZapRequestRelays returns the relay URLs of a zap request's relays tag, or
// nil when the tag is absent or empty.
func ZapRequestRelays(e *Event) []string {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == "relays" {
			return tag[1:]
		}
	}
	return nil
}

// ZapSenderFromDescription extracts the counterpart pubkey from a wallet
// transaction description that embeds a zap request. For outgoing payments
// that is the tipped recipient (p tag); for incoming ones it is the zap
// sender. The description is untrusted counterparty data: anything that is
// not a zap request carrying a well-formed 64-hex pubkey returns "".
func ZapSenderFromDescription(description, txType string) string {
	if description == "" {
		return ""
	}

	var zapRequest struct {
		Kind   int        `json:"kind"`
		PubKey string     `json:"pubkey"`
		Tags   [][]string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(description), &zapRequest); err != nil {
		return ""
	}
	if zapRequest.Kind != KindZapRequest {
		return ""
	}

	if txType == "outgoing" {
		for _, tag := range zapRequest.Tags {
			if len(tag) >= 2 && tag[0] == "p" && len(tag[1]) == 64 && isHex(tag[1]) {
				return tag[1]
			}
		}
		return ""
	}
	if len(zapRequest.PubKey) != 64 || !isHex(zapRequest.PubKey) {
		return ""
	}
	return zapRequest.PubKey
}
