package nwc

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// HTTP request signing: a kind 27235 event with the target URL and method in
// its tags, base64 encoded, carried in an Authorization header.

const (
	// AuthTokenScheme is the optional Authorization scheme prefix.
	AuthTokenScheme = "Nostr "

	// DefaultAuthTokenMaxAge bounds how old a token may be at validation.
	DefaultAuthTokenMaxAge = 60 * time.Second
)

// NewAuthToken signs an HTTP-auth token for the given absolute URL and
// method. When prefixed is true the "Nostr " scheme is prepended, ready for
// an Authorization header.
func NewAuthToken(privKeyBytes []byte, rawURL, method string, prefixed bool) (string, error) {
	pubKey, err := DerivePublicKey(privKeyBytes)
	if err != nil {
		return "", err
	}

	evt := &Event{
		PubKey:    hex.EncodeToString(pubKey),
		CreatedAt: time.Now().Unix(),
		Kind:      KindHTTPAuth,
		Tags: [][]string{
			{"u", rawURL},
			{"method", strings.ToUpper(method)},
		},
	}
	if err := evt.Sign(privKeyBytes); err != nil {
		return "", err
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return "", fmt.Errorf("marshal auth event: %v", err)
	}

	token := base64.StdEncoding.EncodeToString(payload)
	if prefixed {
		token = AuthTokenScheme + token
	}
	return token, nil
}

// ValidateAuthToken checks a token against the expected URL and method:
// strip the optional scheme, base64 decode, decode the event, check the
// kind, compare URL and method exactly, check the age bound and verify the
// signature. maxAge <= 0 uses DefaultAuthTokenMaxAge. The decoded event is
// returned so callers can identify the signer.
func ValidateAuthToken(token, rawURL, method string, maxAge time.Duration) (*Event, error) {
	if maxAge <= 0 {
		maxAge = DefaultAuthTokenMaxAge
	}
	token = strings.TrimPrefix(token, AuthTokenScheme)

	payload, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: not valid base64", ErrInvalidAuthToken)
	}

	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: not a valid event", ErrInvalidAuthToken)
	}

	if evt.Kind != KindHTTPAuth {
		return nil, fmt.Errorf("%w: wrong event kind %d", ErrInvalidAuthToken, evt.Kind)
	}
	if evt.TagValue("u") != rawURL {
		return nil, fmt.Errorf("%w: URL mismatch", ErrInvalidAuthToken)
	}
	if evt.TagValue("method") != strings.ToUpper(method) {
		return nil, fmt.Errorf("%w: method mismatch", ErrInvalidAuthToken)
	}
	if time.Now().Unix()-evt.CreatedAt > int64(maxAge/time.Second) {
		return nil, fmt.Errorf("%w: token expired", ErrInvalidAuthToken)
	}
	if !evt.Verify() {
		return nil, fmt.Errorf("%w: bad signature", ErrInvalidAuthToken)
	}

	return &evt, nil
}
