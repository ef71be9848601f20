// Package nwc implements a client for the Nostr Wallet Connect protocol:
// encrypted JSON-RPC style requests and responses exchanged as signed events
// over a relay, correlated by event id.
package nwc

import (
	"fmt"
	"net/url"
	"strings"
)

// Scheme is the connection URI scheme.
const Scheme = "nostr+walletconnect"

// Config holds the wallet connection parameters extracted from a connection
// URI. It is a plain value: the secret stays opaque here and is only decoded
// into a session key by NewSessionFromConfig.
type Config struct {
	WalletPubKey string // wallet's public key, 64 hex characters
	Relay        string // relay URL for communication
	Secret       string // client secret, opaque until session construction
}

// NewConfig builds a Config from its parts. No validation is performed on
// this path; String reproduces the canonical URI by concatenation.
func NewConfig(walletPubKey, relay, secret string) *Config {
	return &Config{WalletPubKey: walletPubKey, Relay: relay, Secret: secret}
}

// ParseConnectionURI parses a nostr+walletconnect:// URI.
// Format: nostr+walletconnect://<wallet-pubkey>?relay=<wss://...>&secret=<secret>
func ParseConnectionURI(raw string) (*Config, error) {
	idx := strings.Index(raw, "://")
	if idx < 0 {
		return nil, ErrMalformedURI
	}
	if raw[:idx] != Scheme {
		return nil, ErrWrongScheme
	}
	rest := raw[idx+3:]

	q := strings.Index(rest, "?")
	if q < 0 {
		return nil, ErrMissingQuery
	}

	walletPubKey := rest[:q]
	if len(walletPubKey) != 64 || !isHex(walletPubKey) {
		return nil, ErrInvalidWalletKey
	}

	values, err := url.ParseQuery(rest[q+1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURI, err)
	}

	relay := values.Get("relay")
	if relay == "" {
		return nil, ErrMissingRelay
	}
	if err := validateRelayURL(relay); err != nil {
		return nil, err
	}

	secret := values.Get("secret")
	if secret == "" {
		return nil, ErrMissingSecret
	}

	return &Config{WalletPubKey: walletPubKey, Relay: relay, Secret: secret}, nil
}

// String returns the canonical connection URI.
func (c *Config) String() string {
	return Scheme + "://" + c.WalletPubKey + "?relay=" + c.Relay + "&secret=" + c.Secret
}

func validateRelayURL(relay string) error {
	u, err := url.Parse(relay)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRelayURL, err)
	}
	if (u.Scheme != "wss" && u.Scheme != "ws") || u.Host == "" {
		return ErrInvalidRelayURL
	}
	return nil
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
