package nwc

import (
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionDerivesIdentity(t *testing.T) {
	priv, pub := testKeypair(t)
	session, err := NewSessionFromConfig(&Config{
		WalletPubKey: testWalletPubKey,
		Relay:        testRelay,
		Secret:       hex.EncodeToString(priv),
	})
	require.NoError(t, err)

	assert.Equal(t, hex.EncodeToString(pub), session.PublicKey())
	assert.Equal(t, testWalletPubKey, session.WalletPubKey())
	assert.Equal(t, testRelay, session.Config().Relay)
}

func TestNewSessionFromConfigErrors(t *testing.T) {
	priv, _ := testKeypair(t)
	secret := hex.EncodeToString(priv)

	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{
			name: "secret not hex",
			cfg:  Config{WalletPubKey: testWalletPubKey, Relay: testRelay, Secret: "not-hex"},
			want: ErrInvalidSecret,
		},
		{
			name: "secret too short",
			cfg:  Config{WalletPubKey: testWalletPubKey, Relay: testRelay, Secret: "abcdef1234567890"},
			want: ErrInvalidSecret,
		},
		{
			name: "wallet key not hex",
			cfg:  Config{WalletPubKey: strings.Repeat("zz", 32), Relay: testRelay, Secret: secret},
			want: ErrInvalidWalletKey,
		},
		{
			name: "wallet key truncated",
			cfg:  Config{WalletPubKey: "d9fa34", Relay: testRelay, Secret: secret},
			want: ErrInvalidWalletKey,
		},
		{
			name: "relay not websocket",
			cfg:  Config{WalletPubKey: testWalletPubKey, Relay: "https://relay.example.com", Secret: secret},
			want: ErrInvalidRelayURL,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSessionFromConfig(&tt.cfg)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewSessionFromURI(t *testing.T) {
	uri := testConnectionURI(t)
	session, err := NewSession(uri)
	require.NoError(t, err)
	assert.Equal(t, testWalletPubKey, session.WalletPubKey())

	_, err = NewSession("wrong://scheme")
	require.Error(t, err)
}

func TestSessionTimeoutDefault(t *testing.T) {
	uri := testConnectionURI(t)
	session, err := NewSession(uri)
	require.NoError(t, err)

	assert.Equal(t, DefaultTimeout, session.timeout())
	session.Timeout = 3 * time.Second
	assert.Equal(t, 3*time.Second, session.timeout())
}

func TestSharedKeysSymmetric(t *testing.T) {
	// The wallet derives the same encryption keys from its own private key
	// and the session's public key.
	walletPriv, walletPub := testKeypair(t)
	sessionPriv, sessionPub := testKeypair(t)

	session, err := NewSessionFromConfig(&Config{
		WalletPubKey: hex.EncodeToString(walletPub),
		Relay:        testRelay,
		Secret:       hex.EncodeToString(sessionPriv),
	})
	require.NoError(t, err)

	walletNip04, err := SharedSecret(walletPriv, sessionPub)
	require.NoError(t, err)
	assert.Equal(t, walletNip04, session.nip04Key)

	walletConv, err := ConversationKey(walletPriv, sessionPub)
	require.NoError(t, err)
	assert.Equal(t, walletConv, session.convKey)
}
