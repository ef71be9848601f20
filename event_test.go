package nwc

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventComputeIDDeterministic(t *testing.T) {
	evt := &Event{
		PubKey:    testWalletPubKey,
		CreatedAt: 1700000000,
		Kind:      KindWalletRequest,
		Tags:      [][]string{{"p", testWalletPubKey}},
		Content:   `cipher "text" with quotes`,
	}

	first := evt.ComputeID()
	second := evt.ComputeID()
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)

	// Any field change moves the id.
	evt.CreatedAt++
	assert.NotEqual(t, first, evt.ComputeID())
}

func TestEventSignAndVerify(t *testing.T) {
	priv, pub := testKeypair(t)

	evt := &Event{
		PubKey:    hex.EncodeToString(pub),
		CreatedAt: 1700000000,
		Kind:      KindWalletResponse,
		Tags:      [][]string{{"p", testWalletPubKey}, {"e", "00ab"}},
		Content:   "payload",
	}
	require.NoError(t, evt.Sign(priv))
	require.NotEmpty(t, evt.ID)
	require.NotEmpty(t, evt.Sig)

	assert.True(t, evt.Verify())
}

func TestEventVerifyRejectsTampering(t *testing.T) {
	priv, pub := testKeypair(t)
	evt := &Event{
		PubKey:    hex.EncodeToString(pub),
		CreatedAt: 1700000000,
		Kind:      KindWalletResponse,
		Tags:      [][]string{},
		Content:   "payload",
	}
	require.NoError(t, evt.Sign(priv))

	tampered := *evt
	tampered.Content = "other payload"
	assert.False(t, tampered.Verify())

	// Signature from a different key over the same id.
	otherPriv, _ := testKeypair(t)
	resigned := *evt
	require.NoError(t, resigned.Sign(otherPriv))
	resigned.PubKey = evt.PubKey
	assert.False(t, resigned.Verify())
}

func TestEventSignRejectsBadKey(t *testing.T) {
	evt := &Event{PubKey: testWalletPubKey, Kind: KindWalletRequest, Tags: [][]string{}}
	require.ErrorIs(t, evt.Sign([]byte{1, 2, 3}), ErrInvalidPrivateKey)
}

func TestEventTagValue(t *testing.T) {
	evt := &Event{Tags: [][]string{{"p", "alpha"}, {"e", "beta"}, {"e", "gamma"}, {"short"}}}
	assert.Equal(t, "alpha", evt.TagValue("p"))
	assert.Equal(t, "beta", evt.TagValue("e"))
	assert.Equal(t, "", evt.TagValue("missing"))
}
