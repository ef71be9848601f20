package nwc

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Event kinds used by the wallet protocol and its companions.
const (
	KindWalletInfo         = 13194 // replaceable service info, plaintext JSON
	KindWalletRequest      = 23194 // encrypted {method, params}
	KindWalletResponse     = 23195 // encrypted {result?, error?}
	KindWalletNotification = 23196 // encrypted {type, data}

	KindRelayAuth  = 22242 // NIP-42 relay AUTH challenge response
	KindHTTPAuth   = 27235 // HTTP request signing token
	KindZapRequest = 9734
	KindZapReceipt = 9735
)

// Event is a signed Nostr event (NIP-01).
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// ComputeID returns the sha256 of the canonical serialization
// [0, pubkey, created_at, kind, tags, content] as lowercase hex.
func (e *Event) ComputeID() string {
	serialized := fmt.Sprintf(`[0,"%s",%d,%d,%s,"%s"]`,
		e.PubKey,
		e.CreatedAt,
		e.Kind,
		mustJSON(e.Tags),
		escapeJSONString(e.Content),
	)
	hash := sha256.Sum256([]byte(serialized))
	return hex.EncodeToString(hash[:])
}

// Sign fills in ID and Sig using the given 32-byte private key. PubKey must
// already be set to the matching x-only key.
func (e *Event) Sign(privKeyBytes []byte) error {
	if len(privKeyBytes) != 32 {
		return ErrInvalidPrivateKey
	}
	privKey, _ := btcec.PrivKeyFromBytes(privKeyBytes)

	e.ID = e.ComputeID()
	idBytes, err := hex.DecodeString(e.ID)
	if err != nil {
		return fmt.Errorf("sign event: %v", err)
	}

	sig, err := schnorr.Sign(privKey, idBytes)
	if err != nil {
		return fmt.Errorf("sign event: %v", err)
	}
	e.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// Verify checks that ID matches the event content and that Sig is a valid
// schnorr signature over it by PubKey.
func (e *Event) Verify() bool {
	if e.ID != e.ComputeID() {
		return false
	}

	pubKeyBytes, err := hex.DecodeString(e.PubKey)
	if err != nil || len(pubKeyBytes) != 32 {
		return false
	}
	pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}

	idBytes, err := hex.DecodeString(e.ID)
	if err != nil {
		return false
	}
	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}

	return sig.Verify(idBytes, pubKey)
}

// TagValue returns the value of the first tag with the given name, or "".
func (e *Event) TagValue(name string) string {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

func mustJSON(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// escapeJSONString escapes s the way json.Marshal would, without the
// surrounding quotes.
func escapeJSONString(s string) string {
	b, err := json.Marshal(s)
	if err != nil || len(b) < 2 {
		return s
	}
	return string(b[1 : len(b)-1])
}
