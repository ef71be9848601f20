package nwc

import (
	"github.com/btcsuite/btcd/btcec/v2"
)

// GeneratePrivateKey generates a new random secp256k1 private key.
func GeneratePrivateKey() ([]byte, error) {
	privKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return privKey.Serialize(), nil
}

// DerivePublicKey derives the x-only public key (32 bytes, BIP-340 form)
// from a 32-byte private key.
func DerivePublicKey(privKeyBytes []byte) ([]byte, error) {
	if len(privKeyBytes) != 32 {
		return nil, ErrInvalidPrivateKey
	}
	privKey, _ := btcec.PrivKeyFromBytes(privKeyBytes)
	return privKey.PubKey().SerializeCompressed()[1:], nil
}

// parseXOnlyPubKey lifts a 32-byte x-only public key to a curve point.
// The even-y compressed prefix is tried first, then the odd-y prefix.
func parseXOnlyPubKey(pubKeyBytes []byte) (*btcec.PublicKey, error) {
	if len(pubKeyBytes) != 32 {
		return nil, ErrInvalidPublicKey
	}
	withPrefix := append([]byte{0x02}, pubKeyBytes...)
	pubKey, err := btcec.ParsePubKey(withPrefix)
	if err != nil {
		withPrefix[0] = 0x03
		pubKey, err = btcec.ParsePubKey(withPrefix)
		if err != nil {
			return nil, ErrInvalidPublicKey
		}
	}
	return pubKey, nil
}
