package nwc

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

// NIP-44 version 2 payload encryption. Requests go out NIP-04 encrypted, but
// some wallet services answer (or expect notifications) in NIP-44, so the
// session keeps both keys around.

const (
	nip44Version     = 2
	nip44Salt        = "nip44-v2"
	minPlaintextSize = 1
	maxPlaintextSize = 65535
)

// ConversationKey derives the NIP-44 conversation key: HKDF-extract over the
// ECDH x coordinate with the fixed protocol salt. Symmetric in the same way
// SharedSecret is.
func ConversationKey(privKeyBytes, pubKeyBytes []byte) ([]byte, error) {
	if len(privKeyBytes) != 32 {
		return nil, ErrInvalidPrivateKey
	}
	privKey, _ := btcec.PrivKeyFromBytes(privKeyBytes)

	pubKey, err := parseXOnlyPubKey(pubKeyBytes)
	if err != nil {
		return nil, err
	}

	sharedX, _ := pubKey.ToECDSA().Curve.ScalarMult(pubKey.X(), pubKey.Y(), privKey.Serialize())
	sharedXBytes := make([]byte, 32)
	raw := sharedX.Bytes()
	copy(sharedXBytes[32-len(raw):], raw)

	return hkdf.Extract(sha256.New, sharedXBytes, []byte(nip44Salt)), nil
}

func nip44MessageKeys(conversationKey, nonce []byte) (chachaKey, chachaNonce, hmacKey []byte, err error) {
	if len(conversationKey) != 32 {
		return nil, nil, nil, ErrInvalidKeyLength
	}
	if len(nonce) != 32 {
		return nil, nil, nil, errors.New("nonce must be 32 bytes")
	}

	reader := hkdf.Expand(sha256.New, conversationKey, nonce)
	keys := make([]byte, 76)
	if _, err := reader.Read(keys); err != nil {
		return nil, nil, nil, err
	}
	return keys[0:32], keys[32:44], keys[44:76], nil
}

func nip44PaddedLen(unpaddedLen int) int {
	if unpaddedLen <= 32 {
		return 32
	}
	nextPower := 1 << int(math.Floor(math.Log2(float64(unpaddedLen-1)))+1)
	chunk := 32
	if nextPower > 256 {
		chunk = nextPower / 8
	}
	return chunk * (int(math.Floor(float64(unpaddedLen-1)/float64(chunk))) + 1)
}

func nip44Pad(plaintext []byte) ([]byte, error) {
	unpaddedLen := len(plaintext)
	if unpaddedLen < minPlaintextSize || unpaddedLen > maxPlaintextSize {
		return nil, errors.New("invalid plaintext length")
	}
	result := make([]byte, 2+nip44PaddedLen(unpaddedLen))
	binary.BigEndian.PutUint16(result[0:2], uint16(unpaddedLen))
	copy(result[2:], plaintext)
	return result, nil
}

func nip44Unpad(padded []byte) ([]byte, error) {
	if len(padded) < 2 {
		return nil, errors.New("padded data too short")
	}
	unpaddedLen := int(binary.BigEndian.Uint16(padded[0:2]))
	if unpaddedLen == 0 || unpaddedLen > len(padded)-2 {
		return nil, errors.New("invalid padding")
	}
	if len(padded) != 2+nip44PaddedLen(unpaddedLen) {
		return nil, errors.New("invalid padded length")
	}
	return padded[2 : 2+unpaddedLen], nil
}

func hmacWithAAD(key, message, aad []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(aad)
	h.Write(message)
	return h.Sum(nil)
}

// EncryptNIP44 encrypts plaintext under a random 32-byte nonce.
func EncryptNIP44(plaintext string, conversationKey []byte) (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return encryptNIP44WithNonce(plaintext, conversationKey, nonce)
}

func encryptNIP44WithNonce(plaintext string, conversationKey, nonce []byte) (string, error) {
	chachaKey, chachaNonce, hmacKey, err := nip44MessageKeys(conversationKey, nonce)
	if err != nil {
		return "", err
	}

	padded, err := nip44Pad([]byte(plaintext))
	if err != nil {
		return "", err
	}

	stream, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return "", err
	}
	ciphertext := make([]byte, len(padded))
	stream.XORKeyStream(ciphertext, padded)

	mac := hmacWithAAD(hmacKey, ciphertext, nonce)

	// version || nonce || ciphertext || mac
	result := make([]byte, 1+32+len(ciphertext)+32)
	result[0] = nip44Version
	copy(result[1:33], nonce)
	copy(result[33:33+len(ciphertext)], ciphertext)
	copy(result[33+len(ciphertext):], mac)

	return base64.StdEncoding.EncodeToString(result), nil
}

// DecryptNIP44 decrypts a NIP-44 v2 payload, verifying the MAC first.
func DecryptNIP44(payload string, conversationKey []byte) (string, error) {
	if len(payload) > 0 && payload[0] == '#' {
		return "", errors.New("unsupported encryption version")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEnvelopeBadBase64, err)
	}
	if len(data) < 99 || len(data) > 65603 {
		return "", errors.New("invalid payload size")
	}
	if data[0] != nip44Version {
		return "", errors.New("unknown version")
	}

	nonce := data[1:33]
	ciphertext := data[33 : len(data)-32]
	mac := data[len(data)-32:]

	chachaKey, chachaNonce, hmacKey, err := nip44MessageKeys(conversationKey, nonce)
	if err != nil {
		return "", err
	}

	if !hmac.Equal(hmacWithAAD(hmacKey, ciphertext, nonce), mac) {
		return "", errors.New("invalid MAC")
	}

	stream, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return "", err
	}
	padded := make([]byte, len(ciphertext))
	stream.XORKeyStream(padded, ciphertext)

	plaintext, err := nip44Unpad(padded)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
