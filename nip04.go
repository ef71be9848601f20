package nwc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/btcsuite/btcd/btcec/v2"
)

// NIP-04 style envelope cipher: AES-256-CBC keyed by the ECDH shared secret,
// serialized as base64(ciphertext)?iv=base64(iv). This is the wire default
// for wallet requests because many wallet services never adopted NIP-44.

// SharedSecret computes the 32-byte ECDH shared secret between a local
// private key and a remote x-only public key. The result is the x coordinate
// of the scalar multiplication, left-padded to 32 bytes, so
// SharedSecret(aPriv, bPub) == SharedSecret(bPriv, aPub).
func SharedSecret(privKeyBytes, pubKeyBytes []byte) ([]byte, error) {
	if len(privKeyBytes) != 32 {
		return nil, ErrInvalidPrivateKey
	}
	privKey, _ := btcec.PrivKeyFromBytes(privKeyBytes)

	pubKey, err := parseXOnlyPubKey(pubKeyBytes)
	if err != nil {
		return nil, err
	}

	// X coordinate only, per RFC 5903 section 9. May come back short when
	// the coordinate has leading zero bytes.
	sharedX := btcec.GenerateSharedSecret(privKey, pubKey)
	if len(sharedX) < 32 {
		padded := make([]byte, 32)
		copy(padded[32-len(sharedX):], sharedX)
		return padded, nil
	}
	return sharedX, nil
}

// EncryptNIP04 encrypts a UTF-8 plaintext with AES-256-CBC under a fresh
// random 16-byte IV and returns the base64(ciphertext)?iv=base64(iv) wire
// string.
func EncryptNIP04(plaintext string, key []byte) (string, error) {
	if len(key) != 32 {
		return "", ErrInvalidKeyLength
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(ciphertext) + "?iv=" + base64.StdEncoding.EncodeToString(iv), nil
}

// DecryptNIP04 reverses EncryptNIP04. Every malformed-envelope shape is a
// distinct error so callers can tell framing failures from cipher failures.
func DecryptNIP04(payload string, key []byte) (string, error) {
	if len(key) != 32 {
		return "", ErrInvalidKeyLength
	}

	sections := strings.Split(payload, "?")
	switch {
	case len(sections) < 2:
		return "", ErrEnvelopeNoIV
	case len(sections) > 2:
		return "", ErrEnvelopeExtraSections
	}
	ivSection, ok := strings.CutPrefix(sections[1], "iv=")
	if !ok {
		return "", ErrEnvelopeBadPrefix
	}

	ciphertext, err := base64.StdEncoding.DecodeString(sections[0])
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %v", ErrEnvelopeBadBase64, err)
	}
	iv, err := base64.StdEncoding.DecodeString(ivSection)
	if err != nil {
		return "", fmt.Errorf("%w: iv: %v", ErrEnvelopeBadBase64, err)
	}
	if len(iv) != aes.BlockSize {
		return "", ErrEnvelopeBadIV
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrCiphertextLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plaintext) {
		return "", ErrInvalidUTF8
	}
	return string(plaintext), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrBadPadding
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, ErrBadPadding
	}
	for i := len(data) - padding; i < len(data); i++ {
		if data[i] != byte(padding) {
			return nil, ErrBadPadding
		}
	}
	return data[:len(data)-padding], nil
}
