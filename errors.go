package nwc

import (
	"errors"
	"fmt"
)

// Connection URI errors.
var (
	ErrMalformedURI     = errors.New("malformed connection URI")
	ErrWrongScheme      = errors.New("connection URI scheme must be " + Scheme)
	ErrInvalidWalletKey = errors.New("wallet pubkey must be 64 hex characters")
	ErrMissingQuery     = errors.New("connection URI has no query section")
	ErrMissingRelay     = errors.New("connection URI must include relay parameter")
	ErrInvalidRelayURL  = errors.New("relay parameter is not a valid websocket URL")
	ErrMissingSecret    = errors.New("connection URI must include secret parameter")
)

// Key and cipher errors.
var (
	ErrInvalidPrivateKey = errors.New("invalid private key")
	ErrInvalidPublicKey  = errors.New("invalid public key")
	ErrInvalidSecret     = errors.New("secret must be 64 hex characters")
	ErrInvalidKeyLength  = errors.New("symmetric key must be 32 bytes")

	ErrEnvelopeNoIV          = errors.New("encrypted payload has no iv section")
	ErrEnvelopeExtraSections = errors.New("encrypted payload has more than one separator")
	ErrEnvelopeBadPrefix     = errors.New("encrypted payload iv section must start with iv=")
	ErrEnvelopeBadBase64     = errors.New("encrypted payload is not valid base64")
	ErrEnvelopeBadIV         = errors.New("iv must be 16 bytes")
	ErrCiphertextLength      = errors.New("ciphertext is not a multiple of the block size")
	ErrBadPadding            = errors.New("invalid block padding")
	ErrInvalidUTF8           = errors.New("decrypted payload is not valid UTF-8")
)

// Exchange errors.
var (
	ErrUnknownMethod    = errors.New("unknown wallet method")
	ErrTimeout          = errors.New("no wallet response before deadline")
	ErrConnectionClosed = errors.New("relay connection closed")
	ErrPublishRejected  = errors.New("relay rejected event")
	ErrSubscriptionLost = errors.New("relay closed subscription")
	ErrNoResult         = errors.New("wallet response carries neither result nor error")
	ErrBadResult        = errors.New("wallet result does not match method schema")
	ErrRateLimited      = errors.New("local rate limit exceeded")
	ErrNoServiceInfo    = errors.New("wallet service info not found")
)

// ErrInvalidAuthToken is wrapped by every HTTP-auth token validation failure.
var ErrInvalidAuthToken = errors.New("invalid auth token")

// RPCError is an error reported by the wallet service in a response envelope.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

// Error codes carried by wallet responses. The -32xxx block below -32600
// follows JSON-RPC; the -32000..-32016 block is protocol specific.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603

	CodeRateLimited                = -32000
	CodeNotFound                   = -32001
	CodeInsufficientBalance        = -32002
	CodeQuotaExceeded              = -32003
	CodeRestricted                 = -32004
	CodeRejected                   = -32005
	CodeUnsupportedMethod          = -32006
	CodeExpired                    = -32007
	CodeUnauthorized               = -32008
	CodeInvalidInvoice             = -32009
	CodePaymentFailed              = -32010
	CodePaymentTimeout             = -32011
	CodePaymentRouteNotFound       = -32012
	CodePaymentIncorrectDetails    = -32013
	CodePaymentInsufficientBalance = -32014
	CodePaymentServiceUnavailable  = -32015
	CodePaymentUnknown             = -32016
)

var codeMessages = map[int]string{
	CodeParseError:     "Parse error",
	CodeMethodNotFound: "Method not found",
	CodeInvalidParams:  "Invalid params",
	CodeInternal:       "Internal error",

	CodeRateLimited:                "Rate limited",
	CodeNotFound:                   "Not found",
	CodeInsufficientBalance:        "Insufficient balance",
	CodeQuotaExceeded:              "Quota exceeded",
	CodeRestricted:                 "Restricted",
	CodeRejected:                   "Rejected",
	CodeUnsupportedMethod:          "Unsupported method",
	CodeExpired:                    "Expired",
	CodeUnauthorized:               "Unauthorized",
	CodeInvalidInvoice:             "Invalid invoice",
	CodePaymentFailed:              "Payment failed",
	CodePaymentTimeout:             "Payment timed out",
	CodePaymentRouteNotFound:       "No payment route found",
	CodePaymentIncorrectDetails:    "Incorrect payment details",
	CodePaymentInsufficientBalance: "Insufficient balance for payment",
	CodePaymentServiceUnavailable:  "Payment service unavailable",
	CodePaymentUnknown:             "Unknown payment error",
}

// CodeMessage returns the fixed message string for a wallet error code.
// Unrecognized codes map to a generic message.
func CodeMessage(code int) string {
	if msg, ok := codeMessages[code]; ok {
		return msg
	}
	return "Unknown error"
}

// NewRPCError builds an RPCError with the fixed message for code.
func NewRPCError(code int) *RPCError {
	return &RPCError{Code: code, Message: CodeMessage(code)}
}
