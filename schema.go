package nwc

import (
	"encoding/json"
	"fmt"
)

// Method identifies an operation in the wallet RPC surface. The set is
// closed; NewRequest rejects anything else.
type Method string

const (
	MethodGetInfo          Method = "get_info"
	MethodPayInvoice       Method = "pay_invoice"
	MethodGetBalance       Method = "get_balance"
	MethodMakeInvoice      Method = "make_invoice"
	MethodLookupInvoice    Method = "lookup_invoice"
	MethodListTransactions Method = "list_transactions"
)

// Methods lists every method a wallet can implement.
var Methods = []Method{
	MethodGetInfo,
	MethodPayInvoice,
	MethodGetBalance,
	MethodMakeInvoice,
	MethodLookupInvoice,
	MethodListTransactions,
}

// Valid reports whether m is part of the closed method set.
func (m Method) Valid() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

// Request is the plaintext body of a kind 23194 event.
type Request struct {
	Method Method      `json:"method"`
	Params interface{} `json:"params"`
}

// NewRequest builds a Request for a known method. Unknown methods are a
// construction-time error; build a Request literal directly if you need to
// speak to a wallet outside the closed set.
func NewRequest(method Method, params interface{}) (*Request, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	if params == nil {
		params = struct{}{}
	}
	return &Request{Method: method, Params: params}, nil
}

// Response is the decrypted body of a kind 23195 event. Exactly one of
// Result and Error is meaningful; both absent is a protocol error.
type Response struct {
	ResultType string          `json:"result_type,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *RPCError       `json:"error,omitempty"`
}

// Err returns the wallet-reported error, ErrNoResult when the envelope is
// empty, or nil when a result is present.
func (r *Response) Err() error {
	if r.Error != nil {
		return r.Error
	}
	if len(r.Result) == 0 || string(r.Result) == "null" {
		return ErrNoResult
	}
	return nil
}

// Method parameter shapes.

type PayInvoiceParams struct {
	Invoice string `json:"invoice"`
}

type MakeInvoiceParams struct {
	Amount      int64  `json:"amount"` // millisatoshis
	Description string `json:"description,omitempty"`
}

type LookupInvoiceParams struct {
	PaymentHash string `json:"payment_hash"`
}

// ListTransactionsParams are all optional; zero values are omitted from the
// wire form.
type ListTransactionsParams struct {
	From   int64  `json:"from,omitempty"`  // unix timestamp, inclusive
	Until  int64  `json:"until,omitempty"` // unix timestamp, inclusive
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Unpaid *bool  `json:"unpaid,omitempty"`
	Type   string `json:"type,omitempty"` // "incoming" or "outgoing"
}

// Method result shapes.

type GetInfoResult struct {
	Alias         string   `json:"alias"`
	Color         string   `json:"color"`
	PubKey        string   `json:"pubkey"`
	Network       string   `json:"network"`
	BlockHeight   int64    `json:"block_height"`
	BlockHash     string   `json:"block_hash"`
	Methods       []string `json:"methods"`
	Notifications []string `json:"notifications,omitempty"`
}

type PayInvoiceResult struct {
	Preimage string `json:"preimage"`
	FeesPaid int64  `json:"fees_paid,omitempty"` // millisatoshis
}

type BalanceResult struct {
	Balance int64 `json:"balance"` // millisatoshis
}

type MakeInvoiceResult struct {
	Invoice     string `json:"invoice"`
	PaymentHash string `json:"payment_hash"`
}

// Transaction is one entry of list_transactions, also the result shape of
// lookup_invoice. Optional fields default to their zero value when the
// wallet omits them: an absent amount is 0, an absent paid flag is false.
type Transaction struct {
	Type            string `json:"type"` // "incoming" or "outgoing"
	Invoice         string `json:"invoice,omitempty"`
	Description     string `json:"description,omitempty"`
	DescriptionHash string `json:"description_hash,omitempty"`
	Preimage        string `json:"preimage,omitempty"`
	PaymentHash     string `json:"payment_hash,omitempty"`
	Amount          int64  `json:"amount"`    // millisatoshis
	FeesPaid        int64  `json:"fees_paid"` // millisatoshis
	Paid            bool   `json:"paid"`
	CreatedAt       int64  `json:"created_at"`
	ExpiresAt       int64  `json:"expires_at,omitempty"`
	SettledAt       int64  `json:"settled_at,omitempty"`
}

type ListTransactionsResult struct {
	Transactions []Transaction `json:"transactions"`
}

// NotificationType identifies a one-way wallet notification.
type NotificationType string

const (
	NotificationPaymentReceived NotificationType = "payment_received"
	NotificationPaymentSent     NotificationType = "payment_sent"
	NotificationInvoicePaid     NotificationType = "invoice_paid"
	NotificationInvoiceExpired  NotificationType = "invoice_expired"
	NotificationBalanceChanged  NotificationType = "balance_changed"
)

// Notification is the plaintext body of a kind 23196 event.
type Notification struct {
	Type NotificationType `json:"type"`
	Data json.RawMessage  `json:"data"`
}

// PaymentNotification is the data payload for payment_received and
// payment_sent notifications.
type PaymentNotification struct {
	Amount      int64  `json:"amount"` // millisatoshis
	Description string `json:"description,omitempty"`
	PaymentHash string `json:"payment_hash,omitempty"`
	Preimage    string `json:"preimage,omitempty"`
	FeesPaid    int64  `json:"fees_paid,omitempty"`
	SettledAt   int64  `json:"settled_at,omitempty"`
}

// BalanceNotification is the data payload for balance_changed.
type BalanceNotification struct {
	Balance int64 `json:"balance"` // millisatoshis
}

// ServiceInfo is the plaintext JSON content of the wallet's replaceable
// kind 13194 event.
type ServiceInfo struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Icon             string   `json:"icon,omitempty"`
	Version          string   `json:"version"`
	SupportedMethods []string `json:"supported_methods"`
}
