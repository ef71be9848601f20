package nwc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Session is the client side of one wallet connection. It owns the keys
// derived from the connection secret; everything else is per-call. Sessions
// are safe for concurrent use: concurrent calls run independent exchanges
// over independent relay connections.
type Session struct {
	cfg          *Config
	privKey      []byte
	pubKey       []byte
	pubHex       string
	walletPubKey []byte
	nip04Key     []byte
	convKey      []byte

	// Timeout bounds each exchange. Zero means DefaultTimeout.
	Timeout time.Duration

	// Limiter, when set, gates every outgoing request and notification.
	// It is policy only; exchange correctness never depends on it.
	Limiter *RateLimiter

	// Logger for protocol-level debugging. Defaults to slog.Default.
	Logger *slog.Logger
}

// NewSession parses a connection URI and derives the session identity.
func NewSession(uri string) (*Session, error) {
	cfg, err := ParseConnectionURI(uri)
	if err != nil {
		return nil, err
	}
	return NewSessionFromConfig(cfg)
}

// NewSessionFromConfig derives the session identity from a Config. The
// secret bytes are the session private key; all derivation failures surface
// here, before any network activity.
func NewSessionFromConfig(cfg *Config) (*Session, error) {
	privKey, err := hex.DecodeString(cfg.Secret)
	if err != nil || len(privKey) != 32 {
		return nil, ErrInvalidSecret
	}

	walletPubKey, err := hex.DecodeString(cfg.WalletPubKey)
	if err != nil || len(walletPubKey) != 32 {
		return nil, ErrInvalidWalletKey
	}

	if err := validateRelayURL(cfg.Relay); err != nil {
		return nil, err
	}

	pubKey, err := DerivePublicKey(privKey)
	if err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}

	nip04Key, err := SharedSecret(privKey, walletPubKey)
	if err != nil {
		return nil, fmt.Errorf("derive shared secret: %w", err)
	}

	convKey, err := ConversationKey(privKey, walletPubKey)
	if err != nil {
		return nil, fmt.Errorf("derive conversation key: %w", err)
	}

	return &Session{
		cfg:          cfg,
		privKey:      privKey,
		pubKey:       pubKey,
		pubHex:       hex.EncodeToString(pubKey),
		walletPubKey: walletPubKey,
		nip04Key:     nip04Key,
		convKey:      convKey,
	}, nil
}

// Config returns the connection parameters the session was built from.
func (s *Session) Config() *Config { return s.cfg }

// PublicKey returns the session's derived x-only public key as hex.
func (s *Session) PublicKey() string { return s.pubHex }

// WalletPubKey returns the wallet's public key as hex.
func (s *Session) WalletPubKey() string { return s.cfg.WalletPubKey }

func (s *Session) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultTimeout
}

func (s *Session) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Session) newExchange() *exchange {
	return &exchange{
		cfg:      s.cfg,
		privKey:  s.privKey,
		pubHex:   s.pubHex,
		nip04Key: s.nip04Key,
		convKey:  s.convKey,
		timeout:  s.timeout(),
		log:      s.logger(),
	}
}

// Call runs one raw exchange and returns the wallet's response envelope.
// Wallet-reported errors and empty envelopes come back as errors, so a nil
// error always carries a non-empty result.
func (s *Session) Call(ctx context.Context, req *Request) (*Response, error) {
	if s.Limiter != nil {
		if err := s.Limiter.Allow(); err != nil {
			return nil, err
		}
	}
	resp, err := s.newExchange().run(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}

// call runs an exchange for a known method and decodes the result into out.
func (s *Session) call(ctx context.Context, method Method, params, out interface{}) error {
	req, err := NewRequest(method, params)
	if err != nil {
		return err
	}
	resp, err := s.Call(ctx, req)
	if err != nil {
		return err
	}
	if resp.ResultType != "" && resp.ResultType != string(method) {
		return fmt.Errorf("%w: unexpected result type %q", ErrBadResult, resp.ResultType)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResult, err)
	}
	return nil
}

// GetInfo queries node details and the method set the wallet implements.
func (s *Session) GetInfo(ctx context.Context) (*GetInfoResult, error) {
	var result GetInfoResult
	if err := s.call(ctx, MethodGetInfo, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PayInvoice asks the wallet to pay a bolt11 invoice. The invoice string is
// opaque to this client.
func (s *Session) PayInvoice(ctx context.Context, invoice string) (*PayInvoiceResult, error) {
	var result PayInvoiceResult
	if err := s.call(ctx, MethodPayInvoice, PayInvoiceParams{Invoice: invoice}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetBalance queries the wallet balance in millisatoshis.
func (s *Session) GetBalance(ctx context.Context) (*BalanceResult, error) {
	var result BalanceResult
	if err := s.call(ctx, MethodGetBalance, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MakeInvoice asks the wallet to create an invoice for amount millisatoshis.
func (s *Session) MakeInvoice(ctx context.Context, amount int64, description string) (*MakeInvoiceResult, error) {
	var result MakeInvoiceResult
	params := MakeInvoiceParams{Amount: amount, Description: description}
	if err := s.call(ctx, MethodMakeInvoice, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// LookupInvoice looks up an invoice by payment hash.
func (s *Session) LookupInvoice(ctx context.Context, paymentHash string) (*Transaction, error) {
	var result Transaction
	if err := s.call(ctx, MethodLookupInvoice, LookupInvoiceParams{PaymentHash: paymentHash}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListTransactions lists recent transactions. params may be nil.
func (s *Session) ListTransactions(ctx context.Context, params *ListTransactionsParams) (*ListTransactionsResult, error) {
	if params == nil {
		params = &ListTransactionsParams{}
	}
	var result ListTransactionsResult
	if err := s.call(ctx, MethodListTransactions, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
