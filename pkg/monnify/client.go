// Package monnify is the client for the Monnify banking-as-a-service API:
// identity lookups, wallet provisioning, transfers and reference data.
package monnify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
	"github.com/zjoart/go-monnify-wallet/pkg/metrics"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

type Environment string

const (
	Sandbox Environment = "sandbox"
	Live    Environment = "live"
)

func (e Environment) BaseURL() string {
	if e == Live {
		return "https://api.monnify.com"
	}
	return "https://sandbox.monnify.com"
}

func ParseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case Sandbox, Live:
		return Environment(s), nil
	}
	return "", fmt.Errorf("unknown monnify environment %q", s)
}

const (
	DefaultBankName = "Moniepoint Microfinance Bank"
	DefaultBankCode = "50515"

	banksTTL = time.Hour
)

type Config struct {
	APIKey       string
	SecretKey    string
	ContractCode string
	// BaseURL overrides the environment's host, for tests and proxies.
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	env          Environment
	baseURL      string
	apiKey       string
	secretKey    string
	contractCode string
	timeout      time.Duration

	cache   Cache
	metrics *metrics.Metrics
	now     func() time.Time

	plain  *http.Client
	authed atomic.Pointer[http.Client]
	group  singleflight.Group

	retryInterval time.Duration
	maxTries      uint
}

type Option func(*Client)

func WithMetrics(m *metrics.Metrics) Option { return func(c *Client) { c.metrics = m } }

func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// WithRetry tunes read retries.
func WithRetry(initial time.Duration, maxTries uint) Option {
	return func(c *Client) {
		c.retryInterval = initial
		c.maxTries = maxTries
	}
}

// New builds a client bound to one environment. Switching environments means
// building another client.
func New(env Environment, cfg Config, cache Cache, opts ...Option) (*Client, error) {
	if env != Sandbox && env != Live {
		return nil, fmt.Errorf("unknown monnify environment %q", env)
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("monnify api key and secret key are required")
	}
	if cache == nil {
		cache = nopCache{}
	}

	c := &Client{
		env:           env,
		baseURL:       env.BaseURL(),
		apiKey:        cfg.APIKey,
		secretKey:     cfg.SecretKey,
		contractCode:  cfg.ContractCode,
		timeout:       cfg.Timeout,
		cache:         cache,
		now:           time.Now,
		retryInterval: 500 * time.Millisecond,
		maxTries:      3,
	}
	if cfg.BaseURL != "" {
		c.baseURL = cfg.BaseURL
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	for _, opt := range opts {
		opt(c)
	}

	c.plain = &http.Client{Timeout: c.timeout}
	c.resetAuth()
	return c, nil
}

func (c *Client) Environment() Environment { return c.env }

func (c *Client) ContractCode() string { return c.contractCode }

// VerifySignature checks a webhook body against the monnify-signature header.
func (c *Client) VerifySignature(payload []byte, signature string) bool {
	return VerifySignature(c.secretKey, payload, signature)
}

func (c *Client) cacheKey(name string) string {
	return "monnify:" + name + ":" + string(c.env)
}

// resetAuth drops the in-memory token so the next call goes back to the
// shared cache or logs in again.
func (c *Client) resetAuth() {
	src := oauth2.ReuseTokenSourceWithExpiry(nil, &tokenSource{c: c}, tokenEarlyExpiry)
	c.authed.Store(&http.Client{
		Timeout:   c.timeout,
		Transport: &oauth2.Transport{Source: src, Base: http.DefaultTransport},
	})
}

func (c *Client) send(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("monnify %s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.authed.Load().Do(req)
	if err != nil {
		c.metrics.Provider(op, "unavailable")
		return &APIError{Operation: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		c.metrics.Provider(op, "unavailable")
		return &APIError{Operation: op, Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		_ = c.cache.Delete(ctx, c.cacheKey("token"))
		c.resetAuth()
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= 400 || decodeErr == nil && !env.RequestSuccessful {
		c.metrics.Provider(op, "rejected")
		logger.Warn("Monnify request failed", logger.Fields{
			"operation":   op,
			"status_code": resp.StatusCode,
			"code":        env.ResponseCode,
			"message":     env.ResponseMessage,
		})
		if resp.StatusCode == http.StatusNotFound {
			return &APIError{Operation: op, StatusCode: resp.StatusCode, Message: env.ResponseMessage, Err: ErrNotFound}
		}
		status := resp.StatusCode
		if status < 400 {
			status = http.StatusUnprocessableEntity
		}
		return &APIError{Operation: op, StatusCode: status, Code: env.ResponseCode, Message: env.ResponseMessage}
	}
	if decodeErr != nil {
		// a 2xx we cannot read leaves the outcome unknown
		c.metrics.Provider(op, "unreadable")
		return &APIError{Operation: op, Err: fmt.Errorf("decode envelope: %w", decodeErr)}
	}

	c.metrics.Provider(op, "ok")
	if out == nil || len(env.ResponseBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.ResponseBody, out); err != nil {
		return &APIError{Operation: op, Err: fmt.Errorf("decode body: %w", err)}
	}
	return nil
}

// read performs an idempotent GET, retrying transport failures and 5xx.
func (c *Client) read(ctx context.Context, op, path string, out interface{}) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.send(ctx, op, http.MethodGet, path, nil, out)
		if err != nil && !IsTemporary(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
	return err
}

func (c *Client) VerifyBVN(ctx context.Context, bvn string, dateOfBirth time.Time) (*IdentityRecord, error) {
	var raw json.RawMessage
	err := c.send(ctx, "verify_bvn", http.MethodPost, "/api/v2/kyc/bvn/validate", map[string]string{
		"bvn":         bvn,
		"dateOfBirth": dateOfBirth.Format("02-01-2006"),
	}, &raw)
	if err != nil {
		return nil, err
	}
	return decodeIdentity(raw)
}

func (c *Client) VerifyNIN(ctx context.Context, nin string) (*IdentityRecord, error) {
	var raw json.RawMessage
	err := c.send(ctx, "verify_nin", http.MethodPost, "/api/v2/kyc/nin/validate", map[string]string{"nin": nin}, &raw)
	if err != nil {
		return nil, err
	}
	return decodeIdentity(raw)
}

func decodeIdentity(raw json.RawMessage) (*IdentityRecord, error) {
	rec := &IdentityRecord{Raw: raw}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, rec); err != nil {
			return nil, fmt.Errorf("decode identity: %w", err)
		}
	}
	return rec, nil
}

// CreateWallet is never retried here: callers look the reference up with
// FindWallet before trying again.
func (c *Client) CreateWallet(ctx context.Context, req CreateWalletRequest) (*Wallet, error) {
	var raw json.RawMessage
	if err := c.send(ctx, "create_wallet", http.MethodPost, "/api/v2/wallets", req, &raw); err != nil {
		return nil, err
	}
	w := &Wallet{Raw: raw}
	if err := json.Unmarshal(raw, w); err != nil {
		return nil, fmt.Errorf("decode wallet: %w", err)
	}
	return w, nil
}

// FindWallet looks a wallet up by the caller supplied reference. It returns
// ErrNotFound when the provider has no such wallet.
func (c *Client) FindWallet(ctx context.Context, walletReference string) (*Wallet, error) {
	var raw json.RawMessage
	path := "/api/v2/wallets?walletReference=" + url.QueryEscape(walletReference)
	if err := c.read(ctx, "find_wallet", path, &raw); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrNotFound
	}
	w := &Wallet{Raw: raw}
	if err := json.Unmarshal(raw, w); err != nil {
		return nil, fmt.Errorf("decode wallet: %w", err)
	}
	if w.WalletID == "" && w.AccountNumber == "" {
		return nil, ErrNotFound
	}
	return w, nil
}

func (c *Client) GetWalletBalance(ctx context.Context, walletID string) (*Balance, error) {
	var bal Balance
	if err := c.read(ctx, "wallet_balance", "/api/v2/wallets/"+url.PathEscape(walletID)+"/balance", &bal); err != nil {
		return nil, err
	}
	return &bal, nil
}

func (c *Client) GetWalletTransactions(ctx context.Context, walletID string, page, size int) (*TransactionPage, error) {
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	q.Set("size", fmt.Sprint(size))

	var out TransactionPage
	path := "/api/v2/wallets/" + url.PathEscape(walletID) + "/transactions?" + q.Encode()
	if err := c.read(ctx, "wallet_transactions", path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transfer sends money out of a wallet. It is never retried; an unknown
// outcome is resolved with GetTransferStatus.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	if req.Currency == "" {
		req.Currency = "NGN"
	}
	var raw json.RawMessage
	if err := c.send(ctx, "transfer", http.MethodPost, "/api/v2/transfers/single", req, &raw); err != nil {
		return nil, err
	}
	return decodeTransfer(raw)
}

func (c *Client) GetTransferStatus(ctx context.Context, reference string) (*Transfer, error) {
	var raw json.RawMessage
	if err := c.read(ctx, "transfer_status", "/api/v2/transfers/"+url.PathEscape(reference), &raw); err != nil {
		return nil, err
	}
	return decodeTransfer(raw)
}

func decodeTransfer(raw json.RawMessage) (*Transfer, error) {
	t := &Transfer{Raw: raw}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, t); err != nil {
			return nil, fmt.Errorf("decode transfer: %w", err)
		}
	}
	return t, nil
}

// GetBanks returns the bank list, cached for an hour. Concurrent misses share
// one upstream call.
func (c *Client) GetBanks(ctx context.Context) ([]Bank, error) {
	key := c.cacheKey("banks")
	if raw, err := c.cache.Get(ctx, key); err == nil {
		var banks []Bank
		if json.Unmarshal(raw, &banks) == nil {
			return banks, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		var banks []Bank
		if err := c.read(ctx, "banks", "/api/v1/banks", &banks); err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(banks); err == nil {
			if err := c.cache.Set(ctx, key, raw, banksTTL); err != nil {
				logger.Warn("Failed to cache bank list", logger.WithError(err))
			}
		}
		return banks, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Bank), nil
}

func (c *Client) ValidateAccount(ctx context.Context, accountNumber, bankCode string) (*AccountValidation, error) {
	q := url.Values{}
	q.Set("accountNumber", accountNumber)
	q.Set("bankCode", bankCode)

	var out AccountValidation
	if err := c.read(ctx, "validate_account", "/api/v1/nama/validate-account?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Amount renders a ledger amount as a JSON number with two decimals.
func Amount(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}
