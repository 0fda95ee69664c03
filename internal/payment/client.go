package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"tinkoff-merchant/internal/config"
	"tinkoff-merchant/internal/logger"
	"tinkoff-merchant/internal/metrics"
	"tinkoff-merchant/internal/signing"
)

const (
	opInit     = "Init"
	opGetState = "GetState"
	opCancel   = "Cancel"
)

// Client talks to the gateway. It holds no mutable state after construction
// and is safe for concurrent use.
type Client struct {
	terminalKey string
	secretKey   string
	urls        config.URLs
	http        *resty.Client
}

type ClientOption func(*Client)

// WithKeys overrides the terminal and secret keys taken from configuration.
func WithKeys(terminalKey, secretKey string) ClientOption {
	return func(c *Client) {
		c.terminalKey = terminalKey
		c.secretKey = secretKey
	}
}

// WithTransport replaces the HTTP transport, mostly for tests.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.http.SetTransport(rt)
	}
}

func NewClient(cfg config.Merchant, opts ...ClientOption) *Client {
	c := &Client{
		terminalKey: cfg.TerminalKey,
		secretKey:   cfg.SecretKey,
		urls:        cfg.URLs,
		http: resty.New().
			SetTimeout(cfg.Timeout).
			SetHeader("Content-Type", "application/json"),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.terminalKey == "" || c.secretKey == "" {
		logger.L().Warn("tinkoff client created without keys")
	}
	return c
}

func (c *Client) TerminalKey() string { return c.terminalKey }

// HasKeys reports whether both the terminal key and the secret key are set.
func (c *Client) HasKeys() bool { return c.terminalKey != "" && c.secretKey != "" }

// Token signs fields with the client's keys.
func (c *Client) Token(fields map[string]any) string {
	return signing.Sign(fields, c.terminalKey, c.secretKey)
}

func (c *Client) VerifyToken(token string, fields map[string]any) bool {
	return signing.Verify(token, fields, c.terminalKey, c.secretKey)
}

// Init registers the payment with the gateway. On success the gateway
// answers with status NEW and a PaymentURL for the buyer.
func (c *Client) Init(ctx context.Context, p *Payment) (*Payment, error) {
	resp, err := c.request(ctx, opInit, c.urls.Init, ToWire(p))
	if err != nil {
		return p, err
	}
	return ApplyResponse(p, resp), nil
}

// Status refreshes the payment from GetState.
func (c *Client) Status(ctx context.Context, p *Payment) (*Payment, error) {
	if p.PaymentID == "" {
		return p, ErrNoPaymentID
	}
	resp, err := c.request(ctx, opGetState, c.urls.GetState, map[string]any{fieldPaymentID: p.PaymentID})
	if err != nil {
		return p, err
	}
	return ApplyResponse(p, resp), nil
}

// Cancel cancels or refunds the payment in full.
func (c *Client) Cancel(ctx context.Context, p *Payment) (*Payment, error) {
	if p.PaymentID == "" {
		return p, ErrNoPaymentID
	}
	resp, err := c.request(ctx, opCancel, c.urls.Cancel, map[string]any{fieldPaymentID: p.PaymentID})
	if err != nil {
		return p, err
	}
	return ApplyResponse(p, resp), nil
}

func (c *Client) request(ctx context.Context, op, url string, data map[string]any) (map[string]any, error) {
	log := logger.FromCtx(ctx).With(zap.String("op", op))

	if c.terminalKey == "" || c.secretKey == "" {
		return nil, ErrMissingKeys
	}

	data[signing.FieldToken] = c.Token(data)
	data[signing.FieldTerminalKey] = c.terminalKey

	log.Info("sending request to tinkoff", zap.String("url", url))
	timer := metrics.StartTimer()

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(data).
		Post(url)
	elapsed := zap.Duration("duration_ms", timer.Duration())
	if err != nil {
		log.Error("tinkoff request failed", elapsed, zap.Error(err))
		return nil, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode() != http.StatusOK {
		log.Error("tinkoff returned non-success status",
			elapsed,
			zap.Int("status", resp.StatusCode()),
			zap.ByteString("response", resp.Body()),
		)
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode(), Body: resp.Body()}
	}

	var out map[string]any
	dec := json.NewDecoder(bytes.NewReader(resp.Body()))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		log.Error("failed decoding tinkoff response", zap.Error(err))
		return nil, &ValidationError{Msg: "invalid gateway response", Err: err}
	}

	log.Info("tinkoff response received",
		elapsed,
		zap.Any("success", out[fieldSuccess]),
		zap.Any("status", out[fieldStatus]),
		zap.Any("error_code", out[fieldErrorCode]),
	)
	return out, nil
}
