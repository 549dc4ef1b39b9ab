package crypto

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/payment"
)

const (
	providerName   = "nowpayments"
	maxResponse    = 1 << 20
	DefaultBaseURL = "https://api.nowpayments.io"
)

// NOWPayments is a Processor backed by the NOWPayments REST API.
type NOWPayments struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ Processor = (*NOWPayments)(nil)

// NewNOWPayments creates a client. The HTTP client bounds every call with
// its timeout.
func NewNOWPayments(baseURL, apiKey string, client *http.Client) *NOWPayments {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &NOWPayments{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

func (c *NOWPayments) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*ProcessorPayment, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("price_amount")
	e.Num(jx.Num(req.PriceAmount.String()))
	e.FieldStart("price_currency")
	e.Str(req.PriceCurrency)
	e.FieldStart("pay_currency")
	e.Str(req.PayCurrency)
	if req.CallbackURL != "" {
		e.FieldStart("ipn_callback_url")
		e.Str(req.CallbackURL)
	}
	e.FieldStart("order_id")
	e.Str(req.OrderID)
	e.FieldStart("order_description")
	e.Str(req.OrderDescription)
	if req.CustomerEmail != "" {
		e.FieldStart("customer_email")
		e.Str(req.CustomerEmail)
	}
	e.ObjEnd()

	return c.do(ctx, http.MethodPost, "/v1/payment", e.Bytes())
}

func (c *NOWPayments) GetPayment(ctx context.Context, id string) (*ProcessorPayment, error) {
	return c.do(ctx, http.MethodGet, "/v1/payment/"+url.PathEscape(id), nil)
}

func (c *NOWPayments) do(ctx context.Context, method, path string, body []byte) (*ProcessorPayment, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("x-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &payment.UpstreamError{Provider: providerName, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return nil, &payment.UpstreamError{Provider: providerName, Err: errors.Wrap(err, "read response")}
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &payment.UpstreamError{
			Provider: providerName,
			Message:  errorMessage(raw),
			Err:      errors.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	p, err := DecodePayment(raw)
	if err != nil {
		return nil, &payment.UpstreamError{Provider: providerName, Err: err}
	}
	return p, nil
}

// DecodePayment parses a processor payment object. payment_id may be a
// number or a string.
func DecodePayment(raw []byte) (*ProcessorPayment, error) {
	p := &ProcessorPayment{Raw: append([]byte(nil), raw...)}
	err := jx.DecodeBytes(raw).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "payment_id":
			p.ID, err = readString(d)
		case "payment_status":
			p.Status, err = readString(d)
		case "pay_address":
			p.PayAddress, err = readString(d)
		case "pay_amount":
			p.PayAmount, err = readDecimal(d)
		case "pay_currency":
			p.PayCurrency, err = readString(d)
		case "price_amount":
			p.PriceAmount, err = readDecimal(d)
		case "price_currency":
			p.PriceCurrency, err = readString(d)
		case "invoice_url":
			p.InvoiceURL, err = readString(d)
		case "order_id":
			p.OrderID, err = readString(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode payment")
	}
	return p, nil
}

func readString(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", d.Skip()
	}
}

func readDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := readString(d)
	if err != nil || s == "" {
		return decimal.Zero, err
	}
	return decimal.NewFromString(s)
}

func errorMessage(raw []byte) string {
	var msg string
	_ = jx.DecodeBytes(raw).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "message" {
			return d.Skip()
		}
		var err error
		msg, err = readString(d)
		return err
	})
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}
	return msg
}
