package crypto

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/payment"
)

func TestNOWPayments_CreatePayment(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		got = map[string]string{}
		require.NoError(t, jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
			v, err := readString(d)
			got[string(key)] = v
			return err
		}))

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{
			"payment_id": 5077125051,
			"payment_status": "waiting",
			"pay_address": "ltc1qaddr",
			"price_amount": 50,
			"price_currency": "usd",
			"pay_amount": "0.6112",
			"pay_currency": "ltc",
			"order_id": "order_1",
			"network": "ltc",
			"extra": {"nested": [1, 2]}
		}`)
	}))
	defer srv.Close()

	c := NewNOWPayments(srv.URL+"/", "key", srv.Client())
	p, err := c.CreatePayment(context.Background(), CreatePaymentRequest{
		PriceAmount:      decimal.NewFromInt(50),
		PriceCurrency:    "USD",
		PayCurrency:      "LTC",
		CallbackURL:      "https://shop.example/api/crypto/ipn",
		OrderID:          "order_1",
		OrderDescription: "Payment for 2 items",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"price_amount":      "50",
		"price_currency":    "USD",
		"pay_currency":      "LTC",
		"ipn_callback_url":  "https://shop.example/api/crypto/ipn",
		"order_id":          "order_1",
		"order_description": "Payment for 2 items",
	}, got)

	assert.Equal(t, "5077125051", p.ID)
	assert.Equal(t, "waiting", p.Status)
	assert.Equal(t, "ltc1qaddr", p.PayAddress)
	assert.True(t, decimal.RequireFromString("0.6112").Equal(p.PayAmount))
	assert.True(t, decimal.NewFromInt(50).Equal(p.PriceAmount))
	assert.Equal(t, "order_1", p.OrderID)
	assert.Contains(t, string(p.Raw), `"network": "ltc"`)
}

func TestNOWPayments_CreatePayment_ExactPriceAmount(t *testing.T) {
	var (
		kind  jx.Type
		price string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != "price_amount" {
				return d.Skip()
			}
			kind = d.Next()
			n, err := d.Num()
			price = n.String()
			return err
		}))
		_, _ = io.WriteString(w, `{"payment_id": "p1", "payment_status": "waiting"}`)
	}))
	defer srv.Close()

	c := NewNOWPayments(srv.URL, "key", srv.Client())
	_, err := c.CreatePayment(context.Background(), CreatePaymentRequest{
		PriceAmount:   decimal.RequireFromString("9007199254740993.19"),
		PriceCurrency: "USD",
		PayCurrency:   "LTC",
		OrderID:       "order_1",
	})
	require.NoError(t, err)

	assert.Equal(t, jx.Number, kind)
	assert.Equal(t, "9007199254740993.19", price)
}

func TestNOWPayments_GetPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/payment/p1", r.URL.Path)
		_, _ = io.WriteString(w, `{"payment_id":"p1","payment_status":"finished","pay_address":null}`)
	}))
	defer srv.Close()

	p, err := NewNOWPayments(srv.URL, "key", srv.Client()).GetPayment(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "finished", p.Status)
	assert.Empty(t, p.PayAddress)
}

func TestNOWPayments_ErrorResponse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"json message", `{"statusCode":400,"code":"INVALID_REQUEST_PARAMS","message":"pay_currency is not supported"}`, "pay_currency is not supported"},
		{"plain text", "bad gateway\n", "bad gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewNOWPayments(srv.URL, "key", srv.Client()).GetPayment(context.Background(), "p1")
			var upErr *payment.UpstreamError
			require.ErrorAs(t, err, &upErr)
			assert.Equal(t, "nowpayments", upErr.Provider)
			assert.Equal(t, tt.message, upErr.Message)
		})
	}
}

func TestNOWPayments_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewNOWPayments(url, "key", nil).GetPayment(context.Background(), "p1")
	var upErr *payment.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Empty(t, upErr.Message)
}

func TestDecodePayment_Malformed(t *testing.T) {
	_, err := DecodePayment([]byte(`{"payment_id":`))
	require.Error(t, err)

	_, err = DecodePayment([]byte(`{"pay_amount":"abc"}`))
	require.Error(t, err)
}
