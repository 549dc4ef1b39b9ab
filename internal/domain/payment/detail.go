package payment

import (
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Detail is the channel specific part of a Record.
type Detail interface {
	Channel() Channel
}

// Customer is the buyer snapshot attached to card and crypto payments.
type Customer struct {
	ID      string   `json:"id,omitempty"`
	Name    string   `json:"name,omitempty"`
	Email   string   `json:"email,omitempty"`
	Phone   string   `json:"phone,omitempty"`
	Address *Address `json:"address,omitempty"`
}

// Address is a postal address.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Item is a purchased line as seen by a payment provider.
type Item struct {
	ProductID string          `json:"productId,omitempty"`
	Name      string          `json:"name,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
}

// ManualDetail holds a proof-of-payment submission.
type ManualDetail struct {
	Details map[string]string `json:"details,omitempty"`
	// ProofPath is the stored artifact path; the inline upload is never kept.
	ProofPath string `json:"paymentProof,omitempty"`
}

func (ManualDetail) Channel() Channel { return ChannelManual }

// Card mirrors the card metadata reported by the gateway once a charge exists.
type Card struct {
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int64  `json:"exp_month,omitempty"`
	ExpYear  int64  `json:"exp_year,omitempty"`
	Country  string `json:"country,omitempty"`
	Funding  string `json:"funding,omitempty"`
	CVCCheck string `json:"cvc_check,omitempty"`
}

// CardDetail holds a card-gateway payment intent.
type CardDetail struct {
	IntentStatus string   `json:"intentStatus"`
	AmountMinor  int64    `json:"amountMinor"`
	Card         *Card    `json:"card,omitempty"`
	ReceiptURL   string   `json:"receiptUrl,omitempty"`
	Customer     Customer `json:"user"`
	Items        []Item   `json:"cartItems,omitempty"`
}

func (CardDetail) Channel() Channel { return ChannelCard }

// CryptoDetail holds a crypto-processor deposit request.
type CryptoDetail struct {
	CryptoAmount   decimal.Decimal `json:"cryptoAmount"`
	CryptoCurrency string          `json:"cryptoCurrency"`
	WalletAddress  string          `json:"walletAddress,omitempty"`
	PaymentURL     string          `json:"paymentUrl,omitempty"`
	QRCodeURL      string          `json:"qrCodeUrl,omitempty"`
	Customer       Customer        `json:"customer"`
	Items          []Item          `json:"items,omitempty"`
	// ProcessorData is the last raw payload received from the processor.
	ProcessorData json.RawMessage `json:"processorData,omitempty"`
}

func (CryptoDetail) Channel() Channel { return ChannelCrypto }

// WalletDetail holds a redirect-wallet transaction.
type WalletDetail struct {
	Items          []Item          `json:"items,omitempty"`
	PaymentDetails json.RawMessage `json:"paymentDetails,omitempty"`
}

func (WalletDetail) Channel() Channel { return ChannelWallet }

// MarshalDetail encodes d for storage.
func MarshalDetail(d Detail) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

// UnmarshalDetail decodes a stored payload into the concrete type selected
// by the channel tag.
func UnmarshalDetail(ch Channel, data []byte) (Detail, error) {
	var (
		d   Detail
		err error
	)
	switch ch {
	case ChannelManual:
		var v ManualDetail
		err = unmarshalInto(data, &v)
		d = v
	case ChannelCard:
		var v CardDetail
		err = unmarshalInto(data, &v)
		d = v
	case ChannelCrypto:
		var v CryptoDetail
		err = unmarshalInto(data, &v)
		d = v
	case ChannelWallet:
		var v WalletDetail
		err = unmarshalInto(data, &v)
		d = v
	default:
		return nil, errors.Errorf("unknown channel %q", ch)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s detail", ch)
	}
	return d, nil
}

func unmarshalInto(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
