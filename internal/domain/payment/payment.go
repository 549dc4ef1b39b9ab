// Package payment defines the provider-independent payment record, the
// normalized status vocabulary shared by every payment channel, and the
// persistence contract used by the reconciliation engine.
package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Channel is the discriminant of the PaymentRecord union.
type Channel string

const (
	ChannelManual Channel = "manual"
	ChannelCard   Channel = "card"
	ChannelCrypto Channel = "crypto"
	ChannelWallet Channel = "wallet"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelManual, ChannelCard, ChannelCrypto, ChannelWallet:
		return true
	}
	return false
}

// Record is a single checkout attempt on one payment channel. The shared
// fields live on Record; channel specific data lives in Detail, whose
// concrete type always matches Channel.
type Record struct {
	ID         string
	Channel    Channel
	ExternalID string
	OrderID    string
	Amount     decimal.Decimal
	Currency   string
	Method     string
	Status     Status
	Detail     Detail
	ExpiresAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Terminal reports whether the record reached a final state.
func (r *Record) Terminal() bool {
	return r.Status.Terminal()
}

// Expired reports whether the record carries an expiry that is before now.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Channel Channel
	OrderID string
	Status  Status
}

// Repository persists payment records. Implementations must enforce
// uniqueness of (Channel, ExternalID) and return ErrConflict on violation.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id string) (*Record, error)
	GetByExternalID(ctx context.Context, ch Channel, externalID string) (*Record, error)
	List(ctx context.Context, f Filter) ([]Record, error)

	// CompareAndSetStatus moves the record from status from to status to,
	// replacing Detail when detail is non-nil. It returns ErrStatusChanged
	// when the stored status no longer equals from, and ErrNotFound when no
	// record exists.
	CompareAndSetStatus(ctx context.Context, ch Channel, externalID string, from, to Status, detail Detail) (*Record, error)

	// UpdateDetail overwrites the channel payload without touching status.
	UpdateDetail(ctx context.Context, ch Channel, externalID string, detail Detail) (*Record, error)

	Delete(ctx context.Context, id string) (*Record, error)
}
