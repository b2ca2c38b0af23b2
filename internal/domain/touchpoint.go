package domain

import (
	"github.com/shopspring/decimal"
)

// DefaultChannel is assigned when a touchpoint carries no attribution data at all.
const DefaultChannel = "direct"

// DefaultConversionType is assigned to conversions submitted without a type.
const DefaultConversionType = "purchase"

// MaxConversionValue is the exclusive upper bound on a conversion value,
// matching the NUMERIC(18, 6) storage column.
var MaxConversionValue = decimal.New(1, 12)

// sessionIdentityPrefix marks identity keys derived from a session rather than a customer.
const sessionIdentityPrefix = "session:"

// Touchpoint represents one customer interaction with a marketing channel.
// Touchpoints are immutable once stored.
// A touchpoint with ConversionValue > 0 is a conversion event.
type Touchpoint struct {
	TouchpointID string // idempotency key, unique per tenant
	TenantID     string
	CustomerID   string
	SessionID    string

	// Attribution dimensions. Channel is always set after normalization.
	Channel  string
	Campaign string
	Source   string
	Medium   string
	Content  string
	Term     string

	Platform   string
	DeviceType string
	PageURL    string
	Referrer   string

	OccurredAt int64 // Unix milliseconds, UTC
	Seq        int64 // insertion order, assigned by the store

	// Conversion fields, zero for plain touchpoints.
	ConversionValue decimal.Decimal
	ConversionType  string
	OrderID         string
	ProductIDs      []string
}

// IsConversion reports whether the touchpoint carries a monetary outcome.
func (t *Touchpoint) IsConversion() bool {
	return t.ConversionValue.IsPositive()
}

// IdentityKey returns the key used to group touchpoints into journeys.
// Customer identity is preferred; anonymous sessions fall back to the session id.
func (t *Touchpoint) IdentityKey() string {
	return IdentityKey(t.CustomerID, t.SessionID)
}

// IdentityKey builds a journey identity key from a customer id and session id.
func IdentityKey(customerID, sessionID string) string {
	if customerID != "" {
		return customerID
	}
	if sessionID == "" {
		return ""
	}
	return sessionIdentityPrefix + sessionID
}

// Before reports whether t is ordered before other.
// Ties on OccurredAt are broken by insertion order.
func (t *Touchpoint) Before(other *Touchpoint) bool {
	if t.OccurredAt != other.OccurredAt {
		return t.OccurredAt < other.OccurredAt
	}
	return t.Seq < other.Seq
}

// Clone returns a deep copy of the touchpoint.
func (t *Touchpoint) Clone() *Touchpoint {
	c := *t
	if t.ProductIDs != nil {
		c.ProductIDs = append([]string(nil), t.ProductIDs...)
	}
	return &c
}

// TouchpointInput is the raw, unvalidated ingestion payload.
// Timestamps arrive as ISO-8601 strings and money as decimal strings or numbers.
type TouchpointInput struct {
	TenantID     string `json:"tenantId,omitempty"`
	TouchpointID string `json:"touchpointId,omitempty" validate:"omitempty,max=128"`
	CustomerID   string `json:"customerId,omitempty" validate:"omitempty,max=128"`
	SessionID    string `json:"sessionId,omitempty" validate:"omitempty,max=128"`

	Channel  string `json:"channel,omitempty" validate:"omitempty,max=64"`
	Campaign string `json:"campaign,omitempty" validate:"omitempty,max=256"`
	Source   string `json:"source,omitempty" validate:"omitempty,max=256"`
	Medium   string `json:"medium,omitempty" validate:"omitempty,max=256"`
	Content  string `json:"content,omitempty" validate:"omitempty,max=256"`
	Term     string `json:"term,omitempty" validate:"omitempty,max=256"`

	Platform   string `json:"platform,omitempty" validate:"omitempty,max=64"`
	DeviceType string `json:"deviceType,omitempty" validate:"omitempty,max=64"`
	PageURL    string `json:"pageUrl,omitempty" validate:"omitempty,max=2048"`
	Referrer   string `json:"referrer,omitempty" validate:"omitempty,max=2048"`

	OccurredAt string `json:"occurredAt"`

	ConversionValue *decimal.Decimal `json:"conversionValue,omitempty"`
	ConversionType  string           `json:"conversionType,omitempty" validate:"omitempty,max=64"`
	OrderID         string           `json:"orderId,omitempty" validate:"omitempty,max=128"`
	ProductIDs      []string         `json:"productIds,omitempty" validate:"omitempty,max=500,dive,max=128"`
}
