package router

import (
	"encoding/json"
	"errors"
	"time"
)

// Message type tags used on the wire.
const (
	TypeAuth          = "AUTH"
	TypeAuthSuccess   = "AUTH_SUCCESS"
	TypeInitialPrices = "INITIAL_PRICES"
	TypePriceUpdate   = "PRICE_UPDATE"
)

// Errors
var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrMissingType    = errors.New("frame has no type")
	ErrNullPrice      = errors.New("null price")
	ErrNegativePrice  = errors.New("negative price")
)

// Message is a decoded inbound frame. The concrete type is one of
// AuthSuccess, InitialPrices, PriceUpdate or Unknown.
type Message interface {
	// MessageType returns the wire tag the message was decoded from.
	MessageType() string
}

// AuthSuccess acknowledges the AUTH control frame. It is informational only.
type AuthSuccess struct {
	ReceivedAt time.Time
}

// InitialPrices is the full snapshot sent once per connection after AUTH.
type InitialPrices struct {
	Prices     map[string]float64
	ReceivedAt time.Time
}

// PriceUpdate is an incremental batch of ticker prices.
type PriceUpdate struct {
	Prices     map[string]float64
	ReceivedAt time.Time
}

// Unknown carries any frame whose type has no dedicated decoder.
type Unknown struct {
	Type       string
	Data       json.RawMessage // nil when the frame had no data field
	ReceivedAt time.Time
}

func (AuthSuccess) MessageType() string   { return TypeAuthSuccess }
func (InitialPrices) MessageType() string { return TypeInitialPrices }
func (PriceUpdate) MessageType() string   { return TypePriceUpdate }
func (u Unknown) MessageType() string     { return u.Type }

// AuthFrame is the outbound authentication frame.
type AuthFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// NewAuthFrame builds an AUTH frame carrying the given credential.
func NewAuthFrame(token string) AuthFrame {
	return AuthFrame{Type: TypeAuth, Token: token}
}

// Wire types for JSON parsing

// envelope is the {type, data} shape shared by every frame.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// pricesWire is the data payload of INITIAL_PRICES and PRICE_UPDATE. Values
// are pointers so a null price can be told apart from zero.
type pricesWire map[string]*float64
