package model

import (
	"fmt"

	"github.com/google/uuid"
)

// DefaultTickers is the instrument set the feed server supports out of the box.
var DefaultTickers = []string{"GOOG", "TSLA", "AMZN", "META", "NVDA"}

// -----------------------------------------------------------------------------
// Session Types
// -----------------------------------------------------------------------------

// User is the account a session is authenticated as.
type User struct {
	ID    string // Server-assigned identifier
	Email string
}

// Subscription is one ticker on a user's watchlist.
type Subscription struct {
	Ticker    string // e.g. "GOOG"
	CreatedAt int64  // µs since epoch, 0 when the source does not record it
	Source    string // "api", "postgres" or "static"
}

// -----------------------------------------------------------------------------
// Price Types
// -----------------------------------------------------------------------------

// Direction is the transient change flag of a ticker.
type Direction int

const (
	None Direction = iota
	Up
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	}
	return "none"
}

// MarshalText encodes the direction as its lowercase name.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses "up", "down", "none" or the empty string.
func (d *Direction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "up":
		*d = Up
	case "down":
		*d = Down
	case "none", "":
		*d = None
	default:
		return fmt.Errorf("invalid direction %q", text)
	}
	return nil
}

// ChangeKind says what produced a PriceChange.
type ChangeKind int

const (
	ChangeInitial  ChangeKind = iota // Full snapshot from INITIAL_PRICES
	ChangeUpdate                     // Entry of a PRICE_UPDATE batch
	ChangeExpired                    // Flag reverted to None after the flash window
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeInitial:
		return "initial"
	case ChangeUpdate:
		return "update"
	case ChangeExpired:
		return "expired"
	}
	return "unknown"
}

// PriceChange is one ticker's entry in a reconciled batch.
type PriceChange struct {
	ID         uuid.UUID  // Unique per event
	Batch      uint64     // Sequence number of the batch that produced the event
	Kind       ChangeKind // What produced the event
	Ticker     string     // Instrument
	Price      float64    // Price after the batch
	Previous   float64    // Price before the batch, valid when HadPrev
	HadPrev    bool       // False on the first sighting of a ticker
	Direction  Direction  // Flag after the batch
	ReceivedAt int64      // Frame receive time (µs since epoch)
}
