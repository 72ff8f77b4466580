package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Decode parses a raw frame into a typed Message.
//
// The returned error wraps ErrMalformedFrame for anything that is not a JSON
// object with a non-empty string type, or whose data does not match the
// payload expected for that type.
func Decode(data []byte, receivedAt time.Time) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, ErrMissingType)
	}

	switch env.Type {
	case TypeAuthSuccess:
		return AuthSuccess{ReceivedAt: receivedAt}, nil

	case TypeInitialPrices:
		prices, err := decodePrices(env.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformedFrame, env.Type, err)
		}
		return InitialPrices{Prices: prices, ReceivedAt: receivedAt}, nil

	case TypePriceUpdate:
		prices, err := decodePrices(env.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformedFrame, env.Type, err)
		}
		return PriceUpdate{Prices: prices, ReceivedAt: receivedAt}, nil
	}

	return Unknown{Type: env.Type, Data: env.Data, ReceivedAt: receivedAt}, nil
}

// decodePrices parses a {ticker: price} object. A missing or null payload is
// an empty batch. A null or negative price rejects the whole batch.
func decodePrices(raw json.RawMessage) (map[string]float64, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return map[string]float64{}, nil
	}

	var wire pricesWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}

	prices := make(map[string]float64, len(wire))
	for ticker, p := range wire {
		switch {
		case p == nil:
			return nil, fmt.Errorf("%w: %q", ErrNullPrice, ticker)
		case *p < 0:
			return nil, fmt.Errorf("%w: %q = %v", ErrNegativePrice, ticker, *p)
		}
		prices[ticker] = *p
	}
	return prices, nil
}

// Encode serializes an outbound frame.
func Encode(frame any) ([]byte, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}
