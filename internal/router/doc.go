// Package router decodes feed frames and fans them out to subscribers.
//
// Every frame on the wire is a JSON object {"type": ..., "data": ...}.
// Decode turns it into one of the typed messages (AuthSuccess, InitialPrices,
// PriceUpdate, Unknown); Bus delivers each message to the handlers registered
// for its type, synchronously and in registration order.
package router
