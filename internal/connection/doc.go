// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns exactly one WebSocket session to the price feed at a time
//   - Sends the AUTH frame as soon as the transport opens
//   - Reconnects after an unexpected close at a fixed interval, up to a capped
//     number of attempts, then gives up (StateFailed)
//   - Decodes inbound frames and publishes them on its router.Bus
//   - Drops outbound frames while not connected
package connection
