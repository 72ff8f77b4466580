package connection

// State is the lifecycle state of a Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Connected reports whether outbound frames are accepted.
func (s State) Connected() bool {
	return s == StateConnected
}

// machineContext is the data the state machine carries between events.
type machineContext struct {
	Credential  string // Captured at the latest explicit Connect
	Attempts    int    // Reconnect attempts in the current outage
	MaxAttempts int
}

// eventKind enumerates the inputs of the state machine.
type eventKind int

const (
	evConnect    eventKind = iota // explicit Connect(credential)
	evOpened                      // transport open confirmed
	evAuthSent                    // AUTH frame written
	evOpenFailed                  // transport failed before opening
	evClosed                      // open transport closed unexpectedly
	evRetryDue                    // reconnect delay elapsed
	evDisconnect                  // explicit Disconnect
)

type machineEvent struct {
	kind       eventKind
	credential string // evConnect only
}

// effect is a side effect the Manager performs after a transition, in order.
type effect int

const (
	effCancelRetry     effect = iota // stop a pending reconnect timer
	effCloseTransport                // close the current transport and invalidate its frames
	effAbortConnect                  // fail a pending Connect call
	effClearListeners                // drop every bus registration
	effDial                          // open a new transport with the context credential
	effSendAuth                      // write the AUTH frame
	effResolveConnect                // complete a pending Connect call successfully
	effRejectConnect                 // fail a pending Connect call with the open error
	effScheduleRetry                 // start the reconnect timer
)

// transition is the pure core of the connection lifecycle. Unknown
// (state, event) pairs leave everything unchanged.
func transition(s State, mc machineContext, ev machineEvent) (State, machineContext, []effect) {
	switch ev.kind {
	case evConnect:
		mc.Credential = ev.credential
		mc.Attempts = 0
		return StateConnecting, mc, []effect{effCancelRetry, effCloseTransport, effAbortConnect, effDial}

	case evDisconnect:
		mc.Attempts = 0
		return StateDisconnected, mc, []effect{effCancelRetry, effCloseTransport, effAbortConnect, effClearListeners}

	case evOpened:
		if s != StateConnecting {
			return s, mc, nil
		}
		mc.Attempts = 0
		return StateAuthenticating, mc, []effect{effSendAuth}

	case evAuthSent:
		if s != StateAuthenticating {
			return s, mc, nil
		}
		return StateConnected, mc, []effect{effResolveConnect}

	case evOpenFailed:
		if s != StateConnecting {
			return s, mc, nil
		}
		if mc.Attempts == 0 {
			// Explicit connect: the caller decides whether to retry.
			return StateFailed, mc, []effect{effCloseTransport, effRejectConnect}
		}
		return scheduleRetry(mc)

	case evClosed:
		if s != StateConnected && s != StateAuthenticating {
			return s, mc, nil
		}
		return scheduleRetry(mc)

	case evRetryDue:
		if s != StateReconnecting {
			return s, mc, nil
		}
		return StateConnecting, mc, []effect{effDial}
	}

	return s, mc, nil
}

func scheduleRetry(mc machineContext) (State, machineContext, []effect) {
	if mc.Attempts >= mc.MaxAttempts {
		return StateFailed, mc, []effect{effCloseTransport}
	}
	mc.Attempts++
	return StateReconnecting, mc, []effect{effCloseTransport, effScheduleRetry}
}
