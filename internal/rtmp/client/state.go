package client

// ConnState is the public connection state surfaced to callers (spec.md
// §6.5). The internal handshake/connect sub-states all project onto
// Connecting; Ready projects onto Connected; Idle onto Disconnected.
type ConnState uint8

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// internal step tracks the finer-grained state machine (Idle..Ready) so
// watchdogs and dialogue handling know exactly where they are; only its
// projection onto ConnState is exposed publicly.
type step uint8

const (
	stepIdle step = iota
	stepWaitDNS
	stepWaitTCP
	stepWaitS0
	stepWaitS1
	stepWaitS2
	stepWaitFMS
	stepReady
)

func (s step) public() ConnState {
	switch s {
	case stepIdle:
		return Disconnected
	case stepReady:
		return Connected
	default:
		return Connecting
	}
}
