package connection

import "fmt"

// State is a phase of the connection lifecycle.
type State int32

const (
	Idle State = iota
	Scanning
	Connecting
	ResolvingCharacteristic
	Subscribing
	Streaming
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Connecting:
		return "connecting"
	case ResolvingCharacteristic:
		return "resolving-characteristic"
	case Subscribing:
		return "subscribing"
	case Streaming:
		return "streaming"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}
