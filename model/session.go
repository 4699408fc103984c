package model

import "fmt"

// SessionState tracks the client's connection to the simulator and to the
// server module running inside it.
type SessionState int

const (
	Disconnected SessionState = iota
	ConnectingSim
	ConnectedSim
	ConnectingServer
	ConnectedServer
)

func (s SessionState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case ConnectingSim:
		return "ConnectingSim"
	case ConnectedSim:
		return "ConnectedSim"
	case ConnectingServer:
		return "ConnectingServer"
	case ConnectedServer:
		return "ConnectedServer"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// SimConnected reports whether the simulator link is up, regardless of the
// server module.
func (s SessionState) SimConnected() bool {
	return s >= ConnectedSim
}

// ClientEventType classifies a ClientEvent.
type ClientEventType int

const (
	EventNone ClientEventType = iota
	EventSimConnecting
	EventSimConnected
	EventSimDisconnecting
	EventSimDisconnected
	EventServerConnecting
	EventServerConnected
	EventServerDisconnected
	EventConnectionLost
)

func (t ClientEventType) String() string {
	switch t {
	case EventSimConnecting:
		return "SimConnecting"
	case EventSimConnected:
		return "SimConnected"
	case EventSimDisconnecting:
		return "SimDisconnecting"
	case EventSimDisconnected:
		return "SimDisconnected"
	case EventServerConnecting:
		return "ServerConnecting"
	case EventServerConnected:
		return "ServerConnected"
	case EventServerDisconnected:
		return "ServerDisconnected"
	case EventConnectionLost:
		return "ConnectionLost"
	default:
		return "None"
	}
}

// ClientEvent describes one session status change.
type ClientEvent struct {
	Type    ClientEventType
	Status  SessionState
	Message string
}

func (e ClientEvent) String() string {
	return fmt.Sprintf("%s (%s): %s", e.Type, e.Status, e.Message)
}
