package model

import "fmt"

// Status is the closed set of outcomes reported by every fallible client
// operation and carried on the wire in peer responses.
type Status int

const (
	StatusOK Status = iota
	StatusTimeout
	StatusNotConnected
	StatusNotFound
	StatusRejected
	StatusInvalidParameter
	StatusDisconnected
)

var statusNames = [...]string{
	StatusOK:               "OK",
	StatusTimeout:          "Timeout",
	StatusNotConnected:     "NotConnected",
	StatusNotFound:         "NotFound",
	StatusRejected:         "Rejected",
	StatusInvalidParameter: "InvalidParameter",
	StatusDisconnected:     "Disconnected",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Valid reports whether s belongs to the closed status set.
func (s Status) Valid() bool {
	return s >= StatusOK && s <= StatusDisconnected
}
