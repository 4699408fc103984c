// Package wire defines the semantic messages exchanged between a client and
// a simulator peer, and their protobuf encoding.
package wire

import (
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/simvar-client/model"
)

// ErrInvalidFrame reports a frame that cannot be interpreted.
var ErrInvalidFrame = errors.New("wire: invalid frame")

// FrameType separates correlated traffic from unsolicited notifications.
type FrameType int

const (
	FrameUnknown FrameType = iota
	// FrameCommand is a command sent to the peer, optionally correlated by Token.
	FrameCommand
	// FrameResponse answers a command and echoes its Command and Token.
	FrameResponse
	// FrameData carries a data request value; Token is the request id.
	FrameData
	// FrameLog carries one peer log record.
	FrameLog
	// FrameList carries list results.
	FrameList
	// FrameNotice is a peer-initiated status notice such as shutdown.
	FrameNotice
)

func (t FrameType) String() string {
	switch t {
	case FrameCommand:
		return "command"
	case FrameResponse:
		return "response"
	case FrameData:
		return "data"
	case FrameLog:
		return "log"
	case FrameList:
		return "list"
	case FrameNotice:
		return "notice"
	default:
		return "unknown"
	}
}

// Frame is one message on a peer connection. Only the fields relevant to its
// Type are populated.
type Frame struct {
	Type    FrameType
	Token   uint32
	Command model.CommandID
	Status  model.Status
	UData   uint32
	FData   float64
	SData   string
	Time    time.Time
	// Session tags the client session a hello or notice belongs to.
	Session string

	Variable *model.VariableRequest
	Request  *model.DataRequest
	Raw      []byte
	Items    []model.ListItem
}

// Validate checks the fields every frame type depends on.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidFrame)
	}
	switch f.Type {
	case FrameCommand, FrameResponse:
		if f.Command == model.CmdNone {
			return fmt.Errorf("%w: %s frame without command", ErrInvalidFrame, f.Type)
		}
		if f.Type == FrameResponse && !f.Status.Valid() {
			return fmt.Errorf("%w: response status %d", ErrInvalidFrame, int(f.Status))
		}
	case FrameData, FrameLog, FrameList, FrameNotice:
	default:
		return fmt.Errorf("%w: type %d", ErrInvalidFrame, int(f.Type))
	}
	return nil
}

// NewCommand wraps a command for transmission.
func NewCommand(cmd model.Command) *Frame {
	return &Frame{
		Type:    FrameCommand,
		Token:   cmd.Token,
		Command: cmd.ID,
		UData:   cmd.UData,
		FData:   cmd.FData,
		SData:   cmd.SData,
	}
}

// ResponseTo builds a response that correlates with req.
func ResponseTo(req *Frame, status model.Status) *Frame {
	return &Frame{
		Type:    FrameResponse,
		Token:   req.Token,
		Command: req.Command,
		Status:  status,
	}
}

// AsCommand extracts the command view of a command or response frame.
// Responses map onto Ack / Nak.
func (f *Frame) AsCommand() model.Command {
	id := f.Command
	if f.Type == FrameResponse {
		id = model.CmdAck
		if f.Status != model.StatusOK {
			id = model.CmdNak
		}
	}
	return model.Command{ID: id, Token: f.Token, UData: f.UData, FData: f.FData, SData: f.SData}
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame{%s %s token=%d status=%s}", f.Type, f.Command, f.Token, f.Status)
}
