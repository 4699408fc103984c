package model

import "fmt"

// CommandID names a discrete command understood by the server module.
type CommandID int

const (
	CmdNone CommandID = iota
	CmdAck
	CmdNak
	CmdHello
	CmdPing
	CmdConnect
	CmdDisconnect
	CmdList
	CmdLookup
	CmdGet
	CmdGetCreate
	CmdSet
	CmdSetCreate
	CmdExec
	CmdDataRequest
	CmdUpdate
	CmdRemove
	CmdSubscribe
	CmdSendKey
	CmdLogLevel
	CmdShutdown
)

var commandNames = map[CommandID]string{
	CmdNone:        "None",
	CmdAck:         "Ack",
	CmdNak:         "Nak",
	CmdHello:       "Hello",
	CmdPing:        "Ping",
	CmdConnect:     "Connect",
	CmdDisconnect:  "Disconnect",
	CmdList:        "List",
	CmdLookup:      "Lookup",
	CmdGet:         "Get",
	CmdGetCreate:   "GetCreate",
	CmdSet:         "Set",
	CmdSetCreate:   "SetCreate",
	CmdExec:        "Exec",
	CmdDataRequest: "DataRequest",
	CmdUpdate:      "Update",
	CmdRemove:      "Remove",
	CmdSubscribe:   "Subscribe",
	CmdSendKey:     "SendKey",
	CmdLogLevel:    "LogLevel",
	CmdShutdown:    "Shutdown",
}

func (c CommandID) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return fmt.Sprintf("CommandID(%d)", int(c))
}

// Command is a single command or response exchanged with the server module.
// Token correlates a response with the command that caused it.
type Command struct {
	ID    CommandID
	Token uint32
	UData uint32
	FData float64
	SData string
}

func (c Command) String() string {
	return fmt.Sprintf("Command{%s; token: %d; uData: %d; fData: %g; sData: %q}", c.ID, c.Token, c.UData, c.FData, c.SData)
}

// LookupItemType selects the namespace used by a lookup or list operation.
type LookupItemType int

const (
	LookupNone LookupItemType = iota
	LookupLocalVariable
	LookupSimulatorVariable
	LookupTokenVariable
	LookupUnitType
	LookupKeyEventID
	LookupDataRequest
)

func (t LookupItemType) String() string {
	switch t {
	case LookupLocalVariable:
		return "LocalVariable"
	case LookupSimulatorVariable:
		return "SimulatorVariable"
	case LookupTokenVariable:
		return "TokenVariable"
	case LookupUnitType:
		return "UnitType"
	case LookupKeyEventID:
		return "KeyEventId"
	case LookupDataRequest:
		return "DataRequest"
	default:
		return "None"
	}
}

// ListItem is one id/name pair of a list result.
type ListItem struct {
	ID   int32
	Name string
}

// ListResult carries the items returned for a list request.
type ListResult struct {
	ListType LookupItemType
	Result   Status
	Items    []ListItem
}

func (r ListResult) String() string {
	return fmt.Sprintf("ListResult{type: %s; result: %s; items: %d}", r.ListType, r.Result, len(r.Items))
}
