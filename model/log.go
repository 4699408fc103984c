package model

import (
	"fmt"
	"strings"
	"time"
)

// LogLevel follows the server module's severity scale; lower values are more
// severe and LogNone disables a facility.
type LogLevel int

const (
	LogNone LogLevel = iota
	LogCritical
	LogError
	LogWarning
	LogInfo
	LogDebug
	LogTrace
)

func (l LogLevel) String() string {
	switch l {
	case LogCritical:
		return "Critical"
	case LogError:
		return "Error"
	case LogWarning:
		return "Warning"
	case LogInfo:
		return "Info"
	case LogDebug:
		return "Debug"
	case LogTrace:
		return "Trace"
	default:
		return "None"
	}
}

// ParseLogLevel reads a level name as printed by String, ignoring case.
func ParseLogLevel(s string) (LogLevel, error) {
	for l := LogNone; l <= LogTrace; l++ {
		if strings.EqualFold(strings.TrimSpace(s), l.String()) {
			return l, nil
		}
	}
	if strings.EqualFold(strings.TrimSpace(s), "warn") {
		return LogWarning, nil
	}
	return LogNone, fmt.Errorf("unknown log level %q", s)
}

// Allows reports whether a record at level rec passes a threshold of l.
func (l LogLevel) Allows(rec LogLevel) bool {
	return l != LogNone && rec != LogNone && rec <= l
}

// LogFacility selects where log output goes.
type LogFacility int

const (
	FacilityNone    LogFacility = 0x00
	FacilityConsole LogFacility = 0x01
	FacilityFile    LogFacility = 0x02
	FacilityRemote  LogFacility = 0x04
	FacilityAll     LogFacility = FacilityConsole | FacilityFile | FacilityRemote
)

// LogSource distinguishes records produced by the client from those
// streamed by the server module.
type LogSource int

const (
	LogSourceClient LogSource = iota
	LogSourceServer
)

func (s LogSource) String() string {
	if s == LogSourceServer {
		return "Server"
	}
	return "Client"
}

// LogRecord is one log line delivered to log subscribers.
type LogRecord struct {
	Level     LogLevel
	Message   string
	Timestamp time.Time
	Source    LogSource
}

func (r LogRecord) String() string {
	return fmt.Sprintf("%s [%s] %s", r.Timestamp.Format("15:04:05.000"), r.Level, r.Message)
}
