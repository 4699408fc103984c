package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidDataRequest is returned by DataRequest.Validate.
var ErrInvalidDataRequest = errors.New("invalid data request")

// RequestType selects how the peer resolves a data request's value.
type RequestType int

const (
	// RequestNamed reads a variable by type letter and name.
	RequestNamed RequestType = iota
	// RequestCalculated evaluates calculator code.
	RequestCalculated
)

func (t RequestType) String() string {
	if t == RequestCalculated {
		return "Calculated"
	}
	return "Named"
}

// CalcResultType is the value type produced by calculator code.
type CalcResultType int

const (
	CalcNone CalcResultType = iota
	CalcDouble
	CalcInteger
	CalcString
	CalcFormatted
)

func (t CalcResultType) String() string {
	switch t {
	case CalcDouble:
		return "Double"
	case CalcInteger:
		return "Integer"
	case CalcString:
		return "String"
	case CalcFormatted:
		return "Formatted"
	default:
		return "None"
	}
}

// UpdatePeriod is the peer clock a data request is scheduled on.
type UpdatePeriod int

const (
	PeriodNever UpdatePeriod = iota
	PeriodOnce
	PeriodTick
	PeriodVisualFrame
	PeriodSecond
	PeriodMillisecond
)

func (p UpdatePeriod) String() string {
	switch p {
	case PeriodNever:
		return "Never"
	case PeriodOnce:
		return "Once"
	case PeriodTick:
		return "Tick"
	case PeriodVisualFrame:
		return "VisualFrame"
	case PeriodSecond:
		return "Second"
	case PeriodMillisecond:
		return "Millisecond"
	default:
		return fmt.Sprintf("UpdatePeriod(%d)", int(p))
	}
}

// Periodic reports whether the peer re-arms the request on its own clock.
func (p UpdatePeriod) Periodic() bool {
	return p >= PeriodTick && p <= PeriodMillisecond
}

// Predefined value sizes. A DataRequest.ValueSize is either one of these or a
// positive byte count.
const (
	DataTypeInt8   int32 = -1
	DataTypeInt16  int32 = -2
	DataTypeInt32  int32 = -3
	DataTypeInt64  int32 = -4
	DataTypeFloat  int32 = -5
	DataTypeDouble int32 = -6
)

// DataRequest is a standing registration for the value of a variable or of
// calculator code.
type DataRequest struct {
	// RequestID is chosen by the caller and keys the registry.
	RequestID      uint32
	RequestType    RequestType
	CalcResultType CalcResultType
	// VariableType is the variable type letter ('A', 'L', ...) for named requests.
	VariableType byte
	NameOrCode   string
	Unit         string
	SimVarIndex  uint8
	ValueSize    int32
	Period       UpdatePeriod
	// Interval is the number of clock ticks skipped between deliveries, or the
	// period in milliseconds for PeriodMillisecond.
	Interval uint32
	// DeltaEpsilon suppresses deliveries whose value changed by less than it.
	// Zero delivers on any change; a negative value delivers on every tick.
	DeltaEpsilon float32
}

// NewNamedRequest builds a per-tick request for a named variable.
func NewNamedRequest(id uint32, varType byte, name, unit string, valueSize int32) DataRequest {
	return DataRequest{
		RequestID:    id,
		RequestType:  RequestNamed,
		VariableType: varType,
		NameOrCode:   name,
		Unit:         unit,
		ValueSize:    valueSize,
		Period:       PeriodTick,
	}
}

// NewCalculatedRequest builds a request whose value comes from calculator code.
func NewCalculatedRequest(id uint32, resultType CalcResultType, code string, valueSize int32, period UpdatePeriod, interval uint32, deltaEpsilon float32) DataRequest {
	return DataRequest{
		RequestID:      id,
		RequestType:    RequestCalculated,
		CalcResultType: resultType,
		NameOrCode:     code,
		ValueSize:      valueSize,
		Period:         period,
		Interval:       interval,
		DeltaEpsilon:   deltaEpsilon,
	}
}

// Kind resolves the decoded value type of the request. Invalid combinations
// yield KindInvalid.
func (r DataRequest) Kind() ValueKind {
	if r.ValueSize < 0 {
		if r.RequestType == RequestCalculated && r.CalcResultType.stringResult() {
			return KindInvalid
		}
		return predefinedKind(r.ValueSize)
	}
	if r.ValueSize == 0 {
		return KindInvalid
	}
	if r.RequestType == RequestCalculated && r.CalcResultType.stringResult() {
		return KindString
	}
	if r.ValueSize < 4 {
		return KindInvalid
	}
	integer := r.RequestType == RequestCalculated && r.CalcResultType == CalcInteger
	switch {
	case r.ValueSize < 8 && integer:
		return KindInt32
	case r.ValueSize < 8:
		return KindFloat32
	case integer:
		return KindInt64
	default:
		return KindFloat64
	}
}

// ByteSize is the number of bytes the peer delivers for this request.
func (r DataRequest) ByteSize() int {
	if r.ValueSize < 0 {
		return r.Kind().Size()
	}
	return int(r.ValueSize)
}

// Validate checks the request for caller configuration errors.
func (r DataRequest) Validate() error {
	if strings.TrimSpace(r.NameOrCode) == "" {
		return fmt.Errorf("%w: request %d: name or code is required", ErrInvalidDataRequest, r.RequestID)
	}
	switch r.RequestType {
	case RequestNamed:
		if r.VariableType < 'A' || r.VariableType > 'Z' {
			return fmt.Errorf("%w: request %d: variable type %q", ErrInvalidDataRequest, r.RequestID, r.VariableType)
		}
	case RequestCalculated:
		if r.CalcResultType == CalcNone || r.CalcResultType > CalcFormatted {
			return fmt.Errorf("%w: request %d: calculator result type %s", ErrInvalidDataRequest, r.RequestID, r.CalcResultType)
		}
	default:
		return fmt.Errorf("%w: request %d: request type %d", ErrInvalidDataRequest, r.RequestID, int(r.RequestType))
	}
	if r.Period < PeriodNever || r.Period > PeriodMillisecond {
		return fmt.Errorf("%w: request %d: period %s", ErrInvalidDataRequest, r.RequestID, r.Period)
	}
	if r.Period == PeriodMillisecond && r.Interval == 0 {
		return fmt.Errorf("%w: request %d: millisecond period needs a non-zero interval", ErrInvalidDataRequest, r.RequestID)
	}
	if r.Kind() == KindInvalid {
		if r.ValueSize > 0 && r.ValueSize < 4 {
			return fmt.Errorf("%w: request %d: value size %d is smaller than the value type", ErrInvalidDataRequest, r.RequestID, r.ValueSize)
		}
		return fmt.Errorf("%w: request %d: value size %d does not fit result type %s", ErrInvalidDataRequest, r.RequestID, r.ValueSize, r.CalcResultType)
	}
	return nil
}

func (t CalcResultType) stringResult() bool {
	return t == CalcString || t == CalcFormatted
}

func (r DataRequest) String() string {
	if r.RequestType == RequestCalculated {
		return fmt.Sprintf("DataRequest{id: %d; calc (%s): %q; size: %d; period: %s; interval: %d; epsilon: %g}",
			r.RequestID, r.CalcResultType, r.NameOrCode, r.ValueSize, r.Period, r.Interval, r.DeltaEpsilon)
	}
	return fmt.Sprintf("DataRequest{id: %d; %c:%s,%s; size: %d; period: %s; interval: %d; epsilon: %g}",
		r.RequestID, r.VariableType, r.NameOrCode, r.Unit, r.ValueSize, r.Period, r.Interval, r.DeltaEpsilon)
}

// DataRequestRecord is a DataRequest plus the most recently delivered value.
type DataRequestRecord struct {
	DataRequest
	Data       []byte
	LastUpdate time.Time
	Deliveries uint64
}

// Clone returns a copy that shares no memory with r.
func (r DataRequestRecord) Clone() DataRequestRecord {
	out := r
	if r.Data != nil {
		out.Data = append([]byte(nil), r.Data...)
	}
	return out
}

func (r DataRequestRecord) String() string {
	return fmt.Sprintf("%s -> {deliveries: %d; last: %s; data: % x}",
		r.DataRequest, r.Deliveries, r.LastUpdate.Format("15:04:05.000"), r.Data)
}
