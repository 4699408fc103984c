package model

import (
	"bytes"
	"encoding/binary"
	"math"
)

// ValueKind is the decoded type of a data request's raw bytes.
type ValueKind int

const (
	KindInvalid ValueKind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindString
)

func (k ValueKind) String() string {
	switch k {
	case KindInt8:
		return "int8"
	case KindInt16:
		return "int16"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	default:
		return "invalid"
	}
}

// Size is the natural size in bytes of a numeric kind, or 0.
func (k ValueKind) Size() int {
	switch k {
	case KindInt8:
		return 1
	case KindInt16:
		return 2
	case KindInt32, KindFloat32:
		return 4
	case KindInt64, KindFloat64:
		return 8
	default:
		return 0
	}
}

func predefinedKind(size int32) ValueKind {
	switch size {
	case DataTypeInt8:
		return KindInt8
	case DataTypeInt16:
		return KindInt16
	case DataTypeInt32:
		return KindInt32
	case DataTypeInt64:
		return KindInt64
	case DataTypeFloat:
		return KindFloat32
	case DataTypeDouble:
		return KindFloat64
	default:
		return KindInvalid
	}
}

// EncodeValue renders a value into the little-endian wire form for kind,
// padded or truncated to size bytes. Numeric kinds read num; KindString
// reads str.
func EncodeValue(kind ValueKind, size int, num float64, str string) []byte {
	if size < kind.Size() {
		size = kind.Size()
	}
	buf := make([]byte, size)
	switch kind {
	case KindInt8:
		buf[0] = byte(int8(num))
	case KindInt16:
		binary.LittleEndian.PutUint16(buf, uint16(int16(num)))
	case KindInt32:
		binary.LittleEndian.PutUint32(buf, uint32(int32(num)))
	case KindInt64:
		binary.LittleEndian.PutUint64(buf, uint64(int64(num)))
	case KindFloat32:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(num)))
	case KindFloat64:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(num))
	case KindString:
		copy(buf, str)
	}
	return buf
}

// DecodeNumber reads a numeric kind back as float64.
func DecodeNumber(kind ValueKind, data []byte) (float64, bool) {
	if kind.Size() == 0 || len(data) < kind.Size() {
		return 0, false
	}
	switch kind {
	case KindInt8:
		return float64(int8(data[0])), true
	case KindInt16:
		return float64(int16(binary.LittleEndian.Uint16(data))), true
	case KindInt32:
		return float64(int32(binary.LittleEndian.Uint32(data))), true
	case KindInt64:
		return float64(int64(binary.LittleEndian.Uint64(data))), true
	case KindFloat32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data))), true
	default:
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), true
	}
}

func decodeString(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return string(data)
}

// Value lists the Go types a record's data can be converted to.
type Value interface {
	int8 | int16 | int32 | int64 | float32 | float64 | string
}

// TryConvert converts the record's data to T. It succeeds only when T is the
// record's decoded kind and enough data was delivered; a failed conversion
// returns the zero value and leaves r untouched.
func TryConvert[T Value](r DataRequestRecord) (T, bool) {
	var zero T
	var out any
	var ok bool
	switch any(zero).(type) {
	case int8:
		out, ok = r.TryInt8()
	case int16:
		out, ok = r.TryInt16()
	case int32:
		out, ok = r.TryInt32()
	case int64:
		out, ok = r.TryInt64()
	case float32:
		out, ok = r.TryFloat32()
	case float64:
		out, ok = r.TryFloat64()
	case string:
		out, ok = r.TryString()
	}
	if !ok {
		return zero, false
	}
	return out.(T), true
}

func (r DataRequestRecord) number(kind ValueKind) (float64, bool) {
	if r.Kind() != kind {
		return 0, false
	}
	return DecodeNumber(kind, r.Data)
}

func (r DataRequestRecord) TryInt8() (int8, bool) {
	v, ok := r.number(KindInt8)
	return int8(v), ok
}

func (r DataRequestRecord) TryInt16() (int16, bool) {
	v, ok := r.number(KindInt16)
	return int16(v), ok
}

func (r DataRequestRecord) TryInt32() (int32, bool) {
	v, ok := r.number(KindInt32)
	return int32(v), ok
}

// TryInt64 reads the raw bits directly; routing through float64 would lose
// precision above 2^53.
func (r DataRequestRecord) TryInt64() (int64, bool) {
	if r.Kind() != KindInt64 || len(r.Data) < 8 {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(r.Data)), true
}

func (r DataRequestRecord) TryFloat32() (float32, bool) {
	v, ok := r.number(KindFloat32)
	return float32(v), ok
}

func (r DataRequestRecord) TryFloat64() (float64, bool) {
	return r.number(KindFloat64)
}

func (r DataRequestRecord) TryString() (string, bool) {
	if r.Kind() != KindString || len(r.Data) == 0 {
		return "", false
	}
	return decodeString(r.Data), true
}

// Number returns any numeric value as float64.
func (r DataRequestRecord) Number() (float64, bool) {
	return DecodeNumber(r.Kind(), r.Data)
}
