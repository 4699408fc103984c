package wire

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/signalsfoundry/simvar-client/model"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Field names of the protobuf Struct encoding.
const (
	keyType     = "type"
	keyToken    = "token"
	keyCommand  = "cmd"
	keyStatus   = "status"
	keyUData    = "u"
	keyFData    = "f"
	keySData    = "s"
	keyTime     = "time"
	keySession  = "session"
	keyVariable = "var"
	keyRequest  = "req"
	keyRaw      = "raw"
	keyItems    = "items"
)

// ToStruct encodes f as a protobuf Struct so it can travel over any protobuf
// transport without generated message types.
func ToStruct(f *Frame) (*structpb.Struct, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	m := map[string]any{
		keyType:    float64(f.Type),
		keyToken:   float64(f.Token),
		keyCommand: float64(f.Command),
		keyStatus:  float64(f.Status),
	}
	if f.UData != 0 {
		m[keyUData] = float64(f.UData)
	}
	if f.FData != 0 {
		m[keyFData] = f.FData
	}
	if f.SData != "" {
		m[keySData] = f.SData
	}
	if f.Session != "" {
		m[keySession] = f.Session
	}
	if !f.Time.IsZero() {
		m[keyTime] = f.Time.UTC().Format(time.RFC3339Nano)
	}
	if f.Raw != nil {
		m[keyRaw] = base64.StdEncoding.EncodeToString(f.Raw)
	}
	if v := f.Variable; v != nil {
		m[keyVariable] = map[string]any{
			"type":   float64(v.VariableType),
			"name":   v.Name,
			"unit":   v.Unit,
			"index":  float64(v.SimVarIndex),
			"id":     float64(v.VariableID),
			"create": v.CreateLocal,
		}
	}
	if r := f.Request; r != nil {
		m[keyRequest] = map[string]any{
			"id":       float64(r.RequestID),
			"kind":     float64(r.RequestType),
			"result":   float64(r.CalcResultType),
			"vartype":  float64(r.VariableType),
			"name":     r.NameOrCode,
			"unit":     r.Unit,
			"index":    float64(r.SimVarIndex),
			"size":     float64(r.ValueSize),
			"period":   float64(r.Period),
			"interval": float64(r.Interval),
			"epsilon":  float64(r.DeltaEpsilon),
		}
	}
	if f.Items != nil {
		items := make([]any, 0, len(f.Items))
		for _, it := range f.Items {
			items = append(items, map[string]any{"id": float64(it.ID), "name": it.Name})
		}
		m[keyItems] = items
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return s, nil
}

// FromStruct decodes a frame produced by ToStruct.
func FromStruct(s *structpb.Struct) (*Frame, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil struct", ErrInvalidFrame)
	}
	fields := s.GetFields()
	num := func(k string) float64 { return fields[k].GetNumberValue() }

	f := &Frame{
		Type:    FrameType(num(keyType)),
		Token:   uint32(num(keyToken)),
		Command: model.CommandID(num(keyCommand)),
		Status:  model.Status(num(keyStatus)),
		UData:   uint32(num(keyUData)),
		FData:   num(keyFData),
		SData:   fields[keySData].GetStringValue(),
		Session: fields[keySession].GetStringValue(),
	}
	if ts := fields[keyTime].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("%w: time: %v", ErrInvalidFrame, err)
		}
		f.Time = t
	}
	if raw, ok := fields[keyRaw]; ok {
		b, err := base64.StdEncoding.DecodeString(raw.GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("%w: raw: %v", ErrInvalidFrame, err)
		}
		f.Raw = b
	}
	if v := fields[keyVariable].GetStructValue(); v != nil {
		vf := v.GetFields()
		f.Variable = &model.VariableRequest{
			VariableType: byte(vf["type"].GetNumberValue()),
			Name:         vf["name"].GetStringValue(),
			Unit:         vf["unit"].GetStringValue(),
			SimVarIndex:  uint8(vf["index"].GetNumberValue()),
			VariableID:   int32(vf["id"].GetNumberValue()),
			CreateLocal:  vf["create"].GetBoolValue(),
		}
	}
	if r := fields[keyRequest].GetStructValue(); r != nil {
		rf := r.GetFields()
		f.Request = &model.DataRequest{
			RequestID:      uint32(rf["id"].GetNumberValue()),
			RequestType:    model.RequestType(rf["kind"].GetNumberValue()),
			CalcResultType: model.CalcResultType(rf["result"].GetNumberValue()),
			VariableType:   byte(rf["vartype"].GetNumberValue()),
			NameOrCode:     rf["name"].GetStringValue(),
			Unit:           rf["unit"].GetStringValue(),
			SimVarIndex:    uint8(rf["index"].GetNumberValue()),
			ValueSize:      int32(rf["size"].GetNumberValue()),
			Period:         model.UpdatePeriod(rf["period"].GetNumberValue()),
			Interval:       uint32(rf["interval"].GetNumberValue()),
			DeltaEpsilon:   float32(rf["epsilon"].GetNumberValue()),
		}
	}
	if items := fields[keyItems].GetListValue(); items != nil {
		f.Items = make([]model.ListItem, 0, len(items.GetValues()))
		for _, v := range items.GetValues() {
			it := v.GetStructValue().GetFields()
			f.Items = append(f.Items, model.ListItem{
				ID:   int32(it["id"].GetNumberValue()),
				Name: it["name"].GetStringValue(),
			})
		}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Marshal encodes f in protobuf binary form.
func Marshal(f *Frame) ([]byte, error) {
	s, err := ToStruct(f)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// Unmarshal decodes protobuf binary produced by Marshal.
func Unmarshal(data []byte) (*Frame, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return FromStruct(&s)
}
