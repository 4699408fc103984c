package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidVariableRequest is returned by VariableRequest.Validate.
var ErrInvalidVariableRequest = errors.New("invalid variable request")

// VariableRequest addresses a single variable for a direct get or set.
type VariableRequest struct {
	// VariableType is the type letter: 'A' simulator, 'L' local, 'T' token, ...
	VariableType byte
	Name         string
	Unit         string
	SimVarIndex  uint8
	// VariableID addresses the variable when Name is empty.
	VariableID  int32
	CreateLocal bool
}

// NewVariableRequest addresses a simulator variable by name and unit.
func NewVariableRequest(name, unit string, index uint8) VariableRequest {
	return VariableRequest{VariableType: 'A', Name: name, Unit: unit, SimVarIndex: index, VariableID: -1}
}

// NewLocalVariableRequest addresses a local variable by name.
func NewLocalVariableRequest(name string) VariableRequest {
	return VariableRequest{VariableType: 'L', Name: name, VariableID: -1}
}

func (r VariableRequest) Validate() error {
	if r.VariableType < 'A' || r.VariableType > 'Z' {
		return fmt.Errorf("%w: variable type %q", ErrInvalidVariableRequest, r.VariableType)
	}
	if strings.TrimSpace(r.Name) == "" && r.VariableID < 0 {
		return fmt.Errorf("%w: name or id is required", ErrInvalidVariableRequest)
	}
	if r.CreateLocal && r.VariableType != 'L' {
		return fmt.Errorf("%w: only local variables can be created", ErrInvalidVariableRequest)
	}
	return nil
}

func (r VariableRequest) String() string {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Sprintf("%c:#%d", r.VariableType, r.VariableID)
	}
	if r.Unit != "" {
		return fmt.Sprintf("%c:%s:%d,%s", r.VariableType, r.Name, r.SimVarIndex, r.Unit)
	}
	return fmt.Sprintf("%c:%s", r.VariableType, r.Name)
}

// PackVersion encodes a dotted version as 0xMMmmPPBB.
func PackVersion(major, minor, patch, build uint8) uint32 {
	return uint32(major)<<24 | uint32(minor)<<16 | uint32(patch)<<8 | uint32(build)
}

// FormatVersion renders a packed version as "M.m.p.b".
func FormatVersion(v uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", v>>24, (v>>16)&0xFF, (v>>8)&0xFF, v&0xFF)
}

// ParseVersion reads a dotted "M.m.p.b" version; missing parts are zero.
func ParseVersion(s string) (uint32, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) > 4 {
		return 0, fmt.Errorf("version %q has more than four parts", s)
	}
	var b [4]uint8
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("version %q: %w", s, err)
		}
		b[i] = uint8(n)
	}
	return PackVersion(b[0], b[1], b[2], b[3]), nil
}
