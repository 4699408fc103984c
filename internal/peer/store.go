package peer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/signalsfoundry/simvar-client/model"
)

var (
	// ErrUnknownVariable reports a name or id the store does not hold.
	ErrUnknownVariable = errors.New("unknown variable")
	// ErrUnsupported reports a variable type or namespace the store does not serve.
	ErrUnsupported = errors.New("unsupported variable type")
)

// Value is a simulator value; string variables set Str and IsString.
type Value struct {
	Num      float64
	Str      string
	IsString bool
}

type simVar struct {
	id    int32
	name  string
	unit  string
	value Value
}

type localVar struct {
	name  string
	value float64
}

// Store holds the simulated variable state shared by every session of a peer.
type Store struct {
	mu sync.RWMutex

	simVars   map[string]*simVar
	simByID   []*simVar
	locals    []localVar
	localIdx  map[string]int32
	tokens    map[string]*simVar
	tokByID   []*simVar
	keyEvents map[string]int32
	units     map[string]int32
	keyLog    []int32
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		simVars:   make(map[string]*simVar),
		localIdx:  make(map[string]int32),
		tokens:    make(map[string]*simVar),
		keyEvents: make(map[string]int32),
		units:     make(map[string]int32),
	}
}

// DefaultStore returns a store seeded with a small aircraft.
func DefaultStore() *Store {
	s := NewStore()
	for i, u := range []string{"number", "bool", "percent", "feet", "knots", "rpm", "degrees", "seconds", "string"} {
		s.units[u] = int32(i + 1)
	}
	s.DefineSimVar("CG PERCENT", "percent", Value{Num: 25.5})
	s.DefineSimVar("TITLE", "string", Value{Str: "Generic Trainer", IsString: true})
	s.DefineSimVar("PLANE ALTITUDE", "feet", Value{Num: 1500})
	s.DefineSimVar("AIRSPEED INDICATED", "knots", Value{Num: 110})
	s.DefineSimVar("PLANE HEADING DEGREES MAGNETIC", "degrees", Value{Num: 270})
	s.DefineSimVar("GENERAL ENG RPM:1", "rpm", Value{Num: 2300})
	s.DefineSimVar("LIGHT NAV", "bool", Value{Num: 0})
	s.defineToken("AIRCRAFT_ON_GROUND", Value{Num: 0})
	s.defineToken("FUEL_QUANTITY", Value{Num: 42})
	for name, id := range map[string]int32{
		"ATC_MENU_OPEN":     65850,
		"TOGGLE_NAV_LIGHTS": 65567,
		"PAUSE_TOGGLE":      65561,
		"AP_MASTER":         65580,
	} {
		s.keyEvents[name] = id
	}
	return s
}

func simKey(name string, index uint8) string {
	key := strings.ToUpper(strings.TrimSpace(name))
	if index > 0 && !strings.Contains(key, ":") {
		key = fmt.Sprintf("%s:%d", key, index)
	}
	return key
}

// DefineSimVar adds or replaces a simulator variable.
func (s *Store) DefineSimVar(name, unit string, v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := simKey(name, 0)
	if sv, ok := s.simVars[key]; ok {
		sv.unit, sv.value = unit, v
		return
	}
	sv := &simVar{id: int32(len(s.simByID)), name: key, unit: unit, value: v}
	s.simVars[key] = sv
	s.simByID = append(s.simByID, sv)
}

func (s *Store) defineToken(name string, v Value) {
	sv := &simVar{id: int32(len(s.tokByID)), name: name, value: v}
	s.tokens[name] = sv
	s.tokByID = append(s.tokByID, sv)
}

// SimVar returns a simulator variable's value.
func (s *Store) SimVar(name string, index uint8) (Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sv, ok := s.simVars[simKey(name, index)]
	if !ok {
		return Value{}, fmt.Errorf("%w: A:%s", ErrUnknownVariable, name)
	}
	return sv.value, nil
}

// SetSimVar writes a numeric simulator variable.
func (s *Store) SetSimVar(name string, index uint8, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sv, ok := s.simVars[simKey(name, index)]
	if !ok {
		return fmt.Errorf("%w: A:%s", ErrUnknownVariable, name)
	}
	if sv.value.IsString {
		return fmt.Errorf("%w: A:%s is a string", ErrUnsupported, name)
	}
	sv.value.Num = v
	return nil
}

// Local returns the value of a local variable.
func (s *Store) Local(name string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.localIdx[strings.TrimSpace(name)]
	if !ok {
		return 0, fmt.Errorf("%w: L:%s", ErrUnknownVariable, name)
	}
	return s.locals[id].value, nil
}

// SetLocal writes a local variable. With create it is added when missing.
func (s *Store) SetLocal(name string, v float64, create bool) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocalLocked(strings.TrimSpace(name), v, create)
}

func (s *Store) setLocalLocked(name string, v float64, create bool) (int32, error) {
	id, ok := s.localIdx[name]
	if !ok {
		if !create {
			return -1, fmt.Errorf("%w: L:%s", ErrUnknownVariable, name)
		}
		id = int32(len(s.locals))
		s.locals = append(s.locals, localVar{name: name})
		s.localIdx[name] = id
	}
	s.locals[id].value = v
	return id, nil
}

// GetOrCreateLocal returns a local variable, creating it with def when missing.
func (s *Store) GetOrCreateLocal(name string, def float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	name = strings.TrimSpace(name)
	if id, ok := s.localIdx[name]; ok {
		return s.locals[id].value
	}
	_, _ = s.setLocalLocked(name, def, true)
	return def
}

// Get reads the variable addressed by req.
func (s *Store) Get(req model.VariableRequest) (Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch req.VariableType {
	case 'A':
		sv, err := s.simVarLocked(req)
		if err != nil {
			return Value{}, err
		}
		return sv.value, nil
	case 'L':
		id, err := s.localIDLocked(req)
		if err != nil {
			return Value{}, err
		}
		return Value{Num: s.locals[id].value}, nil
	case 'T':
		if req.Name == "" {
			if req.VariableID < 0 || int(req.VariableID) >= len(s.tokByID) {
				return Value{}, fmt.Errorf("%w: T:#%d", ErrUnknownVariable, req.VariableID)
			}
			return s.tokByID[req.VariableID].value, nil
		}
		tv, ok := s.tokens[strings.ToUpper(req.Name)]
		if !ok {
			return Value{}, fmt.Errorf("%w: T:%s", ErrUnknownVariable, req.Name)
		}
		return tv.value, nil
	default:
		return Value{}, fmt.Errorf("%w: %c", ErrUnsupported, req.VariableType)
	}
}

// Set writes the variable addressed by req.
func (s *Store) Set(req model.VariableRequest, v float64) error {
	switch req.VariableType {
	case 'A':
		s.mu.Lock()
		defer s.mu.Unlock()
		sv, err := s.simVarLocked(req)
		if err != nil {
			return err
		}
		if sv.value.IsString {
			return fmt.Errorf("%w: A:%s is a string", ErrUnsupported, sv.name)
		}
		sv.value.Num = v
		return nil
	case 'L':
		s.mu.Lock()
		defer s.mu.Unlock()
		if req.Name == "" {
			id, err := s.localIDLocked(req)
			if err != nil {
				return err
			}
			s.locals[id].value = v
			return nil
		}
		_, err := s.setLocalLocked(strings.TrimSpace(req.Name), v, req.CreateLocal)
		return err
	default:
		return fmt.Errorf("%w: %c", ErrUnsupported, req.VariableType)
	}
}

func (s *Store) simVarLocked(req model.VariableRequest) (*simVar, error) {
	if req.Name == "" {
		if req.VariableID < 0 || int(req.VariableID) >= len(s.simByID) {
			return nil, fmt.Errorf("%w: A:#%d", ErrUnknownVariable, req.VariableID)
		}
		return s.simByID[req.VariableID], nil
	}
	sv, ok := s.simVars[simKey(req.Name, req.SimVarIndex)]
	if !ok {
		return nil, fmt.Errorf("%w: A:%s", ErrUnknownVariable, req.Name)
	}
	return sv, nil
}

func (s *Store) localIDLocked(req model.VariableRequest) (int32, error) {
	if req.Name == "" {
		if req.VariableID < 0 || int(req.VariableID) >= len(s.locals) {
			return -1, fmt.Errorf("%w: L:#%d", ErrUnknownVariable, req.VariableID)
		}
		return req.VariableID, nil
	}
	id, ok := s.localIdx[strings.TrimSpace(req.Name)]
	if !ok {
		return -1, fmt.Errorf("%w: L:%s", ErrUnknownVariable, req.Name)
	}
	return id, nil
}

// Lookup resolves name in the itemType namespace.
func (s *Store) Lookup(itemType model.LookupItemType, name string) (int32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		id int32
		ok bool
	)
	switch itemType {
	case model.LookupLocalVariable:
		id, ok = s.localIdx[strings.TrimSpace(name)]
	case model.LookupSimulatorVariable:
		var sv *simVar
		if sv, ok = s.simVars[simKey(name, 0)]; ok {
			id = sv.id
		}
	case model.LookupTokenVariable:
		var tv *simVar
		if tv, ok = s.tokens[strings.ToUpper(name)]; ok {
			id = tv.id
		}
	case model.LookupUnitType:
		id, ok = s.units[strings.ToLower(strings.TrimSpace(name))]
	case model.LookupKeyEventID:
		id, ok = s.keyEvents[strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(name), "KEY_"))]
	default:
		return -1, fmt.Errorf("%w: lookup %s", ErrUnsupported, itemType)
	}
	if !ok {
		return -1, fmt.Errorf("%w: %s %q", ErrUnknownVariable, itemType, name)
	}
	return id, nil
}

// TriggerKey records a key event by id.
func (s *Store) TriggerKey(id int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, known := range s.keyEvents {
		if known == id {
			s.keyLog = append(s.keyLog, id)
			return nil
		}
	}
	return fmt.Errorf("%w: key event %d", ErrUnknownVariable, id)
}

// KeyEvents returns the key event ids triggered so far.
func (s *Store) KeyEvents() []int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int32(nil), s.keyLog...)
}

// List returns the items of a namespace ordered by id.
func (s *Store) List(itemType model.LookupItemType) ([]model.ListItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []model.ListItem
	switch itemType {
	case model.LookupLocalVariable:
		for id, lv := range s.locals {
			items = append(items, model.ListItem{ID: int32(id), Name: lv.name})
		}
	case model.LookupSimulatorVariable:
		for _, sv := range s.simByID {
			items = append(items, model.ListItem{ID: sv.id, Name: sv.name})
		}
	case model.LookupTokenVariable:
		for _, tv := range s.tokByID {
			items = append(items, model.ListItem{ID: tv.id, Name: tv.name})
		}
	case model.LookupKeyEventID:
		for name, id := range s.keyEvents {
			items = append(items, model.ListItem{ID: id, Name: name})
		}
	default:
		return nil, fmt.Errorf("%w: list %s", ErrUnsupported, itemType)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}
