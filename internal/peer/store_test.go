package peer

import (
	"testing"

	"github.com/signalsfoundry/simvar-client/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSimVars(t *testing.T) {
	s := DefaultStore()

	v, err := s.Get(model.NewVariableRequest("cg percent", "percent", 0))
	require.NoError(t, err)
	assert.Equal(t, 25.5, v.Num)

	require.NoError(t, s.Set(model.NewVariableRequest("PLANE ALTITUDE", "feet", 0), 3000))
	v, err = s.SimVar("PLANE ALTITUDE", 0)
	require.NoError(t, err)
	assert.Equal(t, 3000.0, v.Num)

	v, err = s.SimVar("GENERAL ENG RPM", 1)
	require.NoError(t, err)
	assert.Equal(t, 2300.0, v.Num)

	assert.ErrorIs(t, s.Set(model.NewVariableRequest("TITLE", "string", 0), 1), ErrUnsupported)
	_, err = s.Get(model.NewVariableRequest("NOPE", "", 0))
	assert.ErrorIs(t, err, ErrUnknownVariable)

	id, err := s.Lookup(model.LookupSimulatorVariable, "TITLE")
	require.NoError(t, err)
	v, err = s.Get(model.VariableRequest{VariableType: 'A', VariableID: id})
	require.NoError(t, err)
	assert.Equal(t, "Generic Trainer", v.Str)
}

func TestStoreLocals(t *testing.T) {
	s := NewStore()

	_, err := s.SetLocal("a", 1, false)
	assert.ErrorIs(t, err, ErrUnknownVariable)

	id, err := s.SetLocal("a", 1, true)
	require.NoError(t, err)
	assert.Equal(t, int32(0), id)
	assert.Equal(t, 7.0, s.GetOrCreateLocal("b", 7))
	assert.Equal(t, 7.0, s.GetOrCreateLocal("b", 9))

	require.NoError(t, s.Set(model.VariableRequest{VariableType: 'L', VariableID: 1}, 3))
	v, err := s.Local("b")
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	got, err := s.Lookup(model.LookupLocalVariable, "b")
	require.NoError(t, err)
	assert.Equal(t, int32(1), got)

	items, err := s.List(model.LookupLocalVariable)
	require.NoError(t, err)
	assert.Equal(t, []model.ListItem{{ID: 0, Name: "a"}, {ID: 1, Name: "b"}}, items)
}

func TestStoreLookupNamespaces(t *testing.T) {
	s := DefaultStore()

	id, err := s.Lookup(model.LookupKeyEventID, "KEY_ATC_MENU_OPEN")
	require.NoError(t, err)
	assert.Equal(t, int32(65850), id)

	_, err = s.Lookup(model.LookupUnitType, "feet")
	assert.NoError(t, err)
	_, err = s.Lookup(model.LookupTokenVariable, "fuel_quantity")
	assert.NoError(t, err)
	_, err = s.Lookup(model.LookupSimulatorVariable, "NOT A VAR")
	assert.ErrorIs(t, err, ErrUnknownVariable)
	_, err = s.Lookup(model.LookupNone, "x")
	assert.ErrorIs(t, err, ErrUnsupported)

	assert.ErrorIs(t, s.TriggerKey(1), ErrUnknownVariable)
	_, err = s.List(model.LookupUnitType)
	assert.ErrorIs(t, err, ErrUnsupported)
}
