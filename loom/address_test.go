package loom

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildKnots(t *testing.T) *KnotSet {
	t.Helper()
	knots := NewKnotSet()
	hallway := &Knot{
		Name:        "hallway",
		Stitches:    map[string]*RootNode{"": {Addr: LocationAddress("hallway", "")}, "door": {Addr: LocationAddress("hallway", "door")}},
		StitchOrder: []string{"", "door"},
	}
	kitchen := &Knot{
		Name:        "kitchen",
		Stitches:    map[string]*RootNode{"": {Addr: LocationAddress("kitchen", "")}},
		StitchOrder: []string{""},
	}
	knots.Add(hallway)
	knots.Add(kitchen)
	return knots
}

func TestAddressValidateTieBreak(t *testing.T) {
	knots := buildKnots(t)
	ctx := &AddressContext{Knots: knots, Globals: map[string]bool{"torch": true, "kitchen": true}}

	t.Run("stitch of current knot wins first", func(t *testing.T) {
		addr := ParseAddress("door", "hallway")
		resolved, err := addr.Validate("hallway", ctx)
		require.NoError(t, err)
		knot, stitch, err := resolved.Location()
		require.NoError(t, err)
		assert.Equal(t, "hallway", knot)
		assert.Equal(t, "door", stitch)
	})

	t.Run("knot name wins over global when no matching stitch", func(t *testing.T) {
		addr := ParseAddress("kitchen", "hallway")
		resolved, err := addr.Validate("hallway", ctx)
		require.NoError(t, err)
		assert.True(t, resolved.IsLocation())
	})

	t.Run("global variable resolves when no stitch or knot matches", func(t *testing.T) {
		addr := ParseAddress("torch", "hallway")
		resolved, err := addr.Validate("hallway", ctx)
		require.NoError(t, err)
		assert.True(t, resolved.IsGlobalVariable())
		name, err := resolved.VariableName()
		require.NoError(t, err)
		assert.Equal(t, "torch", name)
	})

	t.Run("reserved words resolve last", func(t *testing.T) {
		addr := ParseAddress("DONE", "hallway")
		resolved, err := addr.Validate("hallway", ctx)
		require.NoError(t, err)
		assert.True(t, resolved.IsDone())

		addr = ParseAddress("END", "hallway")
		resolved, err = addr.Validate("hallway", ctx)
		require.NoError(t, err)
		assert.True(t, resolved.IsEnd())
	})

	t.Run("stitch-local dot form", func(t *testing.T) {
		addr := ParseAddress(".door", "hallway")
		resolved, err := addr.Validate("hallway", ctx)
		require.NoError(t, err)
		knot, stitch, err := resolved.Location()
		require.NoError(t, err)
		assert.Equal(t, "hallway", knot)
		assert.Equal(t, "door", stitch)
	})

	t.Run("unknown knot errors", func(t *testing.T) {
		addr := ParseAddress("attic.loft", "hallway")
		_, err := addr.Validate("hallway", ctx)
		var invalid *InvalidAddressError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "unknown knot", invalid.Reason)
	})

	t.Run("unknown stitch errors", func(t *testing.T) {
		addr := ParseAddress("hallway.attic", "hallway")
		_, err := addr.Validate("hallway", ctx)
		var invalid *InvalidAddressError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "unknown stitch", invalid.Reason)
	})

	t.Run("unresolved bare identifier errors", func(t *testing.T) {
		addr := ParseAddress("nowhere", "hallway")
		_, err := addr.Validate("hallway", ctx)
		var invalid *InvalidAddressError
		require.ErrorAs(t, err, &invalid)
	})
}

func TestAddressDisplay(t *testing.T) {
	assert.Equal(t, "hallway", LocationAddress("hallway", "").String())
	assert.Equal(t, "hallway.door", LocationAddress("hallway", "door").String())
	assert.Equal(t, "END", EndAddress().String())
	assert.Equal(t, "DONE", DoneAddress().String())
}

func TestAddressEquals(t *testing.T) {
	a := LocationAddress("hallway", "door")
	b := LocationAddress("hallway", "door")
	c := LocationAddress("hallway", "")
	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
}

func TestAddressValidateIsIdempotent(t *testing.T) {
	knots := buildKnots(t)
	ctx := &AddressContext{Knots: knots}
	addr := LocationAddress("hallway", "door")
	resolved, err := addr.Validate("hallway", ctx)
	require.NoError(t, err)
	assert.True(t, resolved.Equals(addr))
}

// TestAddressJSONRoundTrip guards against Address's unexported fields
// silently dropping out of a Variable's JSON encoding: a Variable of
// KindAddress embedded in Story.Snapshot's Variables map must come back
// pointing at the same knot/stitch, not an empty Address.
func TestAddressJSONRoundTrip(t *testing.T) {
	original := LocationAddress("hallway", "door")
	raw, err := json.Marshal(original)
	require.NoError(t, err)

	var restored Address
	require.NoError(t, json.Unmarshal(raw, &restored))
	assert.True(t, restored.Equals(original))

	v := NewAddressVar(original)
	rawVar, err := json.Marshal(v)
	require.NoError(t, err)

	var restoredVar Variable
	require.NoError(t, json.Unmarshal(rawVar, &restoredVar))
	assert.Equal(t, KindAddress, restoredVar.Kind)
	assert.True(t, restoredVar.AddrVal.Equals(original))
}
